package agent

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/samuelfneumann/gorl/environment"
)

// Type describes the available agent types
type Type string

// Available agent types
const (
	ActorCriticType Type = "ActorCritic"
	ImpalaType      Type = "Impala"
	DeepQType       Type = "DeepQ"
)

// Config represents a configuration for creating an agent
type Config interface {
	// CreateAgent creates the agent that the config describes,
	// vectorized over the manager's environment instances
	CreateAgent(env environment.Manager, seed uint64) (Agent, error)

	// Type returns the type of agent the Config creates
	Type() Type

	// Validate returns an error describing whether or not the
	// configuration is valid.
	Validate() error
}

// registeredTypes maps agent types to their concrete Config types for
// JSON unmarshalling.
var registeredTypes = map[string]reflect.Type{
	string(ActorCriticType): reflect.TypeOf(ActorCriticConfig{}),
	string(ImpalaType):      reflect.TypeOf(ImpalaConfig{}),
	string(DeepQType):       reflect.TypeOf(DeepQConfig{}),
}

// TypedConfig wraps a Config with its Type so that configurations can
// be JSON marshalled and unmarshalled into their concrete types.
type TypedConfig struct {
	Type   Type
	Config Config
}

// NewTypedConfig wraps a Config with its Type
func NewTypedConfig(c Config) *TypedConfig {
	return &TypedConfig{Type: c.Type(), Config: c}
}

// UnmarshalJSON implements the json.Unmarshaller interface
func (t *TypedConfig) UnmarshalJSON(data []byte) error {
	m := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}

	var typeName string
	if err := json.Unmarshal(m["Type"], &typeName); err != nil {
		return err
	}

	ty, found := registeredTypes[typeName]
	if !found {
		return fmt.Errorf("unmarshaljson: no such agent type %v", typeName)
	}

	value := reflect.New(ty).Interface()
	if err := json.Unmarshal(m["Config"], value); err != nil {
		return err
	}

	t.Type = Type(typeName)
	t.Config = reflect.ValueOf(value).Elem().Interface().(Config)
	return nil
}
