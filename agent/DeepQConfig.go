package agent

import (
	"fmt"

	"github.com/samuelfneumann/gorl/actor"
	"github.com/samuelfneumann/gorl/environment"
	"github.com/samuelfneumann/gorl/exp"
	"github.com/samuelfneumann/gorl/initwfn"
	"github.com/samuelfneumann/gorl/learner"
	"github.com/samuelfneumann/gorl/network"
	"github.com/samuelfneumann/gorl/rwdnorm"
	"github.com/samuelfneumann/gorl/solver"
)

// DeepQConfig describes a deep Q-learning agent over a replay cache
// with an ε-greedy behaviour policy and a target network.
type DeepQConfig struct {
	HiddenSizes []int
	Biases      []bool
	Activations []*network.Activation
	InitWFn     *initwfn.InitWFn
	Solver      *solver.Solver

	Epsilon float64

	BatchSize  int
	RolloutLen int
	MaxLen     int
	MinLen     int
	MaxCache   int

	Discount             float64
	Tau                  float64
	TargetUpdateInterval int

	RewardNorm rwdnorm.Config
}

// Type returns the type of agent the config creates
func (c DeepQConfig) Type() Type {
	return DeepQType
}

// Validate returns an error describing whether or not the
// configuration is valid.
func (c DeepQConfig) Validate() error {
	if len(c.HiddenSizes) == 0 {
		return fmt.Errorf("validate: HiddenSizes must not be empty")
	}
	if len(c.HiddenSizes) != len(c.Biases) ||
		len(c.HiddenSizes) != len(c.Activations) {
		return fmt.Errorf("validate: HiddenSizes, Biases, and Activations "+
			"must have equal lengths \n\thave(%v, %v, %v)",
			len(c.HiddenSizes), len(c.Biases), len(c.Activations))
	}
	if c.InitWFn == nil || c.Solver == nil {
		return fmt.Errorf("validate: InitWFn and Solver must not be nil")
	}
	if c.Epsilon < 0 || c.Epsilon > 1 {
		return fmt.Errorf("validate: Epsilon must be in [0, 1]")
	}
	if c.Discount < 0 || c.Discount > 1 {
		return fmt.Errorf("validate: Discount must be in [0, 1]")
	}
	if c.TargetUpdateInterval < 1 {
		return fmt.Errorf("validate: TargetUpdateInterval must be > 0")
	}
	return nil
}

// CreateAgent creates the deep Q-learning agent the config describes
func (c DeepQConfig) CreateAgent(env environment.Manager,
	seed uint64) (Agent, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("createagent: %v", err)
	}

	obsSpec := env.ObservationSpec()
	actSpec := env.ActionSpec()
	keys := actSpec.Keys()
	if len(keys) != 1 {
		return nil, fmt.Errorf("createagent: deep Q-learning supports "+
			"exactly one action key \n\twant(1)\n\thave(%v)", len(keys))
	}

	net, err := network.NewQMLP(obsSpec.TotalSize(), env.NbEnv(),
		actSpec[keys[0]].NbValues(), c.HiddenSizes, c.Biases, c.Activations,
		c.InitWFn.InitWFn())
	if err != nil {
		return nil, fmt.Errorf("createagent: could not create network: %v",
			err)
	}

	act, err := actor.NewEGreedy(net, obsSpec, actSpec, c.Epsilon, seed)
	if err != nil {
		return nil, fmt.Errorf("createagent: %v", err)
	}

	normalizer, err := c.RewardNorm.Create()
	if err != nil {
		return nil, fmt.Errorf("createagent: %v", err)
	}

	cache, err := exp.NewReplay(exp.ReplayConfig{
		NbEnv:      env.NbEnv(),
		BatchSize:  c.BatchSize,
		RolloutLen: c.RolloutLen,
		MaxLen:     c.MaxLen,
		MinLen:     c.MinLen,
		MaxCache:   c.MaxCache,
		Seed:       seed,
	}, normalizer, obsSpec, replayFields(act))
	if err != nil {
		return nil, fmt.Errorf("createagent: %v", err)
	}

	learn, err := learner.NewDeepQ(net, obsSpec, actSpec, c.BatchSize,
		c.RolloutLen, c.Discount, c.Tau, c.TargetUpdateInterval, c.Solver)
	if err != nil {
		return nil, fmt.Errorf("createagent: %v", err)
	}

	return NewDeepQ(net, act, cache, learn)
}

// replayFields declares the replay cache schema for an actor's
// forward fields, all scalar per environment instance.
func replayFields(act actor.Actor) []exp.Field {
	fields := []exp.Field{}
	for _, name := range act.FieldNames() {
		fields = append(fields, exp.Field{Name: name})
	}
	return fields
}
