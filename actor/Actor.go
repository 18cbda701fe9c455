// Package actor implements action selection. An actor evaluates a
// policy network on the current vectorized observation, selects one
// action per environment instance, and reports the auxiliary values
// it computed along the way (selected actions, log probabilities,
// entropies, state values) so they can be cached for learning.
package actor

import (
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/gorl/network"
	"github.com/samuelfneumann/gorl/timestep"
)

// Experience field written by actors that predict state values
const ValuesField = "values"

// ActionsField returns the experience field name holding the selected
// actions for one action key.
func ActionsField(key string) string {
	return "actions-" + key
}

// LogProbsField returns the experience field name holding the log
// probabilities of the selected actions for one action key.
func LogProbsField(key string) string {
	return "log_probs-" + key
}

// EntropiesField returns the experience field name holding the policy
// entropies for one action key.
func EntropiesField(key string) string {
	return "entropies-" + key
}

// Actor selects actions from observations
type Actor interface {
	// Act evaluates the policy on one vectorized observation and
	// returns the selected actions, the auxiliary experience fields
	// computed during the forward pass, and the network's next
	// internal state.
	Act(obs timestep.Observation,
		internals network.InternalState) (timestep.Action,
		map[string]*tensor.Dense, network.InternalState, error)

	// FieldNames returns the names of the experience fields the
	// actor writes, used to declare cache schemas.
	FieldNames() []string
}
