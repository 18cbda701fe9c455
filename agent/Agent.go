// Package agent composes actors, experience caches, and learners into
// complete learning agents.
//
// An agent is driven from outside by a container: Act selects actions
// and caches the actor's forward fields, Observe caches the
// environment's response, and Learn takes one gradient step once
// IsReady reports that the cache holds enough experience.
package agent

import (
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/gorl/exp"
	"github.com/samuelfneumann/gorl/timestep"
)

// Agent determines the implementation details of an agent or
// algorithm. Agents are vectorized: every observation, action, reward,
// and terminal they exchange with a container has the number of
// parallel environment instances as its leading dimension.
type Agent interface {
	// Act selects one action per environment instance and caches the
	// actor's auxiliary forward fields
	Act(obs timestep.Observation) (timestep.Action, error)

	// Observe caches one vectorized environment step
	Observe(obs timestep.Observation, rewards, terminals []float64,
		infos []timestep.Info) error

	// IsReady returns whether the experience cache holds enough
	// experience to learn from
	IsReady() bool

	// Learn takes one gradient step from the cached experience. The
	// nextObs parameter is the observation following the most recent
	// step, used to bootstrap value targets.
	Learn(nextObs timestep.Observation) error

	// Clear resets the experience cache
	Clear()

	// Weights returns clones of the acting network's weights keyed by
	// learnable node name
	Weights() map[string]*tensor.Dense

	// SetWeights overwrites the acting network's weights
	SetWeights(map[string]*tensor.Dense) error

	// Close releases the agent's resources
	Close() error
}

// RolloutLearner learns from full on-policy rollouts
type RolloutLearner interface {
	Learn(batch *exp.RolloutBatch, nextObs timestep.Observation) error
	Loss() float64
	Weights() map[string]*tensor.Dense
	SetWeights(map[string]*tensor.Dense) error
}

// ReplayLearner learns from sampled replay windows
type ReplayLearner interface {
	Learn(batch *exp.ReplayBatch) error
	Loss() float64
	Weights() map[string]*tensor.Dense
	SetWeights(map[string]*tensor.Dense) error
}
