// Package environment implements environments and the vectorized
// environment manager that agents and containers interact with
package environment

import (
	"github.com/samuelfneumann/gorl/spec"
	"github.com/samuelfneumann/gorl/timestep"
)

// Environment implements a single environment instance. Observations
// are maps from named sensor channels to tensors whose shapes are
// fixed by the declared observation space. Actions are maps from
// action keys to tensors, declared by the action space.
type Environment interface {
	// Reset starts a new episode, returning the first observation
	Reset() (timestep.Observation, error)

	// Step takes one action in the environment, returning the next
	// observation, the reward, whether the episode terminated, and
	// auxiliary diagnostic info
	Step(action timestep.Action) (timestep.Observation, float64, bool,
		timestep.Info, error)

	ObservationSpec() spec.Observation
	ActionSpec() spec.Action
}

// Manager steps a fixed number of parallel environment instances as a
// single vectorized environment. Observations, rewards, and terminal
// flags are batched with the environment instance as the leading
// dimension.
type Manager interface {
	// Reset starts a new episode in every environment instance
	Reset() (timestep.Observation, error)

	// Step takes one batched action, stepping every environment
	// instance once. Instances whose episode terminated are reset
	// automatically: the returned observation row for a terminal
	// instance is the first observation of its next episode, while
	// the reward and terminal flag describe the step that ended the
	// previous episode.
	Step(actions timestep.Action) (timestep.Observation, []float64,
		[]float64, []timestep.Info, error)

	// NbEnv returns the number of parallel environment instances
	NbEnv() int

	ObservationSpec() spec.Observation
	ActionSpec() spec.Action
}
