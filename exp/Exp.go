// Package exp implements experience caches: fixed-horizon rollout
// caches for on-policy learning and circular replay buffers for
// off-policy learning.
//
// A cache is written from two sides each step. The actor writes the
// auxiliary fields it computed during its forward pass (values, log
// probabilities, entropies, selected actions) with WriteForward, and
// the container writes the environment's response (observation,
// reward, terminal flag) with WriteEnv. All forward field names must
// be declared when the cache is constructed; writing an undeclared
// field is an incompatible-key error rather than a silent no-op.
package exp

import (
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/gorl/timestep"
)

// Cache is the writing contract shared by rollout and replay caches.
// Reading is cache-specific: each concrete cache exposes its own
// typed Read method, since rollout caches return per-step trajectory
// snapshots while replay caches return batched sampled windows.
type Cache interface {
	// WriteEnv appends one vectorized environment step
	WriteEnv(obs timestep.Observation, rewards, terminals []float64,
		infos []timestep.Info) error

	// WriteForward records the actor-computed auxiliary fields for
	// the current step, keyed by pre-declared field name
	WriteForward(fields map[string]*tensor.Dense) error

	// IsReady returns whether the cache holds enough experience to
	// be read
	IsReady() bool

	// Clear resets the cache contents. Clearing an empty cache is a
	// no-op.
	Clear()

	// Len returns the number of steps currently held
	Len() int
}
