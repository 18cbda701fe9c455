package exp

import (
	"fmt"

	"gorgonia.org/tensor"

	"github.com/samuelfneumann/gorl/rwdnorm"
	"github.com/samuelfneumann/gorl/timestep"
)

// Rollout implements a fixed-horizon on-policy experience cache. It
// accumulates exactly horizon vectorized steps, is read once by a
// learner, and is cleared before the next collection cycle. A Rollout
// has a single writer and a single reader per cycle and performs no
// internal synchronization.
type Rollout struct {
	horizon    int
	nbEnv      int
	normalizer rwdnorm.Normalizer

	observations []timestep.Observation
	rewards      []*tensor.Dense
	terminals    []*tensor.Dense
	fields       map[string][]*tensor.Dense
}

// RolloutBatch is an immutable snapshot of a full rollout. The
// snapshot shares backing storage with the cache; callers must consume
// it before the cache is cleared. Every slice has length equal to the
// rollout horizon, and every tensor's leading dimension is the number
// of parallel environment instances.
type RolloutBatch struct {
	Observations []timestep.Observation
	Rewards      []*tensor.Dense
	Terminals    []*tensor.Dense
	Fields       map[string][]*tensor.Dense
}

// NewRollout creates a rollout cache over nbEnv parallel environment
// instances holding horizon steps. The fieldNames parameter declares
// the actor-written auxiliary fields; writing any other field name is
// an error.
func NewRollout(horizon, nbEnv int, normalizer rwdnorm.Normalizer,
	fieldNames []string) (*Rollout, error) {
	if horizon < 1 {
		return nil, fmt.Errorf("newrollout: horizon must be > 0")
	}
	if nbEnv < 1 {
		return nil, fmt.Errorf("newrollout: nbEnv must be > 0")
	}
	if normalizer == nil {
		return nil, fmt.Errorf("newrollout: normalizer must not be nil")
	}

	fields := make(map[string][]*tensor.Dense, len(fieldNames))
	for _, name := range fieldNames {
		if _, ok := fields[name]; ok {
			return nil, fmt.Errorf("newrollout: duplicate field name %v", name)
		}
		fields[name] = []*tensor.Dense{}
	}

	return &Rollout{
		horizon:    horizon,
		nbEnv:      nbEnv,
		normalizer: normalizer,
		fields:     fields,
	}, nil
}

// Horizon returns the configured rollout length
func (r *Rollout) Horizon() int {
	return r.horizon
}

// NbEnv returns the number of parallel environment instances
func (r *Rollout) NbEnv() int {
	return r.nbEnv
}

// FieldNames returns the declared actor-written field names in
// unspecified order.
func (r *Rollout) FieldNames() []string {
	names := make([]string, 0, len(r.fields))
	for name := range r.fields {
		names = append(names, name)
	}
	return names
}

// Len returns the number of environment steps written so far
func (r *Rollout) Len() int {
	return len(r.rewards)
}

// IsReady returns whether the cache holds a full rollout
func (r *Rollout) IsReady() bool {
	return r.Len() == r.horizon
}

// WriteEnv appends one vectorized environment step. Rewards are
// normalized before they are stored.
func (r *Rollout) WriteEnv(obs timestep.Observation, rewards,
	terminals []float64, infos []timestep.Info) error {
	if r.IsReady() {
		return &Error{
			Op:  "write_env",
			Err: fmt.Errorf("rollout full at horizon %d", r.horizon),
		}
	}
	if len(rewards) != r.nbEnv || len(terminals) != r.nbEnv {
		return fmt.Errorf("write_env: invalid step width "+
			"\n\twant(%v)\n\thave(rewards %v, terminals %v)", r.nbEnv,
			len(rewards), len(terminals))
	}

	r.observations = append(r.observations, obs.Clone())
	r.rewards = append(r.rewards, tensor.NewDense(
		tensor.Float64,
		tensor.Shape{r.nbEnv},
		tensor.WithBacking(r.normalizer.Normalize(rewards)),
	))

	terminalRow := make([]float64, r.nbEnv)
	copy(terminalRow, terminals)
	r.terminals = append(r.terminals, tensor.NewDense(
		tensor.Float64,
		tensor.Shape{r.nbEnv},
		tensor.WithBacking(terminalRow),
	))
	return nil
}

// WriteForward appends the actor-computed auxiliary fields for the
// current step. Every key must have been declared at construction.
// Writing to a full cache is an error: field sequences must stay in
// step with the environment-step sequences.
func (r *Rollout) WriteForward(fields map[string]*tensor.Dense) error {
	if r.IsReady() {
		return &Error{
			Op:  "write_forward",
			Err: fmt.Errorf("rollout full at horizon %d", r.horizon),
		}
	}
	for name := range fields {
		if _, ok := r.fields[name]; !ok {
			return &Error{
				Op:  "write_forward",
				Err: fmt.Errorf("%w: %v", errIncompatibleKey, name),
			}
		}
	}
	for name, value := range fields {
		r.fields[name] = append(r.fields[name], value)
	}
	return nil
}

// Read returns an immutable snapshot of the full rollout without
// copying. Reading before the cache is ready is an error.
func (r *Rollout) Read() (*RolloutBatch, error) {
	if !r.IsReady() {
		return nil, &Error{
			Op:  "read",
			Err: fmt.Errorf("%w: have %d of %d steps", errNotReady, r.Len(), r.horizon),
		}
	}

	fields := make(map[string][]*tensor.Dense, len(r.fields))
	for name, steps := range r.fields {
		fields[name] = steps
	}
	return &RolloutBatch{
		Observations: r.observations,
		Rewards:      r.rewards,
		Terminals:    r.terminals,
		Fields:       fields,
	}, nil
}

// Clear resets all per-field sequences to empty. Clearing an empty
// cache is a no-op.
func (r *Rollout) Clear() {
	r.observations = nil
	r.rewards = nil
	r.terminals = nil
	for name := range r.fields {
		r.fields[name] = []*tensor.Dense{}
	}
}
