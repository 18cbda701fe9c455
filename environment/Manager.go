package environment

import (
	"fmt"

	"gorgonia.org/tensor"

	"github.com/samuelfneumann/gorl/spec"
	"github.com/samuelfneumann/gorl/timestep"
)

// Maker constructs a single environment instance from a seed. Each
// instance managed by a vectorized manager receives a distinct seed.
type Maker func(seed uint64) (Environment, error)

// vectorized implements Manager by stepping a slice of in-process
// environment instances serially.
type vectorized struct {
	envs    []Environment
	obsSpec spec.Observation
	actSpec spec.Action
}

// NewManager creates a Manager running nbEnv instances built by make.
// Instance i is seeded with seed + i.
func NewManager(make Maker, nbEnv int, seed uint64) (Manager, error) {
	if nbEnv < 1 {
		return nil, fmt.Errorf("newmanager: nbEnv must be > 0")
	}

	envs := []Environment{}
	for i := 0; i < nbEnv; i++ {
		env, err := make(seed + uint64(i))
		if err != nil {
			return nil, fmt.Errorf("newmanager: could not create "+
				"environment %d: %v", i, err)
		}
		envs = append(envs, env)
	}

	return &vectorized{
		envs:    envs,
		obsSpec: envs[0].ObservationSpec(),
		actSpec: envs[0].ActionSpec(),
	}, nil
}

// NbEnv returns the number of parallel environment instances
func (v *vectorized) NbEnv() int {
	return len(v.envs)
}

// ObservationSpec returns the observation space shared by all
// environment instances
func (v *vectorized) ObservationSpec() spec.Observation {
	return v.obsSpec
}

// ActionSpec returns the action space shared by all environment
// instances
func (v *vectorized) ActionSpec() spec.Action {
	return v.actSpec
}

// Reset starts a new episode in every environment instance
func (v *vectorized) Reset() (timestep.Observation, error) {
	rows := make([]timestep.Observation, len(v.envs))
	for i, env := range v.envs {
		obs, err := env.Reset()
		if err != nil {
			return nil, fmt.Errorf("reset: environment %d: %v", i, err)
		}
		rows[i] = obs
	}
	return timestep.StackObservations(rows)
}

// Step steps every environment instance once with its row of the
// batched action, auto-resetting terminal instances.
func (v *vectorized) Step(actions timestep.Action) (timestep.Observation,
	[]float64, []float64, []timestep.Info, error) {
	nbEnv := len(v.envs)
	rows := make([]timestep.Observation, nbEnv)
	rewards := make([]float64, nbEnv)
	terminals := make([]float64, nbEnv)
	infos := make([]timestep.Info, nbEnv)

	for i, env := range v.envs {
		action, err := actionRow(actions, i)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("step: %v", err)
		}

		obs, reward, terminal, info, err := env.Step(action)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("step: environment %d: %v",
				i, err)
		}

		if terminal {
			terminals[i] = 1.0
			obs, err = env.Reset()
			if err != nil {
				return nil, nil, nil, nil, fmt.Errorf("step: could not "+
					"auto-reset environment %d: %v", i, err)
			}
		}

		rows[i] = obs
		rewards[i] = reward
		infos[i] = info
	}

	obs, err := timestep.StackObservations(rows)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("step: %v", err)
	}
	return obs, rewards, terminals, infos, nil
}

// actionRow extracts environment instance i's slice of a batched
// action map.
func actionRow(actions timestep.Action, i int) (timestep.Action, error) {
	row := make(timestep.Action, len(actions))
	for key, batched := range actions {
		data := batched.Data().([]float64)
		feat := len(data) / batched.Shape()[0]
		if i >= batched.Shape()[0] {
			return nil, fmt.Errorf("actionrow: action %v has batch %d, "+
				"need row %d", key, batched.Shape()[0], i)
		}

		backing := make([]float64, feat)
		copy(backing, data[i*feat:(i+1)*feat])
		row[key] = tensor.NewDense(
			tensor.Float64,
			tensor.Shape{feat},
			tensor.WithBacking(backing),
		)
	}
	return row, nil
}
