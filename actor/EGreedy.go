package actor

import (
	"fmt"

	"golang.org/x/exp/rand"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/gorl/network"
	"github.com/samuelfneumann/gorl/spec"
	"github.com/samuelfneumann/gorl/timestep"
	"github.com/samuelfneumann/gorl/utils/floatutils"
)

// EGreedy implements an ε-greedy actor over an action-value network
// with a single action key. With probability epsilon a uniformly
// random action is selected; otherwise the action with maximal
// predicted value is selected, with ties broken uniformly at random.
type EGreedy struct {
	net      network.NeuralNet
	vm       G.VM
	obsSpec  spec.Observation
	key      string
	nbValues int
	nbEnv    int
	epsilon  float64
	rng      *rand.Rand
}

// NewEGreedy creates an ε-greedy actor over an action-value network
// whose batch size is the number of parallel environment instances
// and whose outputs are the action values of key's discrete space.
func NewEGreedy(net network.NeuralNet, obsSpec spec.Observation,
	actSpec spec.Action, epsilon float64, seed uint64) (*EGreedy, error) {
	if net == nil {
		return nil, fmt.Errorf("newegreedy: net must not be nil")
	}
	if epsilon < 0 || epsilon > 1 {
		return nil, fmt.Errorf("newegreedy: epsilon must be in [0, 1]")
	}
	keys := actSpec.Keys()
	if len(keys) != 1 {
		return nil, fmt.Errorf("newegreedy: action-value networks support "+
			"exactly one action key \n\twant(1)\n\thave(%v)", len(keys))
	}
	key := keys[0]
	if actSpec[key].Cardinality != spec.Discrete {
		return nil, fmt.Errorf("newegreedy: action key %v is not discrete",
			key)
	}

	return &EGreedy{
		net:      net,
		obsSpec:  obsSpec,
		key:      key,
		nbValues: actSpec[key].NbValues(),
		nbEnv:    net.BatchSize(),
		epsilon:  epsilon,
		rng:      rand.New(rand.NewSource(seed)),
	}, nil
}

// FieldNames returns the experience fields the actor writes: the
// selected actions only.
func (e *EGreedy) FieldNames() []string {
	return []string{ActionsField(e.key)}
}

// SetEpsilon sets the exploration rate
func (e *EGreedy) SetEpsilon(epsilon float64) {
	e.epsilon = epsilon
}

// Act selects one ε-greedy action per environment instance
func (e *EGreedy) Act(obs timestep.Observation,
	internals network.InternalState) (timestep.Action,
	map[string]*tensor.Dense, network.InternalState, error) {
	qValues, err := e.forward(obs)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("act: %v", err)
	}

	selected := make([]float64, e.nbEnv)
	for env := 0; env < e.nbEnv; env++ {
		row := qValues[env*e.nbValues : (env+1)*e.nbValues]

		if e.rng.Float64() < e.epsilon {
			selected[env] = float64(e.rng.Intn(e.nbValues))
			continue
		}
		greedy := floatutils.ArgMax(row...)
		selected[env] = float64(greedy[e.rng.Intn(len(greedy))])
	}

	actionTensor := tensor.NewDense(tensor.Float64, tensor.Shape{e.nbEnv},
		tensor.WithBacking(selected))

	fieldCopy := make([]float64, e.nbEnv)
	copy(fieldCopy, selected)
	fields := map[string]*tensor.Dense{
		ActionsField(e.key): tensor.NewDense(tensor.Float64,
			tensor.Shape{e.nbEnv}, tensor.WithBacking(fieldCopy)),
	}

	return timestep.Action{e.key: actionTensor}, fields,
		network.InternalState{}, nil
}

// forward evaluates the action-value network on one vectorized
// observation, returning the flat (nbEnv * nbValues) action values.
func (e *EGreedy) forward(obs timestep.Observation) ([]float64, error) {
	flat, err := network.FlattenObservation(obs, e.obsSpec, e.nbEnv)
	if err != nil {
		return nil, fmt.Errorf("forward: %v", err)
	}
	if err := e.net.SetInput(flat); err != nil {
		return nil, fmt.Errorf("forward: %v", err)
	}

	if e.vm == nil {
		e.vm = G.NewTapeMachine(e.net.Graph())
	}
	if err := e.vm.RunAll(); err != nil {
		return nil, fmt.Errorf("forward: could not run forward pass: %v", err)
	}
	defer e.vm.Reset()

	output := e.net.Output()[0].(*tensor.Dense)
	qValues := make([]float64, e.nbEnv*e.nbValues)
	copy(qValues, output.Data().([]float64))
	return qValues, nil
}
