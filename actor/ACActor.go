package actor

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/gorl/network"
	"github.com/samuelfneumann/gorl/spec"
	"github.com/samuelfneumann/gorl/timestep"
	"github.com/samuelfneumann/gorl/utils/floatutils"
)

// ACActor implements a stochastic actor over an actor-critic network.
// Actions are sampled from the categorical distribution given by the
// softmax of each action key's logits head. Along with the selected
// actions, the actor reports per-key log probabilities and entropies
// plus the critic's state values.
type ACActor struct {
	net     *network.ACMLP
	actSpec spec.Action
	nbEnv   int
	rng     *rand.Rand
}

// NewACActor creates a sampling actor over an actor-critic network
// whose batch size is the number of parallel environment instances.
func NewACActor(net *network.ACMLP, actSpec spec.Action,
	seed uint64) (*ACActor, error) {
	if net == nil {
		return nil, fmt.Errorf("newacactor: net must not be nil")
	}

	return &ACActor{
		net:     net,
		actSpec: actSpec,
		nbEnv:   net.BatchSize(),
		rng:     rand.New(rand.NewSource(seed)),
	}, nil
}

// FieldNames returns the experience fields the actor writes: the
// critic values plus actions, log probabilities, and entropies per
// action key.
func (a *ACActor) FieldNames() []string {
	names := []string{ValuesField}
	for _, key := range a.actSpec.Keys() {
		names = append(names, ActionsField(key), LogProbsField(key),
			EntropiesField(key))
	}
	return names
}

// Act samples one action per environment instance from the policy
func (a *ACActor) Act(obs timestep.Observation,
	internals network.InternalState) (timestep.Action,
	map[string]*tensor.Dense, network.InternalState, error) {
	outputs, newInternals, err := a.net.Forward(obs, internals)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("act: %v", err)
	}

	fields := make(map[string]*tensor.Dense)
	fields[ValuesField] = tensor.NewDense(
		tensor.Float64,
		tensor.Shape{a.nbEnv},
		tensor.WithBacking(outputs[network.CriticKey].Data().([]float64)),
	)

	actions := make(timestep.Action, len(a.actSpec))
	for _, key := range a.actSpec.Keys() {
		logits, ok := outputs[key]
		if !ok {
			return nil, nil, nil, fmt.Errorf("act: network has no head for "+
				"action key %v", key)
		}

		nbValues := a.actSpec[key].NbValues()
		data := logits.Data().([]float64)

		selected := make([]float64, a.nbEnv)
		logProbs := make([]float64, a.nbEnv)
		entropies := make([]float64, a.nbEnv)
		for env := 0; env < a.nbEnv; env++ {
			row := data[env*nbValues : (env+1)*nbValues]
			choice, logProb, entropy := a.sample(row)

			selected[env] = float64(choice)
			logProbs[env] = logProb
			entropies[env] = entropy
		}

		actions[key] = tensor.NewDense(tensor.Float64,
			tensor.Shape{a.nbEnv}, tensor.WithBacking(selected))
		fields[ActionsField(key)] = tensor.NewDense(tensor.Float64,
			tensor.Shape{a.nbEnv}, tensor.WithBacking(selected))
		fields[LogProbsField(key)] = tensor.NewDense(tensor.Float64,
			tensor.Shape{a.nbEnv}, tensor.WithBacking(logProbs))
		fields[EntropiesField(key)] = tensor.NewDense(tensor.Float64,
			tensor.Shape{a.nbEnv}, tensor.WithBacking(entropies))
	}

	return actions, fields, newInternals, nil
}

// sample draws one action from the categorical distribution given by
// a row of logits, returning the action, its log probability, and the
// distribution's entropy.
func (a *ACActor) sample(logits []float64) (int, float64, float64) {
	lse := floatutils.LogSumExp(logits)

	entropy := 0.0
	for _, logit := range logits {
		logProb := logit - lse
		entropy -= math.Exp(logProb) * logProb
	}

	u := a.rng.Float64()
	cumulative := 0.0
	choice := len(logits) - 1
	for i, logit := range logits {
		cumulative += math.Exp(logit - lse)
		if u < cumulative {
			choice = i
			break
		}
	}

	return choice, logits[choice] - lse, entropy
}
