package learner

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/gorl/actor"
	"github.com/samuelfneumann/gorl/exp"
	"github.com/samuelfneumann/gorl/network"
	"github.com/samuelfneumann/gorl/solver"
	"github.com/samuelfneumann/gorl/spec"
	"github.com/samuelfneumann/gorl/timestep"
)

// AC implements an on-policy advantage actor-critic learner over full
// rollouts. Advantages are generalized advantage estimates over the
// learner's value predictions, and value targets are the advantages
// added back to those predictions.
type AC struct {
	net   *network.ACMLP
	graph *acGraph

	bootstrapNet *network.ACMLP

	obsSpec spec.Observation
	actSpec spec.Action
	keys    []string

	seq   int
	nbEnv int

	discount           float64
	tau                float64
	normalizeAdvantage bool
}

// NewAC creates an advantage actor-critic learner updating net. The
// rollouts passed to Learn must have seq steps over net.BatchSize()
// parallel environment instances. The tau parameter is the GAE λ.
func NewAC(net *network.ACMLP, obsSpec spec.Observation,
	actSpec spec.Action, seq int, discount, tau, entropyWeight float64,
	normalizeAdvantage bool, sol *solver.Solver) (*AC, error) {
	if net == nil {
		return nil, fmt.Errorf("newac: net must not be nil")
	}
	if seq < 1 {
		return nil, fmt.Errorf("newac: seq must be > 0")
	}
	if discount < 0 || discount > 1 {
		return nil, fmt.Errorf("newac: discount must be in [0, 1]")
	}
	if tau < 0 || tau > 1 {
		return nil, fmt.Errorf("newac: tau must be in [0, 1]")
	}

	nbEnv := net.BatchSize()
	graph, err := newACGraph(net, seq*nbEnv, actSpec, entropyWeight, sol)
	if err != nil {
		return nil, fmt.Errorf("newac: %v", err)
	}

	bootstrapNet, err := net.CloneWithBatch(nbEnv)
	if err != nil {
		return nil, fmt.Errorf("newac: could not clone bootstrap "+
			"network: %v", err)
	}

	return &AC{
		net:                net,
		graph:              graph,
		bootstrapNet:       bootstrapNet,
		obsSpec:            obsSpec,
		actSpec:            actSpec,
		keys:               actSpec.Keys(),
		seq:                seq,
		nbEnv:              nbEnv,
		discount:           discount,
		tau:                tau,
		normalizeAdvantage: normalizeAdvantage,
	}, nil
}

// Loss returns the scalar loss of the most recent Learn call
func (ac *AC) Loss() float64 {
	return ac.graph.loss()
}

// Weights returns clones of the learner's current weights keyed by
// learnable node name.
func (ac *AC) Weights() map[string]*tensor.Dense {
	return ac.graph.train.Weights()
}

// SetWeights overwrites the learner's weights with the named tensors
func (ac *AC) SetWeights(weights map[string]*tensor.Dense) error {
	return ac.graph.train.SetWeights(weights)
}

// Learn takes one gradient step from a full rollout. The nextObs
// parameter is the vectorized observation following the rollout's
// final step, used to bootstrap the advantage estimates. After the
// step, the acting network's weights are synchronized with the
// learner's.
func (ac *AC) Learn(batch *exp.RolloutBatch,
	nextObs timestep.Observation) error {
	if len(batch.Rewards) != ac.seq {
		return fmt.Errorf("learn: invalid rollout length "+
			"\n\twant(%v)\n\thave(%v)", ac.seq, len(batch.Rewards))
	}
	rows := ac.seq * ac.nbEnv

	obsFlat, err := flattenRollout(batch.Observations, ac.obsSpec, rows)
	if err != nil {
		return fmt.Errorf("learn: %v", err)
	}

	actions := make(map[string][]float64, len(ac.keys))
	for _, key := range ac.keys {
		actions[key], err = stackField(batch, actor.ActionsField(key), rows)
		if err != nil {
			return fmt.Errorf("learn: %v", err)
		}
	}

	if err := ac.graph.setBatch(obsFlat, actions); err != nil {
		return fmt.Errorf("learn: %v", err)
	}

	_, values, err := ac.graph.forward()
	if err != nil {
		return fmt.Errorf("learn: %v", err)
	}

	rewards, err := stackDense(batch.Rewards, rows)
	if err != nil {
		return fmt.Errorf("learn: %v", err)
	}
	terminals, err := stackDense(batch.Terminals, rows)
	if err != nil {
		return fmt.Errorf("learn: %v", err)
	}
	discountMask := make([]float64, rows)
	for i, terminal := range terminals {
		discountMask[i] = ac.discount * (1 - terminal)
	}

	bootstrap, err := ac.bootstrapValues(nextObs)
	if err != nil {
		return fmt.Errorf("learn: %v", err)
	}

	advantage, err := GAE(discountMask, rewards, values, bootstrap, ac.seq,
		ac.nbEnv, ac.tau)
	if err != nil {
		return fmt.Errorf("learn: %v", err)
	}

	targets := make([]float64, rows)
	for i := range targets {
		targets[i] = advantage[i] + values[i]
	}

	if ac.normalizeAdvantage {
		normalize(advantage)
	}

	// All action keys share the on-policy advantage
	advantages := make(map[string][]float64, len(ac.keys))
	for _, key := range ac.keys {
		advantages[key] = advantage
	}

	if err := ac.graph.step(advantages, targets); err != nil {
		return fmt.Errorf("learn: %v", err)
	}

	if err := ac.net.Set(ac.graph.train); err != nil {
		return fmt.Errorf("learn: could not synchronize acting network: %v",
			err)
	}
	return nil
}

// bootstrapValues evaluates the critic on the observation following
// the rollout under the learner's current weights.
func (ac *AC) bootstrapValues(nextObs timestep.Observation) ([]float64,
	error) {
	if err := ac.bootstrapNet.Set(ac.graph.train); err != nil {
		return nil, fmt.Errorf("bootstrapvalues: %v", err)
	}

	outputs, _, err := ac.bootstrapNet.Forward(nextObs,
		network.InternalState{})
	if err != nil {
		return nil, fmt.Errorf("bootstrapvalues: %v", err)
	}
	return outputs[network.CriticKey].Data().([]float64), nil
}

// normalize shifts and scales values in place to zero mean and unit
// standard deviation.
func normalize(values []float64) {
	mean, std := stat.MeanStdDev(values, nil)
	if std == 0 || math.IsNaN(std) {
		std = 1
	}

	floats.AddConst(-mean, values)
	floats.Scale(1/std, values)
}
