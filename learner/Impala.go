package learner

import (
	"fmt"

	"gorgonia.org/tensor"

	"github.com/samuelfneumann/gorl/actor"
	"github.com/samuelfneumann/gorl/exp"
	"github.com/samuelfneumann/gorl/network"
	"github.com/samuelfneumann/gorl/solver"
	"github.com/samuelfneumann/gorl/spec"
	"github.com/samuelfneumann/gorl/timestep"
)

// Impala implements the IMPALA learner. Rollouts may have been
// collected under stale behaviour policies; the learner recomputes
// log probabilities and value estimates under its current weights and
// corrects the off-policy gap with V-trace importance weighting
// before taking one solver step on the actor-critic loss.
type Impala struct {
	net   *network.ACMLP
	graph *acGraph

	// bootstrapNet evaluates the value of the observation following
	// the final rollout step under the learner's current weights
	bootstrapNet *network.ACMLP

	obsSpec spec.Observation
	actSpec spec.Action
	keys    []string

	seq   int
	nbEnv int

	discount             float64
	importanceValueClip  float64
	importancePolicyClip float64

	meanImportance float64
}

// NewImpala creates an IMPALA learner updating net. The rollouts
// passed to Learn must have seq steps over net.BatchSize() parallel
// environment instances.
func NewImpala(net *network.ACMLP, obsSpec spec.Observation,
	actSpec spec.Action, seq int, discount, entropyWeight,
	importanceValueClip, importancePolicyClip float64,
	sol *solver.Solver) (*Impala, error) {
	if net == nil {
		return nil, fmt.Errorf("newimpala: net must not be nil")
	}
	if seq < 1 {
		return nil, fmt.Errorf("newimpala: seq must be > 0")
	}
	if discount < 0 || discount > 1 {
		return nil, fmt.Errorf("newimpala: discount must be in [0, 1]")
	}
	if importanceValueClip != 1 || importancePolicyClip != 1 {
		return nil, fmt.Errorf("newimpala: importance clips != 1 are not " +
			"implemented")
	}

	nbEnv := net.BatchSize()
	graph, err := newACGraph(net, seq*nbEnv, actSpec, entropyWeight, sol)
	if err != nil {
		return nil, fmt.Errorf("newimpala: %v", err)
	}

	bootstrapNet, err := net.CloneWithBatch(nbEnv)
	if err != nil {
		return nil, fmt.Errorf("newimpala: could not clone bootstrap "+
			"network: %v", err)
	}

	return &Impala{
		net:                  net,
		graph:                graph,
		bootstrapNet:         bootstrapNet,
		obsSpec:              obsSpec,
		actSpec:              actSpec,
		keys:                 actSpec.Keys(),
		seq:                  seq,
		nbEnv:                nbEnv,
		discount:             discount,
		importanceValueClip:  importanceValueClip,
		importancePolicyClip: importancePolicyClip,
	}, nil
}

// MeanImportance returns the mean importance ratio of the most recent
// Learn call, a diagnostic of how off-policy the batch was.
func (im *Impala) MeanImportance() float64 {
	return im.meanImportance
}

// Loss returns the scalar loss of the most recent Learn call
func (im *Impala) Loss() float64 {
	return im.graph.loss()
}

// Weights returns clones of the learner's current weights keyed by
// learnable node name.
func (im *Impala) Weights() map[string]*tensor.Dense {
	return im.graph.train.Weights()
}

// SetWeights overwrites the learner's weights with the named tensors
func (im *Impala) SetWeights(weights map[string]*tensor.Dense) error {
	return im.graph.train.SetWeights(weights)
}

// Learn takes one gradient step from a full rollout. The nextObs
// parameter is the vectorized observation following the rollout's
// final step, used to bootstrap the V-trace targets. After the step,
// the acting network's weights are synchronized with the learner's.
func (im *Impala) Learn(batch *exp.RolloutBatch,
	nextObs timestep.Observation) error {
	if len(batch.Rewards) != im.seq {
		return fmt.Errorf("learn: invalid rollout length "+
			"\n\twant(%v)\n\thave(%v)", im.seq, len(batch.Rewards))
	}
	rows := im.seq * im.nbEnv

	obsFlat, err := flattenRollout(batch.Observations, im.obsSpec, rows)
	if err != nil {
		return fmt.Errorf("learn: %v", err)
	}

	actions := make(map[string][]float64, len(im.keys))
	behaviourLogProbs := make(map[string][]float64, len(im.keys))
	for _, key := range im.keys {
		actions[key], err = stackField(batch, actor.ActionsField(key), rows)
		if err != nil {
			return fmt.Errorf("learn: %v", err)
		}
		behaviourLogProbs[key], err = stackField(batch,
			actor.LogProbsField(key), rows)
		if err != nil {
			return fmt.Errorf("learn: %v", err)
		}
	}

	if err := im.graph.setBatch(obsFlat, actions); err != nil {
		return fmt.Errorf("learn: %v", err)
	}

	// Recompute log probabilities and values under current weights
	logSofts, values, err := im.graph.forward()
	if err != nil {
		return fmt.Errorf("learn: %v", err)
	}

	logProbDiffs := make([]float64, rows*len(im.keys))
	for k, key := range im.keys {
		nbValues := im.actSpec[key].NbValues()
		for i := 0; i < rows; i++ {
			choice := int(actions[key][i])
			learnerLogProb := logSofts[key][i*nbValues+choice]
			logProbDiffs[i*len(im.keys)+k] = learnerLogProb -
				behaviourLogProbs[key][i]
		}
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
		discountMask[i] = im.discount * (1 - terminal)
	}

	bootstrap, err := im.bootstrapValues(nextObs)
	if err != nil {
		return fmt.Errorf("learn: %v", err)
	}

	returns, err := VTrace(logProbDiffs, discountMask, rewards, values,
		bootstrap, im.seq, im.nbEnv, len(im.keys), im.importanceValueClip,
		im.importancePolicyClip)
	if err != nil {
		return fmt.Errorf("learn: %v", err)
	}
	im.meanImportance = returns.MeanImportance

	advantages := make(map[string][]float64, len(im.keys))
	for k, key := range im.keys {
		perKey := make([]float64, rows)
		for i := 0; i < rows; i++ {
			perKey[i] = returns.Advantages[i*len(im.keys)+k]
		}
		advantages[key] = perKey
	}

	if err := im.graph.step(advantages, returns.Targets); err != nil {
		return fmt.Errorf("learn: %v", err)
	}

	if err := im.net.Set(im.graph.train); err != nil {
		return fmt.Errorf("learn: could not synchronize acting network: %v",
			err)
	}
	return nil
}

// bootstrapValues evaluates the critic on the observation following
// the rollout under the learner's current weights.
func (im *Impala) bootstrapValues(nextObs timestep.Observation) ([]float64,
	error) {
	if err := im.bootstrapNet.Set(im.graph.train); err != nil {
		return nil, fmt.Errorf("bootstrapvalues: %v", err)
	}

	outputs, _, err := im.bootstrapNet.Forward(nextObs,
		network.InternalState{})
	if err != nil {
		return nil, fmt.Errorf("bootstrapvalues: %v", err)
	}
	return outputs[network.CriticKey].Data().([]float64), nil
}

// flattenRollout stacks per-step vectorized observations into one
// flat (seq * nbEnv, features) input, rows ordered step-major.
func flattenRollout(observations []timestep.Observation,
	obsSpec spec.Observation, rows int) ([]float64, error) {
	stacked, err := exp.StackObservations(observations)
	if err != nil {
		return nil, err
	}

	reshaped := make(timestep.Observation, len(stacked))
	for channel, channelData := range stacked {
		featSize := obsSpec[channel].Shape.TotalSize()
		err := channelData.Reshape(rows, featSize)
		if err != nil {
			return nil, fmt.Errorf("flattenrollout: could not reshape "+
				"channel %v: %v", channel, err)
		}
		reshaped[channel] = channelData
	}

	return network.FlattenObservation(reshaped, obsSpec, rows)
}

// stackField stacks one per-step experience field into a flat (rows)
// slice, step-major.
func stackField(batch *exp.RolloutBatch, name string, rows int) ([]float64,
	error) {
	steps, ok := batch.Fields[name]
	if !ok {
		return nil, fmt.Errorf("stackfield: rollout has no field %v", name)
	}
	return stackDense(steps, rows)
}

// stackDense stacks per-step (nbEnv) tensors into a flat (rows)
// slice, step-major.
func stackDense(steps []*tensor.Dense, rows int) ([]float64, error) {
	stacked, err := exp.StackSteps(steps)
	if err != nil {
		return nil, err
	}
	data := stacked.Data().([]float64)
	if len(data) != rows {
		return nil, fmt.Errorf("stackdense: invalid stacked size "+
			"\n\twant(%v)\n\thave(%v)", rows, len(data))
	}
	return data, nil
}
