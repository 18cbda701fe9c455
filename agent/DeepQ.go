package agent

import (
	"fmt"

	"gorgonia.org/tensor"

	"github.com/samuelfneumann/gorl/actor"
	"github.com/samuelfneumann/gorl/exp"
	"github.com/samuelfneumann/gorl/network"
	"github.com/samuelfneumann/gorl/timestep"
)

// DeepQ composes an ε-greedy actor over an action-value network with
// a circular replay cache and a Q-learning learner. Unlike rollout
// agents, the replay cache is never cleared between learning steps;
// experience stays sampleable until overwritten.
type DeepQ struct {
	net     network.NeuralNet
	actor   *actor.EGreedy
	cache   *exp.Replay
	learner ReplayLearner
}

// NewDeepQ composes a deep Q-learning agent from its parts
func NewDeepQ(net network.NeuralNet, act *actor.EGreedy, cache *exp.Replay,
	learn ReplayLearner) (*DeepQ, error) {
	if net == nil || act == nil || cache == nil {
		return nil, fmt.Errorf("newdeepq: net, actor, and cache must not " +
			"be nil")
	}

	return &DeepQ{
		net:     net,
		actor:   act,
		cache:   cache,
		learner: learn,
	}, nil
}

// Act selects one ε-greedy action per environment instance and caches
// the selected actions.
func (d *DeepQ) Act(obs timestep.Observation) (timestep.Action, error) {
	actions, fields, _, err := d.actor.Act(obs, network.InternalState{})
	if err != nil {
		return nil, fmt.Errorf("act: %v", err)
	}

	if err := d.cache.WriteForward(fields); err != nil {
		return nil, fmt.Errorf("act: %v", err)
	}
	return actions, nil
}

// Observe caches one vectorized environment step
func (d *DeepQ) Observe(obs timestep.Observation, rewards,
	terminals []float64, infos []timestep.Info) error {
	return d.cache.WriteEnv(obs, rewards, terminals, infos)
}

// IsReady returns whether the replay cache has filled past its
// minimum insertion count.
func (d *DeepQ) IsReady() bool {
	return d.cache.IsReady()
}

// Learn takes one gradient step from a batch of sampled replay
// windows. The nextObs parameter is unused: replay windows carry
// their own bootstrap observations.
func (d *DeepQ) Learn(nextObs timestep.Observation) error {
	if d.learner == nil {
		return fmt.Errorf("learn: agent is acting-only")
	}

	batch, err := d.cache.Read()
	if err != nil {
		return fmt.Errorf("learn: %v", err)
	}
	return d.learner.Learn(batch)
}

// Clear is a no-op: replay experience stays sampleable until
// overwritten.
func (d *DeepQ) Clear() {
	d.cache.Clear()
}

// Weights returns clones of the acting network's weights
func (d *DeepQ) Weights() map[string]*tensor.Dense {
	return network.WeightsOf(d.net.Learnables())
}

// SetWeights overwrites the acting network's weights
func (d *DeepQ) SetWeights(weights map[string]*tensor.Dense) error {
	if d.learner != nil {
		if err := d.learner.SetWeights(weights); err != nil {
			return err
		}
	}
	return network.SetWeightsOf(d.net.Learnables(), weights)
}

// Close releases the agent's resources, stopping the replay cache's
// prefetch goroutine.
func (d *DeepQ) Close() error {
	return d.cache.Close()
}
