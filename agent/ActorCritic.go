package agent

import (
	"fmt"

	"gorgonia.org/tensor"

	"github.com/samuelfneumann/gorl/actor"
	"github.com/samuelfneumann/gorl/exp"
	"github.com/samuelfneumann/gorl/network"
	"github.com/samuelfneumann/gorl/timestep"
)

// ActorCritic composes a sampling actor over an actor-critic network
// with a fixed-horizon rollout cache and a rollout learner. The
// learner may be nil for acting-only agents, such as the workers of a
// distributed container, which receive their weights from a remote
// learner instead of computing gradients locally.
type ActorCritic struct {
	net       *network.ACMLP
	actor     *actor.ACActor
	cache     *exp.Rollout
	learner   RolloutLearner
	internals network.InternalState
}

// NewActorCritic composes an actor-critic agent from its parts
func NewActorCritic(net *network.ACMLP, act *actor.ACActor,
	cache *exp.Rollout, learn RolloutLearner) (*ActorCritic, error) {
	if net == nil || act == nil || cache == nil {
		return nil, fmt.Errorf("newactorcritic: net, actor, and cache must " +
			"not be nil")
	}

	return &ActorCritic{
		net:       net,
		actor:     act,
		cache:     cache,
		learner:   learn,
		internals: net.NewInternals(),
	}, nil
}

// Act selects one action per environment instance and caches the
// actor's forward fields.
func (a *ActorCritic) Act(obs timestep.Observation) (timestep.Action, error) {
	actions, fields, internals, err := a.actor.Act(obs, a.internals)
	if err != nil {
		return nil, fmt.Errorf("act: %v", err)
	}
	a.internals = internals

	if err := a.cache.WriteForward(fields); err != nil {
		return nil, fmt.Errorf("act: %v", err)
	}
	return actions, nil
}

// Observe caches one vectorized environment step. Instances whose
// episode ended restart from the network's initial internal state.
func (a *ActorCritic) Observe(obs timestep.Observation, rewards,
	terminals []float64, infos []timestep.Info) error {
	if err := a.cache.WriteEnv(obs, rewards, terminals, infos); err != nil {
		return err
	}

	var fresh network.InternalState
	for i, terminal := range terminals {
		if terminal == 0 {
			continue
		}
		if fresh == nil {
			fresh = a.net.NewInternals()
		}
		if err := a.internals.ResetSlot(i, fresh); err != nil {
			return fmt.Errorf("observe: %v", err)
		}
	}
	return nil
}

// IsReady returns whether the rollout cache holds a full rollout
func (a *ActorCritic) IsReady() bool {
	return a.cache.IsReady()
}

// Learn takes one gradient step from the cached rollout
func (a *ActorCritic) Learn(nextObs timestep.Observation) error {
	if a.learner == nil {
		return fmt.Errorf("learn: agent is acting-only")
	}

	batch, err := a.cache.Read()
	if err != nil {
		return fmt.Errorf("learn: %v", err)
	}
	return a.learner.Learn(batch, nextObs)
}

// Rollout returns a snapshot of the cached rollout. Distributed
// workers use it to ship completed rollouts to a remote learner.
func (a *ActorCritic) Rollout() (*exp.RolloutBatch, error) {
	return a.cache.Read()
}

// Clear resets the rollout cache
func (a *ActorCritic) Clear() {
	a.cache.Clear()
}

// Weights returns clones of the acting network's weights
func (a *ActorCritic) Weights() map[string]*tensor.Dense {
	return a.net.Weights()
}

// SetWeights overwrites the acting network's weights
func (a *ActorCritic) SetWeights(weights map[string]*tensor.Dense) error {
	if a.learner != nil {
		if err := a.learner.SetWeights(weights); err != nil {
			return err
		}
	}
	return a.net.SetWeights(weights)
}

// Close releases the agent's resources
func (a *ActorCritic) Close() error {
	return nil
}
