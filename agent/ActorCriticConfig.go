package agent

import (
	"fmt"

	"github.com/samuelfneumann/gorl/actor"
	"github.com/samuelfneumann/gorl/environment"
	"github.com/samuelfneumann/gorl/exp"
	"github.com/samuelfneumann/gorl/initwfn"
	"github.com/samuelfneumann/gorl/learner"
	"github.com/samuelfneumann/gorl/network"
	"github.com/samuelfneumann/gorl/rwdnorm"
	"github.com/samuelfneumann/gorl/solver"
)

// ActorCriticConfig describes an on-policy advantage actor-critic
// agent with generalized advantage estimation.
type ActorCriticConfig struct {
	HiddenSizes []int
	Biases      []bool
	Activations []*network.Activation
	InitWFn     *initwfn.InitWFn
	Solver      *solver.Solver

	RolloutLen         int
	Discount           float64
	Tau                float64
	EntropyWeight      float64
	NormalizeAdvantage bool

	RewardNorm rwdnorm.Config
}

// Type returns the type of agent the config creates
func (c ActorCriticConfig) Type() Type {
	return ActorCriticType
}

// Validate returns an error describing whether or not the
// configuration is valid.
func (c ActorCriticConfig) Validate() error {
	if len(c.HiddenSizes) == 0 {
		return fmt.Errorf("validate: HiddenSizes must not be empty")
	}
	if len(c.HiddenSizes) != len(c.Biases) ||
		len(c.HiddenSizes) != len(c.Activations) {
		return fmt.Errorf("validate: HiddenSizes, Biases, and Activations "+
			"must have equal lengths \n\thave(%v, %v, %v)",
			len(c.HiddenSizes), len(c.Biases), len(c.Activations))
	}
	if c.InitWFn == nil || c.Solver == nil {
		return fmt.Errorf("validate: InitWFn and Solver must not be nil")
	}
	if c.RolloutLen < 1 {
		return fmt.Errorf("validate: RolloutLen must be > 0")
	}
	if c.Discount < 0 || c.Discount > 1 {
		return fmt.Errorf("validate: Discount must be in [0, 1]")
	}
	if c.Tau < 0 || c.Tau > 1 {
		return fmt.Errorf("validate: Tau must be in [0, 1]")
	}
	return nil
}

// CreateAgent creates the actor-critic agent the config describes
func (c ActorCriticConfig) CreateAgent(env environment.Manager,
	seed uint64) (Agent, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("createagent: %v", err)
	}

	net, act, cache, err := actorCriticParts(c.HiddenSizes, c.Biases,
		c.Activations, c.InitWFn, c.RewardNorm, c.RolloutLen, env, seed)
	if err != nil {
		return nil, fmt.Errorf("createagent: %v", err)
	}

	learn, err := learner.NewAC(net, env.ObservationSpec(), env.ActionSpec(),
		c.RolloutLen, c.Discount, c.Tau, c.EntropyWeight,
		c.NormalizeAdvantage, c.Solver)
	if err != nil {
		return nil, fmt.Errorf("createagent: %v", err)
	}

	return NewActorCritic(net, act, cache, learn)
}

// actorCriticParts builds the network, actor, and rollout cache shared
// by the actor-critic agent configurations.
func actorCriticParts(hiddenSizes []int, biases []bool,
	activations []*network.Activation, init *initwfn.InitWFn,
	rewardNorm rwdnorm.Config, rolloutLen int, env environment.Manager,
	seed uint64) (*network.ACMLP, *actor.ACActor, *exp.Rollout, error) {
	net, err := network.NewACMLP(env.ObservationSpec(), env.ActionSpec(),
		env.NbEnv(), hiddenSizes, biases, activations, init.InitWFn())
	if err != nil {
		return nil, nil, nil, err
	}

	act, err := actor.NewACActor(net, env.ActionSpec(), seed)
	if err != nil {
		return nil, nil, nil, err
	}

	normalizer, err := rewardNorm.Create()
	if err != nil {
		return nil, nil, nil, err
	}

	cache, err := exp.NewRollout(rolloutLen, env.NbEnv(), normalizer,
		act.FieldNames())
	if err != nil {
		return nil, nil, nil, err
	}

	return net, act, cache, nil
}
