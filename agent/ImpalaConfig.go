package agent

import (
	"fmt"

	"github.com/samuelfneumann/gorl/environment"
	"github.com/samuelfneumann/gorl/initwfn"
	"github.com/samuelfneumann/gorl/learner"
	"github.com/samuelfneumann/gorl/network"
	"github.com/samuelfneumann/gorl/rwdnorm"
	"github.com/samuelfneumann/gorl/solver"
)

// ImpalaConfig describes an actor-critic agent whose learner corrects
// off-policy rollouts with V-trace importance weighting. With a local
// container the correction is trivial; the configuration is meant for
// distributed containers, where workers collect rollouts under stale
// weights.
type ImpalaConfig struct {
	HiddenSizes []int
	Biases      []bool
	Activations []*network.Activation
	InitWFn     *initwfn.InitWFn
	Solver      *solver.Solver

	RolloutLen    int
	Discount      float64
	EntropyWeight float64

	// Upper clips on the importance ratios of the value and policy
	// passes. Only 1.0 is supported.
	ImportanceValueClip  float64
	ImportancePolicyClip float64

	RewardNorm rwdnorm.Config

	// ActingOnly creates the agent without a learner, for workers
	// that receive weights from a remote learner
	ActingOnly bool
}

// Type returns the type of agent the config creates
func (c ImpalaConfig) Type() Type {
	return ImpalaType
}

// Validate returns an error describing whether or not the
// configuration is valid.
func (c ImpalaConfig) Validate() error {
	if len(c.HiddenSizes) == 0 {
		return fmt.Errorf("validate: HiddenSizes must not be empty")
	}
	if len(c.HiddenSizes) != len(c.Biases) ||
		len(c.HiddenSizes) != len(c.Activations) {
		return fmt.Errorf("validate: HiddenSizes, Biases, and Activations "+
			"must have equal lengths \n\thave(%v, %v, %v)",
			len(c.HiddenSizes), len(c.Biases), len(c.Activations))
	}
	if c.InitWFn == nil {
		return fmt.Errorf("validate: InitWFn must not be nil")
	}
	if !c.ActingOnly && c.Solver == nil {
		return fmt.Errorf("validate: Solver must not be nil")
	}
	if c.RolloutLen < 1 {
		return fmt.Errorf("validate: RolloutLen must be > 0")
	}
	if c.Discount < 0 || c.Discount > 1 {
		return fmt.Errorf("validate: Discount must be in [0, 1]")
	}
	if c.ImportanceValueClip != 1 || c.ImportancePolicyClip != 1 {
		return fmt.Errorf("validate: importance clips != 1 are not " +
			"implemented")
	}
	return nil
}

// CreateAgent creates the IMPALA agent the config describes
func (c ImpalaConfig) CreateAgent(env environment.Manager,
	seed uint64) (Agent, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("createagent: %v", err)
	}

	net, act, cache, err := actorCriticParts(c.HiddenSizes, c.Biases,
		c.Activations, c.InitWFn, c.RewardNorm, c.RolloutLen, env, seed)
	if err != nil {
		return nil, fmt.Errorf("createagent: %v", err)
	}

	var learn RolloutLearner
	if !c.ActingOnly {
		learn, err = learner.NewImpala(net, env.ObservationSpec(),
			env.ActionSpec(), c.RolloutLen, c.Discount, c.EntropyWeight,
			c.ImportanceValueClip, c.ImportancePolicyClip, c.Solver)
		if err != nil {
			return nil, fmt.Errorf("createagent: %v", err)
		}
	}

	return NewActorCritic(net, act, cache, learn)
}
