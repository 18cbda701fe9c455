package container

import (
	"fmt"

	"gorgonia.org/tensor"

	"github.com/samuelfneumann/gorl/agent"
	"github.com/samuelfneumann/gorl/checkpoint"
	"github.com/samuelfneumann/gorl/exp"
	"github.com/samuelfneumann/gorl/timestep"
)

// Learner holds the canonical network weights of a distributed
// topology. Every update it gathers nbLearnBatch worker rollouts,
// merges them along the environment-instance axis, takes one gradient
// step, and ships the updated weights back to the workers it consumed.
// Workers are consumed round-robin so every worker's experience is
// eventually learned from.
type Learner struct {
	learn        agent.RolloutLearner
	links        []*Link
	nbLearnBatch int
	nbUpdates    int

	// checkpointer saves the learner's weights on an update schedule.
	// May be nil, in which case no checkpoints are written.
	checkpointer checkpoint.Checkpointer

	// Log is called with progress messages such as per-update losses.
	// When nil, messages are written to standard error.
	Log func(string)

	next int // round-robin cursor over links
}

// NewLearner creates a learner consuming rollouts from the workers at
// the other ends of links. Each of the nbUpdates gradient steps merges
// nbLearnBatch worker rollouts; the merged batch's environment count
// must match the count the rollout learner was built with. When
// nbLearnBatch exceeds the worker count it is reduced to match, which
// is a recoverable condition, not an error. The checkpointer may be
// nil.
func NewLearner(learn agent.RolloutLearner, links []*Link, nbLearnBatch,
	nbUpdates int, checkpointer checkpoint.Checkpointer) (*Learner, error) {
	if learn == nil {
		return nil, fmt.Errorf("newlearner: learner must not be nil")
	}
	if len(links) == 0 {
		return nil, fmt.Errorf("newlearner: at least one worker link is " +
			"required")
	}
	if nbLearnBatch < 1 {
		return nil, fmt.Errorf("newlearner: nbLearnBatch must be > 0")
	}
	if nbUpdates < 1 {
		return nil, fmt.Errorf("newlearner: nbUpdates must be > 0")
	}

	return &Learner{
		learn:        learn,
		links:        links,
		nbLearnBatch: nbLearnBatch,
		nbUpdates:    nbUpdates,
		checkpointer: checkpointer,
	}, nil
}

// Run gathers experience and takes gradient steps until the update
// budget is spent.
func (l *Learner) Run() error {
	nbLearnBatch := l.nbLearnBatch
	if nbLearnBatch > len(l.links) {
		nbLearnBatch = len(l.links)
		logWith(l.Log, fmt.Sprintf("More learn batches than workers, "+
			"reducing learn batches to %d", nbLearnBatch))
	}

	for update := 1; update <= l.nbUpdates; update++ {
		// Register all receives before waiting so the selected workers
		// ship concurrently.
		consumed := make([]*Link, nbLearnBatch)
		handles := make([]*ExperienceHandle, nbLearnBatch)
		for i := 0; i < nbLearnBatch; i++ {
			consumed[i] = l.links[(l.next+i)%len(l.links)]
			handles[i] = consumed[i].RecvExperience()
		}
		l.next = (l.next + nbLearnBatch) % len(l.links)

		experiences := make([]*Experience, nbLearnBatch)
		for i, handle := range handles {
			e, err := handle.Wait()
			if err != nil {
				return fmt.Errorf("run: could not gather experience: %v", err)
			}
			experiences[i] = e
		}

		merged, err := mergeExperience(experiences)
		if err != nil {
			return fmt.Errorf("run: %v", err)
		}

		if err := l.learn.Learn(merged.Batch, merged.NextObs); err != nil {
			return fmt.Errorf("run: could not learn: %v", err)
		}
		logWith(l.Log, fmt.Sprintf("update %d: loss %v", update,
			l.learn.Loss()))

		// Ship updated weights back to the workers just consumed; they
		// are blocked on their pending weight handles.
		weights := l.learn.Weights()
		for _, link := range consumed {
			link.SendWeights(weights)
		}

		if l.checkpointer != nil {
			if err := l.checkpointer.Checkpoint(update); err != nil {
				return fmt.Errorf("run: could not checkpoint: %v", err)
			}
		}
	}

	return nil
}

// mergeExperience concatenates worker experiences along the
// environment-instance axis, producing a single experience whose
// leading dimension at every step is the total environment count of
// the contributing workers. All experiences must share the same
// horizon, observation channels, and forward fields.
func mergeExperience(experiences []*Experience) (*Experience, error) {
	if len(experiences) == 0 {
		return nil, fmt.Errorf("mergeexperience: no experience to merge")
	}
	if len(experiences) == 1 {
		return experiences[0], nil
	}

	horizon := len(experiences[0].Batch.Rewards)
	for i, e := range experiences[1:] {
		if len(e.Batch.Rewards) != horizon {
			return nil, fmt.Errorf("mergeexperience: experience %d has "+
				"inconsistent horizon \n\twant(%v)\n\thave(%v)", i+1, horizon,
				len(e.Batch.Rewards))
		}
	}

	merged := &exp.RolloutBatch{
		Observations: make([]timestep.Observation, horizon),
		Rewards:      make([]*tensor.Dense, horizon),
		Terminals:    make([]*tensor.Dense, horizon),
		Fields:       make(map[string][]*tensor.Dense),
	}
	for name := range experiences[0].Batch.Fields {
		merged.Fields[name] = make([]*tensor.Dense, horizon)
	}

	for t := 0; t < horizon; t++ {
		obs, err := concatObservations(experiences, func(e *Experience) timestep.Observation {
			return e.Batch.Observations[t]
		})
		if err != nil {
			return nil, fmt.Errorf("mergeexperience: step %d: %v", t, err)
		}
		merged.Observations[t] = obs

		merged.Rewards[t], err = concatSteps(experiences,
			func(e *Experience) *tensor.Dense { return e.Batch.Rewards[t] })
		if err != nil {
			return nil, fmt.Errorf("mergeexperience: step %d rewards: %v",
				t, err)
		}

		merged.Terminals[t], err = concatSteps(experiences,
			func(e *Experience) *tensor.Dense { return e.Batch.Terminals[t] })
		if err != nil {
			return nil, fmt.Errorf("mergeexperience: step %d terminals: %v",
				t, err)
		}

		for name := range merged.Fields {
			merged.Fields[name][t], err = concatSteps(experiences,
				func(e *Experience) *tensor.Dense {
					steps := e.Batch.Fields[name]
					if t >= len(steps) {
						return nil
					}
					return steps[t]
				})
			if err != nil {
				return nil, fmt.Errorf("mergeexperience: step %d field %v: "+
					"%v", t, name, err)
			}
		}
	}

	nextObs, err := concatObservations(experiences,
		func(e *Experience) timestep.Observation { return e.NextObs })
	if err != nil {
		return nil, fmt.Errorf("mergeexperience: next observation: %v", err)
	}

	return &Experience{Batch: merged, NextObs: nextObs}, nil
}

// concatSteps concatenates one per-experience tensor along the leading
// environment-instance axis.
func concatSteps(experiences []*Experience,
	step func(*Experience) *tensor.Dense) (*tensor.Dense, error) {
	first := step(experiences[0])
	if first == nil {
		return nil, fmt.Errorf("concatsteps: experience 0 missing step data")
	}

	rest := make([]*tensor.Dense, len(experiences)-1)
	for i, e := range experiences[1:] {
		rest[i] = step(e)
		if rest[i] == nil {
			return nil, fmt.Errorf("concatsteps: experience %d missing step "+
				"data", i+1)
		}
	}
	return first.Concat(0, rest...)
}

// concatObservations concatenates one per-experience observation along
// the leading environment-instance axis, channel by channel.
func concatObservations(experiences []*Experience,
	obs func(*Experience) timestep.Observation) (timestep.Observation,
	error) {
	merged := make(timestep.Observation, len(obs(experiences[0])))
	for channel := range obs(experiences[0]) {
		concatenated, err := concatSteps(experiences,
			func(e *Experience) *tensor.Dense { return obs(e)[channel] })
		if err != nil {
			return nil, fmt.Errorf("concatobservations: channel %v: %v",
				channel, err)
		}
		merged[channel] = concatenated
	}
	return merged, nil
}
