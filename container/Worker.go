package container

import (
	"fmt"

	"gorgonia.org/tensor"

	"github.com/samuelfneumann/gorl/environment"
	"github.com/samuelfneumann/gorl/exp"
	"github.com/samuelfneumann/gorl/timestep"
)

// Producer is the agent surface a distributed worker drives: it
// selects actions and caches experience but never computes gradients.
// Acting-only agents such as those built by ImpalaConfig with
// ActingOnly set satisfy it.
type Producer interface {
	Act(obs timestep.Observation) (timestep.Action, error)
	Observe(obs timestep.Observation, rewards, terminals []float64,
		infos []timestep.Info) error
	IsReady() bool
	Rollout() (*exp.RolloutBatch, error)
	Clear()
	SetWeights(map[string]*tensor.Dense) error
}

// Worker collects experience for a remote learner. Each cycle it
// collects one full rollout, ships it over its Link, and registers a
// receive for the learner's next weight sync. The pending weight
// handle is waited on before the following cycle begins, so a worker
// acts with weights at most one generation stale.
type Worker struct {
	agent   Producer
	env     environment.Manager
	link    *Link
	nbSteps int

	// Log is called with progress messages such as episode returns.
	// When nil, messages are written to standard error.
	Log func(string)
}

// NewWorker creates a worker collecting nbSteps environment frames of
// experience for the learner at the other end of link.
func NewWorker(a Producer, env environment.Manager, link *Link,
	nbSteps int) (*Worker, error) {
	if a == nil {
		return nil, fmt.Errorf("newworker: agent must not be nil")
	}
	if env == nil {
		return nil, fmt.Errorf("newworker: environment manager must not " +
			"be nil")
	}
	if link == nil {
		return nil, fmt.Errorf("newworker: link must not be nil")
	}
	if nbSteps < 1 {
		return nil, fmt.Errorf("newworker: nbSteps must be > 0")
	}

	return &Worker{
		agent:   a,
		env:     env,
		link:    link,
		nbSteps: nbSteps,
	}, nil
}

// Run collects and ships rollouts until the step budget is spent
func (w *Worker) Run() error {
	obs, err := w.env.Reset()
	if err != nil {
		return fmt.Errorf("run: could not reset environments: %v", err)
	}

	nbEnv := w.env.NbEnv()
	returns := make([]float64, nbEnv)
	var pendingWeights *WeightsHandle

	for step := 0; step < w.nbSteps; {
		// Don't collect until the previous cycle's weight sync has
		// landed.
		if pendingWeights != nil {
			weights, err := pendingWeights.Wait()
			if err != nil {
				return fmt.Errorf("run: could not sync weights: %v", err)
			}
			if err := w.agent.SetWeights(weights); err != nil {
				return fmt.Errorf("run: could not set weights: %v", err)
			}
			pendingWeights = nil
		}

		w.agent.Clear()
		for !w.agent.IsReady() {
			actions, err := w.agent.Act(obs)
			if err != nil {
				return fmt.Errorf("run: could not select actions: %v", err)
			}

			nextObs, rewards, terminals, infos, err := w.env.Step(actions)
			if err != nil {
				return fmt.Errorf("run: could not step environments: %v", err)
			}

			if err := w.agent.Observe(obs, rewards, terminals,
				infos); err != nil {
				return fmt.Errorf("run: could not observe step: %v", err)
			}

			for i := range rewards {
				returns[i] += rewards[i]
				if terminals[i] != 0 {
					logWith(w.Log, fmt.Sprintf("step %d env %d: episode "+
						"return %v", step+nbEnv, i, returns[i]))
					returns[i] = 0
				}
			}

			obs = nextObs
			step += nbEnv
		}

		batch, err := w.agent.Rollout()
		if err != nil {
			return fmt.Errorf("run: could not read rollout: %v", err)
		}

		send := w.link.SendExperience(&Experience{
			Batch:   batch,
			NextObs: obs,
		})
		if err := send.Wait(); err != nil {
			return fmt.Errorf("run: could not ship experience: %v", err)
		}
		pendingWeights = w.link.RecvWeights()
	}

	return nil
}
