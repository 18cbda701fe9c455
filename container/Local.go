package container

import (
	"fmt"

	"github.com/samuelfneumann/gorl/agent"
	"github.com/samuelfneumann/gorl/checkpoint"
	"github.com/samuelfneumann/gorl/environment"
	"github.com/samuelfneumann/gorl/utils/progressbar"
)

// Local runs acting and learning in a single goroutine. Every
// iteration steps all parallel environment instances once, so the
// step count advances by the manager's environment count per
// iteration.
type Local struct {
	agent   agent.Agent
	env     environment.Manager
	nbSteps int

	// checkpointer saves the agent's weights on a step schedule. May
	// be nil, in which case no checkpoints are written.
	checkpointer checkpoint.Checkpointer

	// Log is called with progress messages such as episode returns.
	// When nil, messages are written to standard error.
	Log func(string)

	// ShowProgress draws a progress bar over the step budget
	ShowProgress bool
}

// NewLocal creates a local container running agent on env for nbSteps
// environment frames. The checkpointer may be nil.
func NewLocal(a agent.Agent, env environment.Manager, nbSteps int,
	checkpointer checkpoint.Checkpointer) (*Local, error) {
	if a == nil {
		return nil, fmt.Errorf("newlocal: agent must not be nil")
	}
	if env == nil {
		return nil, fmt.Errorf("newlocal: environment manager must not be nil")
	}
	if nbSteps < 1 {
		return nil, fmt.Errorf("newlocal: nbSteps must be > 0")
	}

	return &Local{
		agent:        a,
		env:          env,
		nbSteps:      nbSteps,
		checkpointer: checkpointer,
	}, nil
}

// Run drives the interaction loop until the step budget is spent
func (l *Local) Run() error {
	obs, err := l.env.Reset()
	if err != nil {
		return fmt.Errorf("run: could not reset environments: %v", err)
	}

	nbEnv := l.env.NbEnv()
	returns := make([]float64, nbEnv)

	var bar *progressbar.ManualProgressBar
	if l.ShowProgress {
		iterations := l.nbSteps / nbEnv
		if l.nbSteps%nbEnv != 0 {
			iterations++
		}
		bar = progressbar.NewManualProgressBar(65, iterations)
	}

	for step := 0; step < l.nbSteps; step += nbEnv {
		actions, err := l.agent.Act(obs)
		if err != nil {
			return fmt.Errorf("run: could not select actions: %v", err)
		}

		nextObs, rewards, terminals, infos, err := l.env.Step(actions)
		if err != nil {
			return fmt.Errorf("run: could not step environments: %v", err)
		}

		// The agent observes the observation it acted on, not the one
		// the step produced.
		if err := l.agent.Observe(obs, rewards, terminals, infos); err != nil {
			return fmt.Errorf("run: could not observe step: %v", err)
		}

		for i := range rewards {
			returns[i] += rewards[i]
			if terminals[i] != 0 {
				logWith(l.Log, fmt.Sprintf("step %d env %d: episode return "+
					"%v", step+nbEnv, i, returns[i]))
				returns[i] = 0
			}
		}

		if l.agent.IsReady() {
			if err := l.agent.Learn(nextObs); err != nil {
				return fmt.Errorf("run: could not learn: %v", err)
			}
			l.agent.Clear()
		}

		if l.checkpointer != nil {
			if err := l.checkpointer.Checkpoint(step + nbEnv); err != nil {
				return fmt.Errorf("run: could not checkpoint: %v", err)
			}
		}

		obs = nextObs
		if bar != nil {
			bar.Increment()
			bar.Display()
		}
	}

	return nil
}
