package container

import (
	"fmt"
	"testing"

	"gorgonia.org/tensor"

	"github.com/samuelfneumann/gorl/environment"
	"github.com/samuelfneumann/gorl/environment/chain"
	"github.com/samuelfneumann/gorl/timestep"
)

// recordingAgent drives rightward and records the interaction protocol
// the container follows.
type recordingAgent struct {
	nbEnv    int
	cycleLen int

	actedOn    timestep.Observation
	sinceClear int
	learned    int
	cleared    int
	mismatched bool
}

func (r *recordingAgent) Act(obs timestep.Observation) (timestep.Action,
	error) {
	r.actedOn = obs

	backing := make([]float64, r.nbEnv)
	for i := range backing {
		backing[i] = float64(chain.Right)
	}
	return timestep.Action{
		chain.MoveKey: tensor.NewDense(tensor.Float64,
			tensor.Shape{r.nbEnv}, tensor.WithBacking(backing)),
	}, nil
}

func (r *recordingAgent) Observe(obs timestep.Observation, rewards,
	terminals []float64, infos []timestep.Info) error {
	// The container must hand back the observation that was acted on,
	// not the one the step produced.
	if obs[chain.PositionChannel] != r.actedOn[chain.PositionChannel] {
		r.mismatched = true
	}
	r.sinceClear++
	return nil
}

func (r *recordingAgent) IsReady() bool {
	return r.sinceClear >= r.cycleLen
}

func (r *recordingAgent) Learn(nextObs timestep.Observation) error {
	if nextObs == nil {
		return fmt.Errorf("learn: no bootstrap observation")
	}
	r.learned++
	return nil
}

func (r *recordingAgent) Clear() {
	r.cleared++
	r.sinceClear = 0
}

func (r *recordingAgent) Weights() map[string]*tensor.Dense { return nil }

func (r *recordingAgent) SetWeights(map[string]*tensor.Dense) error {
	return nil
}

func (r *recordingAgent) Close() error { return nil }

func TestLocalDrivesInteractionProtocol(t *testing.T) {
	const nbEnv, cycleLen, nbCycles = 2, 4, 3

	env, err := environment.NewManager(func(seed uint64) (
		environment.Environment, error) {
		return chain.New(8, 50, seed)
	}, nbEnv, 14)
	if err != nil {
		t.Fatal(err)
	}

	a := &recordingAgent{nbEnv: nbEnv, cycleLen: cycleLen}
	local, err := NewLocal(a, env, nbCycles*cycleLen*nbEnv, nil)
	if err != nil {
		t.Fatal(err)
	}
	local.Log = func(string) {}

	if err := local.Run(); err != nil {
		t.Fatal(err)
	}

	if a.mismatched {
		t.Error("container observed an observation other than the one " +
			"acted on")
	}
	if a.learned != nbCycles {
		t.Errorf("wrong learn count \n\twant(%v)\n\thave(%v)", nbCycles,
			a.learned)
	}
	if a.cleared != nbCycles {
		t.Errorf("wrong clear count \n\twant(%v)\n\thave(%v)", nbCycles,
			a.cleared)
	}
}

func TestNewLocalValidatesArguments(t *testing.T) {
	env, err := environment.NewManager(func(seed uint64) (
		environment.Environment, error) {
		return chain.New(8, 50, seed)
	}, 1, 14)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := NewLocal(nil, env, 10, nil); err == nil {
		t.Error("nil agent should be rejected")
	}
	if _, err := NewLocal(&recordingAgent{}, nil, 10, nil); err == nil {
		t.Error("nil environment manager should be rejected")
	}
	if _, err := NewLocal(&recordingAgent{}, env, 0, nil); err == nil {
		t.Error("zero step budget should be rejected")
	}
}
