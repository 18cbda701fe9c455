package environment_test

import (
	"testing"

	"gorgonia.org/tensor"

	"github.com/samuelfneumann/gorl/environment"
	"github.com/samuelfneumann/gorl/environment/chain"
	"github.com/samuelfneumann/gorl/timestep"
)

func chainManager(t *testing.T, nbEnv int) environment.Manager {
	manager, err := environment.NewManager(func(seed uint64) (environment.Environment, error) {
		return chain.New(4, 10, seed)
	}, nbEnv, 14)
	if err != nil {
		t.Fatal(err)
	}
	return manager
}

// moves builds a batched action moving every environment instance in
// the same direction.
func moves(nbEnv, direction int) timestep.Action {
	backing := make([]float64, nbEnv)
	for i := range backing {
		backing[i] = float64(direction)
	}
	return timestep.Action{
		chain.MoveKey: tensor.NewDense(tensor.Float64,
			tensor.Shape{nbEnv}, tensor.WithBacking(backing)),
	}
}

func TestManagerBatchesObservations(t *testing.T) {
	const nbEnv = 3
	manager := chainManager(t, nbEnv)

	obs, err := manager.Reset()
	if err != nil {
		t.Fatal(err)
	}

	position := obs[chain.PositionChannel]
	wantShape := tensor.Shape{nbEnv, 4}
	if !position.Shape().Eq(wantShape) {
		t.Fatalf("wrong batched observation shape \n\twant(%v)\n\thave(%v)",
			wantShape, position.Shape())
	}

	// Every instance starts at the leftmost cell
	data := position.Data().([]float64)
	for i := 0; i < nbEnv; i++ {
		if data[i*4] != 1 {
			t.Errorf("env %d does not start at the leftmost cell: %v", i,
				data[i*4:(i+1)*4])
		}
	}
}

func TestManagerStepsAllInstances(t *testing.T) {
	const nbEnv = 2
	manager := chainManager(t, nbEnv)

	if _, err := manager.Reset(); err != nil {
		t.Fatal(err)
	}

	obs, rewards, terminals, infos, err := manager.Step(moves(nbEnv,
		chain.Right))
	if err != nil {
		t.Fatal(err)
	}

	if len(rewards) != nbEnv || len(terminals) != nbEnv ||
		len(infos) != nbEnv {
		t.Fatalf("wrong step widths: rewards %d terminals %d infos %d",
			len(rewards), len(terminals), len(infos))
	}

	data := obs[chain.PositionChannel].Data().([]float64)
	for i := 0; i < nbEnv; i++ {
		if data[i*4+1] != 1 {
			t.Errorf("env %d did not move right: %v", i, data[i*4:(i+1)*4])
		}
		if terminals[i] != 0 {
			t.Errorf("env %d terminal after one step", i)
		}
	}
}

func TestManagerAutoResetsTerminalInstances(t *testing.T) {
	const nbEnv = 2
	manager := chainManager(t, nbEnv)

	if _, err := manager.Reset(); err != nil {
		t.Fatal(err)
	}

	// Three rightward moves reach the goal cell of a length-4 chain
	var obs timestep.Observation
	var rewards, terminals []float64
	var err error
	for step := 0; step < 3; step++ {
		obs, rewards, terminals, _, err = manager.Step(moves(nbEnv,
			chain.Right))
		if err != nil {
			t.Fatal(err)
		}
	}

	for i := 0; i < nbEnv; i++ {
		if terminals[i] != 1 {
			t.Errorf("env %d not terminal at the goal", i)
		}
		if rewards[i] != 1 {
			t.Errorf("env %d goal reward \n\twant(%v)\n\thave(%v)", i, 1.0,
				rewards[i])
		}
	}

	// Terminal instances restart at the leftmost cell
	data := obs[chain.PositionChannel].Data().([]float64)
	for i := 0; i < nbEnv; i++ {
		if data[i*4] != 1 {
			t.Errorf("env %d did not auto-reset: %v", i, data[i*4:(i+1)*4])
		}
	}
}

func TestNewManagerValidatesNbEnv(t *testing.T) {
	_, err := environment.NewManager(func(seed uint64) (environment.Environment, error) {
		return chain.New(4, 10, seed)
	}, 0, 14)
	if err == nil {
		t.Error("zero environment count should be rejected")
	}
}
