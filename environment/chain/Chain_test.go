package chain

import (
	"testing"

	"gorgonia.org/tensor"

	"github.com/samuelfneumann/gorl/timestep"
)

func move(direction int) timestep.Action {
	return timestep.Action{
		MoveKey: tensor.NewDense(tensor.Float64, tensor.Shape{1},
			tensor.WithBacking([]float64{float64(direction)})),
	}
}

func position(obs timestep.Observation) int {
	for i, v := range obs[PositionChannel].Data().([]float64) {
		if v == 1 {
			return i
		}
	}
	return -1
}

func TestChainEpisode(t *testing.T) {
	env, err := New(4, 10, 14)
	if err != nil {
		t.Fatal(err)
	}

	obs, err := env.Reset()
	if err != nil {
		t.Fatal(err)
	}
	if position(obs) != 0 {
		t.Errorf("wrong start cell \n\twant(%v)\n\thave(%v)", 0,
			position(obs))
	}

	// Moving left at the leftmost cell stays put
	obs, reward, terminal, _, err := env.Step(move(Left))
	if err != nil {
		t.Fatal(err)
	}
	if position(obs) != 0 || reward != 0 || terminal {
		t.Errorf("left at the boundary: position %d reward %v terminal %v",
			position(obs), reward, terminal)
	}

	// Walking right reaches the goal with reward 1
	for step := 0; step < 3; step++ {
		obs, reward, terminal, _, err = env.Step(move(Right))
		if err != nil {
			t.Fatal(err)
		}
	}
	if position(obs) != 3 || reward != 1 || !terminal {
		t.Errorf("goal step: position %d reward %v terminal %v",
			position(obs), reward, terminal)
	}
}

func TestChainTruncatesEpisodes(t *testing.T) {
	env, err := New(10, 3, 14)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Reset(); err != nil {
		t.Fatal(err)
	}

	var terminal bool
	var reward float64
	for step := 0; step < 3; step++ {
		_, reward, terminal, _, err = env.Step(move(Left))
		if err != nil {
			t.Fatal(err)
		}
	}
	if !terminal {
		t.Error("episode not truncated at the step limit")
	}
	if reward != 0 {
		t.Errorf("truncation reward \n\twant(%v)\n\thave(%v)", 0.0, reward)
	}
}

func TestChainRejectsIllegalActions(t *testing.T) {
	env, err := New(4, 10, 14)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Reset(); err != nil {
		t.Fatal(err)
	}

	if _, _, _, _, err := env.Step(move(7)); err == nil {
		t.Error("illegal action value should be rejected")
	}
	if _, _, _, _, err := env.Step(timestep.Action{}); err == nil {
		t.Error("action missing the move key should be rejected")
	}
}
