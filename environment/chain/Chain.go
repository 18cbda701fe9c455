// Package chain implements a deterministic chain-walk environment
// used for demos and testing.
//
// The agent starts at the leftmost cell of a chain of N cells and can
// move left or right. Reaching the rightmost cell gives reward +1 and
// ends the episode; every other step gives reward 0. Episodes are
// truncated after a step limit.
package chain

import (
	"fmt"

	"gorgonia.org/tensor"

	"github.com/samuelfneumann/gorl/environment"
	"github.com/samuelfneumann/gorl/spec"
	"github.com/samuelfneumann/gorl/timestep"
)

// Observation channel and action key names
const (
	PositionChannel = "position"
	MoveKey         = "move"
)

// Action values
const (
	Left int = iota
	Right
)

// Chain implements the chain-walk environment. Observations are a
// one-hot encoding of the current cell over the channel "position".
type Chain struct {
	length   int
	maxSteps int

	position    int
	currentStep int

	obsSpec spec.Observation
	actSpec spec.Action
}

// New creates a chain-walk environment over length cells with episodes
// truncated at maxSteps steps. The environment is deterministic; the
// seed parameter exists to satisfy environment.Maker.
func New(length, maxSteps int, seed uint64) (environment.Environment, error) {
	if length < 2 {
		return nil, fmt.Errorf("new: chain length must be > 1")
	}
	if maxSteps < 1 {
		return nil, fmt.Errorf("new: maxSteps must be > 0")
	}

	obsSpec := spec.Observation{
		PositionChannel: spec.NewContinuous(tensor.Shape{length}, 0, 1),
	}
	actSpec := spec.Action{
		MoveKey: spec.NewDiscrete(2),
	}

	return &Chain{
		length:   length,
		maxSteps: maxSteps,
		obsSpec:  obsSpec,
		actSpec:  actSpec,
	}, nil
}

// ObservationSpec returns the observation space of the environment
func (c *Chain) ObservationSpec() spec.Observation {
	return c.obsSpec
}

// ActionSpec returns the action space of the environment
func (c *Chain) ActionSpec() spec.Action {
	return c.actSpec
}

// Reset starts a new episode at the leftmost cell
func (c *Chain) Reset() (timestep.Observation, error) {
	c.position = 0
	c.currentStep = 0
	return c.observation(), nil
}

// Step moves the agent one cell left or right
func (c *Chain) Step(action timestep.Action) (timestep.Observation, float64,
	bool, timestep.Info, error) {
	move, ok := action[MoveKey]
	if !ok {
		return nil, 0, false, nil, fmt.Errorf("step: action missing key %v",
			MoveKey)
	}

	direction := int(move.Data().([]float64)[0])
	switch direction {
	case Left:
		if c.position > 0 {
			c.position--
		}
	case Right:
		c.position++
	default:
		return nil, 0, false, nil, fmt.Errorf("step: illegal action %d",
			direction)
	}
	c.currentStep++

	reward := 0.0
	terminal := false
	if c.position == c.length-1 {
		reward = 1.0
		terminal = true
	} else if c.currentStep >= c.maxSteps {
		terminal = true
	}

	info := timestep.Info{"position": float64(c.position)}
	return c.observation(), reward, terminal, info, nil
}

// observation one-hot encodes the current cell
func (c *Chain) observation() timestep.Observation {
	backing := make([]float64, c.length)
	backing[c.position] = 1.0

	return timestep.Observation{
		PositionChannel: tensor.NewDense(
			tensor.Float64,
			tensor.Shape{c.length},
			tensor.WithBacking(backing),
		),
	}
}
