package exp

import (
	"fmt"

	"gorgonia.org/tensor"

	"github.com/samuelfneumann/gorl/timestep"
)

// StackSteps stacks a per-step sequence of (nbEnv, features...) tensors
// into a single (seq, nbEnv, features...) tensor. All steps must share
// one shape.
func StackSteps(steps []*tensor.Dense) (*tensor.Dense, error) {
	if len(steps) == 0 {
		return nil, &Error{Op: "stack_steps", Err: errEmptyCache}
	}

	rowShape := steps[0].Shape()
	rowSize := rowShape.TotalSize()
	backing := make([]float64, len(steps)*rowSize)

	for t, step := range steps {
		if !step.Shape().Eq(rowShape) {
			return nil, fmt.Errorf("stack_steps: step %d has invalid shape "+
				"\n\twant(%v)\n\thave(%v)", t, rowShape, step.Shape())
		}
		copy(backing[t*rowSize:(t+1)*rowSize], step.Data().([]float64))
	}

	shape := append([]int{len(steps)}, rowShape...)
	return tensor.NewDense(tensor.Float64, shape,
		tensor.WithBacking(backing)), nil
}

// StackObservations stacks a per-step sequence of vectorized
// observations channel-wise, producing one (seq, nbEnv, features...)
// tensor per channel. All steps must share the same channel set.
func StackObservations(rows []timestep.Observation) (map[string]*tensor.Dense,
	error) {
	if len(rows) == 0 {
		return nil, &Error{Op: "stack_observations", Err: errEmptyCache}
	}

	stacked := make(map[string]*tensor.Dense, len(rows[0]))
	for _, channel := range rows[0].Keys() {
		steps := make([]*tensor.Dense, len(rows))
		for t, row := range rows {
			channelData, ok := row[channel]
			if !ok {
				return nil, fmt.Errorf("stack_observations: step %d missing "+
					"channel %v", t, channel)
			}
			steps[t] = channelData
		}

		channelStack, err := StackSteps(steps)
		if err != nil {
			return nil, fmt.Errorf("stack_observations: channel %v: %v",
				channel, err)
		}
		stacked[channel] = channelStack
	}
	return stacked, nil
}
