// Package timestep implements timesteps of the agent-environment interaction
package timestep

import (
	"fmt"

	"gorgonia.org/tensor"
)

// Observation maps named sensor channels to tensors. When produced by
// an environment manager, each channel tensor has the number of
// parallel environment instances as its leading dimension.
type Observation map[string]*tensor.Dense

// Action maps action keys to tensors of selected actions, one row per
// parallel environment instance.
type Action map[string]*tensor.Dense

// Info holds auxiliary diagnostic values emitted by an environment on
// a single step. Infos are never used for learning.
type Info map[string]float64

// Clone returns a deep copy of an Observation. Cache writers clone
// before storing so later in-place mutation by the environment manager
// cannot corrupt recorded trajectories.
func (o Observation) Clone() Observation {
	cloned := make(Observation, len(o))
	for k, v := range o {
		cloned[k] = v.Clone().(*tensor.Dense)
	}
	return cloned
}

// Keys returns the channel names of an Observation in unspecified
// order.
func (o Observation) Keys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	return keys
}

// StackObservations stacks per-environment observation rows into a
// single batched Observation whose leading dimension indexes the
// environment instance. All rows must share the same channels and
// channel shapes.
func StackObservations(rows []Observation) (Observation, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("stackobservations: no observations to stack")
	}

	stacked := make(Observation, len(rows[0]))
	for channel, first := range rows[0] {
		feat := first.Shape().TotalSize()
		backing := make([]float64, len(rows)*feat)

		for i, row := range rows {
			channelData, ok := row[channel]
			if !ok {
				return nil, fmt.Errorf("stackobservations: observation %d "+
					"missing channel %v", i, channel)
			}
			if channelData.Shape().TotalSize() != feat {
				return nil, fmt.Errorf("stackobservations: channel %v has "+
					"inconsistent size \n\twant(%v)\n\thave(%v)", channel,
					feat, channelData.Shape().TotalSize())
			}
			copy(backing[i*feat:(i+1)*feat],
				channelData.Data().([]float64))
		}

		shape := append([]int{len(rows)}, first.Shape()...)
		stacked[channel] = tensor.NewDense(
			tensor.Float64,
			shape,
			tensor.WithBacking(backing),
		)
	}
	return stacked, nil
}
