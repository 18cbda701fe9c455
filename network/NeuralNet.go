// Package network implements gorgonia-backed neural networks with
// named observation channels and named output heads.
package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/gorl/spec"
	"github.com/samuelfneumann/gorl/timestep"
)

// NeuralNet is the graph-level contract shared by all gorgonia
// networks. A NeuralNet owns its computational graph; cloning produces
// an independent graph with copied weights.
type NeuralNet interface {
	Graph() *G.ExprGraph
	Clone() (NeuralNet, error)
	CloneWithBatch(int) (NeuralNet, error)
	BatchSize() int
	Features() int
	SetInput([]float64) error
	Set(NeuralNet) error
	Polyak(NeuralNet, float64) error
	Learnables() G.Nodes
	Model() []G.ValueGrad
	Output() []G.Value
	Prediction() []*G.Node
}

// InternalState holds the recurrent state a network carries between
// steps, keyed by state name. Each state tensor's leading dimension
// indexes the parallel environment instance. Feedforward networks have
// an empty InternalState.
type InternalState map[string]*tensor.Dense

// ResetSlot overwrites one environment instance's rows of the internal
// state with the matching rows of a fresh state, returning that slot
// to the state a new episode starts from. State keys missing from
// fresh are zeroed for the slot.
func (s InternalState) ResetSlot(slot int, fresh InternalState) error {
	for key, state := range s {
		shape := state.Shape()
		if len(shape) < 1 || slot < 0 || slot >= shape[0] {
			return fmt.Errorf("resetslot: slot %d out of range for state %v "+
				"with shape %v", slot, key, shape)
		}

		size := shape.TotalSize() / shape[0]
		row := state.Data().([]float64)[slot*size : (slot+1)*size]

		freshState, ok := fresh[key]
		if !ok {
			for i := range row {
				row[i] = 0
			}
			continue
		}
		if freshState.Shape().TotalSize() != shape.TotalSize() {
			return fmt.Errorf("resetslot: invalid fresh state size for %v "+
				"\n\twant(%v)\n\thave(%v)", key, shape.TotalSize(),
				freshState.Shape().TotalSize())
		}
		copy(row, freshState.Data().([]float64)[slot*size:(slot+1)*size])
	}
	return nil
}

// Network is the agent-facing contract of a policy or value network.
// Forward evaluates the network on one vectorized observation and
// returns the named output heads along with the next internal state.
type Network interface {
	Forward(obs timestep.Observation,
		internals InternalState) (map[string]*tensor.Dense, InternalState,
		error)

	// NewInternals returns the initial internal state of the network
	NewInternals() InternalState

	// OutputKeys returns the names of the output heads
	OutputKeys() []string

	// Weights returns the network weights keyed by learnable node
	// name. The returned tensors are clones.
	Weights() map[string]*tensor.Dense

	// SetWeights overwrites the network weights with the named
	// tensors
	SetWeights(map[string]*tensor.Dense) error
}

// FlattenObservation concatenates the channels of a vectorized
// observation into one flat (batch * features) slice, channels in
// sorted key order per obsSpec.
func FlattenObservation(obs timestep.Observation, obsSpec spec.Observation,
	batch int) ([]float64, error) {
	channels := obsSpec.Keys()

	strides := make([]int, len(channels))
	rowSize := 0
	for i, channel := range channels {
		strides[i] = obsSpec[channel].Shape.TotalSize()
		rowSize += strides[i]
	}

	flat := make([]float64, batch*rowSize)
	offset := 0
	for i, channel := range channels {
		channelData, ok := obs[channel]
		if !ok {
			return nil, fmt.Errorf("flattenobservation: missing channel %v",
				channel)
		}
		data := channelData.Data().([]float64)
		if len(data) != batch*strides[i] {
			return nil, fmt.Errorf("flattenobservation: invalid size for "+
				"channel %v \n\twant(%v)\n\thave(%v)", channel,
				batch*strides[i], len(data))
		}

		for b := 0; b < batch; b++ {
			copy(flat[b*rowSize+offset:b*rowSize+offset+strides[i]],
				data[b*strides[i]:(b+1)*strides[i]])
		}
		offset += strides[i]
	}

	return flat, nil
}

// WeightsOf clones the values of a network's learnables, keyed by
// node name.
func WeightsOf(learnables G.Nodes) map[string]*tensor.Dense {
	weights := make(map[string]*tensor.Dense, len(learnables))
	for _, node := range learnables {
		weights[node.Name()] = node.Value().(*tensor.Dense).Clone().(*tensor.Dense)
	}
	return weights
}

// SetWeightsOf overwrites the values of a network's learnables from
// named tensors. Every learnable must be present in weights.
func SetWeightsOf(learnables G.Nodes, weights map[string]*tensor.Dense) error {
	for _, node := range learnables {
		value, ok := weights[node.Name()]
		if !ok {
			return fmt.Errorf("setweights: missing weights for node %v",
				node.Name())
		}
		if !value.Shape().Eq(node.Shape()) {
			return fmt.Errorf("setweights: invalid shape for node %v "+
				"\n\twant(%v)\n\thave(%v)", node.Name(), node.Shape(),
				value.Shape())
		}
		err := G.Let(node, value.Clone().(*tensor.Dense))
		if err != nil {
			return fmt.Errorf("setweights: could not set node %v: %v",
				node.Name(), err)
		}
	}
	return nil
}
