// Package spec implements specifications of environment observation
// and action spaces and of network internal state
package spec

import (
	"sort"

	"gorgonia.org/tensor"
)

// Cardinality determines whether a space holds discrete or continuous
// values
type Cardinality int

const (
	Discrete Cardinality = iota
	Continuous
)

func (c Cardinality) String() string {
	switch c {
	case Discrete:
		return "Discrete"
	case Continuous:
		return "Continuous"
	default:
		return "Unknown"
	}
}

// Space tells the shape, cardinality, and bounds of a single named
// observation channel or action key. Shapes exclude the environment
// batch dimension.
type Space struct {
	Shape       tensor.Shape
	Cardinality Cardinality
	LowerBound  float64
	UpperBound  float64
}

// NewDiscrete returns the Space of a scalar discrete variable taking
// values in {0, 1, ..., n-1}.
func NewDiscrete(n int) Space {
	return Space{
		Shape:       tensor.Shape{1},
		Cardinality: Discrete,
		LowerBound:  0,
		UpperBound:  float64(n - 1),
	}
}

// NewContinuous returns the Space of a continuous variable of the
// given shape, bounded elementwise by lower and upper.
func NewContinuous(shape tensor.Shape, lower, upper float64) Space {
	return Space{
		Shape:       shape,
		Cardinality: Continuous,
		LowerBound:  lower,
		UpperBound:  upper,
	}
}

// NbValues returns the number of legal values of a scalar discrete
// Space. Callers validate discreteness before relying on the result;
// it is meaningless for continuous spaces.
func (s Space) NbValues() int {
	return int(s.UpperBound-s.LowerBound) + 1
}

// Observation declares the observation space of an environment: one
// Space per named sensor channel.
type Observation map[string]Space

// Action declares the action space of an environment: one Space per
// named action key.
type Action map[string]Space

// Internal declares the internal (recurrent) state space of a network:
// one shape per named internal-state key. Shapes exclude the
// environment batch dimension.
type Internal map[string]tensor.Shape

// Keys returns the channel names of an observation space in sorted
// order.
func (o Observation) Keys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Keys returns the action keys of an action space in sorted order.
// Actors and learners iterate action keys in this order so that
// multi-action tensors line up across processes.
func (a Action) Keys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// TotalSize returns the number of features of a flattened observation
// with all channels concatenated.
func (o Observation) TotalSize() int {
	size := 0
	for _, space := range o {
		size += space.Shape.TotalSize()
	}
	return size
}
