// Package rwdnorm implements reward normalizers applied to
// environment reward vectors before they are written to an experience
// cache
package rwdnorm

import (
	"fmt"

	"github.com/samuelfneumann/gorl/utils/floatutils"
)

// Normalizer normalizes a vector of rewards, one reward per parallel
// environment instance. Normalizers must not modify the input slice.
type Normalizer interface {
	Normalize(rewards []float64) []float64
}

// Type describes the available reward normalizer types
type Type string

const (
	Identity Type = "Identity"
	Clip     Type = "Clip"
	Scale    Type = "Scale"
)

// Config describes a reward normalizer and can create the Normalizer
// it describes.
type Config struct {
	Type Type

	// Clip bounds, used when Type == Clip
	Min float64
	Max float64

	// Multiplier, used when Type == Scale
	Coefficient float64
}

// Create creates and returns the Normalizer that the Config describes.
func (c Config) Create() (Normalizer, error) {
	switch c.Type {
	case Identity:
		return identity{}, nil

	case Clip:
		if c.Min >= c.Max {
			return nil, fmt.Errorf("create: clip requires min < max "+
				"\n\thave min(%v) max(%v)", c.Min, c.Max)
		}
		return clip{min: c.Min, max: c.Max}, nil

	case Scale:
		return scale{coefficient: c.Coefficient}, nil
	}
	return nil, fmt.Errorf("create: no such reward normalizer type %v", c.Type)
}

// identity returns rewards unchanged
type identity struct{}

func (identity) Normalize(rewards []float64) []float64 {
	normalized := make([]float64, len(rewards))
	copy(normalized, rewards)
	return normalized
}

// clip clips each reward to [min, max]
type clip struct {
	min, max float64
}

func (c clip) Normalize(rewards []float64) []float64 {
	normalized := make([]float64, len(rewards))
	for i, r := range rewards {
		normalized[i] = floatutils.Clip(r, c.min, c.max)
	}
	return normalized
}

// scale multiplies each reward by a constant coefficient
type scale struct {
	coefficient float64
}

func (s scale) Normalize(rewards []float64) []float64 {
	normalized := make([]float64, len(rewards))
	for i, r := range rewards {
		normalized[i] = r * s.coefficient
	}
	return normalized
}
