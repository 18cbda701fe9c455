package initwfn

import G "gorgonia.org/gorgonia"

// GaussianConfig describes initialization of weights drawn from a
// Gaussian distribution.
type GaussianConfig struct {
	Mean, StdDev float64
}

// NewGaussian returns a new Gaussian weight initializer
func NewGaussian(mean, stddev float64) (*InitWFn, error) {
	return newInitWFn(GaussianConfig{Mean: mean, StdDev: stddev})
}

// Type returns the type of initializer the config describes
func (g GaussianConfig) Type() Type {
	return Gaussian
}

// Create returns the described initializer as a Gorgonia InitWFn
func (g GaussianConfig) Create() G.InitWFn {
	return G.Gaussian(g.Mean, g.StdDev)
}
