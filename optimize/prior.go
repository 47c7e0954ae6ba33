package optimize

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/stat/distuv"
)

// Prior is a log prior density.
type Prior func(float64) float64

// UniformPrior returns a uniform prior on [min, max]; incmin and
// incmax control whether the limits are included.
func UniformPrior(min, max float64, incmin, incmax bool) Prior {
	if max <= min {
		panic("max <= min")
	}
	return func(x float64) float64 {
		if (incmin && x < min) ||
			(!incmin && x <= min) ||
			(incmax && x > max) ||
			(!incmax && x >= max) {
			return math.Inf(-1)
		}
		return -math.Log(max - min)
	}
}

// GammaPrior returns a gamma prior with the given shape and scale.
func GammaPrior(shape, scale float64, inczero bool) Prior {
	if shape <= 0 || scale <= 0 {
		panic("shape and scale of gamma distribution must be > 0")
	}
	g, _ := math.Lgamma(shape)
	return func(x float64) float64 {
		if x < 0 || (x == 0 && !inczero) {
			return math.Inf(-1)
		}
		return (shape-1)*math.Log(x) - x/scale - shape*math.Log(scale) - g
	}
}

// ExponentialPrior returns an exponential prior.
func ExponentialPrior(rate float64, inczero bool) Prior {
	if rate <= 0 {
		panic("exponential rate should be > 0")
	}
	return func(x float64) float64 {
		if x < 0 || (x == 0 && !inczero) {
			return math.Inf(-1)
		}
		return math.Log(rate) - rate*x
	}
}

// NormalPrior returns a normal prior.
func NormalPrior(mean, sd float64) Prior {
	if sd <= 0 {
		panic("normal sd should be > 0")
	}
	d := distuv.Normal{Mu: mean, Sigma: sd}
	return d.LogProb
}

// LogNormalPrior returns a log-normal prior, log(x) ~ N(mu, sigma).
func LogNormalPrior(mu, sigma float64) Prior {
	if sigma <= 0 {
		panic("log-normal sigma should be > 0")
	}
	d := distuv.LogNormal{Mu: mu, Sigma: sigma}
	return func(x float64) float64 {
		if x <= 0 {
			return math.Inf(-1)
		}
		return d.LogProb(x)
	}
}

// SumPrior returns a prior which is the product of priors (the sum
// of log densities).
func SumPrior(priors ...Prior) Prior {
	return func(x float64) (s float64) {
		for _, p := range priors {
			s += p(x)
		}
		return
	}
}

// LogScale returns the prior of log(x) given the prior of x: the
// density is multiplied by the Jacobian exp(y).
func (p Prior) LogScale() Prior {
	return func(y float64) float64 {
		return p(math.Exp(y)) + y
	}
}

// PriorSettings describe a prior in a configuration file.
type PriorSettings struct {
	// Dist is one of uniform, gamma, exponential, normal or
	// lognormal.
	Dist string `yaml:"dist"`
	// A and B are the parameters: min and max (uniform), shape and
	// scale (gamma), rate (exponential), mean and sd (normal, and
	// of log(x) for lognormal).
	A float64 `yaml:"a"`
	B float64 `yaml:"b"`
}

// Prior creates the prior.
func (ps PriorSettings) Prior() (Prior, error) {
	bad := func() error {
		return fmt.Errorf("invalid parameters (%v, %v) of %s prior", ps.A, ps.B, ps.Dist)
	}
	switch strings.ToLower(ps.Dist) {
	case "uniform":
		if !(ps.B > ps.A) {
			return nil, bad()
		}
		return UniformPrior(ps.A, ps.B, true, true), nil
	case "gamma":
		if !(ps.A > 0 && ps.B > 0) {
			return nil, bad()
		}
		return GammaPrior(ps.A, ps.B, false), nil
	case "exponential":
		if !(ps.A > 0) {
			return nil, bad()
		}
		return ExponentialPrior(ps.A, false), nil
	case "normal":
		if !(ps.B > 0) {
			return nil, bad()
		}
		return NormalPrior(ps.A, ps.B), nil
	case "lognormal":
		if !(ps.B > 0) {
			return nil, bad()
		}
		return LogNormalPrior(ps.A, ps.B), nil
	}
	return nil, fmt.Errorf("unknown prior distribution %q", ps.Dist)
}
