package zinb

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mathext"
	"gonum.org/v1/gonum/stat/distuv"
)

// minPi keeps the inferred π away from zero and one.
const minPi = 1e-10

// Inflation is the model of the zero-inflation probability π of a
// taxon: either a fixed value or a Beta(A, B) prior updated by
// conjugate draws.
type Inflation struct {
	// Fixed is true if π is not inferred.
	Fixed bool `yaml:"fixed"`
	// Pi is the fixed value of π (used if Fixed is true).
	Pi float64 `yaml:"pi"`
	// A and B are the parameters of the Beta prior.
	A float64 `yaml:"a"`
	B float64 `yaml:"b"`
}

// NewInflation returns a zero-inflation model with the Beta(1, 1)
// prior.
func NewInflation() *Inflation {
	return &Inflation{A: 1, B: 1, Pi: 0.1}
}

// Validate checks the parameters.
func (in *Inflation) Validate() error {
	if in.Fixed {
		if !(in.Pi >= 0 && in.Pi < 1) {
			return fmt.Errorf("fixed zero-inflation probability %v is not in [0, 1)", in.Pi)
		}
		return nil
	}
	if !(in.A > 0 && in.B > 0) || math.IsInf(in.A, 0) || math.IsInf(in.B, 0) {
		return fmt.Errorf("beta prior parameters must be positive, got (%v, %v)", in.A, in.B)
	}
	return nil
}

// Initial returns the initial value of π: the fixed value or the
// prior mean.
func (in *Inflation) Initial() float64 {
	if in.Fixed {
		return in.Pi
	}
	return in.A / (in.A + in.B)
}

// LogPrior returns the Beta log-density of pi.
func (in *Inflation) LogPrior(pi float64) float64 {
	if in.Fixed {
		return 0
	}
	if pi <= 0 || pi >= 1 {
		return math.Inf(-1)
	}
	return (in.A-1)*math.Log(pi) + (in.B-1)*math.Log1p(-pi) - mathext.Lbeta(in.A, in.B)
}

// Update draws the structural zero indicators of the column from
// their full conditional and then π from its Beta full conditional
// (unless π is fixed). It returns the new value of π. Counts above
// zero are never structural zeros.
func (in *Inflation) Update(rng *rand.Rand, c *Column, phi, pi float64) float64 {
	for i, y := range c.Y {
		if y > 0 {
			c.Eta[i] = false
			continue
		}
		p := ProbStructural(c.Means[i], phi, pi)
		if !finite(p) {
			// NB(0) underflow or overflow, keep the indicator
			continue
		}
		c.Eta[i] = rng.Float64() < p
	}
	if in.Fixed {
		return in.Pi
	}
	k := float64(c.Structural())
	beta := distuv.Beta{
		Alpha: in.A + k,
		Beta:  in.B + float64(len(c.Y)) - k,
		Src:   rng,
	}
	return math.Min(math.Max(beta.Rand(), minPi), 1-minPi)
}
