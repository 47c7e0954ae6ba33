package zinb

import (
	"math"
)

// Column is the data of one taxon: the counts, the latent structural
// zero indicators and the negative binomial means of all the samples.
type Column struct {
	Y     []int
	Eta   []bool
	Means []float64
}

// NBLogLik returns the sum of negative binomial log-probabilities of
// the cells which are not structural zeros. The result is -Inf or NaN
// if any of the terms is not finite.
func (c *Column) NBLogLik(phi float64) (l float64) {
	for i, y := range c.Y {
		if c.Eta != nil && c.Eta[i] {
			continue
		}
		l += LogNB(y, c.Means[i], phi)
	}
	return
}

// LogLik returns the complete log-likelihood of the column given the
// structural zero indicators and π.
func (c *Column) LogLik(phi, pi float64) (l float64) {
	for i, y := range c.Y {
		eta := c.Eta != nil && c.Eta[i]
		l += CompleteLogLik(y, eta, c.Means[i], phi, pi)
	}
	return
}

// MarginalLogLik returns the log-likelihood of the column with the
// structural zero indicators marginalized.
func (c *Column) MarginalLogLik(phi, pi float64) (l float64) {
	for i, y := range c.Y {
		l += LogLik(y, c.Means[i], phi, pi)
	}
	return
}

// Structural returns the number of cells flagged as structural zeros.
func (c *Column) Structural() (n int) {
	for _, e := range c.Eta {
		if e {
			n++
		}
	}
	return
}

// finite returns true if x is neither infinite nor NaN.
func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
