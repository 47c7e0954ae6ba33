// Package zinb implements the zero-inflated negative binomial (ZINB)
// likelihood of a count table.
//
// A cell (i, j) is a structural zero with probability π_j, otherwise
// its count is drawn from a negative binomial distribution with mean
//
//	m_ij = s_i · μ_j · exp(z_i · δ_j · γ_j)
//
// and dispersion φ_j (variance m + m²/φ). The sampler augments the
// data with a latent indicator η_ij per cell; η_ij can only be true
// if the observed count is zero.
package zinb

import (
	"math"
)

// Mean returns the negative binomial mean of a cell given the size
// factor, the baseline mean, the active effect (zero for an excluded
// taxon) and the group (0 or 1) of the sample.
func Mean(size, mu, effect float64, group int) float64 {
	if group == 0 || effect == 0 {
		return size * mu
	}
	return size * mu * math.Exp(effect)
}

// lgamma returns log Γ(x).
func lgamma(x float64) float64 {
	v, _ := math.Lgamma(x)
	return v
}

// LogNB returns the negative binomial log-probability of count y
// given the mean m and the dispersion phi.
func LogNB(y int, m, phi float64) float64 {
	fy := float64(y)
	return lgamma(fy+phi) - lgamma(phi) - lgamma(fy+1) + LogNBKernel(y, m, phi)
}

// LogNBKernel returns the part of LogNB which depends on the mean.
// Differences of LogNBKernel with the same y and phi are equal to
// the differences of LogNB.
func LogNBKernel(y int, m, phi float64) float64 {
	l := phi * LogNB0(m, phi)
	if y > 0 {
		l += float64(y) * (math.Log(m) - math.Log(phi+m))
	}
	return l
}

// LogNB0 returns log(φ/(φ+m)), the log-probability of zero count
// divided by φ.
func LogNB0(m, phi float64) float64 {
	return -math.Log1p(m / phi)
}

// ProbStructural returns the probability that a zero count is a
// structural zero, π / (π + (1-π)·NB(0 | m, φ)).
func ProbStructural(m, phi, pi float64) float64 {
	if pi <= 0 {
		return 0
	}
	if pi >= 1 {
		return 1
	}
	nb0 := math.Exp(phi * LogNB0(m, phi))
	return pi / (pi + (1-pi)*nb0)
}

// LogLik returns the ZINB log-likelihood of a single cell with the
// structural zero indicator marginalized.
func LogLik(y int, m, phi, pi float64) float64 {
	if y > 0 {
		return math.Log1p(-pi) + LogNB(y, m, phi)
	}
	// log(pi + (1-pi)*NB(0))
	a := math.Log(pi)
	b := math.Log1p(-pi) + phi*LogNB0(m, phi)
	if a < b {
		a, b = b, a
	}
	if math.IsInf(a, -1) {
		return a
	}
	return a + math.Log1p(math.Exp(b-a))
}

// CompleteLogLik returns the log-likelihood of one cell given the
// structural zero indicator eta.
func CompleteLogLik(y int, eta bool, m, phi, pi float64) float64 {
	if eta {
		if y != 0 {
			return math.Inf(-1)
		}
		return math.Log(pi)
	}
	return math.Log1p(-pi) + LogNB(y, m, phi)
}
