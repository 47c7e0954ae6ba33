package mcmc

import (
	"bitbucket.org/Davydov/zinbmrf/zinb"
)

// rows implements dpp.Rows for the current state of a chain. base
// holds the negative binomial means divided by the size factor.
type rows struct {
	c    *chain
	base []float64
}

// update recomputes the factor-free means.
func (r *rows) update() {
	c := r.c
	if r.base == nil {
		r.base = make([]float64, c.n*c.p)
	}
	for i := 0; i < c.n; i++ {
		g := c.groups[i]
		for j := 0; j < c.p; j++ {
			r.base[i*c.p+j] = zinb.Mean(1, c.nb[j].Mu, c.taxa[j].ActiveEffect(), g)
		}
	}
}

// LogLik returns the negative binomial log-likelihood of sample i
// with the size factor f, up to a constant.
func (r *rows) LogLik(i int, f float64) (l float64) {
	c := r.c
	row := c.d.Counts.Row(i)
	base := r.base[i*c.p : (i+1)*c.p]
	for j, y := range row {
		if c.eta[j][i] {
			continue
		}
		l += zinb.LogNBKernel(y, f*base[j], c.nb[j].Phi)
	}
	return
}

// Totals returns the sum of counts and of factor-free means of sample
// i, structural zeros excluded.
func (r *rows) Totals(i int) (y, m float64) {
	c := r.c
	row := c.d.Counts.Row(i)
	base := r.base[i*c.p : (i+1)*c.p]
	for j, v := range row {
		if c.eta[j][i] {
			continue
		}
		y += float64(v)
		m += base[j]
	}
	return
}
