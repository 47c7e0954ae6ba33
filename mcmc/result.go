package mcmc

import (
	"bitbucket.org/Davydov/zinbmrf/dpp"
	"bitbucket.org/Davydov/zinbmrf/mrf"
)

// Snapshot is the state of a chain after a sampling sweep.
type Snapshot struct {
	Iteration int     `json:"iteration"`
	LogLik    float64 `json:"logLik"`
	// Gamma are the inclusion indicators.
	Gamma []int8 `json:"gamma"`
	// Effect are the effects, including the inactive ones.
	Effect []float64 `json:"effect"`
	Mu     []float64 `json:"mu"`
	Phi    []float64 `json:"phi"`
	Pi     []float64 `json:"pi"`
	// Factors are the size factors of the samples.
	Factors []float64 `json:"factors"`
	// Clusters are the cluster ids of the samples.
	Clusters []int   `json:"clusters"`
	Alpha    float64 `json:"alpha,omitempty"`
	Included int     `json:"included"`
}

// snapshot returns the current state.
func (c *chain) snapshot() *Snapshot {
	sn := &Snapshot{
		Iteration: c.iter,
		LogLik:    c.logLik,
		Gamma:     make([]int8, c.p),
		Effect:    make([]float64, c.p),
		Mu:        make([]float64, c.p),
		Phi:       make([]float64, c.p),
		Pi:        append([]float64(nil), c.pi...),
		Factors:   append([]float64(nil), c.factors...),
		Clusters:  make([]int, c.n),
		Included:  mrf.Count(c.taxa),
	}
	for j, t := range c.taxa {
		sn.Gamma[j] = int8(t.Gamma())
		sn.Effect[j] = t.Effect()
		sn.Mu[j] = c.nb[j].Mu
		sn.Phi[j] = c.nb[j].Phi
	}
	for i := range sn.Clusters {
		sn.Clusters[i] = c.part.Cluster(i)
	}
	if c.dppS != nil {
		sn.Alpha = c.dppS.Alpha
	}
	return sn
}

// accumulator keeps the running sums of the sampling sweeps.
type accumulator struct {
	n         int
	included  []float64
	effect    []float64
	mu        []float64
	phi       []float64
	pi        []float64
	factors   []float64
	clusters  float64
	alpha     float64
	logLik    []float64
	mrf       mrf.Stats
	dpp       dpp.Stats
	snapshots []*Snapshot
}

// newAccumulator creates an accumulator for n samples and p taxa.
func newAccumulator(n, p int) *accumulator {
	return &accumulator{
		included: make([]float64, p),
		effect:   make([]float64, p),
		mu:       make([]float64, p),
		phi:      make([]float64, p),
		pi:       make([]float64, p),
		factors:  make([]float64, n),
	}
}

// add adds the current state of the chain.
func (a *accumulator) add(c *chain) {
	a.n++
	for j, t := range c.taxa {
		if t.IsIncluded() {
			a.included[j]++
			a.effect[j] += t.Effect()
		}
		a.mu[j] += c.nb[j].Mu
		a.phi[j] += c.nb[j].Phi
		a.pi[j] += c.pi[j]
	}
	for i, f := range c.factors {
		a.factors[i] += f
	}
	a.clusters += float64(c.part.NClusters())
	if c.dppS != nil {
		a.alpha += c.dppS.Alpha
	}
	a.logLik = append(a.logLik, c.logLik)
}

// addMRF adds the inclusion sweep statistics of a recorded phase.
func (a *accumulator) addMRF(ph Phase, st mrf.Stats) {
	if !ph.Records() {
		return
	}
	a.mrf.Proposed += st.Proposed
	a.mrf.Accepted += st.Accepted
	a.mrf.Adds += st.Adds
	a.mrf.Deletes += st.Deletes
	a.mrf.Swaps += st.Swaps
}

// addDPP adds the normalization sweep statistics of a recorded phase.
func (a *accumulator) addDPP(ph Phase, st dpp.Stats) {
	if !ph.Records() {
		return
	}
	a.dpp.Moved += st.Moved
	a.dpp.Proposed += st.Proposed
	a.dpp.Accepted += st.Accepted
}

// Result is the summary of a finalized chain. Posterior means are
// computed over the sampling sweeps.
type Result struct {
	// Chain is the chain index.
	Chain int `json:"chain"`
	// Seed is the random generator seed of the chain.
	Seed int64 `json:"seed"`
	// Features are the names of the fitted taxa (or tree nodes).
	Features []string `json:"features"`
	// PPI are the posterior probabilities of inclusion.
	PPI []float64 `json:"ppi"`
	// Included are the inclusion indicators after the last sweep.
	Included []bool `json:"included"`
	// Effect are the posterior means of the effects given
	// inclusion (zero for never included features).
	Effect []float64 `json:"effect"`
	Mu     []float64 `json:"mu"`
	Phi    []float64 `json:"phi"`
	Pi     []float64 `json:"pi"`
	// Factors are the posterior mean size factors.
	Factors []float64 `json:"factors"`
	// Clusters is the mean number of size factor clusters.
	Clusters float64 `json:"clusters"`
	// Alpha is the mean concentration.
	Alpha float64 `json:"alpha,omitempty"`
	// Acceptance are acceptance rates per block.
	Acceptance map[string]float64 `json:"acceptance"`
	// LogLik is the log-likelihood trace of the sampling sweeps.
	LogLik []float64 `json:"-"`
	// Snapshots holds every sampling sweep if the chain was stored.
	Snapshots []*Snapshot `json:"-"`
}

// rate returns accepted/proposed or zero.
func rate(accepted, proposed int) float64 {
	if proposed == 0 {
		return 0
	}
	return float64(accepted) / float64(proposed)
}

// result converts the running sums into a result.
func (c *chain) result() *Result {
	a := c.acc
	n := float64(a.n)
	r := &Result{
		Chain:     c.id,
		Seed:      c.s.Seed,
		Features:  c.features,
		PPI:       make([]float64, c.p),
		Included:  make([]bool, c.p),
		Effect:    make([]float64, c.p),
		Mu:        make([]float64, c.p),
		Phi:       make([]float64, c.p),
		Pi:        make([]float64, c.p),
		Factors:   make([]float64, c.n),
		Clusters:  a.clusters / n,
		Alpha:     a.alpha / n,
		LogLik:    a.logLik,
		Snapshots: a.snapshots,
	}
	for j := 0; j < c.p; j++ {
		r.PPI[j] = a.included[j] / n
		r.Included[j] = c.taxa[j].IsIncluded()
		if a.included[j] > 0 {
			r.Effect[j] = a.effect[j] / a.included[j]
		}
		r.Mu[j] = a.mu[j] / n
		r.Phi[j] = a.phi[j] / n
		r.Pi[j] = a.pi[j] / n
	}
	for i := range r.Factors {
		r.Factors[i] = a.factors[i] / n
	}

	var mp, ma, dp, da, ep, ea int
	for j := range c.dispSteps {
		mp += c.dispSteps[j].Mean.Proposed
		ma += c.dispSteps[j].Mean.Accepted
		dp += c.dispSteps[j].Dispersion.Proposed
		da += c.dispSteps[j].Dispersion.Accepted
		ep += c.effSteps[j].Proposed
		ea += c.effSteps[j].Accepted
	}
	r.Acceptance = map[string]float64{
		"mean":       rate(ma, mp),
		"dispersion": rate(da, dp),
		"effect":     rate(ea, ep),
		"inclusion":  rate(a.mrf.Accepted, a.mrf.Proposed),
	}
	if c.s.UseDPP {
		r.Acceptance["factor"] = rate(a.dpp.Accepted, a.dpp.Proposed)
	}
	log.Noticef("Chain %d finished: %d of %d features included in the last sweep, %.2f clusters on average",
		c.id, mrf.Count(c.taxa), c.p, r.Clusters)
	return r
}
