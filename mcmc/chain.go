// Package mcmc implements the sampler of the zero-inflated negative
// binomial model with a Dirichlet process prior on size factors and
// a Markov random field prior on differentially abundant taxa.
//
// A chain goes through the phases Initializing, BurnIn, Sampling and
// Finalized (or Aborted). Every sweep updates, in order, the sample
// partition and size factors, the negative binomial means and
// dispersions, the inclusion indicators, the effects and the
// structural zeros. Per-taxon updates run in parallel; every taxon
// has its own random stream, so the result does not depend on the
// number of threads.
package mcmc

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/op/go-logging"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"

	"bitbucket.org/Davydov/zinbmrf/counts"
	"bitbucket.org/Davydov/zinbmrf/dispersion"
	"bitbucket.org/Davydov/zinbmrf/dpp"
	"bitbucket.org/Davydov/zinbmrf/mrf"
	"bitbucket.org/Davydov/zinbmrf/optimize"
	"bitbucket.org/Davydov/zinbmrf/zinb"
)

// log is the global logging variable.
var log = logging.MustGetLogger("mcmc")

// Recorder receives a snapshot of every sampling sweep. It must be
// safe for concurrent use if several chains share it.
type Recorder interface {
	Record(chain int, s *Snapshot) error
}

// Discarder is implemented by recorders which can drop the snapshots
// of a chain. An aborted chain is discarded.
type Discarder interface {
	Discard(chain int) error
}

// chain is the state of one Markov chain.
type chain struct {
	s        *Settings
	id       int
	d        *counts.Design
	n, p     int
	cols     [][]int
	groups   []int
	features []string

	phase Phase
	iter  int

	rng  *rand.Rand
	rngs []*rand.Rand

	part    *dpp.Partition
	factors []float64
	taxa    []mrf.Taxon
	nb      []dispersion.Taxon
	pi      []float64
	eta     [][]bool

	dppS      *dpp.Sampler
	mrfS      *mrf.Sampler
	dispS     *dispersion.Sampler
	dispSteps []dispersion.Steps
	effSteps  []*optimize.StepSize

	rows rows

	// per-taxon buffers, committed after every parallel block
	ll0, ll1 []float64
	nbNext   []dispersion.Taxon
	taxaNext []mrf.Taxon
	piNext   []float64
	etaNext  [][]bool
	means    [][]float64
	dispRes  []dispersion.Result
	effOut   []optimize.Outcome
	colLL    []float64
	logLik   float64

	acc *accumulator
	rec Recorder
}

// newChain creates a chain in the Initializing phase.
func newChain(pr *problem, s *Settings, id int, rec Recorder) (*chain, error) {
	d := pr.design
	n, p := d.Counts.NSamples(), d.Counts.NTaxa()
	c := &chain{
		s:        s,
		id:       id,
		d:        d,
		n:        n,
		p:        p,
		cols:     make([][]int, p),
		groups:   d.Groups,
		features: pr.features,
		phase:    Initializing,
		rng:      rand.New(rand.NewSource(uint64(s.Seed))),
		rngs:     make([]*rand.Rand, p),
		taxa:     make([]mrf.Taxon, p),
		nb:       make([]dispersion.Taxon, p),
		pi:       make([]float64, p),
		eta:      make([][]bool, p),
		ll0:      make([]float64, p),
		ll1:      make([]float64, p),
		nbNext:   make([]dispersion.Taxon, p),
		taxaNext: make([]mrf.Taxon, p),
		piNext:   make([]float64, p),
		etaNext:  make([][]bool, p),
		means:    make([][]float64, p),
		dispRes:  make([]dispersion.Result, p),
		effOut:   make([]optimize.Outcome, p),
		colLL:    make([]float64, p),
		rec:      rec,
	}
	c.rows.c = c
	for j := range c.rngs {
		c.rngs[j] = rand.New(rand.NewSource(c.rng.Uint64()))
		c.cols[j] = d.Counts.Column(j, nil)
		c.eta[j] = make([]bool, n)
		c.etaNext[j] = make([]bool, n)
		c.means[j] = make([]float64, n)
	}

	sizes := d.Sizes
	if s.UseDPP {
		c.dppS = dpp.NewSampler(&s.DPP, d.Sizes)
		sizes = c.dppS.Clip(sizes)
	}
	c.part = dpp.NewPartition(sizes, s.UseDPP && s.SharedCluster)
	c.factors = c.part.Factors(nil)
	c.mrfS = mrf.NewSampler(&s.MRF, pr.graph, p)
	var err error
	if c.dispS, err = dispersion.NewSampler(&s.Dispersion); err != nil {
		return nil, err
	}
	c.dispSteps = make([]dispersion.Steps, p)
	c.effSteps = make([]*optimize.StepSize, p)
	for j := 0; j < p; j++ {
		c.dispSteps[j] = dispersion.NewSteps(&s.Adaptive)
		c.effSteps[j] = s.Adaptive.NewStepSize()
	}

	c.initialize(pr.initial)
	c.acc = newAccumulator(n, p)
	return c, nil
}

// initialize sets the starting values. Without initial values, μ is
// the mean normalized count, φ is one, and the inactive effect is the
// log ratio of the normalized group means.
func (c *chain) initialize(initial []dispersion.Taxon) {
	pi := c.s.Inflation.Initial()
	for j := 0; j < c.p; j++ {
		var sum [2]float64
		var ns [2]int
		for i, y := range c.cols[j] {
			g := c.groups[i]
			sum[g] += float64(y) / c.d.Sizes[i]
			ns[g]++
		}
		if initial != nil {
			c.nb[j] = initial[j]
		} else {
			c.nb[j] = dispersion.Taxon{
				Mu:  (sum[0] + sum[1] + 0.5) / float64(c.n),
				Phi: 1,
			}
		}
		effect := math.Log((sum[1]/float64(ns[1]) + 0.5) / (sum[0]/float64(ns[0]) + 0.5))
		c.taxa[j] = mrf.NewExcluded(effect)
		c.pi[j] = pi
	}
}

// taxonLik returns the log-likelihood of taxon j given the current
// size factors and structural zeros. NaN is returned as -Inf.
func (c *chain) taxonLik(j int, mu, phi, effect float64) (l float64) {
	eta := c.eta[j]
	ee := math.Exp(effect)
	for i, y := range c.cols[j] {
		if eta[i] {
			continue
		}
		m := c.factors[i] * mu
		if c.groups[i] == 1 {
			m *= ee
		}
		l += zinb.LogNB(y, m, phi)
	}
	if math.IsNaN(l) {
		return math.Inf(-1)
	}
	return
}

// transition moves the chain to another phase.
func (c *chain) transition(to Phase) {
	if !c.phase.CanTransition(to) {
		panic(fmt.Sprintf("invalid phase transition %s -> %s", c.phase, to))
	}
	if c.phase.Adapts() && !to.Adapts() {
		for j := range c.dispSteps {
			c.dispSteps[j].Freeze()
			c.effSteps[j].Freeze()
		}
	}
	log.Infof("Chain %d: %s -> %s (iteration %d)", c.id, c.phase, to, c.iter)
	c.phase = to
}

// abort moves the chain to the Aborted phase and returns the error
// to report.
func (c *chain) abort(err error) error {
	c.transition(Aborted)
	if d, ok := c.rec.(Discarder); ok {
		if derr := d.Discard(c.id); derr != nil {
			log.Warningf("Chain %d: discarding snapshots: %v", c.id, derr)
		}
	}
	var nerr *NumericalError
	if errors.As(err, &nerr) {
		log.Errorf("Chain %d: %v", c.id, err)
		return err
	}
	if errors.Is(err, ErrAborted) {
		return err
	}
	return fmt.Errorf("%w at iteration %d: %w", ErrAborted, c.iter, err)
}

// run performs all the sweeps.
func (c *chain) run(ctx context.Context) (*Result, error) {
	if err := c.checkInitial(ctx); err != nil {
		return nil, c.abort(err)
	}
	c.transition(BurnIn)
	if c.s.BurnIn == 0 {
		c.transition(Sampling)
	}
	for c.iter = 0; c.iter < c.s.Iterations; c.iter++ {
		if err := ctx.Err(); err != nil {
			return nil, c.abort(err)
		}
		if err := c.sweep(ctx); err != nil {
			return nil, c.abort(err)
		}
		if err := c.totalLik(ctx); err != nil {
			return nil, c.abort(err)
		}
		if c.phase.Records() {
			if err := c.record(); err != nil {
				return nil, c.abort(err)
			}
		}
		if (c.iter+1)%c.s.ReportPeriod == 0 {
			log.Infof("Chain %d, iteration %d (%s): lnL=%.4f, included=%d, clusters=%d",
				c.id, c.iter+1, c.phase, c.logLik, mrf.Count(c.taxa), c.part.NClusters())
		}
		switch {
		case c.iter+1 == c.s.Iterations:
			c.transition(Finalized)
		case c.phase == BurnIn && c.iter+1 == c.s.BurnIn:
			c.transition(Sampling)
		}
	}
	return c.result(), nil
}

// checkInitial verifies that the likelihood of every taxon is finite
// at the starting values.
func (c *chain) checkInitial(ctx context.Context) error {
	if err := c.totalLik(ctx); err != nil {
		return err
	}
	for j, l := range c.colLL {
		if math.IsNaN(l) || math.IsInf(l, 0) {
			return &NumericalError{
				Block:     "initialization",
				Iteration: 0,
				Reason:    fmt.Sprintf("non-finite likelihood of %s at the starting values", c.features[j]),
			}
		}
	}
	return nil
}

// sweep updates all the blocks once.
func (c *chain) sweep(ctx context.Context) error {
	if c.s.UseDPP {
		if err := c.normalization(); err != nil {
			return err
		}
	}
	if err := c.dispersion(ctx); err != nil {
		return err
	}
	if err := c.inclusion(ctx); err != nil {
		return err
	}
	if err := c.effects(ctx); err != nil {
		return err
	}
	return c.zeroInflation(ctx)
}

// normalization updates the sample partition and the size factors.
func (c *chain) normalization() error {
	c.rows.update()
	st, err := c.dppS.Sweep(c.rng, c.part, &c.rows)
	if err != nil {
		return &NumericalError{Block: "normalization", Iteration: c.iter, Reason: err.Error(), Err: err}
	}
	if err := c.part.Check(); err != nil {
		panic(fmt.Sprintf("inconsistent partition: %v", err))
	}
	c.part.Factors(c.factors)
	c.acc.addDPP(c.phase, st)
	return nil
}

// dispersion updates μ and φ of every taxon.
func (c *chain) dispersion(ctx context.Context) error {
	err := forTaxa(ctx, c.s.Threads, c.p, func(j int) error {
		t := c.nb[j]
		e := c.taxa[j].ActiveEffect()
		lik := func(mu, phi float64) float64 { return c.taxonLik(j, mu, phi, e) }
		c.nbNext[j], _, c.dispRes[j] = c.dispS.Update(c.rngs[j], t, c.dispSteps[j], lik(t.Mu, t.Phi), lik)
		return nil
	})
	if err != nil {
		return err
	}
	copy(c.nb, c.nbNext)

	var r dispersion.Result
	for _, dr := range c.dispRes {
		r.Proposed += dr.Proposed
		r.NonFinite += dr.NonFinite
	}
	if r.Proposed > 0 && r.NonFinite == r.Proposed {
		return &NumericalError{Block: "dispersion", Iteration: c.iter,
			Reason: fmt.Sprintf("all %d proposals have a non-finite likelihood", r.Proposed)}
	}
	return nil
}

// inclusion updates the inclusion status of the taxa.
func (c *chain) inclusion(ctx context.Context) error {
	visit := c.mrfS.Select(c.rng, c.p)
	need := c.mrfS.Needed(visit)
	err := forTaxa(ctx, c.s.Threads, c.p, func(j int) error {
		if !need[j] {
			return nil
		}
		t := c.nb[j]
		c.ll0[j] = c.taxonLik(j, t.Mu, t.Phi, 0)
		c.ll1[j] = c.taxonLik(j, t.Mu, t.Phi, c.taxa[j].Effect())
		return nil
	})
	if err != nil {
		return err
	}
	st, err := c.mrfS.Sweep(c.rng, c.taxa, c.ll0, c.ll1, visit)
	if err != nil {
		return &NumericalError{Block: "inclusion", Iteration: c.iter, Reason: err.Error(), Err: err}
	}
	c.acc.addMRF(c.phase, st)
	return nil
}

// effects refreshes the effects of all the taxa.
func (c *chain) effects(ctx context.Context) error {
	err := forTaxa(ctx, c.s.Threads, c.p, func(j int) error {
		t := c.taxa[j]
		nb := c.nb[j]
		lik := func(e float64) float64 { return c.taxonLik(j, nb.Mu, nb.Phi, e) }
		l := 0.0
		if t.IsIncluded() {
			l = lik(t.Effect())
		}
		c.taxaNext[j], _, c.effOut[j] = c.mrfS.RefreshEffect(c.rngs[j], t, c.effSteps[j], l, lik)
		return nil
	})
	if err != nil {
		return err
	}
	copy(c.taxa, c.taxaNext)

	included, failed := 0, 0
	for j, t := range c.taxa {
		if t.IsIncluded() {
			included++
			if c.effOut[j] == optimize.NonFinite {
				failed++
			}
		}
	}
	if included > 0 && failed == included {
		return &NumericalError{Block: "effect", Iteration: c.iter,
			Reason: fmt.Sprintf("all %d proposals have a non-finite likelihood", included)}
	}
	return nil
}

// zeroInflation updates the structural zeros and π of every taxon.
func (c *chain) zeroInflation(ctx context.Context) error {
	err := forTaxa(ctx, c.s.Threads, c.p, func(j int) error {
		means := c.means[j]
		e := c.taxa[j].ActiveEffect()
		for i := range means {
			means[i] = zinb.Mean(c.factors[i], c.nb[j].Mu, e, c.groups[i])
		}
		copy(c.etaNext[j], c.eta[j])
		col := zinb.Column{Y: c.cols[j], Eta: c.etaNext[j], Means: means}
		c.piNext[j] = c.s.Inflation.Update(c.rngs[j], &col, c.nb[j].Phi, c.pi[j])
		return nil
	})
	if err != nil {
		return err
	}
	c.eta, c.etaNext = c.etaNext, c.eta
	copy(c.pi, c.piNext)
	return nil
}

// totalLik computes the marginal log-likelihood of every taxon and
// their sum.
func (c *chain) totalLik(ctx context.Context) error {
	err := forTaxa(ctx, c.s.Threads, c.p, func(j int) error {
		means := c.means[j]
		e := c.taxa[j].ActiveEffect()
		for i := range means {
			means[i] = zinb.Mean(c.factors[i], c.nb[j].Mu, e, c.groups[i])
		}
		col := zinb.Column{Y: c.cols[j], Means: means}
		c.colLL[j] = col.MarginalLogLik(c.nb[j].Phi, c.pi[j])
		return nil
	})
	if err != nil {
		return err
	}
	c.logLik = floats.Sum(c.colLL)
	return nil
}

// record accumulates the statistics of a sampling sweep and passes a
// snapshot to the recorder.
func (c *chain) record() error {
	c.acc.add(c)
	if !c.s.StoreChain && c.rec == nil {
		return nil
	}
	sn := c.snapshot()
	if c.s.StoreChain {
		c.acc.snapshots = append(c.acc.snapshots, sn)
	}
	if c.rec != nil {
		return c.rec.Record(c.id, sn)
	}
	return nil
}
