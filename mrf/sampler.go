package mrf

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/rand"

	"bitbucket.org/Davydov/zinbmrf/graph"
	"bitbucket.org/Davydov/zinbmrf/optimize"
)

// ErrNonFinite is returned by Sweep if the likelihood was not finite
// for every proposal of the sweep.
var ErrNonFinite = errors.New("non-finite likelihood for every proposal")

// Settings are the parameters of the inclusion prior and sampler.
type Settings struct {
	// A is the sparsity parameter of the prior.
	A float64 `yaml:"a"`
	// B is the smoothness parameter of the prior.
	B float64 `yaml:"b"`
	// SwapProb is the probability of proposing a swap with a
	// neighbor of the opposite status instead of a toggle.
	SwapProb float64 `yaml:"swap_prob"`
	// Fraction is the fraction of taxa visited in every sweep.
	Fraction float64 `yaml:"fraction"`
	// EffectSD is the standard deviation of the normal prior of
	// effects (and of the pseudo-prior of excluded effects).
	EffectSD float64 `yaml:"effect_sd"`
}

// NewSettings returns the default settings.
func NewSettings() *Settings {
	return &Settings{
		A:        -2.2,
		B:        0.5,
		SwapProb: 0.5,
		Fraction: 1,
		EffectSD: 1,
	}
}

// Validate checks the settings.
func (s *Settings) Validate() error {
	switch {
	case math.IsNaN(s.A) || math.IsInf(s.A, 0) || math.IsNaN(s.B) || math.IsInf(s.B, 0):
		return fmt.Errorf("invalid prior parameters A=%v, B=%v", s.A, s.B)
	case !(s.SwapProb >= 0 && s.SwapProb < 1):
		return fmt.Errorf("swap probability %v is not in [0, 1)", s.SwapProb)
	case !(s.Fraction > 0 && s.Fraction <= 1):
		return fmt.Errorf("selection fraction %v is not in (0, 1]", s.Fraction)
	case !(s.EffectSD > 0):
		return fmt.Errorf("effect sd must be positive, got %v", s.EffectSD)
	}
	return nil
}

// Stats are the statistics of one sweep.
type Stats struct {
	Adds    int
	Deletes int
	Swaps   int
	// Proposed and Accepted count toggle and swap proposals.
	Proposed int
	Accepted int
	// NonFinite counts proposals with a non-finite likelihood.
	NonFinite int
}

// Sampler updates the inclusion state.
type Sampler struct {
	*Settings
	Prior *Prior
	slab  optimize.Prior

	opp []int
}

// NewSampler creates a new sampler. If g is nil, the taxa are
// independent.
func NewSampler(s *Settings, g *graph.Graph, p int) *Sampler {
	b := s.B
	if g == nil {
		g = graph.Empty(p)
		b = 0
	}
	return &Sampler{
		Settings: s,
		Prior:    &Prior{A: s.A, B: b, Graph: g},
		slab:     optimize.NormalPrior(0, s.EffectSD),
	}
}

// Select returns the taxa to visit in a sweep: all of them in order,
// or a random subset if Fraction < 1.
func (s *Sampler) Select(rng *rand.Rand, p int) []int {
	if s.Fraction >= 1 {
		visit := make([]int, p)
		for j := range visit {
			visit[j] = j
		}
		return visit
	}
	k := int(math.Ceil(s.Fraction * float64(p)))
	return rng.Perm(p)[:k]
}

// Needed returns which taxa may change status when visit is swept:
// the visited taxa and their neighbors.
func (s *Sampler) Needed(visit []int) []bool {
	need := make([]bool, s.Prior.Graph.Len())
	for _, j := range visit {
		need[j] = true
		for _, k := range s.Prior.Graph.Neighbors(j) {
			need[k] = true
		}
	}
	return need
}

// toggleProb returns the probability of proposing a toggle at taxon j.
func (s *Sampler) toggleProb(state []Taxon, j int) float64 {
	s.opp = s.Prior.Opposite(state, j, s.opp)
	if len(s.opp) == 0 {
		return 1
	}
	return 1 - s.SwapProb
}

// lik returns the log-likelihood of taxon j in the given state.
func lik(t Taxon, ll0, ll1 float64) float64 {
	if t.IsIncluded() {
		return ll1
	}
	return ll0
}

// Sweep visits the taxa in order and proposes for each either a
// toggle of its status or a swap of status with a neighbor of the
// opposite status. Effects are never changed.
//
// ll0[j] and ll1[j] are the log-likelihoods of taxon j when excluded
// and when included with its current effect; they must be set for
// every taxon marked by Needed(visit).
func (s *Sampler) Sweep(rng *rand.Rand, state []Taxon, ll0, ll1 []float64, visit []int) (st Stats, err error) {
	for _, j := range visit {
		s.opp = s.Prior.Opposite(state, j, s.opp)
		if len(s.opp) > 0 && rng.Float64() < s.SwapProb {
			s.swap(rng, state, ll0, ll1, j, &st)
		} else {
			s.toggle(rng, state, ll0, ll1, j, &st)
		}
	}
	if st.Proposed > 0 && st.NonFinite == st.Proposed {
		return st, ErrNonFinite
	}
	log.Debugf("%d/%d accepted: %d adds, %d deletes, %d swaps", st.Accepted, st.Proposed, st.Adds, st.Deletes, st.Swaps)
	return st, nil
}

// toggle proposes to change the status of taxon j.
func (s *Sampler) toggle(rng *rand.Rand, state []Taxon, ll0, ll1 []float64, j int, st *Stats) {
	st.Proposed++
	old := state[j]
	nt := old.Toggle()
	l, nl := lik(old, ll0[j], ll1[j]), lik(nt, ll0[j], ll1[j])
	if math.IsNaN(nl) || math.IsInf(nl, 0) {
		st.NonFinite++
		return
	}

	odds := s.Prior.LogOdds(state, j)
	if !nt.IsIncluded() {
		odds = -odds
	}
	qf := s.toggleProb(state, j)
	state[j] = nt
	qr := s.toggleProb(state, j)

	a := nl - l + odds + math.Log(qr) - math.Log(qf)
	if optimize.Accept(rng, a) {
		st.Accepted++
		if nt.IsIncluded() {
			st.Adds++
		} else {
			st.Deletes++
		}
		return
	}
	state[j] = old
}

// swap proposes to exchange the status of taxon j with a random
// neighbor of the opposite status. s.opp must hold the neighbors of
// j of the opposite status.
func (s *Sampler) swap(rng *rand.Rand, state []Taxon, ll0, ll1 []float64, j int, st *Stats) {
	st.Proposed++
	nfwd := len(s.opp)
	k := s.opp[rng.Intn(nfwd)]

	oj, ok := state[j], state[k]
	l := lik(oj, ll0[j], ll1[j]) + lik(ok, ll0[k], ll1[k])
	nl := lik(oj.Toggle(), ll0[j], ll1[j]) + lik(ok.Toggle(), ll0[k], ll1[k])
	if math.IsNaN(nl) || math.IsInf(nl, 0) {
		st.NonFinite++
		return
	}

	// prior difference by flipping j, then k
	d := s.Prior.LogOdds(state, j)
	if oj.IsIncluded() {
		d = -d
	}
	state[j] = oj.Toggle()
	dk := s.Prior.LogOdds(state, k)
	if ok.IsIncluded() {
		dk = -dk
	}
	d += dk
	state[k] = ok.Toggle()

	s.opp = s.Prior.Opposite(state, j, s.opp)
	nrev := len(s.opp)

	a := nl - l + d + math.Log(float64(nfwd)) - math.Log(float64(nrev))
	if optimize.Accept(rng, a) {
		st.Accepted++
		st.Swaps++
		return
	}
	state[j], state[k] = oj, ok
}

// RefreshEffect performs a random walk Metropolis-Hastings update of
// the effect of a taxon. For an included taxon the target is the
// likelihood times the normal prior; lik returns the log-likelihood
// for an active effect and l is its value at the current effect. For
// an excluded taxon the target is the normal pseudo-prior and lik is
// not called. It returns the updated taxon, the log-likelihood at
// its active effect and the outcome.
func (s *Sampler) RefreshEffect(rng *rand.Rand, t Taxon, step *optimize.StepSize, l float64, lik func(float64) float64) (Taxon, float64, optimize.Outcome) {
	e := t.Effect()
	par := optimize.NewParameter(&e, "effect")
	par.SetPrior(s.slab)
	par.SetProposal(optimize.AdaptiveProposal(step))

	var o optimize.Outcome
	if t.IsIncluded() {
		l, o = par.Step(rng, l, func() float64 { return lik(e) })
	} else {
		_, o = par.Step(rng, 0, func() float64 { return 0 })
	}
	step.Record(o == optimize.Accepted)
	return t.WithEffect(e), l, o
}

// Count returns the number of included taxa.
func Count(state []Taxon) (n int) {
	for _, t := range state {
		n += t.Gamma()
	}
	return
}
