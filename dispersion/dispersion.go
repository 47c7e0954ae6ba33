// Package dispersion updates the baseline mean μ and the dispersion
// φ of the negative binomial distribution of every taxon.
package dispersion

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"

	"bitbucket.org/Davydov/zinbmrf/optimize"
)

// Taxon holds the negative binomial parameters of one taxon.
type Taxon struct {
	// Mu is the baseline mean.
	Mu float64
	// Phi is the dispersion; the variance is μ + μ²/φ.
	Phi float64
}

// Settings are the priors and limits of the parameters.
type Settings struct {
	// MeanPrior is the prior of μ.
	MeanPrior optimize.PriorSettings `yaml:"mean_prior"`
	// DispersionPrior is the prior of φ.
	DispersionPrior optimize.PriorSettings `yaml:"dispersion_prior"`
	// MinPhi and MaxPhi limit φ.
	MinPhi float64 `yaml:"min_phi"`
	MaxPhi float64 `yaml:"max_phi"`
}

// NewSettings returns the default settings.
func NewSettings() *Settings {
	return &Settings{
		MeanPrior:       optimize.PriorSettings{Dist: "lognormal", A: 0, B: 10},
		DispersionPrior: optimize.PriorSettings{Dist: "gamma", A: 1, B: 10},
		MinPhi:          1e-4,
		MaxPhi:          1e4,
	}
}

// Steps are the random walk step sizes of one taxon.
type Steps struct {
	Mean       *optimize.StepSize
	Dispersion *optimize.StepSize
}

// NewSteps creates the step sizes for one taxon.
func NewSteps(as *optimize.AdaptiveSettings) Steps {
	return Steps{
		Mean:       as.NewStepSize(),
		Dispersion: as.NewStepSize(),
	}
}

// Freeze stops the adaptation.
func (s Steps) Freeze() {
	s.Mean.Freeze()
	s.Dispersion.Freeze()
}

// Result counts the outcomes of the proposals of one update.
type Result struct {
	Proposed  int
	Accepted  int
	NonFinite int
}

// add records an outcome.
func (r *Result) add(o optimize.Outcome) {
	r.Proposed++
	switch o {
	case optimize.Accepted:
		r.Accepted++
	case optimize.NonFinite:
		r.NonFinite++
	}
}

// Sampler performs random walk Metropolis-Hastings updates of log μ
// and log φ. The proposals are symmetric on the log scale, so the
// parameters stay positive.
type Sampler struct {
	*Settings
	mean optimize.Prior
	disp optimize.Prior
}

// NewSampler creates a new sampler.
func NewSampler(s *Settings) (*Sampler, error) {
	mp, err := s.MeanPrior.Prior()
	if err != nil {
		return nil, fmt.Errorf("mean prior: %v", err)
	}
	dp, err := s.DispersionPrior.Prior()
	if err != nil {
		return nil, fmt.Errorf("dispersion prior: %v", err)
	}
	if !(s.MinPhi > 0 && s.MaxPhi > s.MinPhi) || math.IsInf(s.MaxPhi, 0) {
		return nil, fmt.Errorf("invalid dispersion limits [%v, %v]", s.MinPhi, s.MaxPhi)
	}
	return &Sampler{
		Settings: s,
		mean:     mp.LogScale(),
		disp:     dp.LogScale(),
	}, nil
}

// Update updates μ and then φ of one taxon. lik returns the
// log-likelihood of the taxon for the given μ and φ; l is its value
// at the current parameters. Update returns the new parameters and
// the log-likelihood at them.
func (s *Sampler) Update(rng *rand.Rand, t Taxon, steps Steps, l float64, lik func(mu, phi float64) float64) (Taxon, float64, Result) {
	var r Result
	lm, lp := math.Log(t.Mu), math.Log(t.Phi)
	f := func() float64 { return lik(math.Exp(lm), math.Exp(lp)) }

	mu := optimize.NewParameter(&lm, "log_mu")
	mu.SetPrior(s.mean)
	mu.SetProposal(optimize.AdaptiveProposal(steps.Mean))
	mu.SetMin(-50)
	mu.SetMax(50)
	l, o := mu.Step(rng, l, f)
	steps.Mean.Record(o == optimize.Accepted)
	r.add(o)

	phi := optimize.NewParameter(&lp, "log_phi")
	phi.SetPrior(s.disp)
	phi.SetProposal(optimize.AdaptiveProposal(steps.Dispersion))
	phi.SetMin(math.Log(s.MinPhi))
	phi.SetMax(math.Log(s.MaxPhi))
	l, o = phi.Step(rng, l, f)
	steps.Dispersion.Record(o == optimize.Accepted)
	r.add(o)

	return Taxon{Mu: math.Exp(lm), Phi: math.Exp(lp)}, l, r
}

// LogPrior returns the log prior density of the parameters on the log
// scale.
func (s *Sampler) LogPrior(t Taxon) float64 {
	return s.mean(math.Log(t.Mu)) + s.disp(math.Log(t.Phi))
}
