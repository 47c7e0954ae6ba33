package mcmc

import (
	"fmt"
	"io"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"bitbucket.org/Davydov/zinbmrf/counts"
	"bitbucket.org/Davydov/zinbmrf/dispersion"
	"bitbucket.org/Davydov/zinbmrf/dpp"
	"bitbucket.org/Davydov/zinbmrf/mrf"
	"bitbucket.org/Davydov/zinbmrf/optimize"
	"bitbucket.org/Davydov/zinbmrf/zinb"
)

// Settings are the settings of a fit.
type Settings struct {
	// Iterations is the total number of sweeps, including burn-in.
	Iterations int `yaml:"iterations"`
	// BurnIn is the number of burn-in sweeps.
	BurnIn int `yaml:"burnin"`

	// UseDPP enables the Dirichlet process prior on size factors.
	// Otherwise the size factors are fixed.
	UseDPP bool `yaml:"dpp"`
	// UseMRF enables the graph term of the inclusion prior.
	UseMRF bool `yaml:"mrf"`
	// Aggregate fits every node of the taxonomic tree.
	Aggregate bool `yaml:"aggregate"`
	// StoreChain keeps a snapshot of every sampling sweep.
	StoreChain bool `yaml:"store_chain"`
	// SharedCluster starts with all the samples in one cluster
	// instead of one cluster per sample.
	SharedCluster bool `yaml:"shared_cluster"`

	// Seed is the random generator seed.
	Seed int64 `yaml:"seed"`
	// Threads is the number of goroutines for per-taxon updates.
	Threads int `yaml:"threads"`
	// ReportPeriod is the number of sweeps between progress
	// messages.
	ReportPeriod int `yaml:"report_period"`

	MRF        mrf.Settings              `yaml:"inclusion"`
	DPP        dpp.Settings              `yaml:"normalization"`
	Inflation  zinb.Inflation            `yaml:"zero_inflation"`
	Dispersion dispersion.Settings       `yaml:"dispersion"`
	Adaptive   optimize.AdaptiveSettings `yaml:"adaptive"`
}

// NewSettings returns the default settings.
func NewSettings() *Settings {
	return &Settings{
		Iterations:   10000,
		BurnIn:       5000,
		UseDPP:       true,
		UseMRF:       true,
		Seed:         1,
		Threads:      1,
		ReportPeriod: 1000,
		MRF:          *mrf.NewSettings(),
		DPP:          *dpp.NewSettings(),
		Inflation:    *zinb.NewInflation(),
		Dispersion:   *dispersion.NewSettings(),
		Adaptive:     *optimize.NewAdaptiveSettings(),
	}
}

// Load overrides the settings with the values from a YAML document.
// Fields not present in the document keep their values.
func (s *Settings) Load(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(s); err != nil && err != io.EOF {
		return &counts.ConfigError{Field: "settings", Reason: err.Error()}
	}
	return nil
}

// Validate checks the settings. All the problems are reported
// together as *counts.ConfigError values.
func (s *Settings) Validate() (err error) {
	add := func(field string, e error) {
		if e != nil {
			err = multierr.Append(err, &counts.ConfigError{Field: field, Reason: e.Error()})
		}
	}
	if s.BurnIn < 0 || s.Iterations <= s.BurnIn {
		add("iterations", fmt.Errorf("need at least one sampling sweep, got %d iterations with %d burn-in", s.Iterations, s.BurnIn))
	}
	if s.Threads < 1 {
		add("threads", fmt.Errorf("need at least one thread, got %d", s.Threads))
	}
	if s.ReportPeriod < 1 {
		add("report period", fmt.Errorf("must be positive, got %d", s.ReportPeriod))
	}
	add("inclusion", s.MRF.Validate())
	if s.UseDPP {
		add("normalization", s.DPP.Validate())
	}
	add("zero inflation", s.Inflation.Validate())
	if _, e := dispersion.NewSampler(&s.Dispersion); e != nil {
		add("dispersion", e)
	}
	a := s.Adaptive
	if !(a.SD > 0) || a.K < 1 || !(a.MinSD > 0) || !(a.MaxSD >= a.MinSD) {
		add("adaptive", fmt.Errorf("invalid step size settings %+v", a))
	}
	return
}
