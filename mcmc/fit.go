package mcmc

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"bitbucket.org/Davydov/zinbmrf/counts"
)

// Fit validates the input and the settings and runs one chain. Invalid
// input is reported before the first sweep; the errors are
// *counts.ConfigError values combined with multierr. A chain which
// fails or is cancelled returns an error for which errors.Is(err,
// ErrAborted) is true, and no result.
//
// rec, if not nil, receives every sampling sweep.
func Fit(ctx context.Context, in *Input, s *Settings, rec Recorder) (*Result, error) {
	pr, err := prepare(in, s)
	if err != nil {
		return nil, err
	}
	log.Infof("Fitting %d features of %d samples (%d iterations, %d burn-in)",
		pr.design.Counts.NTaxa(), pr.design.Counts.NSamples(), s.Iterations, s.BurnIn)
	c, err := newChain(pr, s, 0, rec)
	if err != nil {
		return nil, err
	}
	return c.run(ctx)
}

// Chains is the result of several independent chains.
type Chains struct {
	// Results are the results of the chains.
	Results []*Result `json:"chains"`
	// PPI are the posterior probabilities of inclusion over all
	// the chains.
	PPI []float64 `json:"ppi"`
}

// RunChains runs n independent chains in parallel. Chain k uses the
// seed s.Seed+k. If any chain fails, the others are cancelled.
func RunChains(ctx context.Context, in *Input, s *Settings, n int, rec Recorder) (*Chains, error) {
	if n < 1 {
		return nil, &counts.ConfigError{Field: "chains", Reason: fmt.Sprintf("need at least one chain, got %d", n)}
	}
	pr, err := prepare(in, s)
	if err != nil {
		return nil, err
	}
	results := make([]*Result, n)
	g, ctx := errgroup.WithContext(ctx)
	for k := 0; k < n; k++ {
		cs := *s
		cs.Seed = s.Seed + int64(k)
		g.Go(func() error {
			c, err := newChain(pr, &cs, k, rec)
			if err != nil {
				return err
			}
			results[k], err = c.run(ctx)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ch := &Chains{
		Results: results,
		PPI:     make([]float64, len(pr.features)),
	}
	for _, r := range results {
		for j, v := range r.PPI {
			ch.PPI[j] += v / float64(n)
		}
	}
	return ch, nil
}
