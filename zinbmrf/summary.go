package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"bitbucket.org/Davydov/zinbmrf/fdr"
	"bitbucket.org/Davydov/zinbmrf/mcmc"
)

// CallSummary stores information on the program call.
type CallSummary struct {
	// Version stores zinbmrf version.
	Version string `json:"version"`
	// CommandLine is an array storing binary name and all command-line parameters.
	CommandLine []string `json:"commandLine"`
	// Seed is the seed of the first chain.
	Seed int64 `json:"seed"`
	// NThreads is the number of goroutines used for per-taxon updates.
	NThreads int `json:"nThreads"`
	// GoMaxProcs is the number of processes available.
	GoMaxProcs int `json:"goMaxProcs"`
	// Time is the computations time in seconds.
	TotalTime float64 `json:"time"`
}

// FDRSummary is the taxa selection.
type FDRSummary struct {
	Level float64 `json:"level"`
	// Threshold is nil if no taxon is selected.
	Threshold *float64 `json:"threshold,omitempty"`
	// Rate is the expected false discovery rate of the
	// selection.
	Rate        float64  `json:"rate"`
	Discoveries []string `json:"discoveries"`
}

// FitSummary is the summary of a fit.
type FitSummary struct {
	CallSummary
	Settings *mcmc.Settings `json:"settings"`
	Features []string       `json:"features"`
	// PPI are the posterior probabilities of inclusion pooled
	// over the chains.
	PPI []float64 `json:"ppi"`
	// Effect are the posterior mean effects given inclusion
	// pooled over the chains.
	Effect []float64      `json:"effect"`
	FDR    *FDRSummary    `json:"fdr,omitempty"`
	Chains []*mcmc.Result `json:"chains"`

	discovery []bool
}

// newFitSummary pools the chains.
func newFitSummary(s *mcmc.Settings, ch *mcmc.Chains) *FitSummary {
	sum := &FitSummary{
		Settings: s,
		Features: ch.Results[0].Features,
		PPI:      ch.PPI,
		Effect:   pooledEffect(ch.Results),
		Chains:   ch.Results,
	}
	return sum
}

// pooledEffect averages the effects of the chains weighted by the
// inclusion probabilities.
func pooledEffect(results []*mcmc.Result) []float64 {
	p := len(results[0].Effect)
	e := make([]float64, p)
	for j := range e {
		w := 0.0
		for _, r := range results {
			e[j] += r.PPI[j] * r.Effect[j]
			w += r.PPI[j]
		}
		if w > 0 {
			e[j] /= w
		}
	}
	return e
}

// selectTaxa applies the Bayesian false discovery rate.
func (sum *FitSummary) selectTaxa(level float64) error {
	idx, t, err := fdr.Discoveries(sum.PPI, level)
	if err != nil {
		return err
	}
	f := &FDRSummary{Level: level, Discoveries: []string{}}
	sum.discovery = make([]bool, len(sum.PPI))
	for _, j := range idx {
		f.Discoveries = append(f.Discoveries, sum.Features[j])
		sum.discovery[j] = true
	}
	if len(idx) > 0 {
		f.Threshold = &t
		f.Rate = fdr.Rate(sum.PPI, t)
		log.Noticef("%d taxa selected at FDR %v (PPI threshold %.4f, expected rate %.4f)",
			len(idx), level, t, f.Rate)
	} else {
		log.Noticef("No taxa selected at FDR %v", level)
	}
	sum.FDR = f
	return nil
}

// writePPI writes the feature table.
func writePPI(w io.Writer, sum *FitSummary) error {
	tsv := csv.NewWriter(w)
	tsv.Comma = '\t'
	if err := tsv.Write([]string{"feature", "ppi", "effect", "selected"}); err != nil {
		return err
	}
	for j, name := range sum.Features {
		sel := false
		if sum.discovery != nil {
			sel = sum.discovery[j]
		}
		err := tsv.Write([]string{
			name,
			strconv.FormatFloat(sum.PPI[j], 'g', 6, 64),
			strconv.FormatFloat(sum.Effect[j], 'g', 6, 64),
			strconv.FormatBool(sel),
		})
		if err != nil {
			return err
		}
	}
	tsv.Flush()
	return tsv.Error()
}

// readPPI reads the feature and ppi columns of a feature table.
func readPPI(r io.Reader) (features []string, ppi []float64, err error) {
	tsv := csv.NewReader(r)
	tsv.Comma = '\t'
	tsv.Comment = '#'
	tsv.FieldsPerRecord = -1
	header, err := tsv.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("reading header: %w", err)
	}
	fcol, pcol := -1, -1
	for i, h := range header {
		switch h {
		case "feature":
			fcol = i
		case "ppi":
			pcol = i
		}
	}
	if fcol < 0 || pcol < 0 {
		return nil, nil, fmt.Errorf("header must have feature and ppi columns, got %v", header)
	}
	for {
		rec, err := tsv.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		line, _ := tsv.FieldPos(0)
		if len(rec) <= fcol || len(rec) <= pcol {
			return nil, nil, fmt.Errorf("line %d: too few columns", line)
		}
		v, err := strconv.ParseFloat(rec[pcol], 64)
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", line, err)
		}
		features = append(features, rec[fcol])
		ppi = append(ppi, v)
	}
	return features, ppi, nil
}
