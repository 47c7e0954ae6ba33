package mcmc

import (
	"fmt"

	"go.uber.org/multierr"

	"bitbucket.org/Davydov/zinbmrf/counts"
	"bitbucket.org/Davydov/zinbmrf/dispersion"
	"bitbucket.org/Davydov/zinbmrf/graph"
)

// Input is the data of a fit. It is owned by the caller and never
// modified; several fits can share one Input.
type Input struct {
	// Counts is the sample by taxon count matrix.
	Counts *counts.Matrix
	// Groups is the group label (0 or 1) of every sample.
	Groups []int
	// Sizes are the initial size factors, nil for the default
	// ones.
	Sizes []float64
	// Graph is the taxon graph. It is either over the taxa or
	// over the nodes of Structure (taxa first). Nil means no
	// graph.
	Graph *graph.Graph
	// Structure is the structure matrix of the taxonomic tree,
	// required for aggregation.
	Structure *counts.Structure
	// Initial are optional initial negative binomial parameters,
	// one per feature.
	Initial []dispersion.Taxon
}

// problem is the validated input of a fit.
type problem struct {
	design *counts.Design
	graph  *graph.Graph
	// features are the names of the fitted features (taxa, or
	// tree nodes with aggregation).
	features []string
	initial  []dispersion.Taxon
}

// prepare validates the input and the settings and builds the
// matrix and graph to fit. All the problems found are reported
// together.
func prepare(in *Input, s *Settings) (*problem, error) {
	err := s.Validate()
	if in == nil || in.Counts == nil {
		return nil, multierr.Append(err, &counts.ConfigError{Field: "counts", Reason: "no count matrix"})
	}

	m := in.Counts
	if s.Aggregate {
		if in.Structure == nil {
			err = multierr.Append(err, &counts.ConfigError{Field: "structure",
				Reason: "aggregation requires a structure matrix"})
		} else {
			agg, aerr := m.Aggregate(in.Structure)
			err = multierr.Append(err, aerr)
			if agg != nil {
				m = agg
			}
		}
	}
	d, derr := counts.NewDesign(m, in.Groups, in.Sizes)
	err = multierr.Append(err, derr)

	p := m.NTaxa()
	g := in.Graph
	if s.UseMRF && g != nil {
		switch {
		case g.Len() < p:
			err = multierr.Append(err, &counts.ConfigError{Field: "graph",
				Reason: fmt.Sprintf("graph has %d nodes, expected at least %d", g.Len(), p)})
		case g.Len() > p:
			pg, perr := g.Project(p)
			if perr != nil {
				err = multierr.Append(err, &counts.ConfigError{Field: "graph", Reason: perr.Error()})
			}
			if pg != nil {
				log.Infof("Projected graph of %d nodes onto %d features (%d edges)", g.Len(), p, pg.NEdges())
			}
			g = pg
		}
	}
	if !s.UseMRF {
		g = nil
	}

	if in.Initial != nil && len(in.Initial) != p {
		err = multierr.Append(err, &counts.ConfigError{Field: "initial values",
			Reason: fmt.Sprintf("%d values for %d features", len(in.Initial), p)})
	}
	for j, t := range in.Initial {
		if !(t.Mu > 0) || !(t.Phi > 0) {
			err = multierr.Append(err, &counts.ConfigError{Field: "initial values",
				Reason: fmt.Sprintf("feature %d has invalid parameters %+v", j, t)})
		}
	}

	if err != nil {
		return nil, err
	}
	return &problem{
		design:   d,
		graph:    g,
		features: m.Taxa,
		initial:  in.Initial,
	}, nil
}
