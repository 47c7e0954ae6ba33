package main

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"bitbucket.org/Davydov/zinbmrf/chainstore"
	"bitbucket.org/Davydov/zinbmrf/mcmc"
)

var (
	dbTraceF = traceCmd.Arg("db", "chain database written by fit --db").Required().ExistingFile()
	traceOut = traceCmd.Flag("out", "image file, the format is set by the extension").Default("trace.png").String()
	traceVal = traceCmd.Flag("value", "value to plot "+
		"(loglik: log-likelihood, "+
		"included: number of included features, "+
		"clusters: number of size factor clusters)").
		Default("loglik").Enum("loglik", "included", "clusters")
)

// traceValue extracts a value from a snapshot.
func traceValue(name string) func(*mcmc.Snapshot) float64 {
	switch name {
	case "included":
		return func(sn *mcmc.Snapshot) float64 { return float64(sn.Included) }
	case "clusters":
		return func(sn *mcmc.Snapshot) float64 {
			ids := make(map[int]struct{})
			for _, k := range sn.Clusters {
				ids[k] = struct{}{}
			}
			return float64(len(ids))
		}
	}
	return func(sn *mcmc.Snapshot) float64 { return sn.LogLik }
}

// traces reads the points of every chain.
func traces(store *chainstore.Store, value func(*mcmc.Snapshot) float64) (map[int]plotter.XYs, []int, error) {
	chains, err := store.Chains()
	if err != nil {
		return nil, nil, err
	}
	if len(chains) == 0 {
		return nil, nil, fmt.Errorf("no chains in the database")
	}
	res := make(map[int]plotter.XYs, len(chains))
	for _, k := range chains {
		var pts plotter.XYs
		err := store.Snapshots(k, func(sn *mcmc.Snapshot) error {
			pts = append(pts, plotter.XY{X: float64(sn.Iteration), Y: value(sn)})
			return nil
		})
		if err != nil {
			return nil, nil, err
		}
		res[k] = pts
		log.Infof("Chain %d: %d snapshots", k, len(pts))
	}
	return res, chains, nil
}

func runTrace() error {
	store, err := chainstore.OpenReadOnly(*dbTraceF)
	if err != nil {
		return err
	}
	defer store.Close()

	pts, chains, err := traces(store, traceValue(*traceVal))
	if err != nil {
		return err
	}

	p := plot.New()
	p.Title.Text = *dbTraceF
	p.X.Label.Text = "iteration"
	p.Y.Label.Text = *traceVal

	lines := make([]interface{}, 0, 2*len(chains))
	for _, k := range chains {
		lines = append(lines, fmt.Sprintf("chain %d", k), pts[k])
	}
	if err := plotutil.AddLines(p, lines...); err != nil {
		return err
	}
	if err := p.Save(8*vg.Inch, 4*vg.Inch, *traceOut); err != nil {
		return err
	}
	log.Noticef("Trace written to %s", *traceOut)
	return nil
}
