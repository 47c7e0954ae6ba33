package main

import (
	"bytes"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/op/go-logging"

	"bitbucket.org/Davydov/zinbmrf/chainstore"
	"bitbucket.org/Davydov/zinbmrf/mcmc"
)

func init() {
	for _, l := range loggers {
		logging.SetLevel(logging.WARNING, l)
	}
}

func testSummary() *FitSummary {
	ch := &mcmc.Chains{
		Results: []*mcmc.Result{
			{Features: []string{"a", "b", "c"}, PPI: []float64{1, 0.5, 0}, Effect: []float64{2, 1, 0}},
			{Features: []string{"a", "b", "c"}, PPI: []float64{0.9, 0.5, 0.1}, Effect: []float64{1, 3, 5}},
		},
		PPI: []float64{0.95, 0.5, 0.05},
	}
	return newFitSummary(mcmc.NewSettings(), ch)
}

func TestPooledEffect(tst *testing.T) {
	sum := testSummary()
	want := []float64{(2 + 0.9) / 1.9, 2, 5}
	for j, v := range want {
		if math.Abs(sum.Effect[j]-v) > 1e-12 {
			tst.Errorf("Effect %d: expected %v, got %v", j, v, sum.Effect[j])
		}
	}
}

func TestPPITable(tst *testing.T) {
	sum := testSummary()
	if err := sum.selectTaxa(0.1); err != nil {
		tst.Fatal("Error: ", err)
	}
	if diff := cmp.Diff([]string{"a"}, sum.FDR.Discoveries); diff != "" {
		tst.Error("Incorrect discoveries:\n", diff)
	}
	if sum.FDR.Threshold == nil || *sum.FDR.Threshold != 0.95 {
		tst.Error("Incorrect threshold: ", sum.FDR.Threshold)
	}

	var buf bytes.Buffer
	if err := writePPI(&buf, sum); err != nil {
		tst.Fatal("Error: ", err)
	}
	if !strings.HasPrefix(buf.String(), "feature\tppi\teffect\tselected\na\t0.95\t") {
		tst.Error("Incorrect table:\n", buf.String())
	}
	features, ppi, err := readPPI(&buf)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if diff := cmp.Diff(sum.Features, features); diff != "" {
		tst.Error("Incorrect features:\n", diff)
	}
	if diff := cmp.Diff(sum.PPI, ppi); diff != "" {
		tst.Error("Incorrect ppi:\n", diff)
	}

	if _, _, err := readPPI(strings.NewReader("name\tvalue\nx\t1\n")); err == nil {
		tst.Error("Expected an error for a missing column")
	}
	if _, _, err := readPPI(strings.NewReader("feature\tppi\nx\tone\n")); err == nil {
		tst.Error("Expected an error for an invalid probability")
	}
}

func TestPrintDiscoveries(tst *testing.T) {
	var buf bytes.Buffer
	err := printDiscoveries(&buf, []string{"a", "b", "c", "d", "e"}, []float64{0.5, 0.95, 0.1, 0.9, 0.5}, 0.1)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if diff := cmp.Diff([]string{"b\t0.95", "d\t0.9"}, lines[1:]); diff != "" {
		tst.Error("Incorrect discoveries:\n", diff)
	}

	buf.Reset()
	if err := printDiscoveries(&buf, []string{"a"}, []float64{0.1}, 0.05); err != nil {
		tst.Fatal("Error: ", err)
	}
	if !strings.Contains(buf.String(), "no features selected") {
		tst.Error("Incorrect output: ", buf.String())
	}
}

func TestTraces(tst *testing.T) {
	path := filepath.Join(tst.TempDir(), "chains.db")
	store, err := chainstore.Open(path, 3600)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	for it := 10; it < 13; it++ {
		for k := 0; k < 2; k++ {
			err := store.Record(k, &mcmc.Snapshot{Iteration: it, LogLik: float64(-it), Included: k, Clusters: []int{0, 0, it}})
			if err != nil {
				tst.Fatal("Error: ", err)
			}
		}
	}
	if err := store.Close(); err != nil {
		tst.Fatal("Error: ", err)
	}
	store, err = chainstore.OpenReadOnly(path)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	defer store.Close()

	pts, chains, err := traces(store, traceValue("loglik"))
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if len(chains) != 2 || len(pts[1]) != 3 || pts[1][2].X != 12 || pts[1][2].Y != -12 {
		tst.Error("Incorrect traces: ", pts)
	}
	pts, _, err = traces(store, traceValue("clusters"))
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if pts[0][0].Y != 2 {
		tst.Error("Incorrect number of clusters: ", pts[0][0].Y)
	}
}

func TestChainStorage(tst *testing.T) {
	s := mcmc.NewSettings()
	s.StoreChain = true
	if w := chainStorage(s, ""); w == "" {
		tst.Error("Expected a warning without a database")
	}
	if s.StoreChain {
		tst.Error("Snapshots are kept in memory")
	}

	s.StoreChain = true
	if w := chainStorage(s, "chains.db"); w != "" {
		tst.Error("Unexpected warning: ", w)
	}
	if s.StoreChain {
		tst.Error("Snapshots are kept in memory")
	}

	if w := chainStorage(mcmc.NewSettings(), ""); w != "" {
		tst.Error("Unexpected warning: ", w)
	}
}
