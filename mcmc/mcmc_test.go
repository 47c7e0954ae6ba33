package mcmc

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/op/go-logging"
	"go.uber.org/goleak"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"bitbucket.org/Davydov/zinbmrf/counts"
	"bitbucket.org/Davydov/zinbmrf/graph"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func init() {
	for _, m := range []string{"mcmc", "dpp", "mrf", "counts"} {
		logging.SetLevel(logging.WARNING, m)
	}
}

// synthetic generates negative binomial counts of n samples (half in
// each group) and p taxa; the first k taxa have the group 1 mean
// multiplied by fold.
func synthetic(seed uint64, n, p, k int, fold float64) *Input {
	rng := rand.New(rand.NewSource(seed))
	data := make([][]int, n)
	groups := make([]int, n)
	sizes := make([]float64, n)
	mus := make([]float64, p)
	for j := range mus {
		mus[j] = 20 + 80*rng.Float64()
	}
	phi := 5.0
	for i := range data {
		groups[i] = i % 2
		sizes[i] = 0.7 + 0.6*rng.Float64()
		data[i] = make([]int, p)
		for j := range data[i] {
			m := sizes[i] * mus[j]
			if j < k && groups[i] == 1 {
				m *= fold
			}
			g := distuv.Gamma{Alpha: phi, Beta: phi / m, Src: rng}.Rand()
			data[i][j] = int(distuv.Poisson{Lambda: g, Src: rng}.Rand())
		}
	}
	m, err := counts.NewMatrix(nil, nil, data)
	if err != nil {
		panic(err)
	}
	return &Input{Counts: m, Groups: groups, Sizes: sizes}
}

// chainGraph connects consecutive taxa.
func chainGraph(p int) *graph.Graph {
	var edges [][2]int
	for j := 0; j+1 < p; j++ {
		edges = append(edges, [2]int{j, j + 1})
	}
	g, err := graph.New(p, edges)
	if err != nil {
		panic(err)
	}
	return g
}

func shortSettings() *Settings {
	s := NewSettings()
	s.Iterations = 60
	s.BurnIn = 20
	s.ReportPeriod = 1000
	s.StoreChain = true
	return s
}

// gammaTrajectory extracts the inclusion indicators of all the
// snapshots.
func gammaTrajectory(r *Result) [][]int8 {
	t := make([][]int8, len(r.Snapshots))
	for i, sn := range r.Snapshots {
		t[i] = sn.Gamma
	}
	return t
}

func TestFitShort(tst *testing.T) {
	in := synthetic(1, 12, 8, 2, 6)
	in.Graph = chainGraph(8)
	s := shortSettings()
	r, err := Fit(context.Background(), in, s, nil)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if len(r.PPI) != 8 || len(r.Included) != 8 {
		tst.Fatal("Incorrect output length")
	}
	for j, v := range r.PPI {
		if v < 0 || v > 1 {
			tst.Error("PPI out of range: ", j, v)
		}
	}
	if len(r.Snapshots) != s.Iterations-s.BurnIn || len(r.LogLik) != s.Iterations-s.BurnIn {
		tst.Error("Expected one snapshot per sampling sweep, got ", len(r.Snapshots))
	}
	if r.Snapshots[0].Iteration != s.BurnIn {
		tst.Error("First snapshot is from iteration ", r.Snapshots[0].Iteration)
	}
	for _, sn := range r.Snapshots {
		// every sample in exactly one cluster
		sizes := map[int]int{}
		for _, k := range sn.Clusters {
			sizes[k]++
		}
		total := 0
		for _, n := range sizes {
			total += n
		}
		if total != 12 {
			tst.Fatal("Partition does not cover all the samples")
		}
		for i, k := range sn.Clusters {
			for l, k2 := range sn.Clusters {
				if k == k2 && sn.Factors[i] != sn.Factors[l] {
					tst.Fatal("Samples of one cluster have different factors")
				}
			}
		}
		for _, g := range sn.Gamma {
			if g != 0 && g != 1 {
				tst.Fatal("Invalid inclusion indicator ", g)
			}
		}
		if math.IsNaN(sn.LogLik) || math.IsInf(sn.LogLik, 0) {
			tst.Fatal("Non-finite log-likelihood")
		}
	}
	// PPI is the fraction of sampling sweeps with inclusion
	for j := range r.PPI {
		k := 0
		for _, sn := range r.Snapshots {
			k += int(sn.Gamma[j])
		}
		if math.Abs(float64(k)/float64(len(r.Snapshots))-r.PPI[j]) > 1e-12 {
			tst.Error("PPI does not match the trajectory for taxon ", j)
		}
	}
	last := r.Snapshots[len(r.Snapshots)-1]
	for j, inc := range r.Included {
		if inc != (last.Gamma[j] == 1) {
			tst.Error("Final inclusion does not match the last sweep")
		}
	}
}

func TestDeterminism(tst *testing.T) {
	in := synthetic(2, 10, 6, 2, 5)
	in.Graph = chainGraph(6)
	s := shortSettings()
	r1, err := Fit(context.Background(), in, s, nil)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	r2, err := Fit(context.Background(), in, s, nil)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if diff := cmp.Diff(gammaTrajectory(r1), gammaTrajectory(r2)); diff != "" {
		tst.Error("Trajectories differ (-first +second):\n", diff)
	}

	// the number of threads does not change the result
	s4 := shortSettings()
	s4.Threads = 4
	r4, err := Fit(context.Background(), in, s4, nil)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if diff := cmp.Diff(r1.Snapshots, r4.Snapshots); diff != "" {
		tst.Error("Results depend on the number of threads (-1 thread +4 threads):\n", diff)
	}
}

func TestInvalidInput(tst *testing.T) {
	m, err := counts.NewMatrix(nil, nil, [][]int{{1, 2}, {3, 4}})
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	groups := []int{0, 0}
	sizes := []float64{1, -1}
	in := &Input{Counts: m, Groups: groups, Sizes: sizes}
	rec := &memRecorder{}
	_, err = Fit(context.Background(), in, shortSettings(), rec)
	var cerr *counts.ConfigError
	if !errors.As(err, &cerr) {
		tst.Fatal("Expected a configuration error, got ", err)
	}
	if rec.n != 0 {
		tst.Error("Sweeps were recorded")
	}
	if groups[0] != 0 || groups[1] != 0 || sizes[1] != -1 || m.At(0, 0) != 1 {
		tst.Error("Input was modified")
	}

	s := shortSettings()
	s.BurnIn = s.Iterations
	if _, err := Fit(context.Background(), synthetic(3, 6, 3, 1, 2), s, nil); !errors.As(err, &cerr) {
		tst.Error("Expected a configuration error, got ", err)
	}

	in = synthetic(3, 6, 3, 1, 2)
	in.Graph = chainGraph(2)
	if _, err := Fit(context.Background(), in, shortSettings(), nil); !errors.As(err, &cerr) {
		tst.Error("Expected a configuration error for a small graph, got ", err)
	}
}

// memRecorder counts recorded snapshots.
type memRecorder struct {
	sync.Mutex
	n      int
	chains map[int]int
}

func (r *memRecorder) Record(chain int, s *Snapshot) error {
	r.Lock()
	defer r.Unlock()
	r.n++
	if r.chains == nil {
		r.chains = map[int]int{}
	}
	r.chains[chain]++
	return nil
}

// failRecorder fails after some snapshots.
type failRecorder struct {
	left      int
	discarded []int
}

var errFull = errors.New("storage is full")

func (r *failRecorder) Record(chain int, s *Snapshot) error {
	if r.left == 0 {
		return errFull
	}
	r.left--
	return nil
}

func (r *failRecorder) Discard(chain int) error {
	r.discarded = append(r.discarded, chain)
	return nil
}

func TestRecorder(tst *testing.T) {
	in := synthetic(4, 8, 4, 1, 4)
	s := shortSettings()
	s.StoreChain = false
	rec := &memRecorder{}
	r, err := Fit(context.Background(), in, s, rec)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if rec.n != s.Iterations-s.BurnIn {
		tst.Error("Expected ", s.Iterations-s.BurnIn, " snapshots, got ", rec.n)
	}
	if r.Snapshots != nil {
		tst.Error("Snapshots stored without StoreChain")
	}

	fr := &failRecorder{left: 3}
	_, err = Fit(context.Background(), in, s, fr)
	if !errors.Is(err, ErrAborted) || !errors.Is(err, errFull) {
		tst.Error("Expected an aborted fit, got ", err)
	}
	if diff := cmp.Diff([]int{0}, fr.discarded); diff != "" {
		tst.Error("Aborted chain not discarded:\n", diff)
	}
}

func TestCancel(tst *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Fit(ctx, synthetic(5, 8, 4, 1, 4), shortSettings(), nil)
	if !errors.Is(err, ErrAborted) || !errors.Is(err, context.Canceled) {
		tst.Error("Expected an aborted fit, got ", err)
	}
}

func TestPhases(tst *testing.T) {
	if !Initializing.CanTransition(BurnIn) || !BurnIn.CanTransition(Sampling) ||
		!Sampling.CanTransition(Finalized) {
		tst.Error("Forward transitions are not allowed")
	}
	for _, t := range [][2]Phase{
		{Sampling, BurnIn},
		{Finalized, Sampling},
		{Initializing, Sampling},
		{Aborted, BurnIn},
		{Finalized, Aborted},
	} {
		if t[0].CanTransition(t[1]) {
			tst.Errorf("Transition %s -> %s is allowed", t[0], t[1])
		}
	}
	if !Finalized.Terminal() || !Aborted.Terminal() || Sampling.Terminal() {
		tst.Error("Incorrect terminal phases")
	}
	if BurnIn.Records() || !Sampling.Records() || !BurnIn.Adapts() || Sampling.Adapts() {
		tst.Error("Incorrect phase semantics")
	}
}

func TestChainPhases(tst *testing.T) {
	pr, err := prepare(synthetic(6, 8, 4, 1, 4), shortSettings())
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	s := shortSettings()
	s.BurnIn = 0
	c, err := newChain(pr, s, 0, nil)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if c.phase != Initializing {
		tst.Error("New chain is in phase ", c.phase)
	}
	r, err := c.run(context.Background())
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if c.phase != Finalized {
		tst.Error("Finished chain is in phase ", c.phase)
	}
	if len(r.Snapshots) != s.Iterations {
		tst.Error("Without burn-in every sweep is recorded, got ", len(r.Snapshots))
	}
	if !c.dispSteps[0].Mean.Frozen() || !c.effSteps[0].Frozen() {
		tst.Error("Step sizes are adapted during sampling")
	}
}

func TestChainFreeze(tst *testing.T) {
	pr, err := prepare(synthetic(6, 8, 4, 1, 4), shortSettings())
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	c, err := newChain(pr, shortSettings(), 0, nil)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	c.transition(BurnIn)
	for j := range c.effSteps {
		if c.dispSteps[j].Mean.Frozen() || c.effSteps[j].Frozen() {
			tst.Fatal("Step sizes are frozen during burn-in")
		}
	}
	// leaving burn-in for any phase stops the adaptation
	c.transition(Aborted)
	for j := range c.effSteps {
		if !c.dispSteps[j].Mean.Frozen() || !c.effSteps[j].Frozen() {
			tst.Error("Step sizes are adapted after burn-in, taxon ", j)
		}
	}
}

func TestChainClipsFactors(tst *testing.T) {
	in := synthetic(6, 8, 4, 1, 4)
	in.Sizes[0] = 1e-9
	in.Sizes[1] = 1e9
	s := shortSettings()
	pr, err := prepare(in, s)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	c, err := newChain(pr, s, 0, nil)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if c.factors[0] != s.DPP.Min || c.factors[1] != s.DPP.Max {
		tst.Error("Initial factors are not clipped: ", c.factors[0], c.factors[1])
	}
}

func TestNoDPPNoMRF(tst *testing.T) {
	in := synthetic(7, 8, 5, 1, 4)
	in.Graph = chainGraph(5)
	s := shortSettings()
	s.UseDPP = false
	s.UseMRF = false
	r, err := Fit(context.Background(), in, s, nil)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	for _, sn := range r.Snapshots {
		if diff := cmp.Diff(in.Sizes, sn.Factors); diff != "" {
			tst.Fatal("Size factors changed without DPP:\n", diff)
		}
	}
	if r.Clusters != 8 {
		tst.Error("Expected one cluster per sample, got ", r.Clusters)
	}
	if _, ok := r.Acceptance["factor"]; ok {
		tst.Error("Factor acceptance reported without DPP")
	}
}

func TestAggregate(tst *testing.T) {
	in := synthetic(8, 8, 3, 1, 4)
	s, err := counts.NewStructure(append(append([]string(nil), in.Counts.Taxa...), "g12", "g3"), in.Counts.Taxa, [][]int{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
		{1, 1, 0},
		{0, 0, 1},
	})
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	in.Structure = s
	in.Graph, err = graph.New(5, [][2]int{{0, 3}, {1, 3}, {2, 4}, {3, 4}})
	if err != nil {
		tst.Fatal("Error: ", err)
	}

	st := shortSettings()
	st.Aggregate = true
	r, err := Fit(context.Background(), in, st, nil)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if len(r.PPI) != 5 || r.Features[3] != "g12" {
		tst.Error("Expected a feature per tree node, got ", r.Features)
	}

	// without aggregation the graph is projected on the taxa
	st.Aggregate = false
	r, err = Fit(context.Background(), in, st, nil)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if len(r.PPI) != 3 {
		tst.Error("Expected a feature per taxon, got ", r.Features)
	}

	st.Aggregate = true
	in.Structure = nil
	if _, err := Fit(context.Background(), in, st, nil); err == nil {
		tst.Error("Aggregation without structure matrix should fail")
	}
}

func TestRunChains(tst *testing.T) {
	in := synthetic(9, 8, 4, 1, 4)
	s := shortSettings()
	rec := &memRecorder{}
	ch, err := RunChains(context.Background(), in, s, 3, rec)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if len(ch.Results) != 3 {
		tst.Fatal("Expected 3 chains")
	}
	for k, r := range ch.Results {
		if r.Seed != s.Seed+int64(k) || r.Chain != k {
			tst.Error("Incorrect chain seed or index: ", r.Chain, r.Seed)
		}
		if rec.chains[k] != s.Iterations-s.BurnIn {
			tst.Error("Incorrect number of records for chain ", k)
		}
	}
	for j := range ch.PPI {
		mean := (ch.Results[0].PPI[j] + ch.Results[1].PPI[j] + ch.Results[2].PPI[j]) / 3
		if math.Abs(mean-ch.PPI[j]) > 1e-12 {
			tst.Error("Incorrect pooled PPI")
		}
	}
	single, err := Fit(context.Background(), in, s, nil)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if diff := cmp.Diff(single.PPI, ch.Results[0].PPI); diff != "" {
		tst.Error("First chain differs from a single fit:\n", diff)
	}
	if _, err := RunChains(context.Background(), in, s, 0, nil); err == nil {
		tst.Error("Expected an error for zero chains")
	}
}

func TestSettingsLoad(tst *testing.T) {
	s := NewSettings()
	err := s.Load(strings.NewReader(`
iterations: 200
burnin: 50
inclusion:
  b: 0.8
zero_inflation:
  fixed: true
  pi: 0.05
`))
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if s.Iterations != 200 || s.BurnIn != 50 || s.MRF.B != 0.8 || !s.Inflation.Fixed {
		tst.Errorf("Settings were not loaded: %+v", s)
	}
	if s.MRF.A != -2.2 {
		tst.Error("Default value was overwritten: ", s.MRF.A)
	}
	if err := s.Validate(); err != nil {
		tst.Error("Error: ", err)
	}
	if err := NewSettings().Load(strings.NewReader("unknown: 1\n")); err == nil {
		tst.Error("Expected an error for an unknown field")
	}
}

func TestNumericalError(tst *testing.T) {
	err := error(&NumericalError{Block: "dispersion", Iteration: 3, Reason: "test"})
	if !errors.Is(err, ErrAborted) {
		tst.Error("NumericalError is not an abort")
	}
	if !strings.Contains(err.Error(), "dispersion") {
		tst.Error("Block is not reported: ", err)
	}
}

// TestScenario runs the full two group scenario over several data
// sets and seeds: 24 samples, 50 taxa, the first five differentially
// abundant. Every differential taxon must have PPI above 0.8 in every
// run. The null taxa are judged statistically: at most
// maxNullPerRun of the 45 may reach PPI 0.2 in one run, and at most
// maxNullRate of them over all the runs.
func TestScenario(tst *testing.T) {
	if testing.Short() {
		tst.Skip("skipping the long scenario in short mode")
	}
	const (
		maxNullPerRun = 4
		maxNullRate   = 0.07
	)
	seeds := []int64{10, 11, 12, 13}
	nulls, wrong := 0, 0
	for _, seed := range seeds {
		in := synthetic(uint64(seed), 24, 50, 5, 8)
		in.Graph = chainGraph(50)
		s := NewSettings()
		s.Iterations = 10000
		s.BurnIn = 5000
		s.Threads = 4
		s.Seed = seed
		r, err := Fit(context.Background(), in, s, nil)
		if err != nil {
			tst.Fatal("Error: ", err)
		}
		for j := 0; j < 5; j++ {
			if r.PPI[j] <= 0.8 {
				tst.Errorf("Seed %d: differential taxon %d has PPI %.3f", seed, j, r.PPI[j])
			}
		}
		run := 0
		for j := 5; j < len(r.PPI); j++ {
			nulls++
			if r.PPI[j] >= 0.2 {
				tst.Logf("Seed %d: null taxon %d has PPI %.3f", seed, j, r.PPI[j])
				run++
			}
		}
		if run > maxNullPerRun {
			tst.Errorf("Seed %d: %d null taxa with PPI >= 0.2", seed, run)
		}
		wrong += run
	}
	if rate := float64(wrong) / float64(nulls); rate > maxNullRate {
		tst.Errorf("%.3f of the null taxa have PPI >= 0.2 over %d runs", rate, len(seeds))
	}
}
