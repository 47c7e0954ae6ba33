package dpp

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/op/go-logging"
	"golang.org/x/exp/rand"
)

func init() {
	logging.SetLevel(logging.WARNING, "dpp")
}

// poissonRows is a row likelihood where sample i has a total count
// y[i] and the factor-free mean m[i].
type poissonRows struct {
	y, m []float64
}

func (r *poissonRows) LogLik(i int, f float64) float64 {
	return r.y[i]*math.Log(f) - f*r.m[i]
}

func (r *poissonRows) Totals(i int) (float64, float64) {
	return r.y[i], r.m[i]
}

// infRows has no finite likelihood.
type infRows struct{}

func (infRows) LogLik(i int, f float64) float64    { return math.Inf(-1) }
func (infRows) Totals(i int) (float64, float64) { return 0, 1 }

func TestNewPartition(tst *testing.T) {
	p := NewPartition([]float64{1, 2, 4}, false)
	if err := p.Check(); err != nil {
		tst.Fatal("Error: ", err)
	}
	if p.NClusters() != 3 || p.Factor(1) != 2 {
		tst.Error("Expected one cluster per sample")
	}
	p = NewPartition([]float64{1, 2, 4}, true)
	if err := p.Check(); err != nil {
		tst.Fatal("Error: ", err)
	}
	if p.NClusters() != 1 || math.Abs(p.Factor(2)-2) > 1e-12 {
		tst.Error("Expected one shared cluster with the geometric mean factor, got ", p.Factors(nil))
	}
}

func TestPartitionArena(tst *testing.T) {
	p := NewPartition([]float64{1, 2, 4}, false)
	c := p.Clone()
	p.move(0, p.Cluster(1))
	if err := p.Check(); err != nil {
		tst.Fatal("Error: ", err)
	}
	if p.NClusters() != 2 || p.Factor(0) != 2 {
		tst.Error("Sample 0 was not moved")
	}
	// the freed slot is reused
	p.remove(2)
	k := p.newCluster(7)
	p.add(2, k)
	if k != 0 && k != 2 {
		tst.Error("Expected a freed slot to be reused, got ", k)
	}
	if err := p.Check(); err != nil {
		tst.Error("Error: ", err)
	}
	if len(p.clusters) != 3 {
		tst.Error("Arena grew to ", len(p.clusters))
	}
	// the clone is independent
	if c.NClusters() != 3 || c.Factor(0) != 1 || c.Check() != nil {
		tst.Error("Clone was modified")
	}
	if diff := cmp.Diff([]int{0, 1}, p.Members(p.Cluster(1))); diff != "" {
		tst.Error("Incorrect members (-want +got):\n", diff)
	}
}

func TestCheck(tst *testing.T) {
	p := NewPartition([]float64{1, 2}, false)
	p.clusters[0].size = 2
	if p.Check() == nil {
		tst.Error("Size mismatch was not detected")
	}
	p = NewPartition([]float64{1, 2}, false)
	p.clusters[1].factor = math.Inf(1)
	if p.Check() == nil {
		tst.Error("Invalid factor was not detected")
	}
}

func TestResampleSeparates(tst *testing.T) {
	// two groups of samples with factors 1 and 10
	n := 10
	rows := &poissonRows{y: make([]float64, n), m: make([]float64, n)}
	sizes := make([]float64, n)
	truth := make([]float64, n)
	for i := range sizes {
		truth[i] = 1
		if i%2 == 1 {
			truth[i] = 10
		}
		rows.m[i] = 1000
		rows.y[i] = truth[i] * rows.m[i]
		sizes[i] = 3
	}

	rng := rand.New(rand.NewSource(1))
	p := NewPartition(sizes, true)
	s := NewSampler(NewSettings(), sizes)
	for it := 0; it < 50; it++ {
		if _, err := s.Sweep(rng, p, rows); err != nil {
			tst.Fatal("Error: ", err)
		}
		if err := p.Check(); err != nil {
			tst.Fatal("Iteration ", it, ": ", err)
		}
	}
	for i := 0; i < n; i += 2 {
		for j := 1; j < n; j += 2 {
			if p.Cluster(i) == p.Cluster(j) {
				tst.Error("Samples ", i, " and ", j, " share a cluster")
			}
		}
	}
	for i, f := range p.Factors(nil) {
		if math.Abs(f-truth[i])/truth[i] > 0.1 {
			tst.Errorf("Sample %d: factor %v, expected %v", i, f, truth[i])
		}
	}
}

func TestResampleFailure(tst *testing.T) {
	rng := rand.New(rand.NewSource(1))
	sizes := []float64{1, 1, 2}
	p := NewPartition(sizes, false)
	before := p.Clone()
	s := NewSampler(NewSettings(), sizes)
	_, err := s.Resample(rng, p, infRows{}, 0)
	if !errors.Is(err, ErrNoCandidate) {
		tst.Error("Expected ErrNoCandidate, got ", err)
	}
	if diff := cmp.Diff(before, p, cmp.AllowUnexported(Partition{}, cluster{})); diff != "" {
		tst.Error("Partition changed on error (-want +got):\n", diff)
	}
}

func TestUpdateAlpha(tst *testing.T) {
	rng := rand.New(rand.NewSource(3))
	st := NewSettings()
	st.AlphaShape = 2
	st.AlphaRate = 1
	if err := st.Validate(); err != nil {
		tst.Fatal("Error: ", err)
	}
	s := NewSampler(st, []float64{1, 1})
	// more clusters give a larger concentration
	mean := func(k int) float64 {
		sum := 0.0
		for it := 0; it < 2000; it++ {
			s.UpdateAlpha(rng, k, 50)
			sum += s.Alpha
		}
		return sum / 2000
	}
	few := mean(2)
	many := mean(30)
	if !(few < many) {
		tst.Error("Expected concentration to grow with clusters: ", few, many)
	}
}

func TestClip(tst *testing.T) {
	sizes := []float64{1e-9, 0.5, 2, 1e6}
	s := NewSampler(NewSettings(), sizes)
	got := s.Clip(sizes)
	want := []float64{1e-3, 0.5, 2, 1e3}
	if diff := cmp.Diff(want, got); diff != "" {
		tst.Error("Wrong clipped sizes (-want +got):\n", diff)
	}
	if sizes[0] != 1e-9 || sizes[3] != 1e6 {
		tst.Error("Input sizes modified: ", sizes)
	}
	if r := NewSettings().Shape * 4 / (1e-3 + 0.5 + 2 + 1e3); math.Abs(s.rate-r) > 1e-12 {
		tst.Error("Base rate not computed from clipped sizes: ", s.rate, r)
	}
	p := NewPartition(got, false)
	for _, f := range p.Factors(nil) {
		if f < s.Min || f > s.Max {
			tst.Error("Factor out of range: ", f)
		}
	}
}

func TestSettingsValidate(tst *testing.T) {
	for _, f := range []func(*Settings){
		func(s *Settings) { s.Alpha = 0 },
		func(s *Settings) { s.AlphaShape = 1 },
		func(s *Settings) { s.Shape = -1 },
		func(s *Settings) { s.Aux = 0 },
		func(s *Settings) { s.Min = 2; s.Max = 1 },
	} {
		s := NewSettings()
		f(s)
		if s.Validate() == nil {
			tst.Errorf("Expected an error for %+v", s)
		}
	}
}
