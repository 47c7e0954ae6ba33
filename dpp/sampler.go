package dpp

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrNoCandidate is returned when the likelihood of a sample is not
// finite under every candidate cluster.
var ErrNoCandidate = errors.New("no candidate cluster with a finite likelihood")

// Rows gives the likelihood of the count rows of the samples.
type Rows interface {
	// LogLik returns the log-likelihood of the row of sample i with
	// the size factor f, up to a constant which does not depend on
	// f.
	LogLik(i int, f float64) float64
	// Totals returns the sum of the counts of sample i and the sum
	// of its negative binomial means divided by the size factor.
	// Cells flagged as structural zeros are skipped.
	Totals(i int) (y, m float64)
}

// Settings are the parameters of the Dirichlet process prior.
type Settings struct {
	// Alpha is the initial (or fixed) concentration.
	Alpha float64 `yaml:"alpha"`
	// AlphaShape and AlphaRate are the parameters of the gamma
	// prior on the concentration. If AlphaShape is zero, the
	// concentration is fixed.
	AlphaShape float64 `yaml:"alpha_shape"`
	AlphaRate  float64 `yaml:"alpha_rate"`
	// Shape is the shape of the gamma base distribution of size
	// factors; its rate is set from the initial factors so that
	// the base mean is their mean.
	Shape float64 `yaml:"shape"`
	// Aux is the number of auxiliary clusters.
	Aux int `yaml:"aux"`
	// Min and Max are the limits of size factors.
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// NewSettings returns the default settings.
func NewSettings() *Settings {
	return &Settings{
		Alpha: 1,
		Shape: 2,
		Aux:   3,
		Min:   1e-3,
		Max:   1e3,
	}
}

// Validate checks the settings.
func (s *Settings) Validate() error {
	switch {
	case !(s.Alpha > 0):
		return fmt.Errorf("concentration must be positive, got %v", s.Alpha)
	case s.AlphaShape < 0 || (s.AlphaShape > 0 && !(s.AlphaRate > 0)):
		return fmt.Errorf("invalid concentration prior Gamma(%v, %v)", s.AlphaShape, s.AlphaRate)
	case !(s.Shape > 0):
		return fmt.Errorf("base distribution shape must be positive, got %v", s.Shape)
	case s.Aux < 1:
		return fmt.Errorf("at least one auxiliary cluster is required, got %d", s.Aux)
	case !(s.Min > 0) || !(s.Max > s.Min) || math.IsInf(s.Max, 0):
		return fmt.Errorf("invalid size factor limits [%v, %v]", s.Min, s.Max)
	}
	return nil
}

// Stats are the statistics of one sweep.
type Stats struct {
	// Moved is the number of samples which changed cluster.
	Moved int
	// Proposed and Accepted count factor refresh proposals.
	Proposed int
	Accepted int
}

// Sampler updates a partition using Neal's algorithm 8 with
// auxiliary clusters drawn from the base distribution, followed by a
// Metropolis-Hastings refresh of every cluster factor.
type Sampler struct {
	*Settings
	// Alpha is the current concentration.
	Alpha float64
	// rate is the rate of the base distribution.
	rate float64

	aux     []float64
	weights []float64
	ids     []int
}

// NewSampler creates a new sampler. The base distribution mean is the
// mean of sizes after clipping.
func NewSampler(s *Settings, sizes []float64) *Sampler {
	sum := 0.0
	for _, f := range sizes {
		sum += math.Min(math.Max(f, s.Min), s.Max)
	}
	return &Sampler{
		Settings: s,
		Alpha:    s.Alpha,
		rate:     s.Shape * float64(len(sizes)) / sum,
		aux:      make([]float64, s.Aux),
	}
}

// base returns the base distribution.
func (s *Sampler) base(rng *rand.Rand) distuv.Gamma {
	return distuv.Gamma{Alpha: s.Shape, Beta: s.rate, Src: rng}
}

// clip restricts factor to the allowed range.
func (s *Sampler) clip(f float64) float64 {
	return math.Min(math.Max(f, s.Min), s.Max)
}

// Clip returns a copy of sizes restricted to the allowed range.
func (s *Sampler) Clip(sizes []float64) []float64 {
	res := make([]float64, len(sizes))
	n := 0
	for i, f := range sizes {
		res[i] = s.clip(f)
		if res[i] != f {
			n++
		}
	}
	if n > 0 {
		log.Warningf("%d size factors clipped to [%g, %g]", n, s.Min, s.Max)
	}
	return res
}

// Resample reassigns sample i to an existing cluster or to a new one.
// It returns true if the sample changed cluster. On error the
// partition is not modified.
func (s *Sampler) Resample(rng *rand.Rand, p *Partition, rows Rows, i int) (bool, error) {
	cur := p.Cluster(i)
	singleton := p.ClusterSize(cur) == 1

	// auxiliary factors; the factor of a singleton cluster is
	// reused as the first one
	g0 := s.base(rng)
	for l := range s.aux {
		if l == 0 && singleton {
			s.aux[l] = p.ClusterFactor(cur)
			continue
		}
		s.aux[l] = s.clip(g0.Rand())
	}

	s.ids = s.ids[:0]
	s.weights = s.weights[:0]
	for _, k := range p.Clusters() {
		n := p.ClusterSize(k)
		if k == cur {
			n--
		}
		if n == 0 {
			continue
		}
		s.ids = append(s.ids, k)
		s.weights = append(s.weights, math.Log(float64(n))+rows.LogLik(i, p.ClusterFactor(k)))
	}
	laux := math.Log(s.Alpha / float64(len(s.aux)))
	for l, f := range s.aux {
		s.ids = append(s.ids, -1-l)
		s.weights = append(s.weights, laux+rows.LogLik(i, f))
	}

	for l, w := range s.weights {
		if math.IsNaN(w) {
			s.weights[l] = math.Inf(-1)
		}
	}
	lsum := floats.LogSumExp(s.weights)
	if math.IsInf(lsum, 0) || math.IsNaN(lsum) {
		return false, fmt.Errorf("sample %d: %w", i, ErrNoCandidate)
	}

	u := rng.Float64()
	chosen := s.ids[len(s.ids)-1]
	cum := 0.0
	for l, w := range s.weights {
		cum += math.Exp(w - lsum)
		if u < cum {
			chosen = s.ids[l]
			break
		}
	}

	if chosen >= 0 {
		if chosen == cur {
			return false, nil
		}
		p.move(i, chosen)
		return true, nil
	}
	f := s.aux[-1-chosen]
	if singleton && chosen == -1 {
		// the sample stays alone with its own factor
		return false, nil
	}
	p.remove(i)
	k := p.newCluster(f)
	p.add(i, k)
	return true, nil
}

// Refresh updates the factor of cluster k by an independence
// Metropolis-Hastings step. The proposal is the gamma posterior of
// the factor under a Poisson approximation of the counts. It returns
// true if the proposal is accepted.
func (s *Sampler) Refresh(rng *rand.Rand, p *Partition, rows Rows, k int) bool {
	members := p.Members(k)
	sy, sm := 0.0, 0.0
	for _, i := range members {
		y, m := rows.Totals(i)
		sy += y
		sm += m
	}
	q := distuv.Gamma{Alpha: s.Shape + sy, Beta: s.rate + sm, Src: rng}
	prior := s.base(rng)

	f := p.ClusterFactor(k)
	nf := q.Rand()
	if nf < s.Min || nf > s.Max {
		return false
	}

	target := func(f float64) (l float64) {
		l = prior.LogProb(f)
		for _, i := range members {
			l += rows.LogLik(i, f)
		}
		return
	}
	a := target(nf) - target(f) + q.LogProb(f) - q.LogProb(nf)
	if math.IsNaN(a) {
		return false
	}
	if a >= 0 || rng.Float64() < math.Exp(a) {
		p.SetFactor(k, nf)
		return true
	}
	return false
}

// Sweep resamples the cluster of every sample, refreshes every
// cluster factor and updates the concentration if it has a prior.
func (s *Sampler) Sweep(rng *rand.Rand, p *Partition, rows Rows) (st Stats, err error) {
	for i := 0; i < p.Len(); i++ {
		moved, err := s.Resample(rng, p, rows, i)
		if err != nil {
			return st, err
		}
		if moved {
			st.Moved++
		}
	}
	for _, k := range p.Clusters() {
		st.Proposed++
		if s.Refresh(rng, p, rows, k) {
			st.Accepted++
		}
	}
	if s.AlphaShape > 0 {
		s.UpdateAlpha(rng, p.NClusters(), p.Len())
	}
	log.Debugf("%d clusters, %d samples moved, alpha=%g", p.NClusters(), st.Moved, s.Alpha)
	return st, nil
}

// UpdateAlpha draws the concentration from its full conditional given
// k clusters of n samples, using the auxiliary variable method of
// Escobar and West (1995).
func (s *Sampler) UpdateAlpha(rng *rand.Rand, k, n int) {
	eta := distuv.Beta{Alpha: s.Alpha + 1, Beta: float64(n), Src: rng}.Rand()
	rate := s.AlphaRate - math.Log(eta)
	a := s.AlphaShape + float64(k) - 1
	odds := a / (float64(n) * rate)
	shape := a + 1
	if rng.Float64() >= odds/(1+odds) {
		shape = a
	}
	alpha := distuv.Gamma{Alpha: shape, Beta: rate, Src: rng}.Rand()
	if alpha > 0 && !math.IsInf(alpha, 0) {
		s.Alpha = alpha
	}
}
