// Package nbfit computes maximum likelihood estimates of the
// negative binomial mean and dispersion of every taxon. They are
// used as starting values of the sampler.
package nbfit

import (
	"context"
	"fmt"
	"math"

	lbfgsb "github.com/idavydov/go-lbfgsb"
	"github.com/op/go-logging"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mathext"
	"gonum.org/v1/gonum/stat"

	"bitbucket.org/Davydov/zinbmrf/counts"
	"bitbucket.org/Davydov/zinbmrf/dispersion"
	"bitbucket.org/Davydov/zinbmrf/zinb"
)

// log is the global logging variable.
var log = logging.MustGetLogger("nbfit")

// Bounds limit the estimates.
type Bounds struct {
	MinMu, MaxMu   float64
	MinPhi, MaxPhi float64
}

// DefaultBounds returns the bounds matching the default dispersion
// settings.
func DefaultBounds() Bounds {
	return Bounds{
		MinMu:  1e-8,
		MaxMu:  1e8,
		MinPhi: 1e-4,
		MaxPhi: 1e4,
	}
}

// objective is the negative log-likelihood of one taxon as a
// function of (log μ, log φ).
type objective struct {
	y     []int
	sizes []float64
	grad  []float64
	calls int
}

func (o *objective) EvaluateFunction(x []float64) float64 {
	o.calls++
	mu, phi := math.Exp(x[0]), math.Exp(x[1])
	l := 0.0
	for i, y := range o.y {
		l += zinb.LogNB(y, o.sizes[i]*mu, phi)
	}
	if math.IsNaN(l) || math.IsInf(l, 0) {
		return math.Inf(1)
	}
	return -l
}

func (o *objective) EvaluateGradient(x []float64) []float64 {
	if o.grad == nil {
		o.grad = make([]float64, 2)
	}
	mu, phi := math.Exp(x[0]), math.Exp(x[1])
	dphi := -mathext.Digamma(phi) * float64(len(o.y))
	dmu := 0.0
	for i, y := range o.y {
		m := o.sizes[i] * mu
		fy := float64(y)
		dmu += phi * (fy - m) / (phi + m)
		dphi += mathext.Digamma(fy+phi) + math.Log(phi/(phi+m)) + (m-fy)/(phi+m)
	}
	o.grad[0] = -dmu
	o.grad[1] = -dphi * phi
	return o.grad
}

// start returns moment estimates clipped to the bounds.
func start(y []int, sizes []float64, b Bounds) (mu, phi float64) {
	norm := make([]float64, len(y))
	for i, v := range y {
		norm[i] = float64(v) / sizes[i]
	}
	m, v := stat.MeanVariance(norm, nil)
	mu = m
	if !(mu > 0) {
		mu = 0.5 / float64(len(y))
	}
	phi = 10
	if v > m && m > 0 {
		phi = m * m / (v - m)
	}
	return clip(mu, b.MinMu, b.MaxMu), clip(phi, b.MinPhi, b.MaxPhi)
}

func clip(x, min, max float64) float64 {
	return math.Max(min, math.Min(max, x))
}

// Taxon estimates μ and φ of one taxon given the counts and the size
// factors. It returns the estimate and its log-likelihood. If the
// optimizer fails, the moment estimates are returned.
func Taxon(y []int, sizes []float64, b Bounds) (dispersion.Taxon, float64, error) {
	if len(y) != len(sizes) || len(y) == 0 {
		return dispersion.Taxon{}, 0, fmt.Errorf("%d counts and %d size factors", len(y), len(sizes))
	}
	mu0, phi0 := start(y, sizes, b)
	obj := &objective{y: y, sizes: sizes}
	x0 := []float64{math.Log(mu0), math.Log(phi0)}
	l0 := -obj.EvaluateFunction(x0)

	opt := new(lbfgsb.Lbfgsb)
	opt.SetApproximationSize(10)
	opt.SetFTolerance(1e-9)
	opt.SetGTolerance(1e-9)
	opt.SetBounds([][2]float64{
		{math.Log(b.MinMu), math.Log(b.MaxMu)},
		{math.Log(b.MinPhi), math.Log(b.MaxPhi)},
	})
	opt.SetLogger(func(info *lbfgsb.OptimizationIterationInformation) {
		log.Debugf("iteration %d: lnL=%v", info.Iteration, -info.F)
	})
	min, exitStatus := opt.Minimize(obj, x0)
	log.Debugf("Exit status: %v (%d likelihood calls)", exitStatus, obj.calls)

	l := -min.F
	if len(min.X) != 2 || math.IsNaN(l) || math.IsInf(l, 0) || l < l0 {
		log.Debugf("Optimization failed, using moment estimates (mu=%v, phi=%v)", mu0, phi0)
		return dispersion.Taxon{Mu: mu0, Phi: phi0}, l0, nil
	}
	t := dispersion.Taxon{
		Mu:  clip(math.Exp(min.X[0]), b.MinMu, b.MaxMu),
		Phi: clip(math.Exp(min.X[1]), b.MinPhi, b.MaxPhi),
	}
	return t, l, nil
}

// Matrix estimates μ and φ of every taxon of a design using up to
// threads goroutines.
func Matrix(ctx context.Context, d *counts.Design, b Bounds, threads int) ([]dispersion.Taxon, error) {
	p := d.Counts.NTaxa()
	res := make([]dispersion.Taxon, p)
	g, ctx := errgroup.WithContext(ctx)
	if threads < 1 {
		threads = 1
	}
	g.SetLimit(threads)
	for j := 0; j < p; j++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			t, l, err := Taxon(d.Counts.Column(j, nil), d.Sizes, b)
			if err != nil {
				return fmt.Errorf("taxon %s: %w", d.Counts.Taxa[j], err)
			}
			log.Debugf("%s: mu=%.4g, phi=%.4g, lnL=%.4f", d.Counts.Taxa[j], t.Mu, t.Phi, l)
			res[j] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	log.Infof("Estimated initial values of %d taxa", p)
	return res, nil
}
