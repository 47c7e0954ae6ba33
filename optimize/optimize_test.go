package optimize

import (
	"math"
	"testing"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

const smallDiff = 1e-9

func TestPriors(tst *testing.T) {
	g := GammaPrior(2, 3, false)
	ref := distuv.Gamma{Alpha: 2, Beta: 1.0 / 3}.LogProb(1.7)
	if math.Abs(g(1.7)-ref) > smallDiff {
		tst.Error("Gamma prior: expected ", ref, ", got ", g(1.7))
	}
	if !math.IsInf(g(0), -1) {
		tst.Error("Gamma prior should exclude zero")
	}

	u := UniformPrior(0, 4, true, false)
	if u(0) != -math.Log(4) || !math.IsInf(u(4), -1) {
		tst.Error("Incorrect uniform prior")
	}

	e := ExponentialPrior(2, true)
	if math.Abs(e(1)-(math.Log(2)-2)) > smallDiff {
		tst.Error("Incorrect exponential prior: ", e(1))
	}

	s := SumPrior(e, u)
	if math.Abs(s(1)-e(1)-u(1)) > smallDiff {
		tst.Error("Sum prior should add log densities")
	}

	// log(x) of a log-normal x is normal
	ln := LogNormalPrior(0.5, 2).LogScale()
	n := NormalPrior(0.5, 2)
	for _, y := range []float64{-3, 0, 1.2} {
		if math.Abs(ln(y)-n(y)) > smallDiff {
			tst.Error("Incorrect log scale prior at ", y, ": ", ln(y), " vs ", n(y))
		}
	}
}

func TestPriorSettings(tst *testing.T) {
	for _, ps := range []PriorSettings{
		{"uniform", 0, 1},
		{"gamma", 1, 2},
		{"Exponential", 1, 0},
		{"normal", 0, 1},
		{"lognormal", 0, 1},
	} {
		if _, err := ps.Prior(); err != nil {
			tst.Error("Error: ", err)
		}
	}
	for _, ps := range []PriorSettings{
		{"uniform", 1, 0},
		{"gamma", 0, 2},
		{"normal", 0, -1},
		{"cauchy", 0, 1},
	} {
		if _, err := ps.Prior(); err == nil {
			tst.Error("Expected an error for ", ps)
		}
	}
}

func TestAccept(tst *testing.T) {
	rng := rand.New(rand.NewSource(1))
	if Accept(rng, math.NaN()) {
		tst.Error("NaN ratio accepted")
	}
	if !Accept(rng, 0.1) {
		tst.Error("Positive ratio rejected")
	}
	if Accept(rng, math.Inf(-1)) {
		tst.Error("Zero probability accepted")
	}
}

func TestStepSamplesPrior(tst *testing.T) {
	rng := rand.New(rand.NewSource(2))
	x := 0.0
	p := NewParameter(&x, "x")
	p.SetPrior(NormalPrior(1, 2))
	p.SetProposal(NormalProposal(2))

	N := 50000
	vals := make([]float64, N)
	l := 0.0
	for i := range vals {
		l, _ = p.Step(rng, l, func() float64 { return 0 })
		vals[i] = x
	}
	mean, sd := stat.MeanStdDev(vals, nil)
	if math.Abs(mean-1) > 0.1 || math.Abs(sd-2) > 0.1 {
		tst.Error("Expected N(1, 2), got mean ", mean, ", sd ", sd)
	}
}

func TestStepNonFinite(tst *testing.T) {
	rng := rand.New(rand.NewSource(3))
	x := 1.0
	p := NewParameter(&x, "x")
	l, o := p.Step(rng, -5, func() float64 { return math.NaN() })
	if o != NonFinite || l != -5 || x != 1 {
		tst.Error("Non-finite proposal was not rejected")
	}
	p.SetMin(0.5)
	p.SetMax(1.5)
	p.SetProposal(func(*rand.Rand, float64) float64 { return 2 })
	called := false
	_, o = p.Step(rng, -5, func() float64 { called = true; return 0 })
	if o != Rejected || called || x != 1 {
		tst.Error("Out of range proposal was not rejected")
	}
}

func TestStepSize(tst *testing.T) {
	as := NewAdaptiveSettings()
	st := as.NewStepSize()
	for i := 0; i < 1000; i++ {
		st.Record(true)
	}
	if st.SD() <= as.SD {
		tst.Error("SD should grow when everything is accepted, got ", st.SD())
	}
	st = as.NewStepSize()
	for i := 0; i < 1000; i++ {
		st.Record(false)
	}
	if st.SD() >= as.SD {
		tst.Error("SD should shrink when everything is rejected, got ", st.SD())
	}
	if st.SD() < as.MinSD {
		tst.Error("SD below the limit: ", st.SD())
	}
	st.Freeze()
	sd := st.SD()
	for i := 0; i < 100; i++ {
		st.Record(true)
	}
	if st.SD() != sd {
		tst.Error("Frozen step size changed")
	}
	if st.Proposed != 1100 || st.Accepted != 100 {
		tst.Error("Incorrect counts: ", st.Proposed, st.Accepted)
	}
}
