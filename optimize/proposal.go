package optimize

import (
	"golang.org/x/exp/rand"
)

// Proposal proposes a new value given the current one.
type Proposal func(rng *rand.Rand, x float64) float64

// NormalProposal returns a normal random walk proposal with a fixed
// standard deviation.
func NormalProposal(sd float64) Proposal {
	if sd <= 0 {
		panic("sd should be > 0")
	}
	return func(rng *rand.Rand, x float64) float64 {
		return x + rng.NormFloat64()*sd
	}
}

// AdaptiveProposal returns a normal random walk proposal with the
// standard deviation of the step size st.
func AdaptiveProposal(st *StepSize) Proposal {
	return func(rng *rand.Rand, x float64) float64 {
		return x + rng.NormFloat64()*st.SD()
	}
}
