package optimize

import (
	"math"

	"golang.org/x/exp/rand"
)

// Outcome is the result of a Metropolis-Hastings step.
type Outcome int

const (
	// Rejected means that the proposal was rejected.
	Rejected Outcome = iota
	// Accepted means that the proposal was accepted.
	Accepted
	// NonFinite means that the target was not finite at the
	// proposed value, the proposal was rejected.
	NonFinite
)

// Accept returns true if a proposal with the log acceptance ratio a
// is accepted. A NaN ratio is never accepted.
func Accept(rng *rand.Rand, a float64) bool {
	if math.IsNaN(a) {
		return false
	}
	return a >= 0 || rng.Float64() < math.Exp(a)
}

// Step performs a random walk Metropolis-Hastings update of the
// parameter. l is the log-likelihood at the current value, lik
// computes the log-likelihood at the proposed value. Step returns
// the log-likelihood after the update and the outcome. Proposals out
// of the parameter limits are rejected without evaluating lik.
func (p *Parameter) Step(rng *rand.Rand, l float64, lik func() float64) (float64, Outcome) {
	p.Propose(rng)
	if !p.InRange() {
		p.Reject()
		return l, Rejected
	}
	newL := lik()
	if math.IsNaN(newL) || math.IsInf(newL, 0) {
		p.Reject()
		return l, NonFinite
	}
	a := p.Prior() - p.OldPrior() + newL - l
	if Accept(rng, a) {
		return newL, Accepted
	}
	p.Reject()
	return l, Rejected
}
