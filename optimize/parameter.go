// Package optimize contains the building blocks of the
// Metropolis-Hastings updates: priors, proposals, parameters with
// propose/accept/reject semantics and step size adaptation.
package optimize

import (
	"math"
	"strconv"

	"golang.org/x/exp/rand"
)

// Parameter is a float parameter updated by Metropolis-Hastings. It
// points to the actual value, which is modified in place.
type Parameter struct {
	*float64
	old      float64
	name     string
	prior    Prior
	proposal Proposal
	min      float64
	max      float64
}

// NewParameter creates a new parameter with a flat prior and a
// normal proposal with sd=1.
func NewParameter(par *float64, name string) *Parameter {
	return &Parameter{
		float64:  par,
		name:     name,
		prior:    func(float64) float64 { return 0 },
		proposal: NormalProposal(1),
		min:      math.Inf(-1),
		max:      math.Inf(+1),
	}
}

// SetMin sets the lower limit.
func (p *Parameter) SetMin(min float64) {
	p.min = min
}

// SetMax sets the upper limit.
func (p *Parameter) SetMax(max float64) {
	p.max = max
}

// SetPrior sets the prior.
func (p *Parameter) SetPrior(f Prior) {
	p.prior = f
}

// SetProposal sets the proposal function.
func (p *Parameter) SetProposal(f Proposal) {
	p.proposal = f
}

// Get returns the value.
func (p *Parameter) Get() float64 {
	return *p.float64
}

// Set sets the value.
func (p *Parameter) Set(v float64) {
	*p.float64 = v
}

// Name returns the parameter name.
func (p *Parameter) Name() string {
	return p.name
}

// InRange returns true if the value is within the limits.
func (p *Parameter) InRange() bool {
	return *p.float64 >= p.min && *p.float64 <= p.max
}

// Prior returns the log prior of the current value.
func (p *Parameter) Prior() float64 {
	return p.prior(*p.float64)
}

// OldPrior returns the log prior of the value before the last
// proposal.
func (p *Parameter) OldPrior() float64 {
	return p.prior(p.old)
}

// Propose replaces the value by a proposed one, remembering the old
// value.
func (p *Parameter) Propose(rng *rand.Rand) {
	p.old, *p.float64 = *p.float64, p.proposal(rng, *p.float64)
}

// Reject restores the value before the last proposal.
func (p *Parameter) Reject() {
	*p.float64 = p.old
}

// String returns the value as a string.
func (p *Parameter) String() string {
	return strconv.FormatFloat(*p.float64, 'f', 6, 64)
}
