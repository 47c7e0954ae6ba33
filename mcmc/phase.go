package mcmc

import "fmt"

// Phase is the phase of a chain.
type Phase int

const (
	// Initializing is the phase before the first sweep.
	Initializing Phase = iota
	// BurnIn sweeps update the state without recording it.
	BurnIn
	// Sampling sweeps update and record the state.
	Sampling
	// Finalized chains have completed all the sweeps.
	Finalized
	// Aborted chains failed or were cancelled.
	Aborted
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case Initializing:
		return "initializing"
	case BurnIn:
		return "burn-in"
	case Sampling:
		return "sampling"
	case Finalized:
		return "finalized"
	case Aborted:
		return "aborted"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// transitions lists the allowed phase transitions.
var transitions = map[Phase][]Phase{
	Initializing: {BurnIn, Aborted},
	BurnIn:       {Sampling, Aborted},
	Sampling:     {Finalized, Aborted},
}

// CanTransition returns true if a chain can move from phase p to
// phase to.
func (p Phase) CanTransition(to Phase) bool {
	for _, t := range transitions[p] {
		if t == to {
			return true
		}
	}
	return false
}

// Terminal returns true for the phases without transitions.
func (p Phase) Terminal() bool {
	return len(transitions[p]) == 0
}

// Records returns true if the sweeps of the phase are recorded.
func (p Phase) Records() bool {
	return p == Sampling
}

// Adapts returns true if the proposal step sizes are adapted during
// the phase.
func (p Phase) Adapts() bool {
	return p == BurnIn
}
