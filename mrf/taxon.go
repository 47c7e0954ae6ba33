// Package mrf implements the inclusion state of taxa: which taxa are
// differentially abundant, and by how much. The inclusion indicators
// have a Markov random field prior over the taxon graph.
package mrf

import (
	"fmt"

	"github.com/op/go-logging"
)

// log is the global logging variable.
var log = logging.MustGetLogger("mrf")

// Status is the inclusion status of a taxon.
type Status int8

const (
	// Excluded taxa have the same mean in both groups.
	Excluded Status = iota
	// Included taxa are differentially abundant.
	Included
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case Excluded:
		return "excluded"
	case Included:
		return "included"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Taxon is the inclusion state of one taxon. An included taxon
// carries an active effect: the log fold change of the group 1 mean.
// An excluded taxon keeps its last effect as an inactive payload,
// which becomes active again if the taxon is included.
type Taxon struct {
	status Status
	effect float64
}

// NewIncluded returns an included taxon with the given effect.
func NewIncluded(effect float64) Taxon {
	return Taxon{status: Included, effect: effect}
}

// NewExcluded returns an excluded taxon with the given inactive
// effect.
func NewExcluded(effect float64) Taxon {
	return Taxon{status: Excluded, effect: effect}
}

// Status returns the inclusion status.
func (t Taxon) Status() Status {
	return t.status
}

// IsIncluded returns true for an included taxon.
func (t Taxon) IsIncluded() bool {
	return t.status == Included
}

// Gamma returns the inclusion indicator (0 or 1).
func (t Taxon) Gamma() int {
	return int(t.status)
}

// Effect returns the effect, active or not.
func (t Taxon) Effect() float64 {
	return t.effect
}

// ActiveEffect returns the effect of an included taxon and zero for
// an excluded one. This is the effect seen by the likelihood.
func (t Taxon) ActiveEffect() float64 {
	if t.status == Included {
		return t.effect
	}
	return 0
}

// Toggle returns the taxon with the opposite status and the same
// effect.
func (t Taxon) Toggle() Taxon {
	t.status = 1 - t.status
	return t
}

// WithEffect returns the taxon with the effect replaced.
func (t Taxon) WithEffect(effect float64) Taxon {
	t.effect = effect
	return t
}

// String returns a short description.
func (t Taxon) String() string {
	return fmt.Sprintf("%s(%g)", t.status, t.effect)
}
