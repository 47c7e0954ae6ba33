package counts

import (
	"fmt"
	"math"

	"go.uber.org/multierr"
)

// Design is the validated input of one fit: counts, group labels and
// initial size factors.
type Design struct {
	// Counts is the count matrix.
	Counts *Matrix
	// Groups is the phenotype group (0 or 1) of every sample.
	Groups []int
	// Sizes are the initial size factors, one per sample.
	Sizes []float64
}

// NewDesign validates and creates a new design. If sizes is nil,
// size factors are computed with DefaultSizes. Slices are copied.
//
// All the problems found are reported together; each of them is a
// *ConfigError and can be recovered with multierr.Errors.
func NewDesign(m *Matrix, groups []int, sizes []float64) (*Design, error) {
	if m == nil {
		return nil, &ConfigError{Field: "counts", Reason: "no count matrix"}
	}
	var err error
	n := m.NSamples()

	if len(groups) != n {
		err = multierr.Append(err, &ConfigError{Field: "groups",
			Reason: fmt.Sprintf("%d labels for %d samples", len(groups), n)})
	} else {
		var ng [2]int
		for i, g := range groups {
			if g != 0 && g != 1 {
				err = multierr.Append(err, &ConfigError{Field: "groups",
					Reason: fmt.Sprintf("label %d of sample %q is not 0 or 1", g, m.Samples[i])})
				continue
			}
			ng[g]++
		}
		if ng[0] == 0 || ng[1] == 0 {
			err = multierr.Append(err, &ConfigError{Field: "groups",
				Reason: fmt.Sprintf("need two groups, got %d samples in group 0 and %d in group 1", ng[0], ng[1])})
		}
	}

	if sizes == nil {
		sizes = DefaultSizes(m)
	} else if len(sizes) != n {
		err = multierr.Append(err, &ConfigError{Field: "sizes",
			Reason: fmt.Sprintf("%d size factors for %d samples", len(sizes), n)})
	} else {
		for i, s := range sizes {
			if !(s > 0) || math.IsInf(s, 0) {
				err = multierr.Append(err, &ConfigError{Field: "sizes",
					Reason: fmt.Sprintf("size factor %v of sample %q is not positive", s, m.Samples[i])})
			}
		}
	}

	if err != nil {
		return nil, err
	}

	return &Design{
		Counts: m,
		Groups: append([]int(nil), groups...),
		Sizes:  append([]float64(nil), sizes...),
	}, nil
}

// DefaultSizes returns total-sum size factors scaled to a geometric
// mean of one. Empty samples get the smallest non-empty factor.
func DefaultSizes(m *Matrix) []float64 {
	n := m.NSamples()
	sizes := make([]float64, n)
	sumLog := 0.0
	nonEmpty := 0
	for i := range sizes {
		t := m.RowTotal(i)
		if t > 0 {
			sizes[i] = float64(t)
			sumLog += math.Log(sizes[i])
			nonEmpty++
		}
	}
	if nonEmpty == 0 {
		for i := range sizes {
			sizes[i] = 1
		}
		return sizes
	}
	gm := math.Exp(sumLog / float64(nonEmpty))
	min := math.Inf(1)
	for i := range sizes {
		if sizes[i] > 0 {
			sizes[i] /= gm
			min = math.Min(min, sizes[i])
		}
	}
	for i := range sizes {
		if sizes[i] == 0 {
			log.Warningf("Sample %q has no counts", m.Samples[i])
			sizes[i] = min
		}
	}
	return sizes
}

// NSamples returns the number of samples in a group.
func (d *Design) NSamples(group int) (n int) {
	for _, g := range d.Groups {
		if g == group {
			n++
		}
	}
	return
}
