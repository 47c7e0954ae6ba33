// Package fdr selects differentially abundant taxa from posterior
// probabilities of inclusion with a Bayesian false discovery rate.
package fdr

import (
	"fmt"
	"math"
	"sort"
)

// Threshold returns the smallest posterior probability of inclusion
// such that calling every feature with ppi >= threshold keeps the
// expected false discovery rate at or below level. The expected rate
// of the k most probable features is the mean of 1-ppi over them;
// features with equal ppi are either all called or none. If no feature can be called, +Inf is returned.
func Threshold(ppi []float64, level float64) (float64, error) {
	if !(level >= 0 && level <= 1) {
		return 0, fmt.Errorf("fdr level must be in [0, 1], got %v", level)
	}
	sorted := make([]float64, len(ppi))
	for i, v := range ppi {
		if !(v >= 0 && v <= 1) {
			return 0, fmt.Errorf("ppi %d is not a probability: %v", i, v)
		}
		sorted[i] = v
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))

	k := 0
	sum := 0.0
	for i, v := range sorted {
		sum += 1 - v
		// the cutoff cannot split tied values
		if i+1 < len(sorted) && sorted[i+1] == v {
			continue
		}
		// small tolerance for the rounding of the running sum
		if sum/float64(i+1) <= level+1e-12 {
			k = i + 1
		}
	}
	if k == 0 {
		return math.Inf(1), nil
	}
	return sorted[k-1], nil
}

// Discoveries returns the indices of the features with ppi at or
// above the threshold for the level.
func Discoveries(ppi []float64, level float64) ([]int, float64, error) {
	t, err := Threshold(ppi, level)
	if err != nil {
		return nil, t, err
	}
	var d []int
	for i, v := range ppi {
		if v >= t {
			d = append(d, i)
		}
	}
	return d, t, nil
}

// Rate returns the expected false discovery rate when the features
// with ppi >= threshold are called. It is zero if nothing is called.
func Rate(ppi []float64, threshold float64) float64 {
	n := 0
	sum := 0.0
	for _, v := range ppi {
		if v >= threshold {
			n++
			sum += 1 - v
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
