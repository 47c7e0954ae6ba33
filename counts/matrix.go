// Package counts holds the observed data of a differential abundance
// fit: the sample by taxon count matrix, the binary group label of
// every sample, the initial size factors and the optional structure
// matrix describing the taxonomic tree.
//
// All the types of this package are read-only once constructed. The
// sampler never modifies them, so a single value can be shared by
// several chains running in parallel.
package counts

import (
	"fmt"
	"math"

	"github.com/op/go-logging"
)

// log is the global logging variable.
var log = logging.MustGetLogger("counts")

// Matrix is an n×p matrix of non-negative counts, n samples (rows)
// by p taxa (columns).
type Matrix struct {
	// Samples are the sample (row) names.
	Samples []string
	// Taxa are the taxon (column) names.
	Taxa []string

	n, p int
	data []int
}

// NewMatrix creates a new count matrix. Every row of data must have
// len(taxa) non-negative entries; there must be len(samples) rows.
// Names can be nil, then default names are used.
func NewMatrix(samples, taxa []string, data [][]int) (*Matrix, error) {
	n := len(data)
	if n == 0 {
		return nil, &ConfigError{Field: "counts", Reason: "no samples"}
	}
	p := len(data[0])
	if p == 0 {
		return nil, &ConfigError{Field: "counts", Reason: "no taxa"}
	}
	if samples == nil {
		samples = defaultNames("s", n)
	}
	if taxa == nil {
		taxa = defaultNames("t", p)
	}
	if len(samples) != n {
		return nil, &ConfigError{Field: "counts",
			Reason: fmt.Sprintf("%d sample names for %d rows", len(samples), n)}
	}
	if len(taxa) != p {
		return nil, &ConfigError{Field: "counts",
			Reason: fmt.Sprintf("%d taxon names for %d columns", len(taxa), p)}
	}

	m := &Matrix{
		Samples: append([]string(nil), samples...),
		Taxa:    append([]string(nil), taxa...),
		n:       n,
		p:       p,
		data:    make([]int, n*p),
	}
	for i, row := range data {
		if len(row) != p {
			return nil, &ConfigError{Field: "counts",
				Reason: fmt.Sprintf("row %d has %d columns, expected %d", i, len(row), p)}
		}
		for j, y := range row {
			if y < 0 {
				return nil, &ConfigError{Field: "counts",
					Reason: fmt.Sprintf("negative count %d for sample %q, taxon %q", y, samples[i], taxa[j])}
			}
			m.data[i*p+j] = y
		}
	}
	return m, nil
}

// NewMatrixFloat creates a count matrix from floating point values,
// which must all be non-negative integers.
func NewMatrixFloat(samples, taxa []string, data [][]float64) (*Matrix, error) {
	idata := make([][]int, len(data))
	for i, row := range data {
		idata[i] = make([]int, len(row))
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
				return nil, &ConfigError{Field: "counts",
					Reason: fmt.Sprintf("non-integer count %v at row %d, column %d", v, i, j)}
			}
			if v > math.MaxInt32 {
				return nil, &ConfigError{Field: "counts",
					Reason: fmt.Sprintf("count %v at row %d, column %d is too large", v, i, j)}
			}
			idata[i][j] = int(v)
		}
	}
	return NewMatrix(samples, taxa, idata)
}

// defaultNames creates names prefix1, prefix2, ...
func defaultNames(prefix string, n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("%s%d", prefix, i+1)
	}
	return names
}

// NSamples returns the number of samples (rows).
func (m *Matrix) NSamples() int {
	return m.n
}

// NTaxa returns the number of taxa (columns).
func (m *Matrix) NTaxa() int {
	return m.p
}

// At returns the count of taxon j in sample i.
func (m *Matrix) At(i, j int) int {
	return m.data[i*m.p+j]
}

// Row returns the counts of sample i. The returned slice must not
// be modified.
func (m *Matrix) Row(i int) []int {
	return m.data[i*m.p : (i+1)*m.p]
}

// Column copies counts of taxon j into dst (allocated if nil) and
// returns it.
func (m *Matrix) Column(j int, dst []int) []int {
	if dst == nil {
		dst = make([]int, m.n)
	}
	for i := 0; i < m.n; i++ {
		dst[i] = m.data[i*m.p+j]
	}
	return dst
}

// RowTotal returns the library size of sample i.
func (m *Matrix) RowTotal(i int) (s int) {
	for _, y := range m.Row(i) {
		s += y
	}
	return
}

// ColumnTotal returns the total count of taxon j.
func (m *Matrix) ColumnTotal(j int) (s int) {
	for i := 0; i < m.n; i++ {
		s += m.data[i*m.p+j]
	}
	return
}

// Zeros returns the number of zero cells in the matrix.
func (m *Matrix) Zeros() (z int) {
	for _, y := range m.data {
		if y == 0 {
			z++
		}
	}
	return
}
