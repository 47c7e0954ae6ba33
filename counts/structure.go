package counts

import (
	"fmt"
	"math"

	"github.com/gonum/matrix/mat64"
)

// Structure is the structure matrix of a taxonomic tree. It has one
// row per tree node (of any rank) and one column per leaf taxon; the
// entry (k, j) is 1 if the taxon j belongs to the node k. Leaf taxa
// have their own rows, which come first in column order.
type Structure struct {
	// Nodes are the node (row) names.
	Nodes []string
	// Taxa are the leaf taxon (column) names.
	Taxa []string

	m *mat64.Dense
}

// NewStructure creates a new structure matrix.
func NewStructure(nodes, taxa []string, rows [][]int) (*Structure, error) {
	if len(rows) == 0 || len(rows) != len(nodes) {
		return nil, &ConfigError{Field: "structure",
			Reason: fmt.Sprintf("%d rows for %d nodes", len(rows), len(nodes))}
	}
	p := len(taxa)
	data := make([]float64, 0, len(rows)*p)
	for k, row := range rows {
		if len(row) != p {
			return nil, &ConfigError{Field: "structure",
				Reason: fmt.Sprintf("node %q has %d columns, expected %d", nodes[k], len(row), p)}
		}
		empty := true
		for _, v := range row {
			if v != 0 && v != 1 {
				return nil, &ConfigError{Field: "structure",
					Reason: fmt.Sprintf("node %q has a non-binary entry %d", nodes[k], v)}
			}
			if v == 1 {
				empty = false
			}
			data = append(data, float64(v))
		}
		if empty {
			return nil, &ConfigError{Field: "structure",
				Reason: fmt.Sprintf("node %q contains no taxa", nodes[k])}
		}
	}
	if err := leavesFirst(nodes, taxa, rows); err != nil {
		return nil, err
	}
	return &Structure{
		Nodes: append([]string(nil), nodes...),
		Taxa:  append([]string(nil), taxa...),
		m:     mat64.NewDense(len(rows), p, data),
	}, nil
}

// NNodes returns the number of nodes (rows).
func (s *Structure) NNodes() int {
	r, _ := s.m.Dims()
	return r
}

// Contains returns true if node k contains taxon j.
func (s *Structure) Contains(k, j int) bool {
	return s.m.At(k, j) != 0
}

// Aggregate returns a new count matrix with one column per node of
// the structure: the count of a node is the sum of the counts of its
// taxa, i.e. Y·Sᵀ.
func (m *Matrix) Aggregate(s *Structure) (*Matrix, error) {
	if _, p := s.m.Dims(); p != m.NTaxa() {
		return nil, &ConfigError{Field: "structure",
			Reason: fmt.Sprintf("%d taxa in the structure matrix, %d in the count matrix", p, m.NTaxa())}
	}
	for j, name := range s.Taxa {
		if name != m.Taxa[j] {
			return nil, &ConfigError{Field: "structure",
				Reason: fmt.Sprintf("taxon %d is %q in the structure matrix and %q in the count matrix", j, name, m.Taxa[j])}
		}
	}

	y := make([]float64, len(m.data))
	for i, v := range m.data {
		y[i] = float64(v)
	}
	ym := mat64.NewDense(m.n, m.p, y)

	var agg mat64.Dense
	agg.Mul(ym, s.m.T())

	n, pExt := agg.Dims()
	data := make([][]int, n)
	for i := range data {
		data[i] = make([]int, pExt)
		for k, v := range agg.RawRowView(i) {
			data[i][k] = int(math.Round(v))
		}
	}
	log.Infof("Aggregated %d taxa into %d tree nodes", m.p, pExt)
	return NewMatrix(m.Samples, s.Nodes, data)
}

// leavesFirst checks that the first rows are the leaf taxa in column
// order: row j is named taxa[j] and contains only the taxon j. Graph
// node ids rely on this order.
func leavesFirst(nodes, taxa []string, rows [][]int) error {
	if len(rows) < len(taxa) {
		return &ConfigError{Field: "structure",
			Reason: fmt.Sprintf("%d rows for %d taxa, every taxon needs its own row", len(rows), len(taxa))}
	}
	for j, t := range taxa {
		if nodes[j] != t {
			return &ConfigError{Field: "structure",
				Reason: fmt.Sprintf("row %d is %q, expecting leaf taxon %q (leaf rows must come first)", j+1, nodes[j], t)}
		}
		for l, v := range rows[j] {
			if (l == j) != (v == 1) {
				return &ConfigError{Field: "structure",
					Reason: fmt.Sprintf("leaf row %q must contain only its own taxon", t)}
			}
		}
	}
	return nil
}
