package counts

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// newTSVReader creates a TSV reader which skips '#' comments.
func newTSVReader(r io.Reader) *csv.Reader {
	tsv := csv.NewReader(r)
	tsv.Comma = '\t'
	tsv.Comment = '#'
	return tsv
}

// ReadMatrix reads a count matrix from a TSV file.
//
// The first row is the header: the first field is ignored (usually
// "sample"), the remaining fields are the taxon names. Every other
// row starts with a sample name followed by the counts:
//
//	# counts
//	sample	Bacteroides	Prevotella
//	s1	10	0
//	s2	3	7
func ReadMatrix(r io.Reader) (*Matrix, error) {
	tsv := newTSVReader(r)
	head, err := tsv.Read()
	if err != nil {
		return nil, fmt.Errorf("header: %v", err)
	}
	if len(head) < 2 {
		return nil, &ConfigError{Field: "counts", Reason: "header has no taxa"}
	}
	taxa := head[1:]

	var samples []string
	var data [][]float64
	for {
		row, err := tsv.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		ln, _ := tsv.FieldPos(0)
		samples = append(samples, row[0])
		vals := make([]float64, len(row)-1)
		for j, f := range row[1:] {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				return nil, &ConfigError{Field: "counts",
					Reason: fmt.Sprintf("on row %d, taxon %q: %v", ln, taxa[j], err)}
			}
			vals[j] = v
		}
		data = append(data, vals)
	}
	m, err := NewMatrixFloat(samples, taxa, data)
	if err != nil {
		return nil, err
	}
	log.Infof("Read count matrix of %d samples and %d taxa (%d zero cells)", m.NSamples(), m.NTaxa(), m.Zeros())
	return m, nil
}

// readSampleValues reads a two column TSV file with a header; the
// first column is the sample name. The values are returned in the
// order of samples.
func readSampleValues(r io.Reader, field string, samples []string) ([]string, error) {
	tsv := newTSVReader(r)
	head, err := tsv.Read()
	if err != nil {
		return nil, fmt.Errorf("header: %v", err)
	}
	col := -1
	for i, h := range head {
		if strings.ToLower(h) == field {
			col = i
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("expecting field %q", field)
	}

	idx := make(map[string]int, len(samples))
	for i, s := range samples {
		idx[s] = i
	}
	vals := make([]string, len(samples))
	seen := make([]bool, len(samples))
	for {
		row, err := tsv.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		ln, _ := tsv.FieldPos(0)
		i, ok := idx[row[0]]
		if !ok {
			return nil, &ConfigError{Field: field,
				Reason: fmt.Sprintf("on row %d: unknown sample %q", ln, row[0])}
		}
		vals[i] = row[col]
		seen[i] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, &ConfigError{Field: field,
				Reason: fmt.Sprintf("no value for sample %q", samples[i])}
		}
	}
	return vals, nil
}

// ReadGroups reads the group labels (0 or 1) from a TSV file with
// the fields "sample" and "group".
func ReadGroups(r io.Reader, samples []string) ([]int, error) {
	vals, err := readSampleValues(r, "group", samples)
	if err != nil {
		return nil, err
	}
	groups := make([]int, len(vals))
	for i, v := range vals {
		g, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, &ConfigError{Field: "groups",
				Reason: fmt.Sprintf("sample %q: %v", samples[i], err)}
		}
		groups[i] = g
	}
	return groups, nil
}

// ReadSizes reads size factors from a TSV file with the fields
// "sample" and "size".
func ReadSizes(r io.Reader, samples []string) ([]float64, error) {
	vals, err := readSampleValues(r, "size", samples)
	if err != nil {
		return nil, err
	}
	sizes := make([]float64, len(vals))
	for i, v := range vals {
		s, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, &ConfigError{Field: "sizes",
				Reason: fmt.Sprintf("sample %q: %v", samples[i], err)}
		}
		sizes[i] = s
	}
	return sizes, nil
}

// ReadStructure reads a structure matrix from a TSV file. The header
// is "node" followed by the taxon names, which must be the same (and
// in the same order) as taxa. Every row is a node name followed by
// 0/1 entries.
func ReadStructure(r io.Reader, taxa []string) (*Structure, error) {
	tsv := newTSVReader(r)
	head, err := tsv.Read()
	if err != nil {
		return nil, fmt.Errorf("header: %v", err)
	}
	if len(head)-1 != len(taxa) {
		return nil, &ConfigError{Field: "structure",
			Reason: fmt.Sprintf("%d taxa in header, expecting %d", len(head)-1, len(taxa))}
	}
	for j, t := range head[1:] {
		if t != taxa[j] {
			return nil, &ConfigError{Field: "structure",
				Reason: fmt.Sprintf("column %d is %q, expecting %q", j+1, t, taxa[j])}
		}
	}

	var nodes []string
	var rows [][]int
	for {
		row, err := tsv.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		ln, _ := tsv.FieldPos(0)
		nodes = append(nodes, row[0])
		vals := make([]int, len(row)-1)
		for j, f := range row[1:] {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil || v != math.Trunc(v) {
				return nil, &ConfigError{Field: "structure",
					Reason: fmt.Sprintf("on row %d, column %d: invalid entry %q", ln, j+1, f)}
			}
			vals[j] = int(v)
		}
		rows = append(rows, vals)
	}
	return NewStructure(nodes, taxa, rows)
}
