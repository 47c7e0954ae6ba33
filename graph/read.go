package graph

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Read reads an edge list from a TSV file with the fields "from" and
// "to". A node is given either by its name or by its 0-based id;
// names are the node names in id order.
func Read(r io.Reader, names []string) (*Graph, error) {
	tsv := csv.NewReader(r)
	tsv.Comma = '\t'
	tsv.Comment = '#'

	head, err := tsv.Read()
	if err != nil {
		return nil, fmt.Errorf("header: %v", err)
	}
	fields := make(map[string]int, len(head))
	for i, h := range head {
		fields[strings.ToLower(h)] = i
	}
	for _, f := range []string{"from", "to"} {
		if _, ok := fields[f]; !ok {
			return nil, fmt.Errorf("expecting field %q", f)
		}
	}

	idx := make(map[string]int, len(names))
	for i, n := range names {
		idx[n] = i
	}
	node := func(s string) (int, error) {
		s = strings.TrimSpace(s)
		if i, ok := idx[s]; ok {
			return i, nil
		}
		i, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("unknown node %q", s)
		}
		return i, nil
	}

	var edges [][2]int
	for {
		row, err := tsv.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		ln, _ := tsv.FieldPos(0)
		a, err := node(row[fields["from"]])
		if err != nil {
			return nil, fmt.Errorf("on row %d: %v", ln, err)
		}
		b, err := node(row[fields["to"]])
		if err != nil {
			return nil, fmt.Errorf("on row %d: %v", ln, err)
		}
		edges = append(edges, [2]int{a, b})
	}
	return New(len(names), edges)
}
