// Package graph implements the taxon graph: an undirected graph
// without self-loops over taxa (and possibly higher rank nodes of the
// taxonomic tree). The graph is built once and never modified.
package graph

import (
	"fmt"
	"sort"
)

// Graph is an undirected graph stored as adjacency lists. Node ids
// are 0 ... Len()-1.
type Graph struct {
	adj    [][]int
	nedges int
}

// Empty creates a graph with n isolated nodes.
func Empty(n int) *Graph {
	return &Graph{adj: make([][]int, n)}
}

// New creates a graph with n nodes from a list of edges. Duplicated
// edges (in either direction) are merged; self-loops and node ids out
// of range are errors.
func New(n int, edges [][2]int) (*Graph, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative number of nodes: %d", n)
	}
	seen := make([]map[int]bool, n)
	g := Empty(n)
	for _, e := range edges {
		a, b := e[0], e[1]
		if a < 0 || a >= n || b < 0 || b >= n {
			return nil, fmt.Errorf("edge %d-%d: node out of range [0, %d)", a, b, n)
		}
		if a == b {
			return nil, fmt.Errorf("self-loop at node %d", a)
		}
		if seen[a] == nil {
			seen[a] = make(map[int]bool)
		}
		if seen[a][b] {
			continue
		}
		if seen[b] == nil {
			seen[b] = make(map[int]bool)
		}
		seen[a][b] = true
		seen[b][a] = true
		g.adj[a] = append(g.adj[a], b)
		g.adj[b] = append(g.adj[b], a)
		g.nedges++
	}
	for _, nb := range g.adj {
		sort.Ints(nb)
	}
	return g, nil
}

// FromAdjacency creates a graph from a square boolean adjacency
// matrix, which must be symmetric with an empty diagonal.
func FromAdjacency(a [][]bool) (*Graph, error) {
	n := len(a)
	var edges [][2]int
	for i, row := range a {
		if len(row) != n {
			return nil, fmt.Errorf("adjacency row %d has %d columns, expected %d", i, len(row), n)
		}
		if row[i] {
			return nil, fmt.Errorf("self-loop at node %d", i)
		}
		for j := i + 1; j < n; j++ {
			if row[j] != a[j][i] {
				return nil, fmt.Errorf("adjacency matrix is not symmetric at (%d, %d)", i, j)
			}
			if row[j] {
				edges = append(edges, [2]int{i, j})
			}
		}
	}
	return New(n, edges)
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.adj)
}

// Neighbors returns the sorted neighbors of node j. The returned
// slice must not be modified.
func (g *Graph) Neighbors(j int) []int {
	return g.adj[j]
}

// Degree returns the number of neighbors of node j.
func (g *Graph) Degree(j int) int {
	return len(g.adj[j])
}

// NEdges returns the number of edges.
func (g *Graph) NEdges() int {
	return g.nedges
}

// Isolated returns the number of nodes without neighbors.
func (g *Graph) Isolated() (n int) {
	for _, nb := range g.adj {
		if len(nb) == 0 {
			n++
		}
	}
	return
}

// Edges returns all the edges (a, b) with a < b.
func (g *Graph) Edges() [][2]int {
	edges := make([][2]int, 0, g.nedges)
	for a, nb := range g.adj {
		for _, b := range nb {
			if a < b {
				edges = append(edges, [2]int{a, b})
			}
		}
	}
	return edges
}

// Project returns a graph over the first p nodes (the leaves). Two
// leaves are adjacent if they are adjacent in g or if they share a
// neighbor which is not a leaf (id >= p). If g has p nodes, g itself
// is returned.
func (g *Graph) Project(p int) (*Graph, error) {
	if p > g.Len() {
		return nil, fmt.Errorf("cannot project a graph of %d nodes on %d leaves", g.Len(), p)
	}
	if p == g.Len() {
		return g, nil
	}
	var edges [][2]int
	for a := 0; a < p; a++ {
		for _, b := range g.adj[a] {
			if b < p {
				if a < b {
					edges = append(edges, [2]int{a, b})
				}
				continue
			}
			for _, c := range g.adj[b] {
				if c < p && a < c {
					edges = append(edges, [2]int{a, c})
				}
			}
		}
	}
	return New(p, edges)
}
