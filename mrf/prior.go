package mrf

import (
	"bitbucket.org/Davydov/zinbmrf/graph"
)

// Prior is the Markov random field prior on the inclusion
// indicators:
//
//	log p(γ) = A·Σ_j γ_j + B·Σ_{(j,k) ∈ E} γ_j·γ_k + const.
//
// A controls sparsity, B the smoothness over the graph edges.
type Prior struct {
	A     float64
	B     float64
	Graph *graph.Graph
}

// IncludedNeighbors returns the number of included neighbors of
// taxon j.
func (p *Prior) IncludedNeighbors(state []Taxon, j int) (n int) {
	for _, k := range p.Graph.Neighbors(j) {
		n += state[k].Gamma()
	}
	return
}

// LogOdds returns the log prior odds of including taxon j given the
// state of the other taxa. For an isolated taxon it is A.
func (p *Prior) LogOdds(state []Taxon, j int) float64 {
	return p.A + p.B*float64(p.IncludedNeighbors(state, j))
}

// LogPrior returns the unnormalized log prior of the state.
func (p *Prior) LogPrior(state []Taxon) (l float64) {
	for j, t := range state {
		if !t.IsIncluded() {
			continue
		}
		l += p.A
		for _, k := range p.Graph.Neighbors(j) {
			if k > j && state[k].IsIncluded() {
				l += p.B
			}
		}
	}
	return
}

// Opposite appends to dst the neighbors of taxon j which have the
// opposite status and returns it.
func (p *Prior) Opposite(state []Taxon, j int, dst []int) []int {
	dst = dst[:0]
	for _, k := range p.Graph.Neighbors(j) {
		if state[k].status != state[j].status {
			dst = append(dst, k)
		}
	}
	return dst
}
