// Package dpp implements the Dirichlet process prior over sample size
// factors. Samples are partitioned into clusters; all the samples of
// a cluster share one size factor. The number of clusters is not
// bounded and changes during the run.
package dpp

import (
	"fmt"
	"math"

	"github.com/op/go-logging"
)

// log is the global logging variable.
var log = logging.MustGetLogger("dpp")

// cluster is a slot of the cluster arena.
type cluster struct {
	factor float64
	size   int
}

// Partition is a partition of samples into clusters. Clusters are
// stored in an arena and referred to by their slot id; a slot of a
// cluster which lost its last member is reused by the next new
// cluster. The structure contains no pointers, so a copy made with
// Clone is fully independent.
type Partition struct {
	clusters []cluster
	free     []int
	assign   []int
	live     int
}

// NewPartition creates a partition of len(sizes) samples. If shared
// is false every sample is in its own cluster with the factor from
// sizes; otherwise all the samples share one cluster with the
// geometric mean of sizes as factor.
func NewPartition(sizes []float64, shared bool) *Partition {
	n := len(sizes)
	p := &Partition{assign: make([]int, n)}
	if shared {
		s := 0.0
		for _, f := range sizes {
			s += math.Log(f)
		}
		k := p.newCluster(math.Exp(s / float64(n)))
		for i := range p.assign {
			p.add(i, k)
		}
		return p
	}
	for i, f := range sizes {
		p.add(i, p.newCluster(f))
	}
	return p
}

// Clone returns a deep copy of the partition.
func (p *Partition) Clone() *Partition {
	return &Partition{
		clusters: append([]cluster(nil), p.clusters...),
		free:     append([]int(nil), p.free...),
		assign:   append([]int(nil), p.assign...),
		live:     p.live,
	}
}

// Len returns the number of samples.
func (p *Partition) Len() int {
	return len(p.assign)
}

// NClusters returns the number of non-empty clusters.
func (p *Partition) NClusters() int {
	return p.live
}

// Cluster returns the cluster id of sample i.
func (p *Partition) Cluster(i int) int {
	return p.assign[i]
}

// Factor returns the size factor of sample i.
func (p *Partition) Factor(i int) float64 {
	return p.clusters[p.assign[i]].factor
}

// Factors copies the size factors of all the samples into dst
// (allocated if nil) and returns it.
func (p *Partition) Factors(dst []float64) []float64 {
	if dst == nil {
		dst = make([]float64, len(p.assign))
	}
	for i, k := range p.assign {
		dst[i] = p.clusters[k].factor
	}
	return dst
}

// Clusters returns the ids of the non-empty clusters in increasing
// order.
func (p *Partition) Clusters() []int {
	ids := make([]int, 0, p.live)
	for k, c := range p.clusters {
		if c.size > 0 {
			ids = append(ids, k)
		}
	}
	return ids
}

// ClusterFactor returns the factor of cluster k.
func (p *Partition) ClusterFactor(k int) float64 {
	return p.clusters[k].factor
}

// ClusterSize returns the number of samples in cluster k.
func (p *Partition) ClusterSize(k int) int {
	return p.clusters[k].size
}

// Members returns the samples of cluster k.
func (p *Partition) Members(k int) []int {
	m := make([]int, 0, p.clusters[k].size)
	for i, c := range p.assign {
		if c == k {
			m = append(m, i)
		}
	}
	return m
}

// SetFactor sets the factor of cluster k.
func (p *Partition) SetFactor(k int, f float64) {
	p.clusters[k].factor = f
}

// newCluster allocates an empty cluster and returns its id.
func (p *Partition) newCluster(f float64) int {
	if n := len(p.free); n > 0 {
		k := p.free[n-1]
		p.free = p.free[:n-1]
		p.clusters[k] = cluster{factor: f}
		return k
	}
	p.clusters = append(p.clusters, cluster{factor: f})
	return len(p.clusters) - 1
}

// add assigns sample i to cluster k.
func (p *Partition) add(i, k int) {
	if p.clusters[k].size == 0 {
		p.live++
	}
	p.clusters[k].size++
	p.assign[i] = k
}

// remove removes sample i from its cluster and frees the cluster
// slot if it becomes empty.
func (p *Partition) remove(i int) {
	k := p.assign[i]
	p.clusters[k].size--
	if p.clusters[k].size == 0 {
		p.live--
		p.free = append(p.free, k)
	}
	p.assign[i] = -1
}

// move moves sample i to cluster k.
func (p *Partition) move(i, k int) {
	if p.assign[i] == k {
		return
	}
	p.remove(i)
	p.add(i, k)
}

// Check verifies the consistency of the partition: every sample
// belongs to exactly one non-empty cluster, the cluster sizes match
// the assignment, and every factor is positive and finite.
func (p *Partition) Check() error {
	sizes := make([]int, len(p.clusters))
	for i, k := range p.assign {
		if k < 0 || k >= len(p.clusters) {
			return fmt.Errorf("sample %d is assigned to a non-existing cluster %d", i, k)
		}
		sizes[k]++
	}
	isFree := make([]bool, len(p.clusters))
	for _, k := range p.free {
		if isFree[k] {
			return fmt.Errorf("cluster %d is freed twice", k)
		}
		isFree[k] = true
	}
	live := 0
	for k, c := range p.clusters {
		if c.size != sizes[k] {
			return fmt.Errorf("cluster %d has size %d, but %d samples", k, c.size, sizes[k])
		}
		if c.size == 0 && !isFree[k] {
			return fmt.Errorf("empty cluster %d is not freed", k)
		}
		if c.size > 0 {
			if isFree[k] {
				return fmt.Errorf("non-empty cluster %d is freed", k)
			}
			if !(c.factor > 0) || math.IsInf(c.factor, 0) {
				return fmt.Errorf("cluster %d has invalid factor %v", k, c.factor)
			}
			live++
		}
	}
	if live != p.live {
		return fmt.Errorf("%d non-empty clusters, expected %d", live, p.live)
	}
	return nil
}
