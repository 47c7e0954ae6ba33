package graph

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNew(tst *testing.T) {
	g, err := New(4, [][2]int{{0, 1}, {1, 0}, {2, 1}, {0, 1}})
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if g.NEdges() != 2 {
		tst.Error("Expected 2 edges, got ", g.NEdges())
	}
	if diff := cmp.Diff([]int{0, 2}, g.Neighbors(1)); diff != "" {
		tst.Error("Incorrect neighbors (-want +got):\n", diff)
	}
	if g.Degree(3) != 0 || g.Isolated() != 1 {
		tst.Error("Node 3 should be isolated")
	}
	if diff := cmp.Diff([][2]int{{0, 1}, {1, 2}}, g.Edges()); diff != "" {
		tst.Error("Incorrect edges (-want +got):\n", diff)
	}
}

func TestNewInvalid(tst *testing.T) {
	for _, edges := range [][][2]int{
		{{0, 0}},
		{{0, 3}},
		{{-1, 1}},
	} {
		if _, err := New(3, edges); err == nil {
			tst.Error("Expected an error for ", edges)
		}
	}
}

func TestFromAdjacency(tst *testing.T) {
	g, err := FromAdjacency([][]bool{
		{false, true, false},
		{true, false, true},
		{false, true, false},
	})
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if g.NEdges() != 2 || g.Degree(1) != 2 {
		tst.Error("Incorrect graph: ", g.Edges())
	}
	_, err = FromAdjacency([][]bool{
		{false, true},
		{false, false},
	})
	if err == nil {
		tst.Error("Expected an error for a non-symmetric matrix")
	}
}

func TestProject(tst *testing.T) {
	// leaves 0-3, genus nodes 4 (0, 1) and 5 (2), 4 and 5 are
	// adjacent, leaf 3 is connected directly to 2
	g, err := New(6, [][2]int{{0, 4}, {1, 4}, {2, 5}, {4, 5}, {2, 3}})
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	pg, err := g.Project(4)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if diff := cmp.Diff([][2]int{{0, 1}, {2, 3}}, pg.Edges()); diff != "" {
		tst.Error("Incorrect projection (-want +got):\n", diff)
	}
	if same, _ := pg.Project(4); same != pg {
		tst.Error("Projection on all the nodes should return the graph")
	}
	if _, err := pg.Project(5); err == nil {
		tst.Error("Expected an error")
	}
}

func TestRead(tst *testing.T) {
	r := strings.NewReader("# edges\nfrom\tto\na\tb\n2\ta\n")
	g, err := Read(r, []string{"a", "b", "c"})
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if diff := cmp.Diff([][2]int{{0, 1}, {0, 2}}, g.Edges()); diff != "" {
		tst.Error("Incorrect edges (-want +got):\n", diff)
	}
	if _, err := Read(strings.NewReader("from\tto\na\tz\n"), []string{"a"}); err == nil {
		tst.Error("Expected an error for an unknown node")
	}
}
