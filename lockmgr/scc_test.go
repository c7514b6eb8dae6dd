package lockmgr

import (
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func graphOf(edges ...[2]string) (*waitGraph, []string) {
	g := newWaitGraph()
	seen := map[string]bool{}
	for _, e := range edges {
		g.addEdge(e[0], e[1])
		seen[e[0]], seen[e[1]] = true, true
	}
	nodes := make([]string, 0, len(seen))
	for n := range seen {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	return g, nodes
}

func groupsOf(cycles []Cycle) [][]string {
	groups := make([][]string, len(cycles))
	for i, c := range cycles {
		nodes := append([]string(nil), c.Nodes...)
		sort.Strings(nodes)
		groups[i] = nodes
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i][0] < groups[j][0] })
	return groups
}

func TestFindCycles(t *testing.T) {
	tests := []struct {
		name  string
		edges [][2]string
		want  [][]string
	}{
		{
			name: "空图",
			want: [][]string{},
		},
		{
			name:  "链无环",
			edges: [][2]string{{"a", "b"}, {"b", "c"}},
			want:  [][]string{},
		},
		{
			name:  "三节点环",
			edges: [][2]string{{"A", "B"}, {"B", "C"}, {"C", "A"}},
			want:  [][]string{{"A", "B", "C"}},
		},
		{
			name:  "两个不相交的环与一条入边",
			edges: [][2]string{{"a", "b"}, {"b", "a"}, {"c", "d"}, {"d", "e"}, {"e", "c"}, {"f", "a"}},
			want:  [][]string{{"a", "b"}, {"c", "d", "e"}},
		},
		{
			name:  "重复边",
			edges: [][2]string{{"a", "b"}, {"a", "b"}, {"b", "a"}},
			want:  [][]string{{"a", "b"}},
		},
		{
			name:  "两个环通过单向边相连",
			edges: [][2]string{{"a", "b"}, {"b", "a"}, {"b", "c"}, {"c", "d"}, {"d", "c"}},
			want:  [][]string{{"a", "b"}, {"c", "d"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, nodes := graphOf(tt.edges...)
			assert.Equal(t, tt.want, groupsOf(findCycles(g, nodes)))
		})
	}
}

func TestFindCyclesIgnoresSelfLoop(t *testing.T) {
	g, nodes := graphOf([2]string{"a", "a"})
	assert.Empty(t, g.adj["a"], "自环不应写入邻接表")
	assert.Empty(t, findCycles(g, nodes))
}

func TestFindCyclesRoot(t *testing.T) {
	g, nodes := graphOf([2]string{"A", "B"}, [2]string{"B", "A"})
	cycles := findCycles(g, nodes)
	require.Len(t, cycles, 1)
	assert.Contains(t, cycles[0].Nodes, cycles[0].Root)
}

func TestFindCyclesDeepRing(t *testing.T) {
	const n = 100000
	g := newWaitGraph()
	nodes := make([]string, n)
	for i := 0; i < n; i++ {
		nodes[i] = fmt.Sprintf("n%06d", i)
	}
	for i := 0; i < n; i++ {
		g.addEdge(nodes[i], nodes[(i+1)%n])
	}

	cycles := findCycles(g, nodes)
	require.Len(t, cycles, 1, "长环不应导致栈溢出")
	assert.Len(t, cycles[0].Nodes, n)
}

func TestFindCyclesOutsideSeeds(t *testing.T) {
	t.Run("能到达 seed 的端点并入分量", func(t *testing.T) {
		g := newWaitGraph()
		g.addEdge("a", "ghost")
		g.addEdge("ghost", "a")

		cycles := findCycles(g, []string{"a"})
		require.Len(t, cycles, 1)
		assert.ElementsMatch(t, []string{"a", "ghost"}, cycles[0].Nodes)
	})

	t.Run("无法到达 seed 的节点不并入分量", func(t *testing.T) {
		g := newWaitGraph()
		g.addEdge("a", "g1")
		g.addEdge("g1", "g2")
		g.addEdge("g2", "g1")

		assert.Empty(t, findCycles(g, []string{"a"}))
	})
}

func TestWaitGraphEdges(t *testing.T) {
	g := newWaitGraph()
	g.addEdge("a", "b")
	g.addEdge("a", "c")
	g.addEdge("a", "b")

	assert.True(t, g.removeOneEdge("a", "b"))
	assert.Equal(t, []string{"c", "b"}, g.successors("a"))
	assert.False(t, g.removeOneEdge("a", "x"))

	g.addEdge("a", "b")
	assert.Equal(t, 2, g.removeEdges("a", "b"))
	assert.Equal(t, []string{"c"}, g.successors("a"))
	assert.Equal(t, 1, g.edgeCount())

	g.removeNode("a")
	assert.Zero(t, g.edgeCount())
	assert.Empty(t, g.edgeLists())
}
