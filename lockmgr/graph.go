package lockmgr

import "sort"

// waitGraph 等待图，边 A->B 表示 A 在等待 B 持有的资源
//
// 邻接表允许重复边：同一对节点可能因多个资源各贡献一条边。
type waitGraph struct {
	adj map[string][]string
}

func newWaitGraph() *waitGraph {
	return &waitGraph{adj: make(map[string][]string)}
}

// addEdge 添加一条边，忽略自环
func (g *waitGraph) addEdge(from, to string) {
	if from == to {
		return
	}
	g.adj[from] = append(g.adj[from], to)
}

// removeEdges 删除 from->to 的所有边，返回删除数量
func (g *waitGraph) removeEdges(from, to string) int {
	edges, ok := g.adj[from]
	if !ok {
		return 0
	}
	kept := edges[:0]
	for _, e := range edges {
		if e != to {
			kept = append(kept, e)
		}
	}
	removed := len(edges) - len(kept)
	g.adj[from] = kept
	return removed
}

// removeOneEdge 删除一条 from->to 边
func (g *waitGraph) removeOneEdge(from, to string) bool {
	edges := g.adj[from]
	for i, e := range edges {
		if e == to {
			g.adj[from] = append(edges[:i], edges[i+1:]...)
			return true
		}
	}
	return false
}

// removeNode 删除节点的邻接表项
func (g *waitGraph) removeNode(node string) {
	delete(g.adj, node)
}

func (g *waitGraph) successors(node string) []string {
	return g.adj[node]
}

// reverse 返回反向图
func (g *waitGraph) reverse() map[string][]string {
	rev := make(map[string][]string, len(g.adj))
	for from, edges := range g.adj {
		for _, to := range edges {
			rev[to] = append(rev[to], from)
		}
	}
	return rev
}

func (g *waitGraph) edgeCount() int {
	n := 0
	for _, edges := range g.adj {
		n += len(edges)
	}
	return n
}

// edgeLists 按节点排序导出非空邻接表
func (g *waitGraph) edgeLists() []EdgeList {
	lists := make([]EdgeList, 0, len(g.adj))
	for node, edges := range g.adj {
		if len(edges) == 0 {
			continue
		}
		lists = append(lists, EdgeList{Node: node, WaitsOn: append([]string(nil), edges...)})
	}
	sort.Slice(lists, func(i, j int) bool { return lists[i].Node < lists[j].Node })
	return lists
}
