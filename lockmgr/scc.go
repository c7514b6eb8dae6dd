package lockmgr

// findCycles 用 Kosaraju 算法计算等待图的强连通分量，返回大小大于 1 的分量
//
// 第一遍在反向图上按 seeds 顺序做 DFS，得到后序完成序列；
// 第二遍从完成序列末尾往前，在原图上收集尚未归属的节点，每次收集到的就是一个分量。
// seeds 应当是有序的节点集合，以保证结果确定。两遍都使用显式栈，时间复杂度 O(V+E)。
func findCycles(g *waitGraph, seeds []string) []Cycle {
	rev := g.reverse()
	order := postOrder(seeds, func(n string) []string { return rev[n] })

	// 不在完成序列中的节点无法到达任何 seed，不可能与 seed 同属一个分量；
	// 预先标记为已访问，避免第二遍把它们并入 seed 的分量
	member := make(map[string]bool, len(order))
	for _, n := range order {
		member[n] = true
	}
	visited := make(map[string]bool, len(order))
	for from, edges := range g.adj {
		if !member[from] {
			visited[from] = true
		}
		for _, to := range edges {
			if !member[to] {
				visited[to] = true
			}
		}
	}

	var cycles []Cycle
	for i := len(order) - 1; i >= 0; i-- {
		root := order[i]
		if visited[root] {
			continue
		}
		group := collect(root, g.successors, visited)
		if len(group) > 1 {
			cycles = append(cycles, Cycle{Root: root, Nodes: group})
		}
	}
	return cycles
}

type frame struct {
	node string
	next int
}

// postOrder 从每个 seed 出发做迭代 DFS，返回全体可达节点的后序序列
func postOrder(seeds []string, succ func(string) []string) []string {
	visited := make(map[string]bool)
	var order []string
	for _, s := range seeds {
		if visited[s] {
			continue
		}
		order = dfs(s, succ, visited, order)
	}
	return order
}

// collect 从 root 出发收集所有未访问的可达节点，按后序返回
func collect(root string, succ func(string) []string, visited map[string]bool) []string {
	return dfs(root, succ, visited, nil)
}

func dfs(start string, succ func(string) []string, visited map[string]bool, out []string) []string {
	visited[start] = true
	stack := []frame{{node: start}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		edges := succ(top.node)
		if top.next < len(edges) {
			next := edges[top.next]
			top.next++
			if !visited[next] {
				visited[next] = true
				stack = append(stack, frame{node: next})
			}
			continue
		}
		out = append(out, top.node)
		stack = stack[:len(stack)-1]
	}
	return out
}
