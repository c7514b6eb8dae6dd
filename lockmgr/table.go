package lockmgr

import (
	"sort"

	"github.com/google/uuid"
)

// lockRecord 锁表内部的锁记录，调用方只拿到它的值拷贝 Lock
type lockRecord struct {
	node     string
	resource string
	state    LockState
	token    string
	// waitEdge 该锁是否向当前持有者贡献了一条等待边
	waitEdge bool
}

func (r *lockRecord) handle() Lock {
	return Lock{Node: r.node, Resource: r.resource, State: r.state, Token: r.token}
}

// nodeRecord 节点记录：持有数与按申请顺序排列的全部锁
type nodeRecord struct {
	held  int
	locks []*lockRecord
}

// lockTable 锁表本体，不做并发控制，调用方须持有 Manager 的互斥锁
type lockTable struct {
	queues  map[string][]*lockRecord
	nodes   map[string]*nodeRecord
	graph   *waitGraph
	nodeSet map[string]struct{}

	heldLocks    int
	waitingLocks int
}

func newLockTable() *lockTable {
	return &lockTable{
		queues:  make(map[string][]*lockRecord),
		nodes:   make(map[string]*nodeRecord),
		graph:   newWaitGraph(),
		nodeSet: make(map[string]struct{}),
	}
}

// find 查找节点在资源上的锁
func (t *lockTable) find(node, resource string) *lockRecord {
	rec, ok := t.nodes[node]
	if !ok {
		return nil
	}
	for _, l := range rec.locks {
		if l.resource == resource {
			return l
		}
	}
	return nil
}

// acquire 申请锁：队列为空直接持有，否则排队
//
// 只有申请者已持有其他资源时才添加指向队首持有者的等待边。
func (t *lockTable) acquire(node, resource string) (*lockRecord, error) {
	if t.find(node, resource) != nil {
		return nil, ErrDuplicateLock
	}

	rec, ok := t.nodes[node]
	if !ok {
		rec = &nodeRecord{}
		t.nodes[node] = rec
	}
	t.nodeSet[node] = struct{}{}

	l := &lockRecord{
		node:     node,
		resource: resource,
		token:    uuid.NewString(),
	}
	queue := t.queues[resource]
	if len(queue) == 0 {
		l.state = StateHeld
		rec.held++
		t.heldLocks++
	} else {
		l.state = StateWaiting
		t.waitingLocks++
		if rec.held > 0 {
			t.graph.addEdge(node, queue[0].node)
			l.waitEdge = true
		}
	}
	t.queues[resource] = append(queue, l)
	rec.locks = append(rec.locks, l)
	return l, nil
}

// releaseLock 从资源队列与节点序列中移除锁，并处理持有权转移
//
// 返回被提升为持有者的锁，没有提升时返回 nil。不清理空节点。
func (t *lockTable) releaseLock(l *lockRecord) *lockRecord {
	queue := t.queues[l.resource]
	pos := indexOf(queue, l)
	if pos < 0 {
		return nil
	}
	queue = append(queue[:pos], queue[pos+1:]...)
	if len(queue) == 0 {
		delete(t.queues, l.resource)
	} else {
		t.queues[l.resource] = queue
	}

	rec := t.nodes[l.node]
	if rec != nil {
		if i := indexOf(rec.locks, l); i >= 0 {
			rec.locks = append(rec.locks[:i], rec.locks[i+1:]...)
		}
	}

	if l.state == StateWaiting {
		t.waitingLocks--
		if l.waitEdge && len(queue) > 0 {
			t.graph.removeOneEdge(l.node, queue[0].node)
		}
		return nil
	}

	t.heldLocks--
	if rec != nil && rec.held > 0 {
		rec.held--
	}
	if len(queue) == 0 {
		return nil
	}

	next := queue[0]
	next.state = StateHeld
	next.waitEdge = false
	t.waitingLocks--
	t.heldLocks++
	if nr := t.nodes[next.node]; nr != nil {
		nr.held++
	}
	for _, w := range queue {
		t.graph.removeEdges(w.node, l.node)
		if w != next {
			t.graph.addEdge(w.node, next.node)
			w.waitEdge = true
		}
	}
	return next
}

// pruneNode 节点没有任何锁时删除其记录、邻接表与节点集合成员
func (t *lockTable) pruneNode(node string) bool {
	rec, ok := t.nodes[node]
	if !ok || len(rec.locks) > 0 {
		return false
	}
	t.eraseNode(node)
	return true
}

// releaseNode 强制释放节点的全部锁并删除节点，返回被释放的锁
func (t *lockTable) releaseNode(node string) []Lock {
	rec, ok := t.nodes[node]
	var released []Lock
	if ok {
		locks := append([]*lockRecord(nil), rec.locks...)
		for _, l := range locks {
			released = append(released, l.handle())
			t.releaseLock(l)
		}
	}
	t.eraseNode(node)
	return released
}

func (t *lockTable) eraseNode(node string) {
	delete(t.nodes, node)
	t.graph.removeNode(node)
	delete(t.nodeSet, node)
}

func (t *lockTable) heldCount(node string) int {
	if rec, ok := t.nodes[node]; ok {
		return rec.held
	}
	return 0
}

// sortedNodeSet 返回排序后的节点集合
func (t *lockTable) sortedNodeSet() []string {
	nodes := make([]string, 0, len(t.nodeSet))
	for n := range t.nodeSet {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	return nodes
}

func (t *lockTable) cycles() []Cycle {
	return findCycles(t.graph, t.sortedNodeSet())
}

func (t *lockTable) snapshot() Snapshot {
	s := Snapshot{
		Nodes:     make([]NodeEntry, 0, len(t.nodes)),
		Resources: make([]ResourceEntry, 0, len(t.queues)),
		Graph:     t.graph.edgeLists(),
		NodeSet:   t.sortedNodeSet(),
	}
	for node, rec := range t.nodes {
		s.Nodes = append(s.Nodes, NodeEntry{Node: node, Held: rec.held, Locks: handles(rec.locks)})
	}
	sort.Slice(s.Nodes, func(i, j int) bool { return s.Nodes[i].Node < s.Nodes[j].Node })
	for res, queue := range t.queues {
		s.Resources = append(s.Resources, ResourceEntry{Resource: res, Locks: handles(queue)})
	}
	sort.Slice(s.Resources, func(i, j int) bool { return s.Resources[i].Resource < s.Resources[j].Resource })
	return s
}

func (t *lockTable) stats() Stats {
	return Stats{
		HeldLocks:    t.heldLocks,
		WaitingLocks: t.waitingLocks,
		Nodes:        len(t.nodeSet),
		Resources:    len(t.queues),
		Edges:        t.graph.edgeCount(),
	}
}

func handles(locks []*lockRecord) []Lock {
	out := make([]Lock, len(locks))
	for i, l := range locks {
		out[i] = l.handle()
	}
	return out
}

func indexOf(locks []*lockRecord, l *lockRecord) int {
	for i, x := range locks {
		if x == l {
			return i
		}
	}
	return -1
}
