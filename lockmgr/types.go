package lockmgr

import (
	"fmt"
	"strings"

	"github.com/ceyewan/lockmgr/xerrors"
)

// LockState 锁状态
type LockState int

const (
	// StateHeld 已持有，只有资源队列的队首可能处于该状态
	StateHeld LockState = iota
	// StateWaiting 排队等待
	StateWaiting
)

func (s LockState) String() string {
	switch s {
	case StateHeld:
		return "held"
	case StateWaiting:
		return "waiting"
	default:
		return fmt.Sprintf("LockState(%d)", int(s))
	}
}

// MarshalText 以 "held"/"waiting" 形式序列化
func (s LockState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText 解析 "held"/"waiting"
func (s *LockState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "held":
		*s = StateHeld
	case "waiting":
		*s = StateWaiting
	default:
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "unknown lock state %q", string(text))
	}
	return nil
}

// Lock 调用方持有的锁句柄
//
// Lock 是值类型的快照：State 反映的是返回时刻的状态，锁被提升后需要通过 Find 重新获取。
// Token 在每次加锁时重新生成，Release 用它识别句柄是否仍对应表中的那把锁。
type Lock struct {
	Node     string    `json:"node" msgpack:"node"`
	Resource string    `json:"resource" msgpack:"resource"`
	State    LockState `json:"state" msgpack:"state"`
	Token    string    `json:"token" msgpack:"token"`
}

func (l Lock) String() string {
	return fmt.Sprintf("(node=%s, resource=%s, state=%s)", l.Node, l.Resource, l.State)
}

// Cycle 等待图中一个大小大于 1 的强连通分量
type Cycle struct {
	// Root 分量的代表节点，即第二遍遍历的起点
	Root  string   `json:"root" msgpack:"root"`
	Nodes []string `json:"nodes" msgpack:"nodes"`
}

func (c Cycle) String() string {
	if len(c.Nodes) == 0 {
		return ""
	}
	return strings.Join(c.Nodes, "->") + "->" + c.Nodes[0]
}

// Resolution 一次死锁消解的结果
type Resolution struct {
	Cycle      Cycle  `json:"cycle" msgpack:"cycle"`
	Victim     string `json:"victim" msgpack:"victim"`
	VictimHeld int    `json:"victim_held" msgpack:"victim_held"`
	Released   []Lock `json:"released" msgpack:"released"`
}

// NodeEntry 快照中的节点记录
type NodeEntry struct {
	Node  string `json:"node" msgpack:"node"`
	Held  int    `json:"held" msgpack:"held"`
	Locks []Lock `json:"locks" msgpack:"locks"`
}

// ResourceEntry 快照中的资源队列，Locks[0] 为队首
type ResourceEntry struct {
	Resource string `json:"resource" msgpack:"resource"`
	Locks    []Lock `json:"locks" msgpack:"locks"`
}

// EdgeList 快照中一个节点的出边，允许重复
type EdgeList struct {
	Node    string   `json:"node" msgpack:"node"`
	WaitsOn []string `json:"waits_on" msgpack:"waits_on"`
}

// Snapshot 锁表的一致性快照，各列表按 key 排序
type Snapshot struct {
	Nodes     []NodeEntry     `json:"nodes" msgpack:"nodes"`
	Resources []ResourceEntry `json:"resources" msgpack:"resources"`
	Graph     []EdgeList      `json:"graph" msgpack:"graph"`
	NodeSet   []string        `json:"node_set" msgpack:"node_set"`
}

// String 按运维排查习惯渲染快照
func (s Snapshot) String() string {
	var b strings.Builder

	b.WriteString("node to locks:[\n")
	for _, n := range s.Nodes {
		fmt.Fprintf(&b, "(%s, %d, [", n.Node, n.Held)
		for _, l := range n.Locks {
			b.WriteString(l.String())
			b.WriteString(",")
		}
		b.WriteString("])\n")
	}

	b.WriteString("]\nresource to locks:[\n")
	for _, r := range s.Resources {
		fmt.Fprintf(&b, "(%s, [", r.Resource)
		for _, l := range r.Locks {
			b.WriteString(l.String())
			b.WriteString(",")
		}
		b.WriteString("])\n")
	}

	b.WriteString("]\ngraph:[\n")
	for _, e := range s.Graph {
		fmt.Fprintf(&b, "%s:[", e.Node)
		for _, to := range e.WaitsOn {
			b.WriteString(to)
			b.WriteString(",")
		}
		b.WriteString("]\n")
	}

	b.WriteString("]\nnode set:[")
	b.WriteString(strings.Join(s.NodeSet, ", "))
	b.WriteString("]\n")
	return b.String()
}

// Stats 锁表统计
type Stats struct {
	HeldLocks       int  `json:"held_locks" msgpack:"held_locks"`
	WaitingLocks    int  `json:"waiting_locks" msgpack:"waiting_locks"`
	Nodes           int  `json:"nodes" msgpack:"nodes"`
	Resources       int  `json:"resources" msgpack:"resources"`
	Edges           int  `json:"edges" msgpack:"edges"`
	DetectorRunning bool `json:"detector_running" msgpack:"detector_running"`
}
