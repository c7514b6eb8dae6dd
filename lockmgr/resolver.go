package lockmgr

// pickVictim 选出环中持有数最少的节点，持有数相同时取字典序最小的节点
func pickVictim(cycle Cycle, heldCount func(string) int) (string, int) {
	victim, minHeld := "", 0
	for _, n := range cycle.Nodes {
		held := heldCount(n)
		if victim == "" || held < minHeld || (held == minHeld && n < victim) {
			victim, minHeld = n, held
		}
	}
	return victim, minHeld
}

// resolveAll 反复检测并释放牺牲者，直到等待图中不再有环
//
// 同一轮检测出的分量互不相交，可以各自选择牺牲者后一起释放。
// 每轮至少从节点集合中删除一个节点，因此循环必然终止。
func (t *lockTable) resolveAll() []Resolution {
	var resolutions []Resolution
	for {
		cycles := t.cycles()
		if len(cycles) == 0 {
			return resolutions
		}
		for _, c := range cycles {
			victim, held := pickVictim(c, t.heldCount)
			if victim == "" {
				continue
			}
			resolutions = append(resolutions, Resolution{
				Cycle:      c,
				Victim:     victim,
				VictimHeld: held,
				Released:   t.releaseNode(victim),
			})
		}
	}
}
