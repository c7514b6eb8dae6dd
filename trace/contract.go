package trace

// 锁管理器 span 名称
const (
	SpanDetect  = "lockmgr.detect"
	SpanAcquire = "lockmgr.acquire"
	SpanRelease = "lockmgr.release"
)

// 锁管理器 span 属性键
const (
	AttrNode      = "lockmgr.node"
	AttrResource  = "lockmgr.resource"
	AttrState     = "lockmgr.state"
	AttrCycle     = "lockmgr.cycle"
	AttrVictims   = "lockmgr.detect.victims"
	AttrReleased  = "lockmgr.detect.released_locks"
	AttrVictim    = "lockmgr.victim"
	AttrHeldCount = "lockmgr.victim.held_count"
)

// EventVictimReleased 死锁牺牲者被释放时记录在 detect span 上的事件名
const EventVictimReleased = "victim_released"
