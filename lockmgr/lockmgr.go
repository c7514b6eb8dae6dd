// Package lockmgr 实现进程内的资源锁管理器。
//
// 每个资源维护一个 FIFO 等待队列，只有队首持有锁。已持有资源的节点再去排队时，
// 会在等待图中添加一条指向当前持有者的边；后台检测器周期性地用 Kosaraju 算法
// 计算等待图的强连通分量，对每个死锁环选出持有数最少的节点作为牺牲者，
// 强制释放它的全部锁，直到图中不再有环。
//
// 基本使用：
//
//	mgr, err := lockmgr.New(lockmgr.DefaultConfig(),
//	    lockmgr.WithLogger(logger),
//	    lockmgr.WithMeter(meter),
//	)
//	if err != nil {
//	    return err
//	}
//	defer mgr.Close()
//
//	lock, err := mgr.Acquire(ctx, "txn-1", "account:42")
//	if xerrors.Is(err, lockmgr.ErrDuplicateLock) {
//	    // 已经持有或正在等待
//	}
//	...
//	if err := mgr.Release(ctx, lock); xerrors.Is(err, lockmgr.ErrLockNotFound) {
//	    // 锁已被死锁检测器回收
//	}
//
// 所有操作共享一把互斥锁：加锁、释放、检测与消解不会交错执行，
// 调用方和检测器看到的锁表始终是一致的。
package lockmgr

import (
	"context"
	"time"
)

// Manager 锁管理器
type Manager interface {
	// Acquire 为节点申请资源锁。队列为空时立即持有，否则排队等待（不阻塞调用方）。
	// 节点已持有或正在等待该资源时返回 ErrDuplicateLock，锁表不变。
	Acquire(ctx context.Context, node, resource string) (Lock, error)

	// Find 查找节点在资源上的锁（持有或等待），不存在时返回 ErrLockNotFound
	Find(ctx context.Context, node, resource string) (Lock, error)

	// Release 释放锁。句柄已失效（已释放或被检测器回收）时返回 ErrLockNotFound。
	Release(ctx context.Context, lock Lock) error

	// Cycles 只检测不消解，返回当前等待图中的死锁环
	Cycles(ctx context.Context) []Cycle

	// Detect 同步执行一次检测与消解，直到图中不再有环
	Detect(ctx context.Context) []Resolution

	// StartDetector 以给定间隔（重新）启动后台检测
	StartDetector(interval time.Duration) error

	// StopDetector 停止后台检测并等待其退出
	StopDetector()

	// Dump 返回锁表快照
	Dump() Snapshot

	// Stats 返回锁表统计
	Stats() Stats

	// Close 停止后台检测，之后的调用返回 ErrClosed。可重复调用。
	Close() error
}

// New 创建锁管理器，除非 cfg.DisableDetector 为 true，否则立即启动后台检测
func New(cfg *Config, opts ...Option) (Manager, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	cfg.setDefaults()

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	ins, err := newInstruments(o.meter)
	if err != nil {
		return nil, err
	}

	m := &manager{
		cfg:    cfg,
		logger: o.logger,
		ins:    ins,
		tracer: o.tracerProvider.Tracer(tracerName),
		table:  newLockTable(),
	}

	if !cfg.DisableDetector {
		if err := m.StartDetector(cfg.DetectInterval); err != nil {
			return nil, err
		}
	}
	return m, nil
}
