package lockmgr

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/lockmgr/clog"
	"github.com/ceyewan/lockmgr/metrics"
	xtrace "github.com/ceyewan/lockmgr/trace"
)

const tracerName = "github.com/ceyewan/lockmgr/lockmgr"

// manager 实现 Manager 接口
type manager struct {
	cfg    *Config
	logger clog.Logger
	ins    *instruments
	tracer trace.Tracer

	// mu 保护锁表的全部状态与 closed
	mu     sync.Mutex
	table  *lockTable
	closed bool

	// detMu 保护后台检测器的生命周期，不能在持有 mu 时获取
	detMu sync.Mutex
	det   *detector
}

func (m *manager) Acquire(ctx context.Context, node, resource string) (Lock, error) {
	if node == "" || resource == "" {
		m.ins.acquire.Inc(ctx, metrics.L(LabelOutcome, "invalid"))
		return Lock{}, ErrInvalidID
	}

	ctx, span := m.tracer.Start(ctx, xtrace.SpanAcquire, trace.WithAttributes(
		attribute.String(xtrace.AttrNode, node),
		attribute.String(xtrace.AttrResource, resource),
	))
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Lock{}, ErrClosed
	}

	rec, err := m.table.acquire(node, resource)
	if err != nil {
		m.ins.acquire.Inc(ctx, metrics.L(LabelOutcome, "duplicate"))
		m.logger.DebugContext(ctx, "duplicate lock rejected",
			clog.String("node", node), clog.String("resource", resource))
		return Lock{}, err
	}

	span.SetAttributes(attribute.String(xtrace.AttrState, rec.state.String()))
	if rec.state == StateHeld {
		m.ins.acquire.Inc(ctx, metrics.L(LabelOutcome, "granted"))
		m.logger.DebugContext(ctx, "lock granted",
			clog.String("node", node), clog.String("resource", resource))
	} else {
		m.ins.acquire.Inc(ctx, metrics.L(LabelOutcome, "waiting"))
		m.logger.DebugContext(ctx, "lock waiting",
			clog.String("node", node), clog.String("resource", resource),
			clog.Bool("wait_edge", rec.waitEdge))
	}
	m.recordLocks(ctx)
	return rec.handle(), nil
}

func (m *manager) Find(ctx context.Context, node, resource string) (Lock, error) {
	if node == "" || resource == "" {
		return Lock{}, ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Lock{}, ErrClosed
	}
	rec := m.table.find(node, resource)
	if rec == nil {
		return Lock{}, ErrLockNotFound
	}
	return rec.handle(), nil
}

func (m *manager) Release(ctx context.Context, lock Lock) error {
	if lock.Node == "" || lock.Resource == "" {
		m.ins.release.Inc(ctx, metrics.L(LabelOutcome, "invalid"))
		return ErrInvalidID
	}

	ctx, span := m.tracer.Start(ctx, xtrace.SpanRelease, trace.WithAttributes(
		attribute.String(xtrace.AttrNode, lock.Node),
		attribute.String(xtrace.AttrResource, lock.Resource),
	))
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	// 令牌不一致说明句柄对应的锁已被释放，当前记录是之后重新申请的
	rec := m.table.find(lock.Node, lock.Resource)
	if rec == nil || rec.token != lock.Token {
		m.ins.release.Inc(ctx, metrics.L(LabelOutcome, "not_found"))
		m.logger.DebugContext(ctx, "release of unknown lock",
			clog.String("node", lock.Node), clog.String("resource", lock.Resource))
		return ErrLockNotFound
	}

	state := rec.state
	promoted := m.table.releaseLock(rec)
	pruned := m.table.pruneNode(lock.Node)

	m.ins.release.Inc(ctx, metrics.L(LabelOutcome, "released"))
	m.logger.DebugContext(ctx, "lock released",
		clog.String("node", lock.Node), clog.String("resource", lock.Resource),
		clog.String("state", state.String()), clog.Bool("node_pruned", pruned))
	if promoted != nil {
		m.ins.promotion.Inc(ctx)
		m.logger.DebugContext(ctx, "lock promoted",
			clog.String("node", promoted.node), clog.String("resource", promoted.resource))
	}
	m.recordLocks(ctx)
	return nil
}

func (m *manager) Cycles(ctx context.Context) []Cycle {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	cycles := m.table.cycles()
	for _, c := range cycles {
		m.logger.InfoContext(ctx, "deadlock detected",
			clog.String("cycle", c.String()), clog.Strings("nodes", c.Nodes))
	}
	return cycles
}

func (m *manager) Detect(ctx context.Context) []Resolution {
	ctx, span := m.tracer.Start(ctx, xtrace.SpanDetect)
	defer span.End()

	start := time.Now()
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	resolutions := m.table.resolveAll()
	if len(resolutions) > 0 {
		m.recordLocks(ctx)
	}
	m.mu.Unlock()
	elapsed := time.Since(start)

	released := 0
	for _, r := range resolutions {
		released += len(r.Released)
		m.ins.deadlocks.Inc(ctx)
		m.ins.victimLocks.Add(ctx, float64(len(r.Released)))
		span.AddEvent(xtrace.EventVictimReleased, trace.WithAttributes(
			attribute.String(xtrace.AttrVictim, r.Victim),
			attribute.Int(xtrace.AttrHeldCount, r.VictimHeld),
			attribute.StringSlice(xtrace.AttrCycle, r.Cycle.Nodes),
		))
		m.logger.WarnContext(ctx, "deadlock resolved",
			clog.String("cycle", r.Cycle.String()),
			clog.String("victim", r.Victim),
			clog.Int("victim_held", r.VictimHeld),
			clog.Int("released", len(r.Released)))
	}
	m.ins.detect.Record(ctx, elapsed.Seconds())
	span.SetAttributes(
		attribute.Int(xtrace.AttrVictims, len(resolutions)),
		attribute.Int(xtrace.AttrReleased, released),
	)
	return resolutions
}

func (m *manager) Dump() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.table.snapshot()
}

func (m *manager) Stats() Stats {
	m.mu.Lock()
	s := m.table.stats()
	m.mu.Unlock()

	m.detMu.Lock()
	s.DetectorRunning = m.det != nil
	m.detMu.Unlock()
	return s
}

func (m *manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.StopDetector()
	m.logger.Info("lock manager closed")
	return nil
}

// recordLocks 更新锁数量 gauge，调用方须持有 mu
func (m *manager) recordLocks(ctx context.Context) {
	m.ins.locks.Set(ctx, float64(m.table.heldLocks), metrics.L(LabelState, StateHeld.String()))
	m.ins.locks.Set(ctx, float64(m.table.waitingLocks), metrics.L(LabelState, StateWaiting.String()))
}
