package lockmgr

import (
	"github.com/ceyewan/lockmgr/metrics"
	"github.com/ceyewan/lockmgr/xerrors"
)

// Metrics 指标常量定义
const (
	// MetricAcquireTotal 加锁请求数 (Counter)
	MetricAcquireTotal = "lockmgr_acquire_total"

	// MetricReleaseTotal 释放请求数 (Counter)
	MetricReleaseTotal = "lockmgr_release_total"

	// MetricPromotionTotal 持有权转移次数 (Counter)
	MetricPromotionTotal = "lockmgr_promotion_total"

	// MetricDeadlockTotal 检测到的死锁环数量 (Counter)
	MetricDeadlockTotal = "lockmgr_deadlocks_total"

	// MetricVictimLocksTotal 因死锁被强制释放的锁数量 (Counter)
	MetricVictimLocksTotal = "lockmgr_victim_locks_released_total"

	// MetricDetectDuration 一次检测与消解的耗时 (Histogram)
	MetricDetectDuration = "lockmgr_detect_duration_seconds"

	// MetricLocks 当前锁数量 (Gauge)
	MetricLocks = "lockmgr_locks"

	// MetricAdminRequestsTotal 管理接口请求数 (Counter)
	MetricAdminRequestsTotal = "lockmgr_admin_requests_total"

	// MetricAdminRequestDuration 管理接口请求耗时 (Histogram)
	MetricAdminRequestDuration = "lockmgr_admin_request_duration_seconds"

	// LabelOutcome 结果标签 (granted/waiting/duplicate/released/not_found/invalid；
	// 管理接口为 ok 或小写错误码)
	LabelOutcome = "outcome"

	// LabelRoute 管理接口路由模板标签
	LabelRoute = "route"

	// LabelMethod 管理接口 HTTP 方法标签
	LabelMethod = "method"

	// LabelState 锁状态标签 (held/waiting)
	LabelState = "state"
)

var (
	detectDurationBuckets = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1}
	adminDurationBuckets  = []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}
)

// instruments 锁管理器使用的指标集合
type instruments struct {
	acquire     metrics.Counter
	release     metrics.Counter
	promotion   metrics.Counter
	deadlocks   metrics.Counter
	victimLocks metrics.Counter
	detect      metrics.Histogram
	locks       metrics.Gauge
}

func newInstruments(m metrics.Meter) (*instruments, error) {
	var (
		ins  instruments
		errs xerrors.Collector
		err  error
	)
	ins.acquire, err = m.Counter(MetricAcquireTotal, "Number of lock acquire requests.")
	errs.Collect(err)
	ins.release, err = m.Counter(MetricReleaseTotal, "Number of lock release requests.")
	errs.Collect(err)
	ins.promotion, err = m.Counter(MetricPromotionTotal, "Number of ownership transfers to the next waiter.")
	errs.Collect(err)
	ins.deadlocks, err = m.Counter(MetricDeadlockTotal, "Number of deadlock cycles detected.")
	errs.Collect(err)
	ins.victimLocks, err = m.Counter(MetricVictimLocksTotal, "Number of locks force-released to break deadlocks.")
	errs.Collect(err)
	ins.detect, err = m.Histogram(MetricDetectDuration, "Duration of one detect and resolve pass.",
		metrics.WithUnit("s"), metrics.WithBuckets(detectDurationBuckets))
	errs.Collect(err)
	ins.locks, err = m.Gauge(MetricLocks, "Current number of locks by state.")
	errs.Collect(err)

	if err := errs.Err(); err != nil {
		return nil, xerrors.Wrap(err, "lockmgr: create metrics")
	}
	return &ins, nil
}
