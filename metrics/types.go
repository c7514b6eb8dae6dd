// Package metrics 为锁管理器提供统一的指标收集能力。
// 基于 OpenTelemetry 构建，通过 Prometheus exporter 暴露 Counter、Gauge、Histogram。
//
// 快速开始：
//
//	meter, err := metrics.New(&metrics.Config{
//	    Enabled:     true,
//	    ServiceName: "lockmgr",
//	    Version:     "v1.0.0",
//	    Port:        9090,
//	    Path:        "/metrics",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer meter.Shutdown(ctx)
//
//	deadlocks, _ := meter.Counter("lockmgr_deadlocks_total", "检测到的死锁环数量")
//	deadlocks.Inc(ctx)
//
// Config.Enabled 为 false 时返回 noop Meter，所有操作都是空操作。
package metrics

import (
	"context"
	"net/http"
)

// Counter 计数器，记录只增不减的累计值
//
//	counter, _ := meter.Counter("lockmgr_acquire_total", "加锁请求总数")
//	counter.Inc(ctx, metrics.L("outcome", "granted"))
type Counter interface {
	// Inc 将计数器增加 1
	Inc(ctx context.Context, labels ...Label)

	// Add 将计数器增加给定的值，负数会被监控系统忽略
	Add(ctx context.Context, val float64, labels ...Label)
}

// Gauge 仪表盘，记录可任意增减的瞬时值，例如当前持有的锁数量
type Gauge interface {
	// Set 将 gauge 设置为给定的值
	Set(ctx context.Context, val float64, labels ...Label)

	// Inc 将 gauge 增加 1
	Inc(ctx context.Context, labels ...Label)

	// Dec 将 gauge 减少 1
	Dec(ctx context.Context, labels ...Label)
}

// Histogram 直方图，记录值的分布，例如一次死锁检测的耗时
//
//	histogram, _ := meter.Histogram(
//	    "lockmgr_detect_duration_seconds",
//	    "死锁检测耗时",
//	    metrics.WithUnit("s"),
//	)
//	histogram.Record(ctx, 0.002)
type Histogram interface {
	// Record 在直方图中记录一个值
	Record(ctx context.Context, val float64, labels ...Label)
}

// Meter 指标创建工厂，创建的指标可以在多个 goroutine 中并发使用
type Meter interface {
	// Counter 创建计数器，name 应符合 Prometheus 命名规范
	Counter(name string, desc string, opts ...MetricOption) (Counter, error)

	// Gauge 创建仪表盘
	Gauge(name string, desc string, opts ...MetricOption) (Gauge, error)

	// Histogram 创建直方图
	Histogram(name string, desc string, opts ...MetricOption) (Histogram, error)

	// Handler 返回 Prometheus 格式的抓取端点，可挂载到任意 HTTP 路由
	Handler() http.Handler

	// Shutdown 关闭 Meter，刷新所有指标并停止内置 HTTP 服务器
	Shutdown(ctx context.Context) error
}

// MetricOption 指标配置选项函数类型
type MetricOption func(*MetricOptions)

// MetricOptions 指标选项
type MetricOptions struct {
	// Unit 指标的单位，建议使用 UCUM 单位代码，例如 "s"、"By"
	Unit string

	// Buckets 直方图的显式桶边界，仅对 Histogram 生效
	Buckets []float64
}

// WithUnit 设置指标的单位
func WithUnit(unit string) MetricOption {
	return func(o *MetricOptions) {
		o.Unit = unit
	}
}

// WithBuckets 设置直方图桶边界
func WithBuckets(buckets []float64) MetricOption {
	return func(o *MetricOptions) {
		o.Buckets = append([]float64(nil), buckets...)
	}
}
