package metrics

import (
	promclient "github.com/prometheus/client_golang/prometheus"

	"github.com/ceyewan/lockmgr/clog"
)

// Option 配置 Meter 实例的选项函数类型
type Option func(*options)

type options struct {
	logger   clog.Logger
	registry *promclient.Registry
}

// WithLogger 注入日志记录器，组件会自动添加 "metrics" 命名空间
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("metrics")
		}
	}
}

// WithRegistry 将指标注册到调用方的 Registry，Handler 同样从该 Registry 抓取。
// 未设置时每个 Meter 使用独立的 Registry。
func WithRegistry(registry *promclient.Registry) Option {
	return func(o *options) {
		if registry != nil {
			o.registry = registry
		}
	}
}
