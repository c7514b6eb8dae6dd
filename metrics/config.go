package metrics

// Config 指标系统的配置
//
// 典型配置示例（YAML）：
//
//	metrics:
//	  enabled: true
//	  service_name: "lockmgr"
//	  version: "v1.0.0"
//	  port: 9090
//	  path: "/metrics"
//	  enable_runtime: true
type Config struct {
	// Enabled 为 false 时 New 返回 noop Meter
	Enabled bool `mapstructure:"enabled"`

	// ServiceName 作为 OpenTelemetry Resource 的 service.name
	ServiceName string `mapstructure:"service_name"`

	// Version 作为 OpenTelemetry Resource 的 service.version
	Version string `mapstructure:"version"`

	// Port 大于 0 时启动独立的 Prometheus HTTP 服务器
	Port int `mapstructure:"port"`

	// Path Prometheus 抓取路径，必须以 "/" 开头
	Path string `mapstructure:"path"`

	// EnableRuntime 采集 Go 运行时指标（goroutine、GC、内存）
	EnableRuntime bool `mapstructure:"enable_runtime"`
}

// NewDevDefaultConfig 开发/测试默认配置：启用收集，不启动独立 HTTP 服务器
func NewDevDefaultConfig(serviceName string) *Config {
	return &Config{
		Enabled:     true,
		ServiceName: serviceName,
		Version:     "dev",
		Path:        "/metrics",
	}
}

func (c *Config) setDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "lockmgr"
	}
	if c.Path == "" {
		c.Path = "/metrics"
	}
}
