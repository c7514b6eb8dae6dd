package lockmgr

import "time"

// DefaultDetectInterval 默认死锁检测间隔
const DefaultDetectInterval = 2 * time.Second

// Config 锁管理器配置
//
//	lockmgr:
//	  detect_interval: 2s
//	  disable_detector: false
type Config struct {
	// DetectInterval 后台死锁检测的间隔，<= 0 时使用 DefaultDetectInterval
	DetectInterval time.Duration `json:"detect_interval" yaml:"detect_interval" mapstructure:"detect_interval"`

	// DisableDetector 为 true 时 New 不启动后台检测，可稍后调用 StartDetector
	DisableDetector bool `json:"disable_detector" yaml:"disable_detector" mapstructure:"disable_detector"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{DetectInterval: DefaultDetectInterval}
}

func (c *Config) setDefaults() {
	if c.DetectInterval <= 0 {
		c.DetectInterval = DefaultDetectInterval
	}
}
