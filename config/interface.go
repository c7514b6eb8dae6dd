// Package config 为锁管理器提供多源配置加载与热更新，基于 Viper 实现。
//
// 配置优先级（高到低）：环境变量 > .env 文件 > 环境特定配置文件 > 基础配置文件 > 默认值。
//
//	loader, err := config.Load(ctx,
//		config.WithConfigName("lockmgr"),
//		config.WithConfigPaths(".", "./config"),
//		config.WithDefaults(map[string]any{"lockmgr.detect_interval": "2s"}),
//	)
//	if err != nil {
//		return err
//	}
//
//	var cfg lockmgr.Config
//	if err := loader.UnmarshalKey("lockmgr", &cfg); err != nil {
//		panic(err)
//	}
//
//	ch, _ := loader.Watch(ctx, "lockmgr.detect_interval")
//	for event := range ch {
//		fmt.Printf("配置变化: %s = %v\n", event.Key, event.Value)
//	}
package config

import (
	"context"
	"time"
)

// Loader 定义配置加载器的核心行为
type Loader interface {
	// Load 加载配置并启动文件监听
	Load(ctx context.Context) error

	// Get 获取原始配置值
	Get(key string) any

	// Unmarshal 将整个配置反序列化到结构体
	Unmarshal(v any) error

	// UnmarshalKey 将指定 Key 的配置反序列化到结构体
	UnmarshalKey(key string, v any) error

	// Watch 监听配置变化，ctx 取消时关闭返回的通道
	Watch(ctx context.Context, key string) (<-chan Event, error)

	// Validate 验证当前配置的有效性
	Validate() error
}

// Event 配置变更事件
type Event struct {
	Key       string
	Value     any
	OldValue  any
	Source    string // "file"
	Timestamp time.Time
}

// New 创建配置加载器，尚未加载任何配置
func New(opts ...Option) (Loader, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}
	return newLoader(o), nil
}

// Load 创建并立即加载配置
func Load(ctx context.Context, opts ...Option) (Loader, error) {
	l, err := New(opts...)
	if err != nil {
		return nil, err
	}
	if err := l.Load(ctx); err != nil {
		return nil, err
	}
	return l, nil
}
