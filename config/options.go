package config

import (
	"strings"

	"github.com/ceyewan/lockmgr/clog"
	"github.com/ceyewan/lockmgr/xerrors"
)

// Option 配置加载器的选项函数类型
type Option func(*options)

type options struct {
	Name      string   // 配置文件名称（不含扩展名）
	Paths     []string // 配置文件搜索路径
	FileType  string   // 配置文件类型 (yaml, json, etc.)
	EnvPrefix string   // 环境变量前缀
	Defaults  map[string]any
	Logger    clog.Logger
}

func defaultOptions() *options {
	return &options{
		Name:      "config",
		Paths:     []string{".", "./config"},
		FileType:  "yaml",
		EnvPrefix: "LOCKMGR",
		Defaults:  map[string]any{},
		Logger:    clog.Discard(),
	}
}

func (o *options) validate() error {
	if strings.TrimSpace(o.Name) == "" {
		return xerrors.Wrap(ErrValidationFailed, "config name is empty")
	}
	if o.FileType == "" {
		o.FileType = "yaml"
	}
	o.EnvPrefix = strings.ToUpper(o.EnvPrefix)
	return nil
}

// WithConfigName 设置配置文件名称（不带扩展名）
func WithConfigName(name string) Option {
	return func(o *options) {
		o.Name = name
	}
}

// WithConfigPath 追加配置文件搜索路径
func WithConfigPath(path string) Option {
	return func(o *options) {
		o.Paths = append(o.Paths, path)
	}
}

// WithConfigPaths 设置配置文件搜索路径（覆盖默认值）
func WithConfigPaths(paths ...string) Option {
	return func(o *options) {
		o.Paths = paths
	}
}

// WithConfigType 设置配置文件类型 (yaml, json, etc.)
func WithConfigType(typ string) Option {
	return func(o *options) {
		o.FileType = typ
	}
}

// WithEnvPrefix 设置环境变量前缀
func WithEnvPrefix(prefix string) Option {
	return func(o *options) {
		o.EnvPrefix = prefix
	}
}

// WithDefaults 设置默认值，优先级最低
func WithDefaults(defaults map[string]any) Option {
	return func(o *options) {
		for k, v := range defaults {
			o.Defaults[k] = v
		}
	}
}

// WithLogger 注入日志记录器，组件会自动添加 "config" 命名空间
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.Logger = logger.WithNamespace("config")
		}
	}
}
