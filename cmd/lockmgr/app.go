package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"

	"github.com/ceyewan/lockmgr/clog"
	"github.com/ceyewan/lockmgr/config"
	"github.com/ceyewan/lockmgr/lockmgr"
	"github.com/ceyewan/lockmgr/metrics"
	"github.com/ceyewan/lockmgr/trace"
	"github.com/ceyewan/lockmgr/xerrors"
)

const serviceName = "lockmgr"

// appConfig 进程配置，对应配置文件的顶层结构
type appConfig struct {
	Log     clog.Config    `mapstructure:"log"`
	Metrics metrics.Config `mapstructure:"metrics"`
	Trace   trace.Config   `mapstructure:"trace"`
	LockMgr lockmgr.Config `mapstructure:"lockmgr"`
	Admin   adminConfig    `mapstructure:"admin"`
}

type adminConfig struct {
	// Addr 为空时不启动管理接口
	Addr   string              `mapstructure:"addr"`
	Detect lockmgr.AdminConfig `mapstructure:"detect"`
}

var defaults = map[string]any{
	"log.level":               "info",
	"log.format":              "console",
	"log.output":              "stderr",
	"metrics.enabled":         true,
	"metrics.service_name":    serviceName,
	"metrics.path":            "/metrics",
	"metrics.enable_runtime":  true,
	"trace.service_name":      serviceName,
	"trace.sampler":           1.0,
	"lockmgr.detect_interval": lockmgr.DefaultDetectInterval.String(),
	"admin.addr":              "",
}

type flags struct {
	configName     string
	configPaths    []string
	detectInterval time.Duration
	adminAddr      string
	logLevel       string
	drain          time.Duration
}

func parseFlags(args []string) (*flags, error) {
	f := &flags{}
	fs := pflag.NewFlagSet(serviceName, pflag.ContinueOnError)
	fs.StringVarP(&f.configName, "config", "c", serviceName, "配置文件名（不含扩展名）")
	fs.StringSliceVar(&f.configPaths, "config-path", []string{".", "./config"}, "配置文件搜索路径")
	fs.DurationVarP(&f.detectInterval, "detect-interval", "i", 0, "死锁检测间隔，覆盖配置文件")
	fs.StringVar(&f.adminAddr, "admin-addr", "", "管理接口监听地址，覆盖配置文件")
	fs.StringVar(&f.logLevel, "log-level", "", "日志级别，覆盖配置文件")
	fs.DurationVar(&f.drain, "drain", time.Second, "输入结束后等待检测器的时间")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}

func loadConfig(ctx context.Context, f *flags) (config.Loader, *appConfig, error) {
	loader, err := config.Load(ctx,
		config.WithConfigName(f.configName),
		config.WithConfigPaths(f.configPaths...),
		config.WithDefaults(defaults),
	)
	if err != nil {
		return nil, nil, err
	}

	var cfg appConfig
	if err := loader.Unmarshal(&cfg); err != nil {
		return nil, nil, xerrors.Wrap(err, "unmarshal config")
	}
	if f.detectInterval > 0 {
		cfg.LockMgr.DetectInterval = f.detectInterval
	}
	if f.adminAddr != "" {
		cfg.Admin.Addr = f.adminAddr
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	return loader, &cfg, nil
}

func run(ctx context.Context, args []string, in io.Reader, out io.Writer) (err error) {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}

	loader, cfg, err := loadConfig(ctx, f)
	if err != nil {
		return err
	}

	logger, err := clog.New(&cfg.Log, clog.WithTraceContext())
	if err != nil {
		return err
	}
	defer logger.Flush()

	shutdownTrace, err := trace.Init(&cfg.Trace)
	if err != nil {
		return err
	}
	defer func() {
		err = xerrors.Combine(err, xerrors.Wrap(shutdownTrace(context.Background()), "shutdown tracer"))
	}()

	meter, err := metrics.New(&cfg.Metrics, metrics.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() {
		err = xerrors.Combine(err, xerrors.Wrap(meter.Shutdown(context.Background()), "shutdown meter"))
	}()

	mgr, err := lockmgr.New(&cfg.LockMgr, lockmgr.WithLogger(logger), lockmgr.WithMeter(meter))
	if err != nil {
		return err
	}
	defer mgr.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go watchDetectInterval(ctx, loader, mgr, logger)

	if cfg.Admin.Addr != "" {
		srv, serr := newAdminServer(cfg, mgr, meter, logger)
		if serr != nil {
			return serr
		}
		go func() {
			logger.Info("admin server listening", clog.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("admin server failed", clog.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err = xerrors.Combine(err, xerrors.Wrap(srv.Shutdown(shutdownCtx), "shutdown admin server"))
		}()
	}

	if err := serve(ctx, mgr, in, out); err != nil {
		return err
	}

	// 输入结束后给检测器留出最后一轮的时间
	select {
	case <-time.After(f.drain):
	case <-ctx.Done():
	}
	mgr.StopDetector()
	fmt.Fprintln(out, "deadlock detector is stopped")
	return nil
}

// serve 逐行执行命令直到输入结束
func serve(ctx context.Context, mgr lockmgr.Manager, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		execute(ctx, mgr, fields, out)
	}
	return scanner.Err()
}

func execute(ctx context.Context, mgr lockmgr.Manager, fields []string, out io.Writer) {
	switch cmd := fields[0]; {
	case (cmd == "lock" || cmd == "unlock") && len(fields) != 3:
		fmt.Fprintf(out, "usage: %s <node> <resource>\n", cmd)
	case cmd == "lock":
		node, res := fields[1], fields[2]
		fmt.Fprintf(out, "set lock(node=%s, resource=%s)\n", node, res)
		if _, err := mgr.Acquire(ctx, node, res); err != nil {
			if xerrors.Is(err, lockmgr.ErrDuplicateLock) {
				fmt.Fprintf(out, "lock(node=%s, resource=%s) is duplicated, lock failed\n", node, res)
				return
			}
			fmt.Fprintf(out, "lock(node=%s, resource=%s) failed: %v\n", node, res, err)
		}
	case cmd == "unlock":
		node, res := fields[1], fields[2]
		lock, err := mgr.Find(ctx, node, res)
		if err == nil {
			err = mgr.Release(ctx, lock)
		}
		switch {
		case err == nil:
			fmt.Fprintf(out, "release lock(node=%s, resource=%s, state=%s)\n", node, res, lock.State)
		case xerrors.Is(err, lockmgr.ErrLockNotFound):
			fmt.Fprintf(out, "no such lock(node=%s, resource=%s)\n", node, res)
		default:
			fmt.Fprintf(out, "unlock(node=%s, resource=%s) failed: %v\n", node, res, err)
		}
	case cmd == "dump":
		fmt.Fprint(out, mgr.Dump().String())
	case cmd == "detect":
		for _, r := range mgr.Detect(ctx) {
			fmt.Fprintf(out, "detected deadlock: %s\n", r.Cycle)
			fmt.Fprintf(out, "released node=%s(%d) to break deadlock\n", r.Victim, r.VictimHeld)
		}
	default:
		fmt.Fprintf(out, "unknown command: %s\n", cmd)
	}
}

// watchDetectInterval 配置文件中的检测间隔变化时重启检测器
func watchDetectInterval(ctx context.Context, loader config.Loader, mgr lockmgr.Manager, logger clog.Logger) {
	ch, err := loader.Watch(ctx, "lockmgr.detect_interval")
	if err != nil {
		logger.Warn("watch detect interval failed", clog.Error(err))
		return
	}
	for event := range ch {
		interval, err := time.ParseDuration(fmt.Sprint(event.Value))
		if err != nil {
			logger.Warn("invalid detect interval", clog.Any("value", event.Value), clog.Error(err))
			continue
		}
		if err := mgr.StartDetector(interval); err != nil {
			logger.Warn("restart detector failed", clog.Error(err))
		}
	}
}

func newAdminServer(cfg *appConfig, mgr lockmgr.Manager, meter metrics.Meter, logger clog.Logger) (*http.Server, error) {
	admin, err := lockmgr.NewAdmin(mgr, &cfg.Admin.Detect, lockmgr.WithLogger(logger), lockmgr.WithMeter(meter))
	if err != nil {
		return nil, err
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), trace.GinMiddleware(serviceName, cfg.Metrics.Path))
	admin.Register(r)
	r.GET(cfg.Metrics.Path, gin.WrapH(meter.Handler()))

	return &http.Server{
		Addr:              cfg.Admin.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}, nil
}
