package lockmgr

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/time/rate"

	"github.com/ceyewan/lockmgr/clog"
	"github.com/ceyewan/lockmgr/metrics"
	"github.com/ceyewan/lockmgr/xerrors"
)

// AdminConfig 管理接口配置
type AdminConfig struct {
	// DetectRate 手动触发检测的速率上限（次/秒），<= 0 时为 1
	DetectRate float64 `json:"detect_rate" yaml:"detect_rate" mapstructure:"detect_rate"`
	// DetectBurst 手动触发检测的突发上限，<= 0 时为 1
	DetectBurst int `json:"detect_burst" yaml:"detect_burst" mapstructure:"detect_burst"`
}

func (c *AdminConfig) setDefaults() {
	if c.DetectRate <= 0 {
		c.DetectRate = 1
	}
	if c.DetectBurst <= 0 {
		c.DetectBurst = 1
	}
}

// MIMEMsgpack 快照的 msgpack 编码
const MIMEMsgpack = "application/msgpack"

// 管理接口错误码，随错误响应的 code 字段返回
const (
	CodeInvalidInput  = "INVALID_INPUT"
	CodeLockNotFound  = "LOCK_NOT_FOUND"
	CodeDuplicateLock = "DUPLICATE_LOCK"
	CodeClosed        = "MANAGER_CLOSED"
	CodeRateLimited   = "RATE_LIMITED"
	CodeInternal      = "INTERNAL"
)

var codeStatus = map[string]int{
	CodeInvalidInput:  http.StatusBadRequest,
	CodeLockNotFound:  http.StatusNotFound,
	CodeDuplicateLock: http.StatusConflict,
	CodeClosed:        http.StatusServiceUnavailable,
	CodeRateLimited:   http.StatusTooManyRequests,
	CodeInternal:      http.StatusInternalServerError,
}

var errRateLimited = xerrors.New("lockmgr: detect rate limit exceeded")

// ctxKeyCode 失败请求的错误码在 gin.Context 中的键
const ctxKeyCode = "lockmgr.admin.code"

// Admin 锁管理器的 HTTP 管理接口
//
//	GET    /locks                   快照，?format=msgpack|text
//	GET    /locks/stats             统计
//	POST   /locks                   加锁 {"node":"n1","resource":"r1"}
//	GET    /locks/:node/:resource   查找
//	DELETE /locks/:node/:resource   释放
//	GET    /locks/cycles            只检测不消解
//	POST   /locks/detect            检测并消解，受限流保护
//
// 每个请求按 路由模板/方法/结果 记录 lockmgr_admin_requests_total 与耗时直方图，
// 结果取值为 ok 或小写的错误码（如 duplicate_lock）。
type Admin struct {
	mgr      Manager
	limiter  *rate.Limiter
	logger   clog.Logger
	requests metrics.Counter
	duration metrics.Histogram
}

// NewAdmin 创建管理接口，cfg 为 nil 时使用默认限流
func NewAdmin(mgr Manager, cfg *AdminConfig, opts ...Option) (*Admin, error) {
	if cfg == nil {
		cfg = &AdminConfig{}
	}
	cfg.setDefaults()

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	requests, err := o.meter.Counter(MetricAdminRequestsTotal, "Number of admin API requests.")
	if err != nil {
		return nil, xerrors.Wrap(err, "lockmgr: create admin metrics")
	}
	duration, err := o.meter.Histogram(MetricAdminRequestDuration, "Duration of admin API requests.",
		metrics.WithUnit("s"), metrics.WithBuckets(adminDurationBuckets))
	if err != nil {
		return nil, xerrors.Wrap(err, "lockmgr: create admin metrics")
	}

	return &Admin{
		mgr:      mgr,
		limiter:  rate.NewLimiter(rate.Limit(cfg.DetectRate), cfg.DetectBurst),
		logger:   o.logger.WithNamespace("admin"),
		requests: requests,
		duration: duration,
	}, nil
}

// Register 将路由注册到 r
func (a *Admin) Register(r gin.IRouter) {
	g := r.Group("/locks", a.observe)
	g.GET("", a.dump)
	g.POST("", a.acquire)
	g.GET("/stats", a.stats)
	g.GET("/cycles", a.cycles)
	g.POST("/detect", a.detect)
	g.GET("/:node/:resource", a.find)
	g.DELETE("/:node/:resource", a.release)
}

type acquireRequest struct {
	Node     string `json:"node" binding:"required"`
	Resource string `json:"resource" binding:"required"`
}

func (a *Admin) dump(c *gin.Context) {
	snapshot := a.mgr.Dump()
	switch c.Query("format") {
	case "msgpack":
		data, err := msgpack.Marshal(snapshot)
		if err != nil {
			a.fail(c, err)
			return
		}
		c.Data(http.StatusOK, MIMEMsgpack, data)
	case "text":
		c.String(http.StatusOK, snapshot.String())
	default:
		c.JSON(http.StatusOK, snapshot)
	}
}

func (a *Admin) stats(c *gin.Context) {
	c.JSON(http.StatusOK, a.mgr.Stats())
}

func (a *Admin) acquire(c *gin.Context) {
	var req acquireRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.fail(c, xerrors.Wrap(xerrors.ErrInvalidInput, err.Error()))
		return
	}
	lock, err := a.mgr.Acquire(c.Request.Context(), req.Node, req.Resource)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, lock)
}

func (a *Admin) find(c *gin.Context) {
	lock, err := a.mgr.Find(c.Request.Context(), c.Param("node"), c.Param("resource"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, lock)
}

func (a *Admin) release(c *gin.Context) {
	ctx := c.Request.Context()
	lock, err := a.mgr.Find(ctx, c.Param("node"), c.Param("resource"))
	if err != nil {
		a.fail(c, err)
		return
	}
	if err := a.mgr.Release(ctx, lock); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *Admin) cycles(c *gin.Context) {
	cycles := a.mgr.Cycles(c.Request.Context())
	if cycles == nil {
		cycles = []Cycle{}
	}
	c.JSON(http.StatusOK, gin.H{"cycles": cycles})
}

func (a *Admin) detect(c *gin.Context) {
	if !a.limiter.Allow() {
		a.fail(c, errRateLimited)
		return
	}
	resolutions := a.mgr.Detect(c.Request.Context())
	if resolutions == nil {
		resolutions = []Resolution{}
	}
	c.JSON(http.StatusOK, gin.H{"resolutions": resolutions})
}

// observe 记录请求数与耗时
func (a *Admin) observe(c *gin.Context) {
	start := time.Now()
	c.Next()

	outcome := "ok"
	if code := c.GetString(ctxKeyCode); code != "" {
		outcome = strings.ToLower(code)
	}
	labels := []metrics.Label{
		metrics.L(LabelRoute, c.FullPath()),
		metrics.L(LabelMethod, c.Request.Method),
		metrics.L(LabelOutcome, outcome),
	}
	ctx := c.Request.Context()
	a.requests.Inc(ctx, labels...)
	a.duration.Record(ctx, time.Since(start).Seconds(), labels...)
}

// withCode 按错误类别附加错误码，已带错误码的错误保持不变
func withCode(err error) error {
	if xerrors.GetCode(err) != "" {
		return err
	}
	code := CodeInternal
	switch {
	case xerrors.Is(err, errRateLimited):
		code = CodeRateLimited
	case xerrors.Is(err, xerrors.ErrInvalidInput):
		code = CodeInvalidInput
	case xerrors.Is(err, xerrors.ErrNotFound):
		code = CodeLockNotFound
	case xerrors.Is(err, xerrors.ErrConflict):
		code = CodeDuplicateLock
	case xerrors.Is(err, xerrors.ErrUnavailable):
		code = CodeClosed
	}
	return xerrors.WithCode(err, code)
}

// fail 按错误码写出错误响应 {"error": ..., "code": ...}
func (a *Admin) fail(c *gin.Context, err error) {
	msg := err.Error()
	err = withCode(err)
	code := xerrors.GetCode(err)
	status, ok := codeStatus[code]
	if !ok {
		status = http.StatusInternalServerError
	}

	ctx := c.Request.Context()
	if status >= http.StatusInternalServerError {
		a.logger.ErrorContext(ctx, "admin request failed",
			clog.String("path", c.FullPath()), clog.ErrorWithCode(err, code))
	} else {
		a.logger.DebugContext(ctx, "admin request rejected",
			clog.String("path", c.FullPath()), clog.ErrorWithCode(err, code))
	}
	c.Set(ctxKeyCode, code)
	c.AbortWithStatusJSON(status, gin.H{"error": msg, "code": code})
}
