package trace

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// SpanAdmin 管理接口请求 span 名称前缀
const SpanAdmin = "lockmgr.admin"

// GinMiddleware 返回管理接口的跟踪中间件，每个请求生成一个 server span。
//
// span 名称为 "lockmgr.admin <METHOD> <路由模板>"，未命中路由时模板记为 unknown；
// skipPaths 中的路径（如 Prometheus 抓取路径）不生成 span。
func GinMiddleware(serviceName string, skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}
	return otelgin.Middleware(serviceName,
		otelgin.WithSpanNameFormatter(AdminSpanName),
		otelgin.WithFilter(func(r *http.Request) bool {
			return !skip[r.URL.Path]
		}),
	)
}

// AdminSpanName 按路由模板命名 span，避免把节点和资源 ID 带进 span 名称
func AdminSpanName(c *gin.Context) string {
	route := c.FullPath()
	if route == "" {
		route = "unknown"
	}
	return SpanAdmin + " " + c.Request.Method + " " + route
}
