// Package observability provides observability middleware.
package observability

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/virtual-ta/pkg/infra/middleware/common"
	"github.com/kart-io/virtual-ta/pkg/infra/middleware/internal/pathutil"
	mwopts "github.com/kart-io/virtual-ta/pkg/options/middleware"
)

var fieldsPool = sync.Pool{
	New: func() interface{} {
		s := make([]interface{}, 0, 16)
		return &s
	},
}

// Logger returns a middleware that logs HTTP requests with default options.
func Logger() gin.HandlerFunc {
	return LoggerWithOptions(*mwopts.NewLoggerOptions())
}

// LoggerWithOptions 返回结构化访问日志中间件。
// 5xx 以 Error 级别输出，4xx 以 Warn 级别输出。
func LoggerWithOptions(opts mwopts.LoggerOptions) gin.HandlerFunc {
	skip := pathutil.NewPathMatcher(opts.SkipPaths, nil)

	return func(c *gin.Context) {
		req := c.Request
		path := req.URL.Path

		if skip(path) {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)

		fields := fieldsPool.Get().(*[]interface{})
		defer func() {
			*fields = (*fields)[:0]
			fieldsPool.Put(fields)
		}()

		status := c.Writer.Status()
		*fields = append(*fields,
			"method", req.Method,
			"path", path,
			"status", status,
			"client_ip", c.ClientIP(),
			"latency", latency.String(),
			"latency_ms", latency.Milliseconds(),
			"bytes", c.Writer.Size(),
		)
		if requestID := common.GetRequestID(c.Request.Context()); requestID != "" {
			*fields = append(*fields, "request_id", requestID)
		}

		switch {
		case status >= 500:
			logger.Errorw("HTTP Request", (*fields)...)
		case status >= 400:
			logger.Warnw("HTTP Request", (*fields)...)
		default:
			logger.Infow("HTTP Request", (*fields)...)
		}
	}
}
