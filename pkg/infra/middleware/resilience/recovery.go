// Package resilience provides panic recovery and request guarding middleware.
package resilience

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/virtual-ta/pkg/errors"
	"github.com/kart-io/virtual-ta/pkg/infra/middleware/common"
	mwopts "github.com/kart-io/virtual-ta/pkg/options/middleware"
	"github.com/kart-io/virtual-ta/pkg/response"
)

// PanicHandler 定义 panic 处理器类型。
type PanicHandler func(c *gin.Context, err interface{}, stack []byte)

// Recovery returns a middleware that recovers from panics with default options.
func Recovery() gin.HandlerFunc {
	return RecoveryWithOptions(*mwopts.NewRecoveryOptions(), nil)
}

// RecoveryWithOptions 返回 Recovery 中间件。
// 完整堆栈总是写入日志；仅在非生产环境且显式开启时返回给客户端。
// onPanic 可选，用于告警等额外处理。
func RecoveryWithOptions(opts mwopts.RecoveryOptions, onPanic PanicHandler) gin.HandlerFunc {
	includeStack := opts.EnableStackTrace
	if includeStack && isProductionEnvironment() {
		logger.Warn("Stack trace is enabled but running in production environment; it will only be logged")
		includeStack = false
	}

	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				stack := debug.Stack()

				logger.Errorw("panic recovered",
					"panic", r,
					"stack_trace", string(stack),
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
					"request_id", common.GetRequestID(c.Request.Context()),
				)

				if onPanic != nil {
					onPanic(c, r, stack)
				}

				msg := fmt.Sprintf("panic: %v", r)
				if includeStack {
					msg = fmt.Sprintf("%s\n%s", msg, stack)
				}
				response.Fail(c, errors.ErrPanic.WithMessage(msg))
			}
		}()
		c.Next()
	}
}

func isProductionEnvironment() bool {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = os.Getenv("GO_ENV")
	}
	switch env {
	case "production", "prod", "PRODUCTION", "PROD":
		return true
	default:
		return false
	}
}
