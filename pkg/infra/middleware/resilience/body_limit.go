package resilience

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/virtual-ta/pkg/errors"
	"github.com/kart-io/virtual-ta/pkg/infra/middleware/internal/pathutil"
	mwopts "github.com/kart-io/virtual-ta/pkg/options/middleware"
	"github.com/kart-io/virtual-ta/pkg/response"
)

// BodyLimit 返回一个请求体大小限制中间件。
//
// 示例：
//
//	router.Use(BodyLimit(10 * 1024 * 1024)) // 限制 10MB
func BodyLimit(maxSize int64) gin.HandlerFunc {
	return BodyLimitWithOptions(mwopts.BodyLimitOptions{
		MaxSize: maxSize,
	})
}

// BodyLimitWithOptions 返回一个带配置选项的请求体大小限制中间件。
//
// 工作原理：
//  1. 检查 Content-Length 头，如果超过限制立即拒绝
//  2. 使用 http.MaxBytesReader 限制实际读取的字节数
//  3. 支持跳过特定路径
func BodyLimitWithOptions(opts mwopts.BodyLimitOptions) gin.HandlerFunc {
	if opts.MaxSize <= 0 {
		opts.MaxSize = mwopts.NewBodyLimitOptions().MaxSize
	}

	pathMatcher := pathutil.NewPathMatcher(opts.SkipPaths, opts.SkipPathPrefixes)
	return func(c *gin.Context) {
		req := c.Request

		if pathMatcher(req.URL.Path) {
			c.Next()
			return
		}

		if req.ContentLength > opts.MaxSize {
			logger.Warnw("request body too large (Content-Length check)",
				"path", req.URL.Path,
				"content_length", req.ContentLength,
				"max_size", opts.MaxSize,
			)
			response.Fail(c, errors.ErrRequestTooLarge)
			return
		}

		// 客户端未设置或伪造 Content-Length 时，读取超限会返回错误。
		req.Body = http.MaxBytesReader(c.Writer, req.Body, opts.MaxSize)

		c.Next()
	}
}
