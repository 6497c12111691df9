// Package middleware provides the gin middleware shared by the HTTP services.
package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/kart-io/virtual-ta/pkg/infra/middleware/common"
	mwopts "github.com/kart-io/virtual-ta/pkg/options/middleware"
)

// HeaderXRequestID is re-exported from common.
const HeaderXRequestID = common.HeaderXRequestID

// RequestID returns a middleware that adds a unique request ID to each request.
func RequestID() gin.HandlerFunc {
	return RequestIDWithOptions(*mwopts.NewRequestIDOptions(), nil)
}

// RequestIDWithOptions returns a RequestID middleware.
// generator 为 nil 时按 opts.GeneratorType 选择生成器。
//
// The request ID is added to:
//   - Response header (X-Request-ID by default)
//   - Request context (retrieved with GetRequestID)
func RequestIDWithOptions(opts mwopts.RequestIDOptions, generator func() string) gin.HandlerFunc {
	if opts.Header == "" {
		opts.Header = HeaderXRequestID
	}
	if generator == nil {
		generator = common.GeneratorFor(opts.GeneratorType)
	}

	return func(c *gin.Context) {
		requestID := c.GetHeader(opts.Header)
		if requestID == "" {
			requestID = generator()
		}

		c.Header(opts.Header, requestID)
		c.Request = c.Request.WithContext(common.WithRequestID(c.Request.Context(), requestID))
		c.Set("request_id", requestID)

		c.Next()
	}
}

// GetRequestID returns the request ID from the context.
var GetRequestID = common.GetRequestID
