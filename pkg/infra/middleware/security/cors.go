// Package security provides security middleware.
package security

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	mwopts "github.com/kart-io/virtual-ta/pkg/options/middleware"
)

// CORS returns a middleware that adds CORS headers with default options.
func CORS() gin.HandlerFunc {
	return CORSWithOptions(*mwopts.NewCORSOptions())
}

// validateOriginFormat validates that an origin follows scheme://host[:port].
func validateOriginFormat(origin string) error {
	if origin == "" {
		return fmt.Errorf("origin cannot be empty")
	}
	if !strings.Contains(origin, "://") {
		return fmt.Errorf("origin must include scheme (http:// or https://)")
	}
	schemeEnd := strings.Index(origin, "://") + 3
	if schemeEnd < len(origin) && strings.ContainsAny(origin[schemeEnd:], "/?#") {
		return fmt.Errorf("origin should not include path, query, or fragment")
	}
	return nil
}

// CORSWithOptions returns a CORS middleware with CORSOptions.
// 配置错误在启动时 panic。
func CORSWithOptions(opts mwopts.CORSOptions) gin.HandlerFunc {
	if errs := opts.Validate(); len(errs) > 0 {
		panic(errs[0])
	}
	for _, origin := range opts.AllowOrigins {
		if origin == "*" {
			continue
		}
		if err := validateOriginFormat(origin); err != nil {
			panic(fmt.Errorf("CORS: invalid origin format '%s': %w", origin, err))
		}
	}

	if len(opts.AllowMethods) == 0 {
		opts.AllowMethods = mwopts.NewCORSOptions().AllowMethods
	}
	if len(opts.AllowHeaders) == 0 {
		opts.AllowHeaders = []string{"*"}
	}
	if opts.MaxAge == 0 {
		opts.MaxAge = 86400
	}

	anyHeader := false
	for _, h := range opts.AllowHeaders {
		if h == "*" {
			anyHeader = true
		}
	}

	allowMethods := strings.Join(opts.AllowMethods, ", ")
	allowHeaders := strings.Join(opts.AllowHeaders, ", ")
	exposeHeaders := strings.Join(opts.ExposeHeaders, ", ")
	maxAge := strconv.Itoa(opts.MaxAge)

	return func(c *gin.Context) {
		req := c.Request
		origin := req.Header.Get("Origin")

		allowedOrigin := ""
		for _, o := range opts.AllowOrigins {
			if o == "*" || o == origin {
				allowedOrigin = o
				break
			}
		}

		if allowedOrigin == "" {
			c.Next()
			return
		}

		c.Header("Access-Control-Allow-Origin", allowedOrigin)
		if allowedOrigin != "*" {
			c.Writer.Header().Add("Vary", "Origin")
		}
		if opts.AllowCredentials {
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		if exposeHeaders != "" {
			c.Header("Access-Control-Expose-Headers", exposeHeaders)
		}

		if req.Method == http.MethodOptions {
			c.Header("Access-Control-Allow-Methods", allowMethods)
			headers := allowHeaders
			if requested := req.Header.Get("Access-Control-Request-Headers"); anyHeader && requested != "" {
				headers = requested
			}
			c.Header("Access-Control-Allow-Headers", headers)
			c.Header("Access-Control-Max-Age", maxAge)
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
