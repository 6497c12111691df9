package observability

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/kart-io/virtual-ta/pkg/infra/middleware/common"
	"github.com/kart-io/virtual-ta/pkg/infra/middleware/internal/pathutil"
	"github.com/kart-io/virtual-ta/pkg/infra/tracing"
)

// TracerName is the name of the tracer for HTTP middleware.
const TracerName = "github.com/kart-io/virtual-ta/pkg/infra/middleware"

// Tracing creates a server span per request.
//
// This middleware:
//   - Extracts W3C trace context from incoming requests
//   - Adds standard HTTP attributes (method, route, status code)
//   - Records 5xx responses as span errors
func Tracing(skipPaths ...string) gin.HandlerFunc {
	skip := pathutil.NewPathMatcher(skipPaths, nil)

	return func(c *gin.Context) {
		req := c.Request
		if skip(req.URL.Path) {
			c.Next()
			return
		}

		ctx := tracing.Propagator().Extract(req.Context(), propagation.HeaderCarrier(req.Header))

		route := c.FullPath()
		if route == "" {
			route = req.URL.Path
		}
		ctx, span := tracing.StartSpanWithKind(ctx, TracerName, fmt.Sprintf("%s %s", req.Method, route), trace.SpanKindServer)
		defer span.End()

		attrs := []attribute.KeyValue{
			semconv.HTTPMethod(req.Method),
			semconv.HTTPRoute(route),
			semconv.HTTPTarget(req.URL.Path),
			semconv.ServerAddress(req.Host),
			attribute.String(tracing.HTTPClientIP, c.ClientIP()),
		}
		if ua := req.UserAgent(); ua != "" {
			attrs = append(attrs, semconv.UserAgentOriginal(ua))
		}
		if requestID := common.GetRequestID(req.Context()); requestID != "" {
			attrs = append(attrs, attribute.String(tracing.HTTPRequestID, requestID))
		}
		span.SetAttributes(attrs...)

		c.Request = req.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(semconv.HTTPStatusCode(status))
		if status >= http.StatusInternalServerError {
			span.RecordError(fmt.Errorf("HTTP %d: %s", status, http.StatusText(status)))
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}
