// Package common provides shared utilities for middleware packages.
package common

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

// Header constants used across middleware.
const (
	// HeaderXRequestID is the header name for request ID.
	HeaderXRequestID = "X-Request-ID"
	// HeaderTraceID is the header name for trace ID.
	HeaderTraceID = "X-Trace-ID"
)

// RequestIDKey is the context key type for request ID.
// Exported for use by other packages.
type RequestIDKey struct{}

// GetRequestID returns the request ID from the context.
// Returns empty string if not found.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey{}, requestID)
}

// requestIDCounter is the atomic counter for fallback request ID generation.
var requestIDCounter uint64

// GenerateRequestID generates a random request ID using cryptographic random bytes.
// If random generation fails, it falls back to a deterministic ID.
func GenerateRequestID() string {
	b := make([]byte, 16)
	n, err := rand.Read(b)
	if err != nil || n != 16 {
		return generateFallbackRequestID()
	}
	return hex.EncodeToString(b)
}

// generateFallbackRequestID generates a deterministic request ID when random generation fails.
func generateFallbackRequestID() string {
	timestamp := time.Now().Unix()
	counter := atomic.AddUint64(&requestIDCounter, 1)
	return fmt.Sprintf("%x-%x", timestamp, counter)
}

var (
	ulidMu      sync.Mutex
	ulidEntropy = ulid.Monotonic(rand.Reader, 0)
)

// GenerateULID generates a lexically sortable request ID.
func GenerateULID() string {
	ulidMu.Lock()
	defer ulidMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(time.Now()), ulidEntropy)
	if err != nil {
		return generateFallbackRequestID()
	}
	return id.String()
}

// GeneratorFor returns the request ID generator for the configured type.
func GeneratorFor(kind string) func() string {
	if kind == "ulid" {
		return GenerateULID
	}
	return GenerateRequestID
}
