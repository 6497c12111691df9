package httpclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		b, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"q":"hi"}`, string(b))
		_, _ = w.Write([]byte(`{"a":"ok"}`))
	}))
	defer srv.Close()

	c := NewClient(5*time.Second, 0)
	var out struct {
		A string `json:"a"`
	}
	err := c.PostJSON(context.Background(), srv.URL, map[string]string{"Authorization": "Bearer k"}, map[string]string{"q": "hi"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "ok", out.A)
}

func TestDoRequestRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		assert.Equal(t, "payload", string(b))
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(5*time.Second, 1)
	req, _ := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader("payload"))
	resp, err := c.DoRequest(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestDoJSONStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(5*time.Second, 0)
	err := c.PostJSON(context.Background(), srv.URL, nil, struct{}{}, nil)
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode)
	assert.True(t, se.Retryable())
}

func TestInjectTraceContext(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	otel.SetTextMapPropagator(propagation.TraceContext{})

	c := NewClient(time.Second, 0)

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil).WithContext(ctx)
	c.injectTraceContext(req)
	assert.Len(t, req.Header.Get("traceparent"), 55)

	bare := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	c.injectTraceContext(bare)
	assert.Empty(t, bare.Header.Get("traceparent"))
}
