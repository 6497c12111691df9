package http

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mwopts "github.com/kart-io/virtual-ta/pkg/options/middleware"
	options "github.com/kart-io/virtual-ta/pkg/options/server/http"
)

func newTestServer(mw *mwopts.Options) *Server {
	opts := options.NewOptions()
	opts.Addr = "127.0.0.1:0"
	opts.Mode = gin.TestMode
	return NewServer(opts, mw)
}

func TestDefaultMiddlewareChain(t *testing.T) {
	s := newTestServer(nil)
	s.Engine().GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Origin", "https://example.com")
	s.Engine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoveryFirst(t *testing.T) {
	s := newTestServer(nil)
	s.Engine().GET("/panic", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestMiddlewareSubset(t *testing.T) {
	mw := mwopts.NewOptions()
	mw.Middleware = []string{mwopts.MiddlewareRecovery}
	s := newTestServer(mw)
	s.Engine().GET("/test", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Header().Get("X-Request-ID"))
}

func TestNoRouteUsesEnvelope(t *testing.T) {
	s := newTestServer(nil)
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"code"`)
}

func TestStartStop(t *testing.T) {
	s := newTestServer(nil)
	s.Engine().GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	require.NoError(t, s.Start(context.Background()))
	resp, err := http.Get(fmt.Sprintf("http://%s/ping", s.Addr()))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}

func TestStartPortInUse(t *testing.T) {
	a := newTestServer(nil)
	require.NoError(t, a.Start(context.Background()))
	defer func() { _ = a.Stop(context.Background()) }()

	opts := options.NewOptions()
	opts.Addr = a.Addr()
	opts.Mode = gin.TestMode
	b := NewServer(opts, nil)
	assert.Error(t, b.Start(context.Background()))
}
