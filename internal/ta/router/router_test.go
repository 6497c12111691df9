package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/virtual-ta/internal/ta/biz"
	"github.com/kart-io/virtual-ta/internal/ta/handler"
	"github.com/kart-io/virtual-ta/internal/ta/metrics"
	"github.com/kart-io/virtual-ta/pkg/infra/server"
	httpopts "github.com/kart-io/virtual-ta/pkg/options/server/http"
)

type stubService struct{}

func (stubService) Resolve(context.Context, biz.Query) *biz.Result {
	return &biz.Result{Outcome: biz.OutcomeNoMatch, Answer: biz.CannedAnswer(biz.AnswerNoMatch)}
}

func (stubService) Ready() error { return nil }

func newRoutedEngine(t *testing.T) *gin.Engine {
	t.Helper()
	httpOpts := httpopts.NewOptions()
	httpOpts.Addr = "127.0.0.1:0"
	httpOpts.Mode = gin.TestMode

	mgr := server.NewManager(server.WithHTTPOptions(httpOpts))
	require.NoError(t, Register(mgr, handler.NewHandler(stubService{}, handler.WithMetrics(metrics.New()))))
	return mgr.HTTPServer().Engine()
}

func TestRegisterRoutes(t *testing.T) {
	r := newRoutedEngine(t)

	tests := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodGet, "/", "", http.StatusOK},
		{http.MethodHead, "/", "", http.StatusOK},
		{http.MethodPost, "/api", `{"question":"q"}`, http.StatusOK},
		{http.MethodPost, "/", `{"question":"q"}`, http.StatusOK},
		{http.MethodGet, "/healthz", "", http.StatusOK},
		{http.MethodGet, "/readyz", "", http.StatusOK},
		{http.MethodGet, "/version", "", http.StatusOK},
		{http.MethodGet, "/metrics", "", http.StatusOK},
		{http.MethodGet, "/nope", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestQueryRouteIsCORSOpen(t *testing.T) {
	r := newRoutedEngine(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api", strings.NewReader(`{"question":"q"}`))
	req.Header.Set("Origin", "https://student.example")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.JSONEq(t, `{"answer":"No relevant content found.","links":[]}`, w.Body.String())
}
