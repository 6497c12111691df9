package tasvc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/virtual-ta/pkg/infra/pool"
	"github.com/kart-io/virtual-ta/pkg/infra/tracing"
	cacheopts "github.com/kart-io/virtual-ta/pkg/options/cache"
	indexopts "github.com/kart-io/virtual-ta/pkg/options/index"
	llmopts "github.com/kart-io/virtual-ta/pkg/options/llm"
	logopts "github.com/kart-io/virtual-ta/pkg/options/logger"
	middlewareopts "github.com/kart-io/virtual-ta/pkg/options/middleware"
	milvusopts "github.com/kart-io/virtual-ta/pkg/options/milvus"
	pipelineopts "github.com/kart-io/virtual-ta/pkg/options/pipeline"
	httpopts "github.com/kart-io/virtual-ta/pkg/options/server/http"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	httpOpts := httpopts.NewOptions()
	httpOpts.Addr = "127.0.0.1:0"
	httpOpts.Mode = gin.TestMode

	index := indexopts.NewOptions()
	index.Path = filepath.Join(t.TempDir(), "missing.db")

	embedding := llmopts.NewEmbeddingOptions()
	// 不可达地址，保证加载快速失败
	embedding.BaseURL = "http://127.0.0.1:1"
	embedding.Timeout = 200 * time.Millisecond
	embedding.MaxRetries = 0

	return &Config{
		HTTPOptions:       httpOpts,
		LogOptions:        logopts.NewOptions(),
		MiddlewareOptions: middlewareopts.NewOptions(),
		PipelineOptions:   pipelineopts.NewOptions(),
		EmbeddingOptions:  embedding,
		RerankerOptions:   llmopts.NewRerankerOptions(),
		OCROptions:        llmopts.NewOCROptions(),
		IndexOptions:      index,
		MilvusOptions:     milvusopts.NewOptions(),
		CacheOptions:      cacheopts.NewOptions(),
		PoolOptions:       pool.NewOptions(),
		TracingOptions:    tracing.NewOptions(),
		RetryAfter:        time.Second,
		ShutdownTimeout:   time.Second,
	}
}

func TestEagerStartupAbortsOnLoadFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.PipelineOptions.LoadStrategy = pipelineopts.LoadEager

	s, err := cfg.NewServer(context.Background())
	require.Error(t, err)
	assert.Nil(t, s)
	assert.Contains(t, err.Error(), "preload")
}

func TestLazyStartupDefersLoadFailure(t *testing.T) {
	cfg := testConfig(t)

	s, err := cfg.NewServer(context.Background())
	require.NoError(t, err)
	defer s.close(context.Background())

	engine := s.srv.HTTPServer().Engine()
	serve := func(method, path, body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		engine.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, serve(http.MethodGet, "/", "").Code)
	assert.Equal(t, http.StatusOK, serve(http.MethodGet, "/readyz", "").Code)

	// 空问题不触发资源加载
	w := serve(http.MethodPost, "/api", `{"question":"  "}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"answer":"No question provided.","links":[]}`, w.Body.String())

	// 首个真实问题触发加载，加载失败为永久性 503
	for i := 0; i < 2; i++ {
		w = serve(http.MethodPost, "/api", `{"question":"What is docker?"}`)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	}
	assert.Equal(t, http.StatusServiceUnavailable, serve(http.MethodGet, "/readyz", "").Code)
}
