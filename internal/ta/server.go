// Package tasvc provides the virtual TA query service server implementation.
package tasvc

import (
	"context"
	"fmt"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/virtual-ta/internal/ta/biz"
	"github.com/kart-io/virtual-ta/internal/ta/handler"
	"github.com/kart-io/virtual-ta/internal/ta/metrics"
	"github.com/kart-io/virtual-ta/internal/ta/router"
	"github.com/kart-io/virtual-ta/pkg/component/redis"
	"github.com/kart-io/virtual-ta/pkg/infra/app"
	"github.com/kart-io/virtual-ta/pkg/infra/pool"
	"github.com/kart-io/virtual-ta/pkg/infra/server"
	"github.com/kart-io/virtual-ta/pkg/infra/tracing"
	// 导入 LLM 供应商以自动注册
	_ "github.com/kart-io/virtual-ta/pkg/llm/huggingface"
	_ "github.com/kart-io/virtual-ta/pkg/llm/ollama"
	_ "github.com/kart-io/virtual-ta/pkg/llm/openai"
	cacheopts "github.com/kart-io/virtual-ta/pkg/options/cache"
	indexopts "github.com/kart-io/virtual-ta/pkg/options/index"
	llmopts "github.com/kart-io/virtual-ta/pkg/options/llm"
	logopts "github.com/kart-io/virtual-ta/pkg/options/logger"
	middlewareopts "github.com/kart-io/virtual-ta/pkg/options/middleware"
	milvusopts "github.com/kart-io/virtual-ta/pkg/options/milvus"
	pipelineopts "github.com/kart-io/virtual-ta/pkg/options/pipeline"
	httpopts "github.com/kart-io/virtual-ta/pkg/options/server/http"
)

// Name is the name of the application.
const Name = "virtual-ta"

// Config contains application-related configurations.
type Config struct {
	HTTPOptions       *httpopts.Options
	LogOptions        *logopts.Options
	MiddlewareOptions *middlewareopts.Options
	PipelineOptions   *pipelineopts.Options
	EmbeddingOptions  *llmopts.ProviderOptions
	RerankerOptions   *llmopts.ProviderOptions
	OCROptions        *llmopts.ProviderOptions
	IndexOptions      *indexopts.Options
	MilvusOptions     *milvusopts.Options
	CacheOptions      *cacheopts.Options
	PoolOptions       *pool.Options
	TracingOptions    *tracing.Options
	RetryAfter        time.Duration
	ShutdownTimeout   time.Duration
}

// Server represents the virtual TA server.
type Server struct {
	srv     *server.Manager
	closers []func(ctx context.Context)
}

// NewServer initializes and returns a new Server instance.
// eager 策略下任何资源加载失败都会中止启动。
func (cfg *Config) NewServer(ctx context.Context) (*Server, error) {
	printBanner(cfg)
	s := &Server{}

	// 1. 初始化日志
	cfg.LogOptions.AddInitialField("service.name", Name)
	cfg.LogOptions.AddInitialField("service.version", app.GetVersion())
	if err := cfg.LogOptions.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Info("Starting virtual TA service...")

	// 2. 初始化链路追踪
	tp, err := tracing.NewProvider(cfg.TracingOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	s.closers = append(s.closers, func(ctx context.Context) { _ = tp.Shutdown(ctx) })

	m := metrics.Default()

	// 3. 初始化 Redis（答案与向量缓存）
	rdb := cfg.connectRedis(ctx)
	if rdb != nil {
		s.closers = append(s.closers, func(context.Context) { _ = rdb.Close() })
	}

	// 4. 注册资源
	resources := biz.NewResourceManager(biz.WithResourceMetrics(m))
	var redisClient goredis.UniversalClient
	if rdb != nil {
		redisClient = rdb.Client()
	}
	cfg.registerResources(resources, redisClient)

	pipeline := biz.NewPipelineConfig(cfg.PipelineOptions, cfg.RerankerOptions.Enabled, cfg.OCROptions.Enabled)
	if pipeline.LoadStrategy == pipelineopts.LoadEager {
		start := time.Now()
		if err := resources.Preload(ctx); err != nil {
			s.close(ctx)
			return nil, fmt.Errorf("failed to preload resources: %w", err)
		}
		logger.Infow("Resources preloaded", "elapsed", time.Since(start).String())
	}

	// 5. 初始化推理池
	inference, err := pool.NewPool("inference", pool.InferencePool, cfg.PoolOptions.ToConfig())
	if err != nil {
		s.close(ctx)
		return nil, fmt.Errorf("failed to create inference pool: %w", err)
	}
	m.RegisterPool(inference.Name(), inference.Running, inference.Waiting)
	s.closers = append(s.closers, func(context.Context) {
		if err := inference.ReleaseTimeout(cfg.ShutdownTimeout); err != nil {
			logger.Warnw("Inference pool did not drain before shutdown", "error", err.Error())
		}
	})

	// 6. 初始化 Biz 层
	opts := []biz.OrchestratorOption{
		biz.WithExecutor(inference),
		biz.WithMetrics(m),
	}
	if redisClient != nil {
		opts = append(opts, biz.WithAnswerCache(biz.NewAnswerCache(redisClient, &biz.AnswerCacheConfig{
			Enabled:     true,
			TTL:         cfg.CacheOptions.AnswerTTL,
			KeyPrefix:   cfg.CacheOptions.KeyPrefix + "ans:",
			Fingerprint: pipeline.Fingerprint() + ";model=" + cfg.EmbeddingOptions.Model,
		}, m)))
	}
	service := biz.NewOrchestrator(resources, pipeline, opts...)
	logger.Infow("Query pipeline initialized",
		"load_strategy", pipeline.LoadStrategy,
		"rerank", pipeline.RerankEnabled,
		"ocr", pipeline.OCREnabled,
		"retrieval_width", pipeline.RetrievalWidth(),
		"cache", redisClient != nil,
	)

	// 7. 初始化 Handler 层与服务器
	h := handler.NewHandler(service,
		handler.WithMetrics(m),
		handler.WithRetryAfter(int(cfg.RetryAfter.Round(time.Second)/time.Second)),
	)
	serverManager := server.NewManager(
		server.WithHTTPOptions(cfg.HTTPOptions),
		server.WithMiddleware(cfg.MiddlewareOptions),
		server.WithShutdownTimeout(cfg.ShutdownTimeout),
	)
	if err := router.Register(serverManager, h); err != nil {
		s.close(ctx)
		return nil, fmt.Errorf("failed to register routes: %w", err)
	}

	// 8. 监听索引文件变更
	if cfg.IndexOptions.Watch {
		w, err := newIndexWatcher(cfg.IndexOptions, m)
		if err != nil {
			logger.Warnw("Index watcher disabled", "error", err.Error())
		} else {
			serverManager.AddServer(w)
		}
	}

	s.srv = serverManager
	logger.Info("Virtual TA service is ready")
	return s, nil
}

// Run starts the server and blocks until ctx is cancelled or a signal arrives.
func (s *Server) Run(ctx context.Context) error {
	defer s.close(context.Background())
	return s.srv.Run(ctx)
}

func (s *Server) close(ctx context.Context) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i](ctx)
	}
	s.closers = nil
}

// connectRedis 缓存启用时连接 Redis，连接失败只降级为无缓存。
func (cfg *Config) connectRedis(ctx context.Context) *redis.Client {
	if !cfg.CacheOptions.Enabled {
		logger.Info("Cache is disabled")
		return nil
	}
	rdb, err := redis.NewWithContext(ctx, cfg.CacheOptions.Redis)
	if err != nil {
		logger.Warnw("Failed to connect to redis, cache will be disabled", "error", err.Error())
		return nil
	}
	logger.Infow("Redis cache initialized",
		"addr", cfg.CacheOptions.Redis.Addr(),
		"answer_ttl", cfg.CacheOptions.AnswerTTL.String(),
		"embedding_ttl", cfg.CacheOptions.EmbeddingTTL.String(),
	)
	return rdb
}

func printBanner(cfg *Config) {
	fmt.Printf("Starting %s...\n", Name)
	fmt.Printf("  Embedding: %s (%s)\n", cfg.EmbeddingOptions.Provider, cfg.EmbeddingOptions.Model)
	if cfg.RerankerOptions.Enabled {
		fmt.Printf("  Reranker: %s (%s, %s)\n", cfg.RerankerOptions.Provider, cfg.RerankerOptions.Model, cfg.PipelineOptions.Scorer)
	}
	if cfg.OCROptions.Enabled {
		fmt.Printf("  OCR: %s (%s)\n", cfg.OCROptions.Provider, cfg.OCROptions.Model)
	}
	fmt.Printf("  Index: %s\n", cfg.IndexOptions.Path)
	if cfg.MiddlewareOptions != nil {
		fmt.Printf("  Enabled Middlewares: %v\n", cfg.MiddlewareOptions.Middleware)
	}
}
