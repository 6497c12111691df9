package tasvc

import (
	"context"
	"fmt"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/virtual-ta/internal/ta/biz"
	"github.com/kart-io/virtual-ta/internal/ta/store"
	"github.com/kart-io/virtual-ta/pkg/component/milvus"
	"github.com/kart-io/virtual-ta/pkg/llm"
	"github.com/kart-io/virtual-ta/pkg/llm/resilience"
	pipelineopts "github.com/kart-io/virtual-ta/pkg/options/pipeline"
)

// llmScorerConcurrency LLM 打分时并发请求数。
const llmScorerConcurrency = 4

// registerResources 向资源管理器注册全部重量级资源的加载器。
// 未启用的阶段不注册，对应资源不会被加载。
func (cfg *Config) registerResources(m *biz.ResourceManager, rdb goredis.UniversalClient) {
	m.Register(biz.ResourceEmbedder, cfg.loadEmbedder(rdb))
	m.Register(biz.ResourceCorpus, m.CorpusLoader(cfg.loadCorpus))
	if cfg.RerankerOptions.Enabled {
		m.Register(biz.ResourceScorer, cfg.loadScorer)
	}
	if cfg.OCROptions.Enabled {
		m.Register(biz.ResourceRecognizer, cfg.loadRecognizer)
	}
}

func (cfg *Config) loadEmbedder(rdb goredis.UniversalClient) biz.Loader {
	return func(ctx context.Context) (any, error) {
		opts := cfg.EmbeddingOptions
		p, err := llm.NewEmbeddingProvider(opts.Provider, opts.ToConfigMap())
		if err != nil {
			return nil, fmt.Errorf("failed to create embedding provider: %w", err)
		}

		var embedder llm.EmbeddingProvider = resilience.WrapEmbedding(p, nil, nil)
		if rdb != nil {
			embedder = llm.NewCachedEmbeddingProvider(embedder, rdb, &llm.EmbeddingCacheConfig{
				Enabled:   true,
				TTL:       cfg.CacheOptions.EmbeddingTTL,
				KeyPrefix: cfg.CacheOptions.KeyPrefix + "emb:",
			})
		}

		// 探测一次，确保模型可用并获知向量维度
		probe, err := embedder.EmbedSingle(ctx, "ping")
		if err != nil {
			return nil, fmt.Errorf("embedding model %s is not reachable: %w", opts.Model, err)
		}
		logger.Infow("Embedding model loaded",
			"provider", opts.Provider,
			"model", opts.Model,
			"dimension", len(probe),
		)
		return embedder, nil
	}
}

func (cfg *Config) loadCorpus(ctx context.Context) (*store.Corpus, error) {
	dial := func(ctx context.Context) (*milvus.Client, error) {
		return milvus.New(ctx, cfg.MilvusOptions)
	}
	corpus, err := store.Open(ctx, cfg.IndexOptions, dial)
	if err != nil {
		return nil, err
	}
	logger.Infow("Corpus loaded",
		"path", cfg.IndexOptions.Path,
		"metadata_backend", cfg.IndexOptions.MetadataBackend,
		"vector_backend", cfg.IndexOptions.VectorBackend,
		"fragments", len(corpus.Fragments),
		"dimension", corpus.Manifest.Dimension,
	)
	return corpus, nil
}

func (cfg *Config) loadScorer(_ context.Context) (any, error) {
	opts := cfg.RerankerOptions
	switch cfg.PipelineOptions.Scorer {
	case pipelineopts.ScorerLLM:
		chat, err := llm.NewChatProvider(opts.Provider, opts.ToConfigMap())
		if err != nil {
			return nil, fmt.Errorf("failed to create rerank chat provider: %w", err)
		}
		logger.Infow("LLM rerank scorer loaded", "provider", opts.Provider, "model", opts.Model)
		return biz.NewLLMScorer(chat, llmScorerConcurrency), nil
	default:
		p, err := llm.NewRerankProvider(opts.Provider, opts.ToConfigMap())
		if err != nil {
			return nil, fmt.Errorf("failed to create cross-encoder provider: %w", err)
		}
		logger.Infow("Cross-encoder loaded", "provider", opts.Provider, "model", opts.Model)
		return biz.NewCrossEncoderScorer(resilience.WrapRerank(p, nil)), nil
	}
}

func (cfg *Config) loadRecognizer(_ context.Context) (any, error) {
	opts := cfg.OCROptions
	p, err := llm.NewVisionProvider(opts.Provider, opts.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to create OCR provider: %w", err)
	}
	logger.Infow("OCR engine loaded", "provider", opts.Provider, "model", opts.Model)
	return p, nil
}
