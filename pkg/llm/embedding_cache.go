package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/virtual-ta/pkg/utils/json"
)

// EmbeddingCacheConfig Embedding 缓存配置。
type EmbeddingCacheConfig struct {
	Enabled bool
	// TTL 缓存过期时间。
	TTL time.Duration
	// KeyPrefix 缓存键前缀，键的其余部分为 model 与文本的 SHA256。
	KeyPrefix string
}

// DefaultEmbeddingCacheConfig 返回默认的 Embedding 缓存配置。
func DefaultEmbeddingCacheConfig() *EmbeddingCacheConfig {
	return &EmbeddingCacheConfig{
		Enabled:   true,
		TTL:       24 * time.Hour,
		KeyPrefix: "vta:emb:",
	}
}

// CachedEmbeddingProvider 以 Redis 缓存查询向量的包装器。
// Redis 不可用时退化为直接调用底层 provider。
type CachedEmbeddingProvider struct {
	provider EmbeddingProvider
	redis    goredis.UniversalClient
	config   *EmbeddingCacheConfig
}

// NewCachedEmbeddingProvider 创建带缓存的 Embedding Provider。
func NewCachedEmbeddingProvider(provider EmbeddingProvider, redis goredis.UniversalClient, config *EmbeddingCacheConfig) *CachedEmbeddingProvider {
	if config == nil {
		config = DefaultEmbeddingCacheConfig()
	}
	return &CachedEmbeddingProvider{provider: provider, redis: redis, config: config}
}

func (c *CachedEmbeddingProvider) cacheKey(text string) string {
	hash := sha256.Sum256([]byte(c.provider.Name() + "\x00" + text))
	return c.config.KeyPrefix + hex.EncodeToString(hash[:])
}

func (c *CachedEmbeddingProvider) enabled() bool {
	return c.config.Enabled && c.redis != nil
}

// EmbedSingle 生成单个文本的 Embedding（带缓存）。
func (c *CachedEmbeddingProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	if !c.enabled() {
		return c.provider.EmbedSingle(ctx, text)
	}

	key := c.cacheKey(text)
	if v, ok := c.get(ctx, key); ok {
		return v, nil
	}

	embedding, err := c.provider.EmbedSingle(ctx, text)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, embedding)
	return embedding, nil
}

// Embed 批量生成 Embedding，仅对未命中的文本调用底层 provider。
func (c *CachedEmbeddingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if !c.enabled() {
		return c.provider.Embed(ctx, texts)
	}

	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		if v, ok := c.get(ctx, c.cacheKey(text)); ok {
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	fresh, err := c.provider.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for i, idx := range missIdx {
		out[idx] = fresh[i]
		c.set(ctx, c.cacheKey(missTexts[i]), fresh[i])
	}
	return out, nil
}

func (c *CachedEmbeddingProvider) get(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			logger.Warnw("embedding cache get failed", "error", err.Error())
		}
		return nil, false
	}

	var v []float32
	if err := json.Unmarshal(data, &v); err != nil {
		logger.Warnw("corrupt cached embedding, deleting", "key", key, "error", err.Error())
		_ = c.redis.Del(ctx, key).Err()
		return nil, false
	}
	return v, true
}

func (c *CachedEmbeddingProvider) set(ctx context.Context, key string, v []float32) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.config.TTL).Err(); err != nil {
		logger.Warnw("embedding cache set failed", "key", key, "error", err.Error())
	}
}

// Name 返回底层 provider 的名称。
func (c *CachedEmbeddingProvider) Name() string {
	return c.provider.Name()
}

var _ EmbeddingProvider = (*CachedEmbeddingProvider)(nil)
