package biz

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/virtual-ta/internal/ta/metrics"
	"github.com/kart-io/virtual-ta/pkg/utils/json"
)

// AnswerCacheConfig 答案缓存配置。
type AnswerCacheConfig struct {
	// Enabled 是否启用缓存。
	Enabled bool
	// TTL 缓存过期时间。
	TTL time.Duration
	// KeyPrefix 缓存键前缀。
	KeyPrefix string
	// Fingerprint 影响答案内容的配置摘要，配置变化后旧缓存自然失效。
	Fingerprint string
}

// AnswerCache 基于 Redis 的答案缓存。只缓存成功组装的答案。
type AnswerCache struct {
	redis   goredis.UniversalClient
	config  *AnswerCacheConfig
	metrics *metrics.Metrics
}

// NewAnswerCache 创建答案缓存，redis 为 nil 时缓存关闭。
func NewAnswerCache(redis goredis.UniversalClient, config *AnswerCacheConfig, m *metrics.Metrics) *AnswerCache {
	if config == nil {
		config = &AnswerCacheConfig{
			Enabled:   false,
			TTL:       10 * time.Minute,
			KeyPrefix: "vta:",
		}
	}
	if m == nil {
		m = metrics.Default()
	}
	return &AnswerCache{redis: redis, config: config, metrics: m}
}

func (c *AnswerCache) enabled() bool {
	return c != nil && c.config.Enabled && c.redis != nil
}

// key 基于配置摘要与问题生成缓存键（SHA256）。
func (c *AnswerCache) key(question string) string {
	hash := sha256.Sum256([]byte(c.config.Fingerprint + "\x00" + question))
	return c.config.KeyPrefix + "answer:" + hex.EncodeToString(hash[:])
}

// Get 查询缓存，未命中或出错都返回 false。
func (c *AnswerCache) Get(ctx context.Context, question string) (*Answer, bool) {
	if !c.enabled() {
		return nil, false
	}

	key := c.key(question)
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			logger.Warnw("failed to get answer from cache", "error", err.Error(), "key", key)
		}
		c.metrics.RecordCache("answer", false)
		return nil, false
	}

	var answer Answer
	if err := json.Unmarshal(data, &answer); err != nil {
		logger.Warnw("failed to unmarshal cached answer", "error", err.Error(), "key", key)
		_ = c.redis.Del(ctx, key).Err()
		c.metrics.RecordCache("answer", false)
		return nil, false
	}
	if answer.Links == nil {
		answer.Links = []Link{}
	}

	c.metrics.RecordCache("answer", true)
	logger.Debugw("answer cache hit", "key", key)
	return &answer, true
}

// Set 写入缓存，失败只记录日志。
func (c *AnswerCache) Set(ctx context.Context, question string, answer *Answer) {
	if !c.enabled() || answer == nil {
		return
	}

	key := c.key(question)
	data, err := json.Marshal(answer)
	if err != nil {
		logger.Warnw("failed to marshal answer for caching", "error", err.Error())
		return
	}
	if err := c.redis.Set(ctx, key, data, c.config.TTL).Err(); err != nil {
		logger.Warnw("failed to cache answer", "error", err.Error(), "key", key)
	}
}
