package biz

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/virtual-ta/internal/ta/metrics"
)

func setupTestCache(t *testing.T) (*AnswerCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := NewAnswerCache(client, &AnswerCacheConfig{
		Enabled:     true,
		TTL:         time.Minute,
		KeyPrefix:   "test:",
		Fingerprint: DefaultPipelineConfig().Fingerprint(),
	}, metrics.New())
	return c, mr
}

func TestAnswerCacheRoundTrip(t *testing.T) {
	c, mr := setupTestCache(t)
	ctx := context.Background()

	_, ok := c.Get(ctx, "q")
	assert.False(t, ok)

	c.Set(ctx, "q", &Answer{Answer: "a", Links: []Link{{URL: "u", Text: "t"}}})
	got, ok := c.Get(ctx, "q")
	require.True(t, ok)
	assert.Equal(t, "a", got.Answer)
	assert.Equal(t, []Link{{URL: "u", Text: "t"}}, got.Links)

	mr.FastForward(2 * time.Minute)
	_, ok = c.Get(ctx, "q")
	assert.False(t, ok)
}

func TestAnswerCacheCorruptEntryIsEvicted(t *testing.T) {
	c, mr := setupTestCache(t)
	key := c.key("q")
	require.NoError(t, mr.Set(key, "{not json"))

	_, ok := c.Get(context.Background(), "q")
	assert.False(t, ok)
	assert.False(t, mr.Exists(key))
}

func TestAnswerCacheFingerprintSeparatesKeys(t *testing.T) {
	c, _ := setupTestCache(t)
	other := *c.config
	other.Fingerprint = "k=10;rerank=true;n=2;len=300"
	c2 := &AnswerCache{redis: c.redis, config: &other, metrics: c.metrics}

	assert.NotEqual(t, c.key("q"), c2.key("q"))
}

func TestAnswerCacheDisabled(t *testing.T) {
	var nilCache *AnswerCache
	_, ok := nilCache.Get(context.Background(), "q")
	assert.False(t, ok)
	nilCache.Set(context.Background(), "q", &Answer{})

	c := NewAnswerCache(nil, nil, metrics.New())
	c.Set(context.Background(), "q", &Answer{Answer: "a"})
	_, ok = c.Get(context.Background(), "q")
	assert.False(t, ok)
}

func TestResolveServesFromCache(t *testing.T) {
	env := newTestEnv(t)
	c, _ := setupTestCache(t)
	o := env.orchestrator(nil, WithAnswerCache(c))

	first := o.Resolve(context.Background(), Query{Text: "docker"})
	require.Equal(t, OutcomeSuccess, first.Outcome)
	assert.False(t, first.Cached)

	second := o.Resolve(context.Background(), Query{Text: "docker"})
	assert.True(t, second.Cached)
	assert.Equal(t, first.Answer, second.Answer)
	assert.Equal(t, int32(1), env.embedder.calls.Load())
}
