package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	mockProvider
	calls int
}

func (c *countingEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	return c.mockProvider.EmbedSingle(ctx, text)
}

func TestCachedEmbeddingProviderPassthroughWithoutRedis(t *testing.T) {
	inner := &countingEmbedder{mockProvider: mockProvider{name: "inner"}}
	c := NewCachedEmbeddingProvider(inner, nil, nil)

	v, err := c.EmbedSingle(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, v)

	_, _ = c.EmbedSingle(context.Background(), "hello")
	assert.Equal(t, 2, inner.calls)

	batch, err := c.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, batch, 2)
	assert.Equal(t, "inner", c.Name())
}

func TestCacheKeyIncludesProvider(t *testing.T) {
	a := NewCachedEmbeddingProvider(&mockProvider{name: "a"}, nil, nil)
	b := NewCachedEmbeddingProvider(&mockProvider{name: "b"}, nil, nil)

	assert.NotEqual(t, a.cacheKey("x"), b.cacheKey("x"))
	assert.Equal(t, a.cacheKey("x"), a.cacheKey("x"))
	assert.Contains(t, a.cacheKey("x"), "vta:emb:")
}
