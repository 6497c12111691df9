package resilience

import (
	"context"
	"errors"
	"net"

	"github.com/kart-io/virtual-ta/pkg/llm"
	"github.com/kart-io/virtual-ta/pkg/utils/httpclient"
)

// EmbeddingProvider 带重试和熔断的 Embedding 包装器。
type EmbeddingProvider struct {
	provider llm.EmbeddingProvider
	retry    *RetryConfig
	cb       *CircuitBreaker
}

// WrapEmbedding 为 Embedding 供应商加上重试和熔断。
func WrapEmbedding(p llm.EmbeddingProvider, retry *RetryConfig, cb *CircuitBreakerConfig) *EmbeddingProvider {
	if retry == nil {
		retry = DefaultRetryConfig()
	}
	return &EmbeddingProvider{
		provider: p,
		retry:    retry,
		cb:       NewCircuitBreaker("embedding:"+p.Name(), cb),
	}
}

// Embed 为多个文本生成向量嵌入。
func (r *EmbeddingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := RetryWithBackoff(ctx, r.retry, func() error {
		return r.cb.Execute(func() error {
			var err error
			out, err = r.provider.Embed(ctx, texts)
			return err
		})
	})
	return out, err
}

// EmbedSingle 为单个文本生成向量嵌入。
func (r *EmbeddingProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := RetryWithBackoff(ctx, r.retry, func() error {
		return r.cb.Execute(func() error {
			var err error
			out, err = r.provider.EmbedSingle(ctx, text)
			return err
		})
	})
	return out, err
}

// Name 返回底层供应商名称。
func (r *EmbeddingProvider) Name() string { return r.provider.Name() }

// CircuitBreaker 返回内部熔断器。
func (r *EmbeddingProvider) CircuitBreaker() *CircuitBreaker { return r.cb }

// RerankProvider 带熔断的 Rerank 包装器，重排序失败由调用方降级，不做重试。
type RerankProvider struct {
	provider llm.RerankProvider
	cb       *CircuitBreaker
}

// WrapRerank 为 Rerank 供应商加上熔断。
func WrapRerank(p llm.RerankProvider, cb *CircuitBreakerConfig) *RerankProvider {
	return &RerankProvider{provider: p, cb: NewCircuitBreaker("rerank:"+p.Name(), cb)}
}

// Rerank 对文档打分。
func (r *RerankProvider) Rerank(ctx context.Context, query string, docs []string) ([]float64, error) {
	var out []float64
	err := r.cb.Execute(func() error {
		var err error
		out, err = r.provider.Rerank(ctx, query, docs)
		return err
	})
	return out, err
}

// Name 返回底层供应商名称。
func (r *RerankProvider) Name() string { return r.provider.Name() }

// IsRetryableError 判断错误是否可重试。
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCircuitBreakerOpen) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var se *httpclient.StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

var (
	_ llm.EmbeddingProvider = (*EmbeddingProvider)(nil)
	_ llm.RerankProvider    = (*RerankProvider)(nil)
)
