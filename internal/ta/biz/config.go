package biz

import (
	"fmt"
	"time"

	pipelineopts "github.com/kart-io/virtual-ta/pkg/options/pipeline"
)

// PipelineConfig 编排器配置，一个配置覆盖所有部署形态。
type PipelineConfig struct {
	RerankEnabled  bool
	OCREnabled     bool
	LoadStrategy   string
	TopK           int
	RerankTopK     int
	MaxFragments   int
	SnippetLength  int
	RequestTimeout time.Duration
}

// NewPipelineConfig 由配置项构建编排器配置。
func NewPipelineConfig(opts *pipelineopts.Options, rerankEnabled, ocrEnabled bool) *PipelineConfig {
	return &PipelineConfig{
		RerankEnabled:  rerankEnabled,
		OCREnabled:     ocrEnabled,
		LoadStrategy:   opts.LoadStrategy,
		TopK:           opts.TopK,
		RerankTopK:     opts.RerankTopK,
		MaxFragments:   opts.MaxFragments,
		SnippetLength:  opts.SnippetLength,
		RequestTimeout: opts.RequestTimeout,
	}
}

// DefaultPipelineConfig 返回默认配置（不重排序、不识别图片、懒加载）。
func DefaultPipelineConfig() *PipelineConfig {
	return NewPipelineConfig(pipelineopts.NewOptions(), false, false)
}

// RetrievalWidth 检索候选数：启用重排序时取更宽的候选集。
func (c *PipelineConfig) RetrievalWidth() int {
	if c.RerankEnabled {
		return c.RerankTopK
	}
	return c.TopK
}

// Fingerprint 影响答案内容的配置摘要，用作缓存键的一部分。
func (c *PipelineConfig) Fingerprint() string {
	return fmt.Sprintf("k=%d;rerank=%t;n=%d;len=%d", c.RetrievalWidth(), c.RerankEnabled, c.MaxFragments, c.SnippetLength)
}
