// Package pipeline provides query pipeline configuration options.
package pipeline

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/virtual-ta/pkg/options"
	"github.com/kart-io/virtual-ta/pkg/utils/validator"
)

var _ options.IOptions = (*Options)(nil)

// 资源加载策略
const (
	LoadEager = "eager"
	LoadLazy  = "lazy"
)

// 重排序打分器
const (
	ScorerCrossEncoder = "cross-encoder"
	ScorerLLM          = "llm"
)

// Options 查询流水线配置。
type Options struct {
	// LoadStrategy eager 启动即加载全部资源，lazy 首个请求时加载
	LoadStrategy string `json:"load-strategy" mapstructure:"load-strategy" validate:"oneof=eager lazy"`

	// TopK 不重排序时的检索数量
	TopK int `json:"top-k" mapstructure:"top-k" validate:"min=1,max=100"`

	// RerankTopK 启用重排序时的候选数量，通常大于 TopK
	RerankTopK int `json:"rerank-top-k" mapstructure:"rerank-top-k" validate:"min=1,max=200"`

	// Scorer 重排序打分方式
	Scorer string `json:"scorer" mapstructure:"scorer" validate:"oneof=cross-encoder llm"`

	// MaxFragments 答案中引用的片段数（也是链接上限）
	MaxFragments int `json:"max-fragments" mapstructure:"max-fragments" validate:"min=1,max=10"`

	// SnippetLength 每个片段截取的字符数
	SnippetLength int `json:"snippet-length" mapstructure:"snippet-length" validate:"min=1"`

	// RequestTimeout 单次查询超时
	RequestTimeout time.Duration `json:"request-timeout" mapstructure:"request-timeout" validate:"min=1ms"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		LoadStrategy:   LoadLazy,
		TopK:           3,
		RerankTopK:     10,
		Scorer:         ScorerCrossEncoder,
		MaxFragments:   2,
		SnippetLength:  300,
		RequestTimeout: 30 * time.Second,
	}
}

// AddFlags adds flags for pipeline options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "pipeline."
	fs.StringVar(&o.LoadStrategy, p+"load-strategy", o.LoadStrategy, "Resource load strategy: eager (at startup) or lazy (on first request).")
	fs.IntVar(&o.TopK, p+"top-k", o.TopK, "Candidates retrieved when reranking is disabled.")
	fs.IntVar(&o.RerankTopK, p+"rerank-top-k", o.RerankTopK, "Candidates retrieved when reranking is enabled.")
	fs.StringVar(&o.Scorer, p+"scorer", o.Scorer, "Rerank scorer: cross-encoder or llm.")
	fs.IntVar(&o.MaxFragments, p+"max-fragments", o.MaxFragments, "Fragments quoted in the answer and maximum number of links.")
	fs.IntVar(&o.SnippetLength, p+"snippet-length", o.SnippetLength, "Characters kept from each quoted fragment.")
	fs.DurationVar(&o.RequestTimeout, p+"request-timeout", o.RequestTimeout, "Per-query timeout.")
}

// Validate validates the pipeline options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}
	errs := validator.StructErrors(o)
	for i, err := range errs {
		errs[i] = fmt.Errorf("pipeline: %w", err)
	}
	return errs
}

// Complete completes the pipeline options with defaults.
func (o *Options) Complete() error {
	if o.LoadStrategy == "" {
		o.LoadStrategy = LoadLazy
	}
	if o.Scorer == "" {
		o.Scorer = ScorerCrossEncoder
	}
	return nil
}
