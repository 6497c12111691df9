// Package options contains flags and options for initializing the virtual TA server.
package options

import (
	"fmt"
	"time"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	tasvc "github.com/kart-io/virtual-ta/internal/ta"
	"github.com/kart-io/virtual-ta/pkg/infra/app"
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

var _ app.CliOptions = (*ServerOptions)(nil)

// ServerOptions contains the configuration options for the server.
type ServerOptions struct {
	// HTTPOptions contains HTTP server configuration.
	HTTPOptions *httpopts.Options `json:"http" mapstructure:"http"`

	// LogOptions contains logger configuration.
	LogOptions *logopts.Options `json:"log" mapstructure:"log"`

	// MiddlewareOptions contains middleware configuration.
	MiddlewareOptions *middlewareopts.Options `json:"middleware" mapstructure:"middleware"`

	// PipelineOptions contains query pipeline configuration.
	PipelineOptions *pipelineopts.Options `json:"pipeline" mapstructure:"pipeline"`

	// EmbeddingOptions contains embedding provider configuration.
	EmbeddingOptions *llmopts.ProviderOptions `json:"embedding" mapstructure:"embedding"`

	// RerankerOptions contains reranker provider configuration.
	RerankerOptions *llmopts.ProviderOptions `json:"reranker" mapstructure:"reranker"`

	// OCROptions contains image text recognition provider configuration.
	OCROptions *llmopts.ProviderOptions `json:"ocr" mapstructure:"ocr"`

	// IndexOptions contains index artifact configuration.
	IndexOptions *indexopts.Options `json:"index" mapstructure:"index"`

	// MilvusOptions contains Milvus configuration, used when index.vector-backend=milvus.
	MilvusOptions *milvusopts.Options `json:"milvus" mapstructure:"milvus"`

	// CacheOptions contains cache configuration.
	CacheOptions *cacheopts.Options `json:"cache" mapstructure:"cache"`

	// PoolOptions contains inference pool configuration.
	PoolOptions *pool.Options `json:"pool" mapstructure:"pool"`

	// TracingOptions contains tracing configuration.
	TracingOptions *tracing.Options `json:"tracing" mapstructure:"tracing"`

	// RetryAfter is the Retry-After hint returned with overload responses.
	RetryAfter time.Duration `json:"retry-after" mapstructure:"retry-after"`

	// ShutdownTimeout is the timeout for graceful shutdown.
	ShutdownTimeout time.Duration `json:"shutdown-timeout" mapstructure:"shutdown-timeout"`
}

// NewServerOptions creates a ServerOptions instance with default values.
func NewServerOptions() *ServerOptions {
	tracingOpts := tracing.NewOptions()
	tracingOpts.ServiceName = tasvc.Name

	return &ServerOptions{
		HTTPOptions:       httpopts.NewOptions(),
		LogOptions:        logopts.NewOptions(),
		MiddlewareOptions: middlewareopts.NewOptions(),
		PipelineOptions:   pipelineopts.NewOptions(),
		EmbeddingOptions:  llmopts.NewEmbeddingOptions(),
		RerankerOptions:   llmopts.NewRerankerOptions(),
		OCROptions:        llmopts.NewOCROptions(),
		IndexOptions:      indexopts.NewOptions(),
		MilvusOptions:     milvusopts.NewOptions(),
		CacheOptions:      cacheopts.NewOptions(),
		PoolOptions:       pool.NewOptions(),
		TracingOptions:    tracingOpts,
		RetryAfter:        time.Second,
		ShutdownTimeout:   30 * time.Second,
	}
}

// Flags returns flags for a specific server by section name.
func (o *ServerOptions) Flags() (fss app.NamedFlagSets) {
	o.HTTPOptions.AddFlags(fss.FlagSet("http"))
	o.LogOptions.AddFlags(fss.FlagSet("log"))
	o.MiddlewareOptions.AddFlags(fss.FlagSet("middleware"))
	o.PipelineOptions.AddFlags(fss.FlagSet("pipeline"))
	o.EmbeddingOptions.AddFlags(fss.FlagSet("embedding"))
	o.RerankerOptions.AddFlags(fss.FlagSet("reranker"))
	o.OCROptions.AddFlags(fss.FlagSet("ocr"))
	o.IndexOptions.AddFlags(fss.FlagSet("index"))
	o.MilvusOptions.AddFlags(fss.FlagSet("milvus"))
	o.CacheOptions.AddFlags(fss.FlagSet("cache"))
	o.PoolOptions.AddFlags(fss.FlagSet("pool"))
	o.TracingOptions.AddFlags(fss.FlagSet("tracing"))

	// misc flags
	fs := fss.FlagSet("misc")
	fs.DurationVar(&o.RetryAfter, "retry-after", o.RetryAfter, "Retry-After hint sent when the inference pool is saturated.")
	fs.DurationVar(&o.ShutdownTimeout, "shutdown-timeout", o.ShutdownTimeout, "Graceful shutdown timeout")

	return fss
}

// Complete completes all the required options.
func (o *ServerOptions) Complete() error {
	if err := o.HTTPOptions.Complete(); err != nil {
		return err
	}
	if err := o.LogOptions.Complete(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if err := o.MiddlewareOptions.Complete(); err != nil {
		return fmt.Errorf("middleware: %w", err)
	}
	if err := o.PipelineOptions.Complete(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	for _, p := range []*llmopts.ProviderOptions{o.EmbeddingOptions, o.RerankerOptions, o.OCROptions} {
		if err := p.Complete(); err != nil {
			return fmt.Errorf("%s: %w", p.Role(), err)
		}
	}
	if err := o.IndexOptions.Complete(); err != nil {
		return fmt.Errorf("index: %w", err)
	}
	if err := o.MilvusOptions.Complete(); err != nil {
		return fmt.Errorf("milvus: %w", err)
	}
	if err := o.CacheOptions.Complete(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if err := o.TracingOptions.Complete(); err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	o.TracingOptions.ServiceVersion = app.GetVersion()
	return nil
}

// Validate checks whether the options in ServerOptions are valid.
func (o *ServerOptions) Validate() error {
	errs := []error{}

	errs = append(errs, o.HTTPOptions.Validate()...)
	errs = append(errs, o.LogOptions.Validate()...)
	errs = append(errs, o.MiddlewareOptions.Validate()...)
	errs = append(errs, o.PipelineOptions.Validate()...)
	errs = append(errs, o.EmbeddingOptions.Validate()...)
	errs = append(errs, o.RerankerOptions.Validate()...)
	errs = append(errs, o.OCROptions.Validate()...)
	errs = append(errs, o.IndexOptions.Validate()...)
	if o.IndexOptions.VectorBackend == indexopts.VectorMilvus {
		errs = append(errs, o.MilvusOptions.Validate()...)
	}
	errs = append(errs, o.CacheOptions.Validate()...)
	errs = append(errs, o.PoolOptions.Validate()...)
	errs = append(errs, o.TracingOptions.Validate()...)
	if o.RetryAfter < time.Second {
		errs = append(errs, fmt.Errorf("retry-after must be at least 1s"))
	}
	if o.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown-timeout must be positive"))
	}

	return utilerrors.NewAggregate(errs)
}

// Config builds a tasvc.Config based on ServerOptions.
func (o *ServerOptions) Config() (*tasvc.Config, error) {
	return &tasvc.Config{
		HTTPOptions:       o.HTTPOptions,
		LogOptions:        o.LogOptions,
		MiddlewareOptions: o.MiddlewareOptions,
		PipelineOptions:   o.PipelineOptions,
		EmbeddingOptions:  o.EmbeddingOptions,
		RerankerOptions:   o.RerankerOptions,
		OCROptions:        o.OCROptions,
		IndexOptions:      o.IndexOptions,
		MilvusOptions:     o.MilvusOptions,
		CacheOptions:      o.CacheOptions,
		PoolOptions:       o.PoolOptions,
		TracingOptions:    o.TracingOptions,
		RetryAfter:        o.RetryAfter,
		ShutdownTimeout:   o.ShutdownTimeout,
	}, nil
}
