// Package options contains flags and options for the index build job.
package options

import (
	"fmt"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/kart-io/virtual-ta/internal/indexer"
	"github.com/kart-io/virtual-ta/pkg/infra/app"
	indexopts "github.com/kart-io/virtual-ta/pkg/options/index"
	llmopts "github.com/kart-io/virtual-ta/pkg/options/llm"
	logopts "github.com/kart-io/virtual-ta/pkg/options/logger"
	milvusopts "github.com/kart-io/virtual-ta/pkg/options/milvus"
)

var _ app.CliOptions = (*IndexerOptions)(nil)

// IndexerOptions contains the configuration options for ta-indexer.
type IndexerOptions struct {
	LogOptions       *logopts.Options         `json:"log" mapstructure:"log"`
	EmbeddingOptions *llmopts.ProviderOptions `json:"embedding" mapstructure:"embedding"`
	IndexOptions     *indexopts.Options       `json:"index" mapstructure:"index"`
	MilvusOptions    *milvusopts.Options      `json:"milvus" mapstructure:"milvus"`

	// Inputs 帖子导出文件的 glob 模式，支持 **。
	Inputs []string `json:"inputs" mapstructure:"inputs"`
	// BatchSize 每批向量化的帖子数。
	BatchSize int `json:"batch-size" mapstructure:"batch-size"`
	// Recreate 重建 Milvus 中已存在的集合。
	Recreate bool `json:"recreate" mapstructure:"recreate"`
}

// NewIndexerOptions creates an IndexerOptions instance with default values.
func NewIndexerOptions() *IndexerOptions {
	return &IndexerOptions{
		LogOptions:       logopts.NewOptions(),
		EmbeddingOptions: llmopts.NewEmbeddingOptions(),
		IndexOptions:     indexopts.NewOptions(),
		MilvusOptions:    milvusopts.NewOptions(),
		Inputs:           []string{"tds_discourse_posts.json"},
		BatchSize:        64,
		Recreate:         true,
	}
}

// Flags returns flags grouped by section.
func (o *IndexerOptions) Flags() (fss app.NamedFlagSets) {
	o.LogOptions.AddFlags(fss.FlagSet("log"))
	o.EmbeddingOptions.AddFlags(fss.FlagSet("embedding"))
	o.IndexOptions.AddFlags(fss.FlagSet("index"))
	o.MilvusOptions.AddFlags(fss.FlagSet("milvus"))

	fs := fss.FlagSet("input")
	fs.StringSliceVar(&o.Inputs, "inputs", o.Inputs, "Glob patterns of post dump files (.json, .yaml).")
	fs.IntVar(&o.BatchSize, "batch-size", o.BatchSize, "Number of posts embedded per provider call.")
	fs.BoolVar(&o.Recreate, "recreate", o.Recreate, "Drop and recreate an existing Milvus collection.")

	return fss
}

// Complete completes all the required options.
func (o *IndexerOptions) Complete() error {
	if err := o.LogOptions.Complete(); err != nil {
		return err
	}
	if err := o.EmbeddingOptions.Complete(); err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	if err := o.IndexOptions.Complete(); err != nil {
		return fmt.Errorf("index: %w", err)
	}
	return o.MilvusOptions.Complete()
}

// Validate checks whether the options are valid.
func (o *IndexerOptions) Validate() error {
	errs := []error{}

	errs = append(errs, o.LogOptions.Validate()...)
	errs = append(errs, o.EmbeddingOptions.Validate()...)
	errs = append(errs, o.IndexOptions.Validate()...)
	if o.IndexOptions.VectorBackend == indexopts.VectorMilvus {
		errs = append(errs, o.MilvusOptions.Validate()...)
	}
	if len(o.Inputs) == 0 {
		errs = append(errs, fmt.Errorf("at least one input pattern is required"))
	}
	if o.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batch-size must be positive"))
	}

	return utilerrors.NewAggregate(errs)
}

// Config builds the indexer configuration.
func (o *IndexerOptions) Config() *indexer.Config {
	cfg := &indexer.Config{
		Inputs:    o.Inputs,
		IndexPath: o.IndexOptions.Path,
		Model:     o.EmbeddingOptions.Model,
		BatchSize: o.BatchSize,
		Recreate:  o.Recreate,
	}
	if o.IndexOptions.MetadataBackend == indexopts.MetadataSQLite {
		cfg.SQLitePath = o.IndexOptions.SQLitePath
	}
	return cfg
}
