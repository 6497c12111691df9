// Package app provides the ta-indexer application.
package app

import (
	"context"
	"fmt"

	"github.com/kart-io/logger"

	"github.com/kart-io/virtual-ta/cmd/ta-indexer/app/options"
	"github.com/kart-io/virtual-ta/internal/indexer"
	"github.com/kart-io/virtual-ta/pkg/component/milvus"
	"github.com/kart-io/virtual-ta/pkg/infra/app"
	"github.com/kart-io/virtual-ta/pkg/llm"
	// 导入 LLM 供应商以自动注册
	_ "github.com/kart-io/virtual-ta/pkg/llm/huggingface"
	_ "github.com/kart-io/virtual-ta/pkg/llm/ollama"
	_ "github.com/kart-io/virtual-ta/pkg/llm/openai"
	"github.com/kart-io/virtual-ta/pkg/llm/resilience"
	indexopts "github.com/kart-io/virtual-ta/pkg/options/index"
)

// Name is the name of the application.
const Name = "ta-indexer"

const commandDesc = `Builds the virtual TA index from forum post dumps.

Posts with empty content are skipped. The remaining posts are embedded in
batches and written, vectors and metadata together, to the bbolt index file.
Optionally the metadata is also written to sqlite and the vectors to Milvus.`

// NewApp creates and returns the ta-indexer App.
func NewApp() *app.App {
	opts := options.NewIndexerOptions()
	return app.NewApp(
		app.WithName(Name),
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithRunFunc(run(opts)),
	)
}

func run(opts *options.IndexerOptions) app.RunFunc {
	return func(ctx context.Context) error {
		opts.LogOptions.AddInitialField("service.name", Name)
		opts.LogOptions.AddInitialField("service.version", app.GetVersion())
		if err := opts.LogOptions.Init(); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		p, err := llm.NewEmbeddingProvider(opts.EmbeddingOptions.Provider, opts.EmbeddingOptions.ToConfigMap())
		if err != nil {
			return fmt.Errorf("failed to initialize embedding provider: %w", err)
		}
		embedder := resilience.WrapEmbedding(p, nil, nil)

		var idxOpts []indexer.Option
		if opts.IndexOptions.VectorBackend == indexopts.VectorMilvus {
			client, err := milvus.New(ctx, opts.MilvusOptions)
			if err != nil {
				return fmt.Errorf("failed to initialize milvus: %w", err)
			}
			defer func() { _ = client.Close(context.Background()) }()
			idxOpts = append(idxOpts, indexer.WithVectorSink(client))
		}

		res, err := indexer.New(opts.Config(), embedder, idxOpts...).Run(ctx)
		if err != nil {
			return err
		}

		logger.Infow("Index build completed",
			"files", res.Files,
			"posts", res.Posts,
			"fragments", res.Fragments,
			"dimension", res.Dimension,
			"elapsed", res.Elapsed.String(),
		)
		fmt.Printf("[DONE] Indexed %d posts from %d files.\n", res.Fragments, res.Files)
		fmt.Printf("→ Index saved to %s\n", opts.IndexOptions.Path)
		return nil
	}
}
