package indexer

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kart-io/logger"
	"github.com/schollz/progressbar/v3"

	"github.com/kart-io/virtual-ta/internal/ta/store"
	"github.com/kart-io/virtual-ta/pkg/errors"
	"github.com/kart-io/virtual-ta/pkg/llm"
)

// VectorSink 额外接收向量的后端，例如 Milvus 集合。
type VectorSink interface {
	EnsureCollection(ctx context.Context, dim int, recreate bool) error
	Insert(ctx context.Context, ids []int64, vectors [][]float32) error
}

// Config 索引构建配置。
type Config struct {
	// Inputs 帖子导出文件的 glob 模式。
	Inputs []string
	// IndexPath bbolt 索引文件路径。
	IndexPath string
	// SQLitePath 非空时同时写入 sqlite 片段表。
	SQLitePath string
	// Model 记录在索引头中的模型名。
	Model string
	// BatchSize 每批向量化的文本数。
	BatchSize int
	// Recreate 重建向量后端中已存在的集合。
	Recreate bool
}

// Result 构建结果统计。
type Result struct {
	Files     int
	Posts     int
	Fragments int
	Dimension int
	Elapsed   time.Duration
}

// Indexer 从帖子导出构建检索索引。
type Indexer struct {
	config   *Config
	embedder llm.EmbeddingProvider
	sink     VectorSink
	progress io.Writer
}

// Option Indexer 选项。
type Option func(*Indexer)

// WithVectorSink 同时把向量写入 sink。
func WithVectorSink(sink VectorSink) Option {
	return func(i *Indexer) { i.sink = sink }
}

// WithProgress 设置进度条输出，默认 stderr。
func WithProgress(w io.Writer) Option {
	return func(i *Indexer) { i.progress = w }
}

// New 创建 Indexer。
func New(config *Config, embedder llm.EmbeddingProvider, opts ...Option) *Indexer {
	if config.BatchSize <= 0 {
		config.BatchSize = 64
	}
	i := &Indexer{config: config, embedder: embedder, progress: os.Stderr}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Run 读取输入、向量化并写出索引。
// 向量与片段一起原子写入 bolt 文件，中途失败不会留下半成品。
func (i *Indexer) Run(ctx context.Context) (*Result, error) {
	start := time.Now()

	files, err := Discover(i.config.Inputs)
	if err != nil {
		return nil, err
	}

	var posts []Post
	for _, f := range files {
		p, err := LoadPosts(f)
		if err != nil {
			return nil, err
		}
		logger.Debugw("Loaded posts", "file", f, "count", len(p))
		posts = append(posts, p...)
	}

	fragments := ToFragments(posts)
	logger.Infow("Found valid posts to index",
		"files", len(files),
		"posts", len(posts),
		"fragments", len(fragments),
	)
	if len(fragments) == 0 {
		return nil, errors.ErrIndexBuild.WithMessage("no post has content to index")
	}

	vectors, err := i.embed(ctx, fragments)
	if err != nil {
		return nil, err
	}
	dim := len(vectors[0])

	if err := store.WriteBolt(i.config.IndexPath, store.Manifest{
		Dimension: dim,
		Model:     i.config.Model,
	}, fragments, vectors); err != nil {
		return nil, err
	}
	logger.Infow("Index written", "path", i.config.IndexPath, "dimension", dim)

	if i.config.SQLitePath != "" {
		if err := store.WriteSQLite(ctx, i.config.SQLitePath, fragments); err != nil {
			return nil, err
		}
		logger.Infow("Fragment metadata written", "path", i.config.SQLitePath)
	}

	if i.sink != nil {
		if err := i.sink.EnsureCollection(ctx, dim, i.config.Recreate); err != nil {
			return nil, errors.ErrIndexBuild.WithCause(err)
		}
		ids := make([]int64, len(fragments))
		for n := range fragments {
			ids[n] = int64(n)
		}
		if err := i.sink.Insert(ctx, ids, vectors); err != nil {
			return nil, errors.ErrIndexBuild.WithCause(err)
		}
		logger.Infow("Vectors inserted into vector backend", "count", len(ids))
	}

	return &Result{
		Files:     len(files),
		Posts:     len(posts),
		Fragments: len(fragments),
		Dimension: dim,
		Elapsed:   time.Since(start),
	}, nil
}

func (i *Indexer) embed(ctx context.Context, fragments []store.Fragment) ([][]float32, error) {
	bar := progressbar.NewOptions(len(fragments),
		progressbar.OptionSetWriter(i.progress),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("Embedding"),
		progressbar.OptionOnCompletion(func() {
			_, _ = fmt.Fprintln(i.progress)
		}),
	)

	vectors := make([][]float32, 0, len(fragments))
	for start := 0; start < len(fragments); start += i.config.BatchSize {
		end := min(start+i.config.BatchSize, len(fragments))
		texts := make([]string, 0, end-start)
		for _, f := range fragments[start:end] {
			texts = append(texts, f.Text)
		}

		batch, err := i.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, errors.ErrIndexBuild.WithCause(err).WithMessagef("embedding batch %d-%d failed", start, end)
		}
		if len(batch) != len(texts) {
			return nil, errors.ErrIndexBuild.WithMessagef("embedding batch %d-%d returned %d vectors", start, end, len(batch))
		}
		vectors = append(vectors, batch...)
		_ = bar.Set(len(vectors))
	}
	return vectors, nil
}
