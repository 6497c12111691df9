package indexer

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/virtual-ta/internal/ta/store"
	errno "github.com/kart-io/virtual-ta/pkg/errors"
)

type lengthEmbedder struct {
	batches int
	err     error
}

func (e *lengthEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.batches++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), float32(strings.Count(t, " "))}
	}
	return out, nil
}

func (e *lengthEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	v, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (e *lengthEmbedder) Name() string { return "length" }

type recordingSink struct {
	dim      int
	recreate bool
	ids      []int64
	vectors  [][]float32
}

func (s *recordingSink) EnsureCollection(_ context.Context, dim int, recreate bool) error {
	s.dim, s.recreate = dim, recreate
	return nil
}

func (s *recordingSink) Insert(_ context.Context, ids []int64, vectors [][]float32) error {
	s.ids = append(s.ids, ids...)
	s.vectors = append(s.vectors, vectors...)
	return nil
}

func TestRunWritesArtifacts(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "dump", "posts.json"), jsonPosts)
	writeFile(t, filepath.Join(dir, "dump", "more", "posts.yaml"), yamlPosts)

	cfg := &Config{
		Inputs:     []string{filepath.Join(dir, "dump", "**", "*.{json,yaml}")},
		IndexPath:  filepath.Join(dir, "out", "index.db"),
		SQLitePath: filepath.Join(dir, "out", "fragments.sqlite"),
		Model:      "all-minilm",
		BatchSize:  2,
		Recreate:   true,
	}
	embedder := &lengthEmbedder{}
	sink := &recordingSink{}

	res, err := New(cfg, embedder, WithVectorSink(sink), WithProgress(io.Discard)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Files)
	assert.Equal(t, 4, res.Posts)
	assert.Equal(t, 3, res.Fragments)
	assert.Equal(t, 2, res.Dimension)
	assert.Equal(t, 2, embedder.batches)

	art, err := store.ReadBolt(cfg.IndexPath)
	require.NoError(t, err)
	assert.Equal(t, 3, art.Manifest.Count)
	assert.Equal(t, 2, art.Manifest.Dimension)
	assert.Equal(t, "all-minilm", art.Manifest.Model)
	require.Len(t, art.Vectors, 3)
	for i, f := range art.Fragments {
		assert.Equal(t, float32(len(f.Text)), art.Vectors[i][0])
	}

	fragments, err := store.ReadSQLite(context.Background(), cfg.SQLitePath)
	require.NoError(t, err)
	assert.Equal(t, art.Fragments, fragments)

	assert.Equal(t, 2, sink.dim)
	assert.True(t, sink.recreate)
	assert.Equal(t, []int64{0, 1, 2}, sink.ids)
}

func TestRunFailures(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "empty.json"), `[{"content": "  "}]`)
	writeFile(t, filepath.Join(dir, "posts.json"), jsonPosts)
	indexPath := filepath.Join(dir, "index.db")

	_, err := New(&Config{
		Inputs:    []string{filepath.Join(dir, "empty.json")},
		IndexPath: indexPath,
	}, &lengthEmbedder{}, WithProgress(io.Discard)).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errno.IsCode(err, errno.ErrIndexBuild.Code))

	_, err = New(&Config{
		Inputs:    []string{filepath.Join(dir, "posts.json")},
		IndexPath: indexPath,
	}, &lengthEmbedder{err: errors.New("model offline")}, WithProgress(io.Discard)).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errno.IsCode(err, errno.ErrIndexBuild.Code))

	// 失败时不写出索引文件
	_, err = store.ReadBolt(indexPath)
	assert.Error(t, err)
}
