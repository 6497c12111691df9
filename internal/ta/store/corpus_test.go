package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/virtual-ta/pkg/errors"
	indexopts "github.com/kart-io/virtual-ta/pkg/options/index"
)

func TestOpenBolt(t *testing.T) {
	dir := t.TempDir()
	opts := indexopts.NewOptions()
	opts.Path = filepath.Join(dir, "index.db")
	require.NoError(t, WriteBolt(opts.Path, Manifest{Dimension: 3}, testFragments(), testVectors()))

	c, err := Open(context.Background(), opts, nil)
	require.NoError(t, err)
	defer func() { _ = c.Close(context.Background()) }()

	assert.Len(t, c.Fragments, 3)
	assert.Equal(t, 3, c.Index.Dimension())
	assert.Equal(t, 3, c.Index.Len())
}

func TestOpenSQLiteMetadata(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	opts := indexopts.NewOptions()
	opts.Path = filepath.Join(dir, "index.db")
	opts.MetadataBackend = indexopts.MetadataSQLite
	opts.SQLitePath = filepath.Join(dir, "fragments.sqlite")

	require.NoError(t, WriteBolt(opts.Path, Manifest{Dimension: 3}, testFragments(), testVectors()))
	require.NoError(t, WriteSQLite(ctx, opts.SQLitePath, testFragments()))

	c, err := Open(ctx, opts, nil)
	require.NoError(t, err)
	assert.Equal(t, testFragments(), c.Fragments)

	// 元数据少于向量视为损坏
	require.NoError(t, WriteSQLite(ctx, opts.SQLitePath, testFragments()[:2]))
	_, err = Open(ctx, opts, nil)
	assert.True(t, errors.IsCode(err, errors.ErrIndexCorrupt.Code))
}

func TestOpenMilvusWithoutDialer(t *testing.T) {
	dir := t.TempDir()
	opts := indexopts.NewOptions()
	opts.Path = filepath.Join(dir, "index.db")
	opts.VectorBackend = indexopts.VectorMilvus
	require.NoError(t, WriteBolt(opts.Path, Manifest{Dimension: 3}, testFragments(), testVectors()))

	_, err := Open(context.Background(), opts, nil)
	assert.Error(t, err)
}
