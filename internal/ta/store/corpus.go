package store

import (
	"context"
	"fmt"

	"github.com/kart-io/logger"

	"github.com/kart-io/virtual-ta/pkg/component/milvus"
	"github.com/kart-io/virtual-ta/pkg/errors"
	indexopts "github.com/kart-io/virtual-ta/pkg/options/index"
)

// Corpus 检索所需的只读资源：向量索引与按位置对齐的片段。
type Corpus struct {
	Index     VectorIndex
	Fragments []Fragment
	Manifest  Manifest
}

// Close 释放索引后端。
func (c *Corpus) Close(ctx context.Context) error {
	if c == nil || c.Index == nil {
		return nil
	}
	return c.Index.Close(ctx)
}

// MilvusDialer 按需建立 Milvus 连接，仅在 vector-backend=milvus 时调用。
type MilvusDialer func(ctx context.Context) (*milvus.Client, error)

// Open 按配置加载语料。任何不一致都视为索引损坏。
func Open(ctx context.Context, opts *indexopts.Options, dial MilvusDialer) (*Corpus, error) {
	art, err := ReadBolt(opts.Path)
	if err != nil {
		return nil, err
	}

	fragments := art.Fragments
	if opts.MetadataBackend == indexopts.MetadataSQLite {
		fragments, err = ReadSQLite(ctx, opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		if len(fragments) != art.Manifest.Count {
			return nil, errors.ErrIndexCorrupt.WithMessagef("sqlite holds %d fragments, index holds %d vectors", len(fragments), art.Manifest.Count)
		}
	}

	var idx VectorIndex
	switch opts.VectorBackend {
	case indexopts.VectorMilvus:
		if dial == nil {
			return nil, fmt.Errorf("milvus vector backend selected but no milvus client configured")
		}
		client, err := dial(ctx)
		if err != nil {
			return nil, err
		}
		if rows, err := client.Count(ctx); err == nil && rows != int64(art.Manifest.Count) {
			logger.Warnw("Milvus collection size differs from index file",
				"collection", client.Collection(),
				"rows", rows,
				"fragments", art.Manifest.Count,
			)
		}
		idx = NewMilvusIndex(client, art.Manifest.Dimension, art.Manifest.Count)
	default:
		idx, err = NewFlatIndex(art.Manifest.Dimension, art.Vectors)
		if err != nil {
			return nil, err
		}
	}

	logger.Infow("Corpus loaded",
		"path", opts.Path,
		"fragments", len(fragments),
		"dimension", art.Manifest.Dimension,
		"model", art.Manifest.Model,
		"metadata_backend", opts.MetadataBackend,
		"vector_backend", opts.VectorBackend,
	)
	return &Corpus{Index: idx, Fragments: fragments, Manifest: art.Manifest}, nil
}
