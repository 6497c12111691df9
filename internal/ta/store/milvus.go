package store

import (
	"context"

	"github.com/kart-io/virtual-ta/pkg/component/milvus"
	"github.com/kart-io/virtual-ta/pkg/errors"
)

var _ VectorIndex = (*MilvusIndex)(nil)

// MilvusIndex 由 Milvus 集合提供 L2 检索，行主键即片段位置。
type MilvusIndex struct {
	client *milvus.Client
	dim    int
	n      int
}

// NewMilvusIndex 创建 Milvus 检索后端，dim 与 n 取自索引文件。
func NewMilvusIndex(client *milvus.Client, dim, n int) *MilvusIndex {
	return &MilvusIndex{client: client, dim: dim, n: n}
}

// Dimension 向量维度。
func (m *MilvusIndex) Dimension() int { return m.dim }

// Len 索引文件中的片段数。
func (m *MilvusIndex) Len() int { return m.n }

// Search 调用 Milvus 检索，距离为平方 L2。
func (m *MilvusIndex) Search(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	if len(vector) != m.dim {
		return nil, errors.ErrIndexDimension.WithMessagef("query dimension %d, index dimension %d", len(vector), m.dim)
	}
	if k <= 0 {
		return nil, nil
	}
	res, err := m.client.Search(ctx, vector, k)
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, len(res))
	for i, r := range res {
		hits[i] = Hit{Position: int(r.ID), Distance: float64(r.Distance)}
	}
	return hits, nil
}

// Close 关闭 Milvus 连接。
func (m *MilvusIndex) Close(ctx context.Context) error {
	return m.client.Close(ctx)
}
