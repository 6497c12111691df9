package biz

import (
	"context"

	"github.com/kart-io/logger"

	"github.com/kart-io/virtual-ta/internal/ta/metrics"
	"github.com/kart-io/virtual-ta/internal/ta/store"
)

// Retriever 在向量索引中检索最近的 k 个片段。
type Retriever struct {
	metrics *metrics.Metrics
}

// NewRetriever 创建检索器。
func NewRetriever(m *metrics.Metrics) *Retriever {
	if m == nil {
		m = metrics.Default()
	}
	return &Retriever{metrics: m}
}

// Search 返回按 L2 距离升序排列的候选。
// 位置为负或超出片段元数据范围的命中被静默丢弃；索引不足 k 条时返回全部。
func (r *Retriever) Search(ctx context.Context, corpus *store.Corpus, embedding []float32, k int) ([]Candidate, error) {
	hits, err := corpus.Index.Search(ctx, embedding, k)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(hits))
	dropped := 0
	for _, h := range hits {
		if h.Position < 0 || h.Position >= len(corpus.Fragments) {
			dropped++
			continue
		}
		candidates = append(candidates, Candidate{
			Fragment: corpus.Fragments[h.Position],
			Position: h.Position,
			Score:    h.Distance,
		})
	}

	if dropped > 0 {
		r.metrics.RecordDroppedPositions(dropped)
		logger.Debugw("Dropped out-of-range index hits",
			"dropped", dropped,
			"fragments", len(corpus.Fragments),
		)
	}
	return candidates, nil
}
