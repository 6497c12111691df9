package store

import (
	"container/heap"
	"context"
	"fmt"

	"github.com/kart-io/virtual-ta/pkg/errors"
)

var _ VectorIndex = (*FlatIndex)(nil)

// FlatIndex 内存中的精确 L2 检索，向量按位置连续存放。
type FlatIndex struct {
	dim  int
	n    int
	data []float32
}

// NewFlatIndex 用按位置排列的向量构建索引。
func NewFlatIndex(dim int, vectors [][]float32) (*FlatIndex, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("invalid dimension %d", dim)
	}
	data := make([]float32, 0, dim*len(vectors))
	for i, v := range vectors {
		if len(v) != dim {
			return nil, errors.ErrIndexDimension.WithMessagef("vector %d has dimension %d, want %d", i, len(v), dim)
		}
		data = append(data, v...)
	}
	return &FlatIndex{dim: dim, n: len(vectors), data: data}, nil
}

// Dimension 向量维度。
func (f *FlatIndex) Dimension() int { return f.dim }

// Len 向量数。
func (f *FlatIndex) Len() int { return f.n }

// Search 精确计算平方 L2 距离并取最近的 k 个。距离相同时位置小者优先。
func (f *FlatIndex) Search(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	if len(vector) != f.dim {
		return nil, errors.ErrIndexDimension.WithMessagef("query dimension %d, index dimension %d", len(vector), f.dim)
	}
	if k <= 0 || f.n == 0 {
		return nil, nil
	}
	if k > f.n {
		k = f.n
	}

	h := make(hitHeap, 0, k)
	for pos := 0; pos < f.n; pos++ {
		if pos%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		d := l2(vector, f.data[pos*f.dim:(pos+1)*f.dim])
		hit := Hit{Position: pos, Distance: d}
		if len(h) < k {
			heap.Push(&h, hit)
			continue
		}
		if worse(h[0], hit) {
			h[0] = hit
			heap.Fix(&h, 0)
		}
	}

	out := make([]Hit, len(h))
	for i := len(h) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&h).(Hit)
	}
	return out, nil
}

// Close 无需释放。
func (f *FlatIndex) Close(context.Context) error { return nil }

func l2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

// worse 报告 a 是否排在 b 之后。
func worse(a, b Hit) bool {
	if a.Distance != b.Distance {
		return a.Distance > b.Distance
	}
	return a.Position > b.Position
}

// hitHeap 以最差命中为堆顶。
type hitHeap []Hit

func (h hitHeap) Len() int            { return len(h) }
func (h hitHeap) Less(i, j int) bool  { return worse(h[i], h[j]) }
func (h hitHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *hitHeap) Push(x interface{}) { *h = append(*h, x.(Hit)) }
func (h *hitHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
