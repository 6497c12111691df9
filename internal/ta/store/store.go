package store

import (
	"context"
)

// Fragment 语料中的一个片段。
type Fragment struct {
	ID      int64  `json:"id"`
	URL     string `json:"url"`
	Title   string `json:"title"`
	Text    string `json:"text"`
	TopicID string `json:"topic_id"`
	PostID  int64  `json:"post_id,omitempty"`
}

// Hit 向量检索命中：索引位置与 L2 距离（平方）。
type Hit struct {
	Position int
	Distance float64
}

// VectorIndex 定义最近邻检索接口。
type VectorIndex interface {
	// Dimension 向量维度。
	Dimension() int
	// Len 索引中的向量数。
	Len() int
	// Search 返回距离最近的 k 个位置，按距离升序。
	Search(ctx context.Context, vector []float32, k int) ([]Hit, error)
	// Close 释放后端资源。
	Close(ctx context.Context) error
}

// Manifest 索引文件头信息。
type Manifest struct {
	Version   int    `json:"version"`
	Dimension int    `json:"dimension"`
	Count     int    `json:"count"`
	Model     string `json:"model"`
	BuiltAt   int64  `json:"built_at"`
}

// FormatVersion 当前索引文件格式版本。
const FormatVersion = 1
