package biz

import (
	"context"
	"math"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kart-io/virtual-ta/internal/ta/metrics"
	"github.com/kart-io/virtual-ta/internal/ta/store"
	"github.com/kart-io/virtual-ta/pkg/infra/pool"
	"github.com/kart-io/virtual-ta/pkg/llm"
)

// fakeEmbedder 按关键字把问题映射到二维向量。
type fakeEmbedder struct {
	delay time.Duration
	calls atomic.Int32
	err   error
}

func (e *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.EmbedSingle(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *fakeEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if e.err != nil {
		return nil, e.err
	}
	switch {
	case strings.Contains(text, "docker"):
		return []float32{10, 0}, nil
	case strings.Contains(text, "deadline"):
		return []float32{0, 0}, nil
	default:
		return []float32{0, 10}, nil
	}
}

func (e *fakeEmbedder) Name() string { return "fake" }

type fakeRecognizer struct {
	text string
	err  error
}

func (r *fakeRecognizer) ExtractText(context.Context, []byte, string) (string, error) {
	return r.text, r.err
}

type fakeScorer struct {
	scores []float64
	err    error
}

func (s *fakeScorer) Score(_ context.Context, _ string, texts []string) ([]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.scores[:len(texts)], nil
}

// rangeIndex 返回固定命中，用于构造越界位置。
type rangeIndex struct {
	hits []store.Hit
}

func (r *rangeIndex) Dimension() int { return 2 }
func (r *rangeIndex) Len() int       { return len(r.hits) }
func (r *rangeIndex) Search(_ context.Context, _ []float32, k int) ([]store.Hit, error) {
	if k < len(r.hits) {
		return r.hits[:k], nil
	}
	return r.hits, nil
}
func (r *rangeIndex) Close(context.Context) error { return nil }

// pngHeader 足以让 mimetype 识别为 image/png。
var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func testFragments() []store.Fragment {
	return []store.Fragment{
		{ID: 1, URL: "https://discourse.example.com/t/deadline/1", Title: "GA1 deadline", Text: "The GA1 deadline is Sunday 23:59 IST."},
		{ID: 2, URL: "https://discourse.example.com/t/deadline/1", Title: "GA1 deadline", Text: "Late submissions are not accepted\nfor GA1."},
		{ID: 3, URL: "https://discourse.example.com/t/docker/2", Title: "", Text: "Use podman or docker for the project."},
		{ID: 4, URL: "https://discourse.example.com/t/misc/3", Title: "Misc", Text: "Office hours are on Fridays."},
	}
}

func testCorpus(t *testing.T) *store.Corpus {
	t.Helper()
	idx, err := store.NewFlatIndex(2, [][]float32{
		{0, 0},
		{0, 1},
		{10, 0},
		{0, 10},
	})
	require.NoError(t, err)
	return &store.Corpus{Index: idx, Fragments: testFragments()}
}

type testEnv struct {
	embedder   *fakeEmbedder
	recognizer *fakeRecognizer
	scorer     *fakeScorer
	corpus     *store.Corpus
	loadErr    error
	resources  *ResourceManager
	metrics    *metrics.Metrics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	m := metrics.New()
	env := &testEnv{
		embedder:   &fakeEmbedder{},
		recognizer: &fakeRecognizer{},
		scorer:     &fakeScorer{scores: []float64{0.1, 0.9, 0.5, 0.2}},
		corpus:     testCorpus(t),
		metrics:    m,
	}
	env.resources = NewResourceManager(WithResourceMetrics(m))
	env.resources.Register(ResourceEmbedder, func(context.Context) (any, error) {
		if env.loadErr != nil {
			return nil, env.loadErr
		}
		return llm.EmbeddingProvider(env.embedder), nil
	})
	env.resources.Register(ResourceCorpus, func(context.Context) (any, error) { return env.corpus, nil })
	env.resources.Register(ResourceScorer, func(context.Context) (any, error) { return PairScorer(env.scorer), nil })
	env.resources.Register(ResourceRecognizer, func(context.Context) (any, error) { return Recognizer(env.recognizer), nil })
	return env
}

func (e *testEnv) orchestrator(cfg *PipelineConfig, opts ...OrchestratorOption) *Orchestrator {
	opts = append([]OrchestratorOption{WithMetrics(e.metrics)}, opts...)
	return NewOrchestrator(e.resources, cfg, opts...)
}

// rejectingExecutor 模拟容量已满的推理池。
type rejectingExecutor struct{}

func (rejectingExecutor) SubmitWithContext(context.Context, func()) error {
	return pool.ErrPoolOverload
}

func isNegInf(f float64) bool { return math.IsInf(f, -1) }
