package biz

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/virtual-ta/internal/ta/metrics"
	"github.com/kart-io/virtual-ta/internal/ta/store"
	"github.com/kart-io/virtual-ta/pkg/errors"
	"github.com/kart-io/virtual-ta/pkg/infra/pool"
	"github.com/kart-io/virtual-ta/pkg/llm"
)

func TestResolveEmptyQuestion(t *testing.T) {
	env := newTestEnv(t)
	o := env.orchestrator(nil)

	for _, q := range []Query{{}, {Text: "   \n"}} {
		res := o.Resolve(context.Background(), q)
		assert.Equal(t, OutcomeEmptyQuestion, res.Outcome)
		assert.Equal(t, StateEmptyQuestion, res.State)
		require.NotNil(t, res.Answer)
		assert.Equal(t, AnswerNoQuestion, res.Answer.Answer)
		assert.NotNil(t, res.Answer.Links)
		assert.Empty(t, res.Answer.Links)
	}
	assert.Equal(t, int32(0), env.embedder.calls.Load())
}

func TestResolveAnswersFromNearestFragments(t *testing.T) {
	env := newTestEnv(t)
	res := env.orchestrator(nil).Resolve(context.Background(), Query{Text: "How do I install docker?"})

	require.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, StateResponded, res.State)
	assert.Nil(t, res.Err)
	assert.True(t, strings.HasPrefix(res.Answer.Answer, "Here's what I found:\n- Use podman or docker"))
	assert.Equal(t, []Link{
		{URL: "https://discourse.example.com/t/docker/2", Text: "Source"},
		{URL: "https://discourse.example.com/t/deadline/1", Text: "GA1 deadline"},
	}, res.Answer.Links)
}

func TestResolveImageOnlyQuestion(t *testing.T) {
	env := newTestEnv(t)
	env.recognizer.text = "When is the GA1 deadline?"
	cfg := DefaultPipelineConfig()
	cfg.OCREnabled = true

	res := env.orchestrator(cfg).Resolve(context.Background(), Query{Image: pngHeader})
	require.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Contains(t, res.Answer.Answer, "GA1 deadline is Sunday")
	assert.Equal(t, "https://discourse.example.com/t/deadline/1", res.Answer.Links[0].URL)
}

func TestResolveImageIgnoredWhenOCRDisabled(t *testing.T) {
	env := newTestEnv(t)
	env.recognizer.text = "When is the GA1 deadline?"

	res := env.orchestrator(nil).Resolve(context.Background(), Query{Image: pngHeader})
	assert.Equal(t, OutcomeEmptyQuestion, res.Outcome)
}

func TestResolveOCRFailureFallsBackToText(t *testing.T) {
	env := newTestEnv(t)
	env.recognizer.err = fmt.Errorf("engine crashed")
	cfg := DefaultPipelineConfig()
	cfg.OCREnabled = true

	res := env.orchestrator(cfg).Resolve(context.Background(), Query{Text: "docker?", Image: pngHeader})
	assert.Equal(t, OutcomeSuccess, res.Outcome)

	res = env.orchestrator(cfg).Resolve(context.Background(), Query{Image: pngHeader})
	assert.Equal(t, OutcomeEmptyQuestion, res.Outcome)
}

func TestResolveIsDeterministic(t *testing.T) {
	env := newTestEnv(t)
	o := env.orchestrator(nil)

	first := o.Resolve(context.Background(), Query{Text: "deadline"})
	second := o.Resolve(context.Background(), Query{Text: "deadline"})
	require.Equal(t, OutcomeSuccess, first.Outcome)
	assert.Equal(t, first.Answer, second.Answer)
}

func TestResolveWithRerank(t *testing.T) {
	env := newTestEnv(t)
	cfg := DefaultPipelineConfig()
	cfg.RerankEnabled = true

	res := env.orchestrator(cfg).Resolve(context.Background(), Query{Text: "deadline"})
	require.Equal(t, OutcomeSuccess, res.Outcome)
	assert.True(t, strings.HasPrefix(res.Answer.Answer, "Here's what I found:\n- Late submissions"))
	assert.Equal(t, []Link{
		{URL: "https://discourse.example.com/t/deadline/1", Text: "GA1 deadline"},
		{URL: "https://discourse.example.com/t/docker/2", Text: "Source"},
	}, res.Answer.Links)
}

func TestResolveOutOfRangeHitsBecomeNoMatch(t *testing.T) {
	env := newTestEnv(t)
	env.corpus = &store.Corpus{
		Index:     &rangeIndex{hits: []store.Hit{{Position: -3}, {Position: 4}, {Position: 1000}}},
		Fragments: testFragments(),
	}

	res := env.orchestrator(nil).Resolve(context.Background(), Query{Text: "anything"})
	assert.Equal(t, OutcomeNoMatch, res.Outcome)
	assert.Equal(t, StateNoMatch, res.State)
	assert.Equal(t, AnswerNoMatch, res.Answer.Answer)
	assert.Empty(t, res.Answer.Links)
}

func TestResolveTimeout(t *testing.T) {
	env := newTestEnv(t)
	env.embedder.delay = time.Second
	cfg := DefaultPipelineConfig()
	cfg.RequestTimeout = 20 * time.Millisecond

	start := time.Now()
	res := env.orchestrator(cfg).Resolve(context.Background(), Query{Text: "slow"})
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, OutcomeTimeout, res.Outcome)
	assert.Nil(t, res.Answer)
	assert.True(t, errors.IsCode(res.Err, errors.ErrQueryTimeout.Code))
}

func TestResolveOverloaded(t *testing.T) {
	env := newTestEnv(t)
	res := env.orchestrator(nil, WithExecutor(rejectingExecutor{})).Resolve(context.Background(), Query{Text: "docker"})

	assert.Equal(t, OutcomeOverloaded, res.Outcome)
	assert.ErrorIs(t, res.Err, pool.ErrPoolOverload)
	assert.Equal(t, 503, res.Err.HTTPStatus())
	assert.Equal(t, int32(0), env.embedder.calls.Load())
}

func TestResolveWithPool(t *testing.T) {
	env := newTestEnv(t)
	p, err := pool.NewPool("test-inference", pool.InferencePool, pool.InferencePoolConfig())
	require.NoError(t, err)
	defer p.Release()

	res := env.orchestrator(nil, WithExecutor(p)).Resolve(context.Background(), Query{Text: "docker"})
	assert.Equal(t, OutcomeSuccess, res.Outcome)
}

func TestResolveResourceUnavailable(t *testing.T) {
	env := newTestEnv(t)
	env.loadErr = fmt.Errorf("model file missing")
	o := env.orchestrator(nil)

	for i := 0; i < 2; i++ {
		res := o.Resolve(context.Background(), Query{Text: "docker"})
		assert.Equal(t, OutcomeResourceUnavailable, res.Outcome)
		assert.True(t, errors.IsCode(res.Err, errors.ErrResourceUnavailable.Code))
	}
	assert.Error(t, o.Ready())
}

func TestResolveInferenceFailure(t *testing.T) {
	env := newTestEnv(t)
	env.embedder.err = fmt.Errorf("CUDA out of memory")

	res := env.orchestrator(nil).Resolve(context.Background(), Query{Text: "docker"})
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, StateValidated, res.State)
	assert.True(t, errors.IsCode(res.Err, errors.ErrQueryFailed.Code))
	assert.NoError(t, env.orchestrator(nil).Ready())
}

func TestOutcomeSoftFail(t *testing.T) {
	for _, o := range []Outcome{OutcomeSuccess, OutcomeMalformedRequest, OutcomeEmptyQuestion, OutcomeNoMatch} {
		assert.True(t, o.SoftFail(), o.String())
	}
	for _, o := range []Outcome{OutcomeResourceUnavailable, OutcomeOverloaded, OutcomeTimeout, OutcomeFailed} {
		assert.False(t, o.SoftFail(), o.String())
	}
	assert.Equal(t, "no_match", OutcomeNoMatch.String())
}

// countingResources 注册带加载计数的向量化模型与语料，语料经维度校验后才可用。
type countingResources struct {
	embedder    *fakeEmbedder
	embLoads    atomic.Int32
	corpusLoads atomic.Int32
	manager     *ResourceManager
}

func newCountingResources(t *testing.T, m *metrics.Metrics, corpus func() (*store.Corpus, error)) *countingResources {
	t.Helper()
	r := &countingResources{embedder: &fakeEmbedder{}}
	r.manager = NewResourceManager(WithResourceMetrics(m))
	r.manager.Register(ResourceEmbedder, func(context.Context) (any, error) {
		r.embLoads.Add(1)
		return llm.EmbeddingProvider(r.embedder), nil
	})
	r.manager.Register(ResourceCorpus, r.manager.CorpusLoader(func(context.Context) (*store.Corpus, error) {
		r.corpusLoads.Add(1)
		return corpus()
	}))
	return r
}

func TestResolveDimensionMismatchFailsCorpus(t *testing.T) {
	m := metrics.New()
	res := newCountingResources(t, m, func() (*store.Corpus, error) {
		idx, err := store.NewFlatIndex(3, [][]float32{{0, 0, 0}, {1, 1, 1}})
		if err != nil {
			return nil, err
		}
		return &store.Corpus{Index: idx, Fragments: testFragments()[:2]}, nil
	})
	o := NewOrchestrator(res.manager, nil, WithMetrics(m))

	for i := 0; i < 2; i++ {
		r := o.Resolve(context.Background(), Query{Text: "docker"})
		assert.Equal(t, OutcomeResourceUnavailable, r.Outcome)
		require.NotNil(t, r.Err)
		assert.Equal(t, 503, r.Err.HTTPStatus())
		assert.ErrorIs(t, r.Err, errors.ErrIndexDimension)
	}

	assert.Error(t, o.Ready())
	assert.Equal(t, StateFailed, res.manager.States()[ResourceCorpus])
	assert.Equal(t, StateReady, res.manager.States()[ResourceEmbedder])
	assert.Equal(t, int32(1), res.corpusLoads.Load())
}

func TestResolveConcurrentFirstRequestsShareLoadsAndRuns(t *testing.T) {
	m := metrics.New()
	res := newCountingResources(t, m, func() (*store.Corpus, error) {
		idx, err := store.NewFlatIndex(2, [][]float32{{0, 0}, {0, 1}, {10, 0}, {0, 10}})
		if err != nil {
			return nil, err
		}
		return &store.Corpus{Index: idx, Fragments: testFragments()}, nil
	})
	res.embedder.delay = 50 * time.Millisecond
	o := NewOrchestrator(res.manager, nil, WithMetrics(m))

	questions := []string{"docker", "docker", "deadline", "other"}
	results := make([]*Result, len(questions))
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i, q := range questions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			results[i] = o.Resolve(context.Background(), Query{Text: q})
		}()
	}
	close(start)
	wg.Wait()

	for i, r := range results {
		require.Equal(t, OutcomeSuccess, r.Outcome, questions[i])
	}
	assert.Equal(t, results[0].Answer, results[1].Answer)
	assert.Equal(t, int32(1), res.embLoads.Load())
	assert.Equal(t, int32(1), res.corpusLoads.Load())
	// 三个不同问题各一次，加上语料加载时的维度探测
	assert.Equal(t, int32(4), res.embedder.calls.Load())
	assert.NoError(t, o.Ready())
}
