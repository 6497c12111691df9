package biz

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kart-io/logger"
	"golang.org/x/sync/errgroup"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/kart-io/virtual-ta/internal/ta/metrics"
	"github.com/kart-io/virtual-ta/internal/ta/store"
	"github.com/kart-io/virtual-ta/pkg/errors"
	"github.com/kart-io/virtual-ta/pkg/llm"
)

// 资源名称
const (
	ResourceEmbedder   = "embedder"
	ResourceCorpus     = "corpus"
	ResourceScorer     = "scorer"
	ResourceRecognizer = "recognizer"
)

// ResourceState 资源加载状态。
type ResourceState string

const (
	StatePending ResourceState = "pending"
	StateLoading ResourceState = "loading"
	StateReady   ResourceState = "ready"
	StateFailed  ResourceState = "failed"
)

// Loader 加载一个重量级只读资源。
type Loader func(ctx context.Context) (any, error)

type resource struct {
	name   string
	loader Loader

	once   sync.Once
	done   chan struct{}
	state  atomic.Value // ResourceState
	handle any
	err    error
}

// ResourceManager 管理模型、索引等重量级资源的一次性加载。
//
// 每个资源只加载一次：首个调用方触发加载，并发调用方等待同一次加载结束。
// 加载失败是永久性的，之后所有调用都返回 ErrResourceUnavailable。
// 加载使用与调用方取消解耦的 context，单个请求超时不会中断共享加载。
type ResourceManager struct {
	mu        sync.RWMutex
	resources map[string]*resource
	order     []string

	loadTimeout time.Duration
	metrics     *metrics.Metrics
}

// ResourceManagerOption 资源管理器选项。
type ResourceManagerOption func(*ResourceManager)

// WithLoadTimeout 限制单个资源的加载时长，0 表示不限。
func WithLoadTimeout(d time.Duration) ResourceManagerOption {
	return func(m *ResourceManager) { m.loadTimeout = d }
}

// WithResourceMetrics 设置指标收集器。
func WithResourceMetrics(mt *metrics.Metrics) ResourceManagerOption {
	return func(m *ResourceManager) { m.metrics = mt }
}

// NewResourceManager 创建资源管理器。
func NewResourceManager(opts ...ResourceManagerOption) *ResourceManager {
	m := &ResourceManager{
		resources: make(map[string]*resource),
		metrics:   metrics.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register 注册资源加载函数。同名重复注册会 panic。
func (m *ResourceManager) Register(name string, loader Loader) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.resources[name]; ok {
		panic(fmt.Sprintf("resource %q registered twice", name))
	}
	r := &resource{name: name, loader: loader, done: make(chan struct{})}
	r.state.Store(StatePending)
	m.resources[name] = r
	m.order = append(m.order, name)
}

// Has 报告资源是否已注册。
func (m *ResourceManager) Has(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.resources[name]
	return ok
}

// Acquire 返回资源句柄，必要时触发加载并等待。
// 等待期间调用方 ctx 结束则返回 ctx 错误，加载本身继续进行。
func (m *ResourceManager) Acquire(ctx context.Context, name string) (any, error) {
	m.mu.RLock()
	r, ok := m.resources[name]
	m.mu.RUnlock()
	if !ok {
		return nil, errors.ErrResourceUnknown.WithMessagef("resource %q is not registered", name)
	}

	if r.state.Load() == StateReady {
		return r.handle, nil
	}

	r.once.Do(func() {
		r.state.Store(StateLoading)
		go m.load(context.WithoutCancel(ctx), r)
	})

	select {
	case <-r.done:
		if r.err != nil {
			return nil, r.err
		}
		return r.handle, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *ResourceManager) load(ctx context.Context, r *resource) {
	defer close(r.done)

	if m.loadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.loadTimeout)
		defer cancel()
	}

	logger.Infow("Loading resource", "resource", r.name)
	start := time.Now()
	handle, err := safeLoad(ctx, r.loader)
	elapsed := time.Since(start)
	m.metrics.RecordResourceLoad(r.name, elapsed, err)

	if err != nil {
		r.err = errors.ErrResourceUnavailable.WithCause(err).WithMessagef("resource %s failed to load", r.name)
		r.state.Store(StateFailed)
		logger.Errorw("Resource failed to load, queries depending on it will be refused",
			"resource", r.name,
			"duration", elapsed.String(),
			"error", err.Error(),
		)
		return
	}

	r.handle = handle
	r.state.Store(StateReady)
	logger.Infow("Resource ready", "resource", r.name, "duration", elapsed.String())
}

func safeLoad(ctx context.Context, loader Loader) (handle any, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("loader panic: %v", v)
		}
	}()
	handle, err = loader(ctx)
	if err == nil && handle == nil {
		err = fmt.Errorf("loader returned no handle")
	}
	return handle, err
}

// Preload 并发加载全部已注册资源（eager 策略），返回全部失败的聚合错误。
func (m *ResourceManager) Preload(ctx context.Context) error {
	m.mu.RLock()
	names := append([]string(nil), m.order...)
	m.mu.RUnlock()

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, name := range names {
		g.Go(func() error {
			if _, err := m.Acquire(ctx, name); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return utilerrors.NewAggregate(errs)
}

// States 返回各资源当前状态。
func (m *ResourceManager) States() map[string]ResourceState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]ResourceState, len(m.resources))
	for name, r := range m.resources {
		out[name] = r.state.Load().(ResourceState)
	}
	return out
}

// Failed 返回加载失败的资源名。
func (m *ResourceManager) Failed() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var failed []string
	for _, name := range m.order {
		if m.resources[name].state.Load() == StateFailed {
			failed = append(failed, name)
		}
	}
	return failed
}

// dimensionSample 探测向量维度时使用的文本。
const dimensionSample = "ping"

// CorpusLoader 包装语料加载函数。语料打开后用向量化模型探测一次，
// 模型输出维度与索引维度不一致时语料加载失败。
func (m *ResourceManager) CorpusLoader(open func(ctx context.Context) (*store.Corpus, error)) Loader {
	return func(ctx context.Context) (any, error) {
		corpus, err := open(ctx)
		if err != nil {
			return nil, err
		}
		if err := m.checkDimension(ctx, corpus); err != nil {
			_ = corpus.Close(ctx)
			return nil, err
		}
		return corpus, nil
	}
}

func (m *ResourceManager) checkDimension(ctx context.Context, corpus *store.Corpus) error {
	embedder, err := m.Embedder(ctx)
	if err != nil {
		return err
	}
	sample, err := embedder.EmbedSingle(ctx, dimensionSample)
	if err != nil {
		return fmt.Errorf("embed dimension sample: %w", err)
	}
	if dim := corpus.Index.Dimension(); len(sample) != dim {
		return errors.ErrIndexDimension.WithMessagef("embedding model produces %d-dim vectors, index holds %d-dim vectors", len(sample), dim)
	}
	return nil
}

// Embedder 返回向量化模型。
func (m *ResourceManager) Embedder(ctx context.Context) (llm.EmbeddingProvider, error) {
	return acquireAs[llm.EmbeddingProvider](ctx, m, ResourceEmbedder)
}

// Corpus 返回索引与片段元数据。
func (m *ResourceManager) Corpus(ctx context.Context) (*store.Corpus, error) {
	return acquireAs[*store.Corpus](ctx, m, ResourceCorpus)
}

// Scorer 返回重排序打分器。
func (m *ResourceManager) Scorer(ctx context.Context) (PairScorer, error) {
	return acquireAs[PairScorer](ctx, m, ResourceScorer)
}

// Recognizer 返回图片文字识别引擎。
func (m *ResourceManager) Recognizer(ctx context.Context) (Recognizer, error) {
	return acquireAs[Recognizer](ctx, m, ResourceRecognizer)
}

func acquireAs[T any](ctx context.Context, m *ResourceManager, name string) (T, error) {
	var zero T
	h, err := m.Acquire(ctx, name)
	if err != nil {
		return zero, err
	}
	v, ok := h.(T)
	if !ok {
		return zero, errors.ErrResourceUnavailable.WithMessagef("resource %s has unexpected type %T", name, h)
	}
	return v, nil
}
