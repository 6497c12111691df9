package biz

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/kart-io/logger"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/kart-io/virtual-ta/internal/ta/metrics"
	"github.com/kart-io/virtual-ta/pkg/errors"
	"github.com/kart-io/virtual-ta/pkg/infra/middleware/common"
	"github.com/kart-io/virtual-ta/pkg/infra/pool"
	"github.com/kart-io/virtual-ta/pkg/infra/tracing"
)

const tracerName = "virtual-ta/biz"

// State 流水线状态。
type State string

const (
	StateReceived      State = "RECEIVED"
	StateValidated     State = "VALIDATED"
	StateEmbedded      State = "EMBEDDED"
	StateSearched      State = "SEARCHED"
	StateReranked      State = "RERANKED"
	StateComposed      State = "COMPOSED"
	StateResponded     State = "RESPONDED"
	StateEmptyQuestion State = "EMPTY_QUESTION"
	StateNoMatch       State = "NO_MATCH"
)

// Outcome 查询结果分类。
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeMalformedRequest
	OutcomeEmptyQuestion
	OutcomeNoMatch
	OutcomeResourceUnavailable
	OutcomeOverloaded
	OutcomeTimeout
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeMalformedRequest:
		return "malformed_request"
	case OutcomeEmptyQuestion:
		return "empty_question"
	case OutcomeNoMatch:
		return "no_match"
	case OutcomeResourceUnavailable:
		return "resource_unavailable"
	case OutcomeOverloaded:
		return "overloaded"
	case OutcomeTimeout:
		return "timeout"
	default:
		return "failed"
	}
}

// SoftFail 报告该结果是否以 200 和固定格式答案返回。
func (o Outcome) SoftFail() bool {
	switch o {
	case OutcomeSuccess, OutcomeMalformedRequest, OutcomeEmptyQuestion, OutcomeNoMatch:
		return true
	}
	return false
}

// Result 一次查询的结果。Answer 仅在 SoftFail 结果中非空，Err 仅在其余结果中非空。
type Result struct {
	Outcome Outcome
	State   State
	Answer  *Answer
	Err     *errors.Errno
	Cached  bool
}

// Service 查询服务接口。
type Service interface {
	// Resolve 执行一次查询。
	Resolve(ctx context.Context, q Query) *Result
	// Ready 报告资源是否可用于服务。
	Ready() error
}

// Executor 运行推理任务的有界 worker 池。
type Executor interface {
	SubmitWithContext(ctx context.Context, task func()) error
}

// Orchestrator 串联查询流水线各阶段。
type Orchestrator struct {
	resources *ResourceManager
	executor  Executor
	retriever *Retriever
	reranker  *Reranker
	extractor *ImageTextExtractor
	composer  *AnswerComposer
	cache     *AnswerCache
	config    *PipelineConfig
	metrics   *metrics.Metrics
	group     singleflight.Group
}

var _ Service = (*Orchestrator)(nil)

// OrchestratorOption 编排器选项。
type OrchestratorOption func(*Orchestrator)

// WithExecutor 设置推理池，未设置时推理在请求 goroutine 内执行。
func WithExecutor(e Executor) OrchestratorOption {
	return func(o *Orchestrator) { o.executor = e }
}

// WithAnswerCache 设置答案缓存。
func WithAnswerCache(c *AnswerCache) OrchestratorOption {
	return func(o *Orchestrator) { o.cache = c }
}

// WithMetrics 设置指标收集器。
func WithMetrics(m *metrics.Metrics) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = m }
}

// NewOrchestrator 创建编排器。
func NewOrchestrator(resources *ResourceManager, config *PipelineConfig, opts ...OrchestratorOption) *Orchestrator {
	if config == nil {
		config = DefaultPipelineConfig()
	}
	o := &Orchestrator{
		resources: resources,
		config:    config,
		extractor: NewImageTextExtractor(),
		composer:  NewAnswerComposer(config.MaxFragments, config.SnippetLength),
		metrics:   metrics.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.retriever = NewRetriever(o.metrics)
	o.reranker = NewReranker(o.metrics)
	return o
}

// Ready 任一资源加载失败即返回错误。
func (o *Orchestrator) Ready() error {
	if failed := o.resources.Failed(); len(failed) > 0 {
		return errors.ErrResourceUnavailable.WithMessagef("failed resources: %v", failed)
	}
	return nil
}

// Resolve 执行查询流水线，永远返回非 nil 的结果。
func (o *Orchestrator) Resolve(ctx context.Context, q Query) (res *Result) {
	start := time.Now()
	done := o.metrics.QueryStarted()
	defer func() {
		done(res.Outcome.String())
		fields := []interface{}{
			"outcome", res.Outcome.String(),
			"state", string(res.State),
			"cached", res.Cached,
			"duration", time.Since(start).String(),
			"request_id", common.GetRequestID(ctx),
		}
		if res.Err != nil {
			logger.Warnw("Query failed", append(fields, "code", errors.GetCode(res.Err), "error", res.Err.Error())...)
			return
		}
		logger.Infow("Query resolved", fields...)
	}()

	if o.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.RequestTimeout)
		defer cancel()
	}
	ctx, span := tracing.StartSpan(ctx, tracerName, "ta.resolve")
	defer span.End()

	// RECEIVED → VALIDATED
	extracted := ""
	if len(q.Image) > 0 {
		if o.config.OCREnabled {
			text, err := o.extract(ctx, q.Image)
			if err != nil {
				return o.fail(ctx, StateReceived, err)
			}
			extracted = text
		} else {
			logger.Debugw("Image attached but OCR is disabled, ignoring it", "size", len(q.Image))
		}
	}

	question := MergeQuestion(q.Text, extracted)
	if question == "" {
		return &Result{Outcome: OutcomeEmptyQuestion, State: StateEmptyQuestion, Answer: CannedAnswer(AnswerNoQuestion)}
	}
	span.SetAttributes(attribute.Int("ta.question_length", len(question)))

	if answer, ok := o.cache.Get(ctx, question); ok {
		return &Result{Outcome: OutcomeSuccess, State: StateResponded, Answer: answer, Cached: true}
	}

	// 相同问题并发时共享一次流水线，各调用方仍按自己的期限等待
	ch := o.group.DoChan(question, func() (interface{}, error) {
		runCtx := context.WithoutCancel(ctx)
		if o.config.RequestTimeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(runCtx, o.config.RequestTimeout)
			defer cancel()
		}
		return o.run(runCtx, question), nil
	})

	select {
	case r := <-ch:
		shared := r.Val.(*Result)
		out := *shared
		if out.Answer != nil {
			a := *out.Answer
			a.Links = append([]Link{}, out.Answer.Links...)
			out.Answer = &a
		}
		return &out
	case <-ctx.Done():
		return o.fail(ctx, StateValidated, ctx.Err())
	}
}

// run 从 VALIDATED 执行到 RESPONDED。
func (o *Orchestrator) run(ctx context.Context, question string) *Result {
	state := StateValidated

	embedder, err := o.resources.Embedder(ctx)
	if err != nil {
		return o.fail(ctx, state, err)
	}
	corpus, err := o.resources.Corpus(ctx)
	if err != nil {
		return o.fail(ctx, state, err)
	}

	// VALIDATED → EMBEDDED
	vector, err := runInference(ctx, o, "embed", func(ctx context.Context) ([]float32, error) {
		return embedder.EmbedSingle(ctx, question)
	})
	if err != nil {
		return o.fail(ctx, state, err)
	}
	state = StateEmbedded

	// EMBEDDED → SEARCHED
	searchStart := time.Now()
	candidates, err := o.retriever.Search(ctx, corpus, vector, o.config.RetrievalWidth())
	o.metrics.ObserveStage("search", time.Since(searchStart))
	if err != nil {
		return o.fail(ctx, state, err)
	}
	state = StateSearched
	if len(candidates) == 0 {
		return &Result{Outcome: OutcomeNoMatch, State: StateNoMatch, Answer: CannedAnswer(AnswerNoMatch)}
	}

	// SEARCHED → RERANKED
	if o.config.RerankEnabled {
		scorer, err := o.resources.Scorer(ctx)
		if err != nil {
			return o.fail(ctx, state, err)
		}
		candidates, err = runInference(ctx, o, "rerank", func(ctx context.Context) ([]Candidate, error) {
			return o.reranker.Rerank(ctx, scorer, question, candidates), nil
		})
		if err != nil {
			return o.fail(ctx, state, err)
		}
		state = StateReranked
	}

	// → COMPOSED → RESPONDED
	answer := o.composer.Compose(candidates)
	o.cache.Set(ctx, question, answer)
	return &Result{Outcome: OutcomeSuccess, State: StateResponded, Answer: answer}
}

func (o *Orchestrator) extract(ctx context.Context, image []byte) (string, error) {
	rec, err := o.resources.Recognizer(ctx)
	if err != nil {
		return "", err
	}
	return runInference(ctx, o, "ocr", func(ctx context.Context) (string, error) {
		return o.extractor.Extract(ctx, rec, image), nil
	})
}

// runInference 在推理池中执行 fn 并等待结果。ctx 结束后不再等待，
// 迟到的结果写入带缓冲的通道后被丢弃。
func runInference[T any](ctx context.Context, o *Orchestrator, stage string, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "ta."+stage)
	defer span.End()

	type result struct {
		v   T
		err error
	}
	start := time.Now()
	ch := make(chan result, 1)
	task := func() {
		v, err := fn(ctx)
		ch <- result{v: v, err: err}
	}

	if o.executor == nil {
		task()
	} else {
		go func() {
			if err := o.executor.SubmitWithContext(ctx, task); err != nil {
				ch <- result{err: err}
			}
		}()
	}

	var zero T
	select {
	case r := <-ch:
		o.metrics.ObserveStage(stage, time.Since(start))
		if r.err != nil {
			tracing.RecordError(ctx, r.err)
			return zero, r.err
		}
		return r.v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// fail 将错误归类为结果。
func (o *Orchestrator) fail(ctx context.Context, state State, err error) *Result {
	tracing.RecordError(ctx, err)

	switch {
	case stderrors.Is(err, pool.ErrPoolOverload):
		o.metrics.RecordPoolRejection()
		return &Result{Outcome: OutcomeOverloaded, State: state, Err: errors.ErrInferenceOverloaded.WithCause(err)}
	case stderrors.Is(err, context.DeadlineExceeded), stderrors.Is(err, context.Canceled):
		return &Result{Outcome: OutcomeTimeout, State: state, Err: errors.ErrQueryTimeout.WithCause(err)}
	case errors.IsCode(err, errors.ErrResourceUnavailable.Code), errors.IsCode(err, errors.ErrResourceUnknown.Code):
		return &Result{Outcome: OutcomeResourceUnavailable, State: state, Err: errors.FromError(err)}
	default:
		return &Result{Outcome: OutcomeFailed, State: state, Err: errors.ErrQueryFailed.WithCause(err)}
	}
}
