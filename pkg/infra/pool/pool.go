package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kart-io/logger"
	"github.com/panjf2000/ants/v2"
)

// Type defines the type of worker pool.
type Type string

const (
	// InferencePool 推理池：向量化、检索、重排序
	InferencePool Type = "inference"
)

// Config defines the configuration for the worker pool.
type Config struct {
	// Capacity 最大并发 goroutine 数，必须为正数
	Capacity int
	// ExpiryDuration goroutine 空闲过期时间
	ExpiryDuration time.Duration
	// PreAlloc 是否预分配 worker 队列
	PreAlloc bool
	// Nonblocking 为 true 时池满立即返回 ErrPoolOverload
	Nonblocking bool
	// MaxBlockingTasks 阻塞模式下允许排队的最大任务数，超出即返回 ErrPoolOverload
	MaxBlockingTasks int
	// PanicHandler 恐慌处理函数
	PanicHandler func(interface{})
}

// InferencePoolConfig 返回推理池默认配置：少量 worker，短队列，满即拒绝。
func InferencePoolConfig() *Config {
	return &Config{
		Capacity:         4,
		ExpiryDuration:   60 * time.Second,
		PreAlloc:         true,
		Nonblocking:      false,
		MaxBlockingTasks: 32,
	}
}

// Pool represents a worker pool.
type Pool struct {
	name     string
	typ      Type
	pool     *ants.Pool
	config   *Config
	stats    poolStatsCounter
	closed   atomic.Bool
	closedMu sync.Mutex
}

type poolStatsCounter struct {
	submitted   atomic.Int64
	completed   atomic.Int64
	rejected    atomic.Int64
	panics      atomic.Int64
	totalWaitNs atomic.Int64
}

// Stats contains statistics about the worker pool.
type Stats struct {
	SubmittedTasks  int64 // 已开始执行的任务数
	CompletedTasks  int64 // 已完成任务数
	RejectedTasks   int64 // 因过载被拒绝的任务数
	PanicRecovered  int64 // 恢复的 panic 数
	TotalWaitTimeNs int64 // 排队总时长（纳秒）
}

// NewPool creates a new worker pool with the given configuration.
func NewPool(name string, typ Type, config *Config) (*Pool, error) {
	if config == nil {
		config = InferencePoolConfig()
	}
	if config.Capacity <= 0 || config.MaxBlockingTasks < 0 {
		return nil, fmt.Errorf("%w: capacity=%d max-blocking=%d", ErrInvalidPoolConfig, config.Capacity, config.MaxBlockingTasks)
	}

	p := &Pool{name: name, typ: typ, config: config}

	pool, err := ants.NewPool(config.Capacity, p.antsOptions()...)
	if err != nil {
		return nil, fmt.Errorf("创建 ants 池失败: %w", err)
	}
	p.pool = pool

	logger.Infow("Worker pool created",
		"name", name,
		"type", string(typ),
		"capacity", config.Capacity,
		"max_blocking", config.MaxBlockingTasks,
	)
	return p, nil
}

func (p *Pool) antsOptions() []ants.Option {
	handler := p.config.PanicHandler
	if handler == nil {
		handler = func(v interface{}) {
			logger.Errorw("Worker panic recovered", "pool", p.name, "panic", v)
		}
	}
	return []ants.Option{
		ants.WithExpiryDuration(p.config.ExpiryDuration),
		ants.WithPreAlloc(p.config.PreAlloc),
		ants.WithNonblocking(p.config.Nonblocking),
		ants.WithMaxBlockingTasks(p.config.MaxBlockingTasks),
		ants.WithPanicHandler(func(v interface{}) {
			p.stats.panics.Add(1)
			handler(v)
		}),
	}
}

// Name 返回池名称
func (p *Pool) Name() string { return p.name }

// Running 返回正在运行的 goroutine 数量
func (p *Pool) Running() int { return p.pool.Running() }

// Waiting 返回排队中的任务数量
func (p *Pool) Waiting() int { return p.pool.Waiting() }

// Submit 提交任务到池中执行。池满且排队已达上限时返回 ErrPoolOverload。
func (p *Pool) Submit(task func()) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	queuedAt := time.Now()
	err := p.pool.Submit(func() {
		p.stats.totalWaitNs.Add(int64(time.Since(queuedAt)))
		p.stats.submitted.Add(1)
		task()
		p.stats.completed.Add(1)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ants.ErrPoolOverload):
		p.stats.rejected.Add(1)
		return ErrPoolOverload
	case errors.Is(err, ants.ErrPoolClosed):
		return ErrPoolClosed
	default:
		return err
	}
}

// SubmitWithContext 提交带上下文的任务。
// 任务真正开始前若 ctx 已取消则跳过执行。
func (p *Pool) SubmitWithContext(ctx context.Context, task func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.Submit(func() {
		if ctx.Err() != nil {
			return
		}
		task()
	})
}

// Release 关闭池并释放资源
func (p *Pool) Release() {
	p.closedMu.Lock()
	defer p.closedMu.Unlock()

	if p.closed.Swap(true) {
		return
	}
	p.pool.Release()
	p.logReleased()
}

// ReleaseTimeout 等待运行中的任务完成后关闭池，超时返回错误
func (p *Pool) ReleaseTimeout(timeout time.Duration) error {
	p.closedMu.Lock()
	defer p.closedMu.Unlock()

	if p.closed.Swap(true) {
		return nil
	}
	err := p.pool.ReleaseTimeout(timeout)
	p.logReleased()
	return err
}

func (p *Pool) logReleased() {
	s := p.Stats()
	logger.Infow("Worker pool released",
		"name", p.name,
		"completed", s.CompletedTasks,
		"rejected", s.RejectedTasks,
		"panics", s.PanicRecovered,
		"total_wait", time.Duration(s.TotalWaitTimeNs).String(),
	)
}

// Stats 返回池统计信息快照
func (p *Pool) Stats() Stats {
	return Stats{
		SubmittedTasks:  p.stats.submitted.Load(),
		CompletedTasks:  p.stats.completed.Load(),
		RejectedTasks:   p.stats.rejected.Load(),
		PanicRecovered:  p.stats.panics.Load(),
		TotalWaitTimeNs: p.stats.totalWaitNs.Load(),
	}
}
