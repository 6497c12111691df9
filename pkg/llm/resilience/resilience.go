// Package resilience 提供推理调用的韧性模式：指数退避重试与熔断器。
package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kart-io/logger"
)

// ErrCircuitBreakerOpen 熔断器打开错误。
var ErrCircuitBreakerOpen = errors.New("circuit breaker is open")

// RetryConfig 重试配置。
type RetryConfig struct {
	// MaxAttempts 最大尝试次数（包括首次调用）。
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// Multiplier 延迟倍增因子。
	Multiplier float64
	// Retryable 判断错误是否可重试，为 nil 时使用 IsRetryableError。
	Retryable func(error) bool
}

// DefaultRetryConfig 返回默认重试配置。
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
		Retryable:    IsRetryableError,
	}
}

// CircuitBreakerConfig 熔断器配置。
type CircuitBreakerConfig struct {
	// MaxFailures 连续失败达到该值时打开熔断器。
	MaxFailures int
	// Timeout 熔断器打开后多久进入半开状态。
	Timeout time.Duration
	// HalfOpenMaxCalls 半开状态允许的探测调用数。
	HalfOpenMaxCalls int
}

// DefaultCircuitBreakerConfig 返回默认熔断器配置。
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		MaxFailures:      5,
		Timeout:          30 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// State 熔断器状态。
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker 熔断器实现。
type CircuitBreaker struct {
	name   string
	config *CircuitBreakerConfig
	now    func() time.Time

	mu            sync.Mutex
	state         State
	failures      int
	openedAt      time.Time
	halfOpenCalls int
	halfOpenOK    int
}

// NewCircuitBreaker 创建熔断器，name 仅用于日志。
func NewCircuitBreaker(name string, config *CircuitBreakerConfig) *CircuitBreaker {
	if config == nil {
		config = DefaultCircuitBreakerConfig()
	}
	return &CircuitBreaker{name: name, config: config, now: time.Now}
}

// Execute 通过熔断器执行函数。
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.beforeCall(); err != nil {
		return err
	}
	err := fn()
	cb.afterCall(err)
	return err
}

func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.config.Timeout {
			return ErrCircuitBreakerOpen
		}
		logger.Infow("circuit breaker half-open", "breaker", cb.name)
		cb.state = StateHalfOpen
		cb.halfOpenCalls = 1
		cb.halfOpenOK = 0
		return nil
	default:
		if cb.halfOpenCalls >= cb.config.HalfOpenMaxCalls {
			return ErrCircuitBreakerOpen
		}
		cb.halfOpenCalls++
		return nil
	}
}

func (cb *CircuitBreaker) afterCall(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	// 调用方取消不计入失败
	if errors.Is(err, context.Canceled) {
		return
	}

	if err == nil {
		switch cb.state {
		case StateClosed:
			cb.failures = 0
		case StateHalfOpen:
			cb.halfOpenOK++
			if cb.halfOpenOK >= cb.halfOpenCalls {
				logger.Infow("circuit breaker closed", "breaker", cb.name)
				cb.state = StateClosed
				cb.failures = 0
			}
		}
		return
	}

	cb.failures++
	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.config.MaxFailures {
			logger.Warnw("circuit breaker opening", "breaker", cb.name, "failures", cb.failures)
			cb.state = StateOpen
			cb.openedAt = cb.now()
		}
	case StateHalfOpen:
		logger.Warnw("circuit breaker re-opening after half-open failure", "breaker", cb.name)
		cb.state = StateOpen
		cb.openedAt = cb.now()
	}
}

// State 获取当前状态。
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset 重置熔断器状态。
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.halfOpenCalls = 0
	cb.halfOpenOK = 0
}

// RetryWithBackoff 使用指数退避重试函数，ctx 取消时立即返回。
func RetryWithBackoff(ctx context.Context, config *RetryConfig, fn func() error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	retryable := config.Retryable
	if retryable == nil {
		retryable = IsRetryableError
	}

	delay := config.InitialDelay
	var lastErr error
	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
		if attempt == config.MaxAttempts {
			break
		}

		logger.Debugw("retrying after delay", "attempt", attempt, "delay", delay, "error", lastErr.Error())
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}

		delay = time.Duration(float64(delay) * config.Multiplier)
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}
	return fmt.Errorf("max retry attempts (%d) reached: %w", config.MaxAttempts, lastErr)
}
