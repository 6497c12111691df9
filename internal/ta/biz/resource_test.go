package biz

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/virtual-ta/internal/ta/metrics"
	"github.com/kart-io/virtual-ta/pkg/errors"
)

func TestResourceLoadsOnceUnderConcurrency(t *testing.T) {
	m := NewResourceManager(WithResourceMetrics(metrics.New()))
	var loads atomic.Int32
	m.Register("model", func(context.Context) (any, error) {
		loads.Add(1)
		time.Sleep(20 * time.Millisecond)
		return "handle", nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := m.Acquire(context.Background(), "model")
			assert.NoError(t, err)
			assert.Equal(t, "handle", h)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), loads.Load())
	assert.Equal(t, StateReady, m.States()["model"])
}

func TestResourceFailureIsPermanent(t *testing.T) {
	m := NewResourceManager(WithResourceMetrics(metrics.New()))
	var loads atomic.Int32
	m.Register("model", func(context.Context) (any, error) {
		loads.Add(1)
		return nil, fmt.Errorf("weights missing")
	})

	for i := 0; i < 3; i++ {
		_, err := m.Acquire(context.Background(), "model")
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrResourceUnavailable.Code))
	}
	assert.Equal(t, int32(1), loads.Load())
	assert.Equal(t, []string{"model"}, m.Failed())
}

func TestResourceLoaderPanicAndNilHandle(t *testing.T) {
	m := NewResourceManager(WithResourceMetrics(metrics.New()))
	m.Register("panics", func(context.Context) (any, error) { panic("boom") })
	m.Register("empty", func(context.Context) (any, error) { return nil, nil })

	_, err := m.Acquire(context.Background(), "panics")
	assert.True(t, errors.IsCode(err, errors.ErrResourceUnavailable.Code))
	_, err = m.Acquire(context.Background(), "empty")
	assert.True(t, errors.IsCode(err, errors.ErrResourceUnavailable.Code))
}

func TestResourceWaitHonoursCallerContext(t *testing.T) {
	m := NewResourceManager(WithResourceMetrics(metrics.New()))
	release := make(chan struct{})
	m.Register("slow", func(context.Context) (any, error) {
		<-release
		return 42, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := m.Acquire(ctx, "slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateLoading, m.States()["slow"])

	// 调用方超时不影响共享加载
	close(release)
	h, err := m.Acquire(context.Background(), "slow")
	require.NoError(t, err)
	assert.Equal(t, 42, h)
}

func TestResourceUnknown(t *testing.T) {
	m := NewResourceManager(WithResourceMetrics(metrics.New()))
	_, err := m.Acquire(context.Background(), "missing")
	assert.True(t, errors.IsCode(err, errors.ErrResourceUnknown.Code))
	assert.False(t, m.Has("missing"))
}

func TestResourceRegisterTwicePanics(t *testing.T) {
	m := NewResourceManager(WithResourceMetrics(metrics.New()))
	m.Register("x", func(context.Context) (any, error) { return 1, nil })
	assert.Panics(t, func() {
		m.Register("x", func(context.Context) (any, error) { return 1, nil })
	})
}

func TestResourcePreload(t *testing.T) {
	m := NewResourceManager(WithResourceMetrics(metrics.New()))
	m.Register("ok", func(context.Context) (any, error) { return 1, nil })
	m.Register("bad", func(context.Context) (any, error) { return nil, fmt.Errorf("nope") })

	err := m.Preload(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateReady, m.States()["ok"])
	assert.Equal(t, StateFailed, m.States()["bad"])
}

func TestResourceTypedAccessorMismatch(t *testing.T) {
	m := NewResourceManager(WithResourceMetrics(metrics.New()))
	m.Register(ResourceEmbedder, func(context.Context) (any, error) { return "not an embedder", nil })

	_, err := m.Embedder(context.Background())
	assert.True(t, errors.IsCode(err, errors.ErrResourceUnavailable.Code))
}
