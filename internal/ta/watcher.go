package tasvc

import (
	"context"

	"github.com/kart-io/virtual-ta/internal/ta/metrics"
	"github.com/kart-io/virtual-ta/internal/ta/store"
	indexopts "github.com/kart-io/virtual-ta/pkg/options/index"
)

// indexWatcher 把索引文件监听接入服务生命周期。
type indexWatcher struct {
	watcher *store.Watcher
	cancel  context.CancelFunc
	done    chan struct{}
}

func newIndexWatcher(opts *indexopts.Options, m *metrics.Metrics) (*indexWatcher, error) {
	paths := []string{opts.Path}
	if opts.MetadataBackend == indexopts.MetadataSQLite {
		paths = append(paths, opts.SQLitePath)
	}
	w, err := store.NewWatcher(paths, func(string) { m.RecordIndexChange() })
	if err != nil {
		return nil, err
	}
	return &indexWatcher{watcher: w}, nil
}

func (w *indexWatcher) Name() string { return "index-watcher" }

func (w *indexWatcher) Start(_ context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	go func() {
		defer close(w.done)
		w.watcher.Run(ctx)
	}()
	return nil
}

func (w *indexWatcher) Stop(ctx context.Context) error {
	if w.cancel == nil {
		return nil
	}
	w.cancel()
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
