package store

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/kart-io/logger"
)

// Watcher 监听索引文件所在目录，索引文件被替换时记录日志并回调。
// 服务不会热加载，新索引需重启生效。
type Watcher struct {
	watcher  *fsnotify.Watcher
	files    map[string]struct{}
	onChange func(path string)
}

// NewWatcher 监听给定文件。onChange 可为 nil。
func NewWatcher(paths []string, onChange func(path string)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	w := &Watcher{watcher: fw, files: make(map[string]struct{}), onChange: onChange}
	dirs := make(map[string]struct{})
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			_ = fw.Close()
			return nil, err
		}
		w.files[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	// 监听目录而非文件：rename 替换后文件句柄会失效
	for d := range dirs {
		if err := fw.Add(d); err != nil {
			_ = fw.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", d, err)
		}
	}
	return w, nil
}

// Run 处理事件直到 ctx 取消。
func (w *Watcher) Run(ctx context.Context) {
	defer func() { _ = w.watcher.Close() }()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
				continue
			}
			abs, err := filepath.Abs(ev.Name)
			if err != nil {
				continue
			}
			if _, ok := w.files[abs]; !ok {
				continue
			}
			logger.Warnw("Index artifact changed on disk, restart the service to serve it",
				"path", abs,
				"op", ev.Op.String(),
			)
			if w.onChange != nil {
				w.onChange(abs)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warnw("Index watcher error", "error", err.Error())
		}
	}
}
