// Package watch notifies callers when a single file changes on disk. It
// watches the parent directory so atomic rename-over writes are seen.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// relevantOps are the operations that can change a file's content.
const relevantOps = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove

// FileWatcher calls onChange whenever the watched file is written,
// created, renamed or removed.
type FileWatcher struct {
	path     string
	onChange func()
	logger   *zap.Logger

	watcher  *fsnotify.Watcher
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a watcher for path. The parent directory must exist.
func New(path string, onChange func(), logger *zap.Logger) (*FileWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	return &FileWatcher{path: abs, onChange: onChange, logger: logger}, nil
}

// Start begins watching. Events are delivered until ctx is done or Stop is
// called.
func (w *FileWatcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		_ = fw.Close() //nolint:errcheck // cleanup in error path
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	w.watcher = fw

	w.wg.Add(1)
	go w.processEvents(ctx)
	return nil
}

func (w *FileWatcher) processEvents(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			w.close()
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) == w.path && event.Op&relevantOps != 0 {
				w.logger.Debug("watched file changed", zap.String("path", w.path), zap.String("op", event.Op.String()))
				w.onChange()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", zap.String("path", w.path), zap.Error(err))
		}
	}
}

func (w *FileWatcher) close() {
	w.stopOnce.Do(func() {
		if w.watcher != nil {
			_ = w.watcher.Close() //nolint:errcheck // best-effort shutdown
		}
	})
}

// Stop closes the watcher and waits for the event goroutine to exit.
func (w *FileWatcher) Stop() {
	w.close()
	w.wg.Wait()
}
