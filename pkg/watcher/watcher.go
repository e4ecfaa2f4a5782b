// Package watcher reports when a document file on disk has changed.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

type WatcherConfig struct {
	// Debounce coalesces bursts of writes into one change. Zero means 250ms.
	Debounce time.Duration
	Logger   *slog.Logger
}

// FileWatcher watches a single file. It watches the parent directory so that
// editors replacing the file through a rename are still seen.
type FileWatcher struct {
	config  WatcherConfig
	path    string
	watcher *fsnotify.Watcher
}

func New(path string, config WatcherConfig) (*FileWatcher, error) {
	if config.Debounce <= 0 {
		config.Debounce = 250 * time.Millisecond
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &FileWatcher{
		config:  config,
		path:    abs,
		watcher: w,
	}, nil
}

func (w *FileWatcher) Path() string {
	return w.path
}

// Watch emits the file path once per settled change until ctx is done or the
// watcher is closed.
func (w *FileWatcher) Watch(ctx context.Context) (<-chan string, error) {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return nil, fmt.Errorf("failed to watch %s: %w", w.path, err)
	}

	changes := make(chan string, 1)

	go func() {
		defer close(changes)

		timer := time.NewTimer(0)
		if !timer.Stop() {
			<-timer.C
		}
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != w.path {
					continue
				}
				if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
					continue
				}
				timer.Reset(w.config.Debounce)
			case <-timer.C:
				select {
				case changes <- w.path:
				case <-ctx.Done():
					return
				}
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.config.Logger.Warn("file watcher error", "path", w.path, "error", err)
			}
		}
	}()

	return changes, nil
}

func (w *FileWatcher) Close() error {
	return w.watcher.Close()
}
