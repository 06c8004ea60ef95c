package indexer

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long Watch waits after the last write before indexing
const DefaultDebounce = 500 * time.Millisecond

// Watch re-indexes the catalogue at path whenever it changes, until ctx is
// cancelled. The parent directory is watched so editors that replace the file
// by rename are still seen. onIndexed, if set, receives the outcome of each run.
func (idx *Indexer) Watch(ctx context.Context, path string, config *Config, onIndexed func(*Statistics, error)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	idx.logger.Info("watching catalogue", zap.String("path", abs))

	timer := time.NewTimer(DefaultDebounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(DefaultDebounce)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			idx.logger.Warn("catalogue watcher error", zap.Error(err))

		case <-timer.C:
			stats, err := idx.IndexFile(ctx, abs, config)
			if err != nil {
				idx.logger.Warn("re-index failed", zap.String("path", abs), zap.Error(err))
			}
			if onIndexed != nil {
				onIndexed(stats, err)
			}
		}
	}
}
