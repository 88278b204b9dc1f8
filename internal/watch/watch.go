// Package watch turns filesystem activity in the data directory into
// debounced rescans.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"lectern/internal/logging"
)

// DefaultDebounce coalesces the write bursts of a file copy.
const DefaultDebounce = 500 * time.Millisecond

// BurstFunc receives the PDFs touched during one quiet-period window.
type BurstFunc func(ctx context.Context, paths []string)

// Watcher observes a single directory for PDF creates, writes and renames.
type Watcher struct {
	dir      string
	debounce time.Duration
	onBurst  BurstFunc
	logger   *slog.Logger
	ready    chan struct{}
}

// New builds a watcher over dir. A non-positive debounce uses DefaultDebounce.
func New(dir string, debounce time.Duration, onBurst BurstFunc, logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		dir:      dir,
		debounce: debounce,
		onBurst:  onBurst,
		logger:   logging.NewComponentLogger(logger, "watcher"),
		ready:    make(chan struct{}),
	}
}

// Ready is closed once the directory is being watched.
func (w *Watcher) Ready() <-chan struct{} { return w.ready }

// Run blocks until ctx ends. onBurst runs on the watcher goroutine.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()
	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	close(w.ready)
	w.logger.Info("watching data directory",
		logging.String("dir", w.dir),
		logging.Duration("debounce", w.debounce),
	)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := make(map[string]struct{})

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case evt, ok := <-fsw.Events:
			if !ok {
				return errors.New("watcher event channel closed")
			}
			if !isPDF(evt.Name) || evt.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			pending[evt.Name] = struct{}{}
			timer.Reset(w.debounce)
		case err, ok := <-fsw.Errors:
			if !ok {
				return errors.New("watcher error channel closed")
			}
			logging.WarnWithContext(w.logger, "watcher error", "watch_error",
				logging.Error(err),
				logging.String(logging.FieldImpact, "some file events may be missed until the next periodic scan"),
			)
		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			paths := make([]string, 0, len(pending))
			for path := range pending {
				paths = append(paths, path)
			}
			clear(pending)
			slices.Sort(paths)
			w.logger.Debug("file burst", logging.Strings("paths", paths))
			if w.onBurst != nil {
				w.onBurst(ctx, paths)
			}
		}
	}
}

func isPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}
