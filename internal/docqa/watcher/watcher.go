// Package watcher triggers a document reload after the documents directory changes.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/pkg/docutil"
	"github.com/kart-io/docqa/pkg/utils/errors"
)

// DefaultDebounce is the quiet period after the last event before reloading.
const DefaultDebounce = 2 * time.Second

// ReloadFunc rebuilds the index.
type ReloadFunc func(ctx context.Context) error

// Watcher watches a single directory (non-recursive) and calls the reload
// function once changes settle for the debounce period.
type Watcher struct {
	dir      string
	debounce time.Duration
	reload   ReloadFunc
	filter   func(name string) bool

	started chan struct{}
	reloads atomic.Int64
}

// New creates a Watcher. filter, if set, limits the file names that trigger a reload.
func New(dir string, debounce time.Duration, reload ReloadFunc, filter func(name string) bool) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		dir:      dir,
		debounce: debounce,
		reload:   reload,
		filter:   filter,
		started:  make(chan struct{}),
	}
}

// Started is closed once the directory is being watched.
func (w *Watcher) Started() <-chan struct{} { return w.started }

// Reloads returns the number of reloads triggered so far.
func (w *Watcher) Reloads() int64 { return w.reloads.Load() }

// Run watches the directory until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	if err := docutil.EnsureDir(w.dir); err != nil {
		return fmt.Errorf("create watched directory: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	close(w.started)
	logger.Infow("Document watcher started", "dir", w.dir, "debounce", w.debounce.String())

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Document watcher stopped")
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			logger.Debugw("Document change detected", "file", filepath.Base(ev.Name), "op", ev.Op.String())
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warnw("Document watcher error", "error", err)

		case <-fire:
			fire = nil
			if w.trigger(ctx) {
				// the running reload may have listed the directory before this change
				timer.Reset(w.debounce)
				fire = timer.C
			}
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	name := filepath.Base(ev.Name)
	if docutil.IsHidden(name) {
		return false
	}
	return w.filter == nil || w.filter(name)
}

// trigger runs one reload and reports whether it must be retried because
// another reload was already running.
func (w *Watcher) trigger(ctx context.Context) bool {
	w.reloads.Add(1)
	err := w.reload(ctx)
	switch {
	case err == nil:
		logger.Infow("Documents reloaded after change", "dir", w.dir)
	case errors.Is(err, errors.ErrNoDocuments):
		logger.Warnw("Documents directory is empty after change", "dir", w.dir)
	case errors.Is(err, errors.ErrReloadInProgress):
		logger.Infow("Reload already running, retrying after it", "dir", w.dir, "retry_in", w.debounce.String())
		return true
	default:
		logger.Errorw("Reload after change failed", "dir", w.dir, "error", err)
	}
	return false
}
