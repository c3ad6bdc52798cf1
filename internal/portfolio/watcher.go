package portfolio

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"cubefolio/internal/cube"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDelay coalesces the write, rename and chmod events of one
// store update into a single notification.
const DefaultWatchDelay = 200 * time.Millisecond

// Watcher reports changes to a single file, debounced. It watches the
// parent directory so that atomic replace-by-rename is seen.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	debounce *cube.Debouncer
	onChange func()
}

// NewWatcher watches path and calls onChange once per burst of changes.
// onChange runs on a timer goroutine.
func NewWatcher(path string, delay time.Duration, onChange func()) (*Watcher, error) {
	if delay <= 0 {
		delay = DefaultWatchDelay
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	return &Watcher{
		path:     abs,
		watcher:  fw,
		debounce: cube.NewDebouncer(delay, nil),
		onChange: onChange,
	}, nil
}

// Run delivers notifications until ctx is cancelled, then releases the
// watcher and drops any pending notification.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.debounce.Cancel()
	defer w.watcher.Close()

	slog.Info("watching project store", "path", w.path)
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handle(ev)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("store watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if filepath.Clean(ev.Name) != w.path {
		return
	}
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
		return
	}
	slog.Debug("project store changed", "op", ev.Op.String())
	w.debounce.Trigger(w.onChange)
}
