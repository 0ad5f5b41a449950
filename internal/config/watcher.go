package config

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/getsentry/sentry-go"
)

const reloadDebounce = time.Second

// ChangeFunc is called after the live settings were replaced.
type ChangeFunc func(ctx context.Context, old, next *Settings)

// Watcher reloads the env file when it changes on disk and publishes the
// new settings snapshot.
type Watcher struct {
	path     string
	live     *Live
	onChange ChangeFunc
	reload   func(path string) (*Settings, error)
}

// NewWatcher creates a watcher for the env file at path.
func NewWatcher(path string, live *Live, onChange ChangeFunc) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("env file path cannot be empty")
	}
	if live == nil {
		return nil, fmt.Errorf("live settings cannot be nil")
	}
	return &Watcher{path: path, live: live, onChange: onChange, reload: ReloadSettings}, nil
}

// Run blocks until ctx is done. The directory is watched rather than the file
// so that editors which replace the file on save are still noticed.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(w.path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", w.path, err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	log.Printf("[ConfigWatcher] Watching %s for changes", abs)

	var debounce *time.Timer
	var debounceCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil
		case evt, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(evt.Name) != abs {
				continue
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(reloadDebounce)
				debounceCh = debounce.C
			} else {
				debounce.Reset(reloadDebounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("[ConfigWatcher] fsnotify error: %v", err)
		case <-debounceCh:
			debounce = nil
			debounceCh = nil
			w.apply(ctx)
		}
	}
}

func (w *Watcher) apply(ctx context.Context) {
	next, err := w.reload(w.path)
	if err != nil {
		log.Printf("[ConfigWatcher] Reload failed, keeping previous settings: %v", err)
		sentry.CaptureException(fmt.Errorf("config reload: %w", err))
		return
	}
	old := w.live.Swap(next)
	log.Printf("[ConfigWatcher] Settings reloaded (enabled=%t, types=%d)", next.Enabled, len(next.NotificationTypes))
	if w.onChange != nil {
		w.onChange(ctx, old, next)
	}
}
