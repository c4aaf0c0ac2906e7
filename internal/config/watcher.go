package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a config file when it changes on disk and hands every
// valid new config to a callback. Edits that fail to parse or validate are
// logged and skipped, so the last good config stays current.
//
// The parent directory is watched rather than the file itself: editors and
// config-map mounts replace files by rename, which drops a file watch.
type Watcher struct {
	path     string
	settle   time.Duration
	onChange func(old, next *Config, changes Changes)

	mu      sync.Mutex
	current *Config
	sum     [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithSettle sets how long the watcher waits for a burst of events to end
// before reloading. Default: 250ms.
func WithSettle(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.settle = d
		}
	}
}

// NewWatcher loads path and returns a watcher primed with it. Nothing is
// watched until [Watcher.Run].
func NewWatcher(path string, onChange func(old, next *Config, changes Changes), opts ...WatcherOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w := &Watcher{path: abs, settle: 250 * time.Millisecond, onChange: onChange}
	for _, o := range opts {
		o(w)
	}
	cfg, sum, err := w.load()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current, w.sum = cfg, sum
	return w, nil
}

// Current returns the last valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run watches the file until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watch: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("config: watch %s: %w", filepath.Dir(w.path), err)
	}

	settle := time.NewTimer(time.Hour)
	settle.Stop()
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path || ev.Op == fsnotify.Chmod {
				continue
			}
			settle.Reset(w.settle)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("config watcher error", "path", w.path, "err", err)
		case <-settle.C:
			w.Reload()
		}
	}
}

// Reload reads the file once and reports whether a new config was applied.
// Unchanged content is not reported.
func (w *Watcher) Reload() bool {
	cfg, sum, err := w.load()
	if errors.Is(err, os.ErrNotExist) {
		slog.Debug("config file missing, waiting for it to reappear", "path", w.path)
		return false
	}
	if err != nil {
		slog.Warn("config edit rejected, keeping the previous config", "path", w.path, "err", err)
		return false
	}

	w.mu.Lock()
	if sum == w.sum {
		w.mu.Unlock()
		return false
	}
	old := w.current
	w.current, w.sum = cfg, sum
	w.mu.Unlock()

	changes := Diff(old, cfg)
	slog.Info("config reloaded", "path", w.path, "restart_required", changes.RestartRequired)
	if w.onChange != nil {
		w.onChange(old, cfg, changes)
	}
	return true
}

func (w *Watcher) load() (*Config, [sha256.Size]byte, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, [sha256.Size]byte{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, [sha256.Size]byte{}, err
	}
	return cfg, sha256.Sum256(data), nil
}
