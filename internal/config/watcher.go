package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultWatchDebounce = 750 * time.Millisecond

// Watcher reloads the config file when it changes on disk and hands the new
// value to onChange. Only runtime-tunable settings should be applied by the
// callback; credentials and connections stay as they were at startup.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func(*Config)

	mu       sync.Mutex
	timer    *time.Timer
	lastHash string
}

// NewWatcher creates a watcher for path. current is the config already in use,
// so an unchanged file does not trigger a callback.
func NewWatcher(path string, current *Config, onChange func(*Config)) (*Watcher, error) {
	if onChange == nil {
		return nil, fmt.Errorf("config watcher: onChange required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}
	w := &Watcher{
		path:     filepath.Clean(abs),
		debounce: defaultWatchDebounce,
		onChange: onChange,
	}
	if current != nil {
		w.lastHash = current.Hash()
	}
	return w, nil
}

// Run watches until ctx is cancelled. The parent directory is watched so that
// editors which replace the file atomically are still observed.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("config watcher: watch %s: %w", filepath.Dir(w.path), err)
	}
	slog.Info("config watcher started", "path", w.path)

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			w.schedule()
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		slog.Warn("config reload failed, keeping previous settings", "path", w.path, "error", err)
		return
	}

	hash := cfg.Hash()
	w.mu.Lock()
	if hash == w.lastHash {
		w.mu.Unlock()
		return
	}
	w.lastHash = hash
	w.mu.Unlock()

	slog.Info("config reloaded", "path", w.path)
	w.onChange(cfg)
}
