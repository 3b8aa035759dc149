package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadFunc receives a freshly loaded and validated configuration.
type ReloadFunc func(ctx context.Context, cfg *Config) error

// Watcher reloads the configuration file when it changes.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onReload ReloadFunc
	onResult func(err error)
	logger   *slog.Logger
	debounce time.Duration

	mu      sync.Mutex
	running bool
}

// NewWatcher creates a Watcher for path. onResult, when set, observes every reload outcome.
func NewWatcher(path string, onReload ReloadFunc, onResult func(error), logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		path:     path,
		watcher:  fw,
		onReload: onReload,
		onResult: onResult,
		logger:   logger,
		debounce: 500 * time.Millisecond,
	}, nil
}

// Run watches until ctx ends. The directory is watched so editors that replace
// the file by rename are observed.
func (w *Watcher) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()
	defer w.watcher.Close()

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	w.logger.Info("config watcher started", "config_path", w.path)

	var timer *time.Timer
	fire := make(chan struct{}, 1)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("config watcher stopped")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.isConfigEvent(event) || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			w.reload(ctx)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	start := time.Now()
	cfg, err := Load(w.path)
	if err == nil {
		err = w.onReload(ctx, cfg)
	}
	if err != nil {
		w.logger.Error("config reload failed", "config_path", w.path, "error", err, "duration", time.Since(start))
	} else {
		w.logger.Info("config reloaded", "config_path", w.path, "duration", time.Since(start))
	}
	if w.onResult != nil {
		w.onResult(err)
	}
}

func (w *Watcher) isConfigEvent(event fsnotify.Event) bool {
	eventPath, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	configPath, err := filepath.Abs(w.path)
	if err != nil {
		return false
	}
	return eventPath == configPath
}
