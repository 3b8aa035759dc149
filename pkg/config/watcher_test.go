package config

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reloadRecorder struct {
	mu      sync.Mutex
	configs []*Config
	results []error
}

func (r *reloadRecorder) reload(_ context.Context, cfg *Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs = append(r.configs, cfg)
	return nil
}

func (r *reloadRecorder) result(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, err)
}

func (r *reloadRecorder) snapshot() ([]*Config, []error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Config(nil), r.configs...), append([]error(nil), r.results...)
}

func startWatcher(t *testing.T, path string, onReload ReloadFunc, onResult func(error)) {
	t.Helper()
	w, err := NewWatcher(path, onReload, onResult, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	w.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	// Give the watcher time to register the directory.
	time.Sleep(50 * time.Millisecond)
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "logging:\n  level: info\n")
	rec := &reloadRecorder{}
	startWatcher(t, path, rec.reload, rec.result)

	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o600))

	require.Eventually(t, func() bool {
		configs, _ := rec.snapshot()
		return len(configs) > 0 && configs[len(configs)-1].Logging.Level == "debug"
	}, 2*time.Second, 10*time.Millisecond)

	_, results := rec.snapshot()
	for _, err := range results {
		assert.NoError(t, err)
	}
}

func TestWatcherReportsInvalidConfig(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "logging:\n  level: info\n")
	rec := &reloadRecorder{}
	startWatcher(t, path, rec.reload, rec.result)

	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: loud\n"), 0o600))

	require.Eventually(t, func() bool {
		_, results := rec.snapshot()
		return len(results) > 0
	}, 2*time.Second, 10*time.Millisecond)

	configs, results := rec.snapshot()
	assert.Empty(t, configs)
	assert.Error(t, results[len(results)-1])
}

func TestWatcherIgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "logging:\n  level: info\n")
	calls := 0
	var mu sync.Mutex
	startWatcher(t, path, func(context.Context, *Config) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return errors.New("unexpected reload")
	}, nil)

	require.NoError(t, os.WriteFile(dir+"/other.yaml", []byte("x: 1\n"), 0o600))
	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, calls)
}
