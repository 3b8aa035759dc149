package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.APIAddress)
	assert.Equal(t, ":8354", cfg.Server.WSAddress)
	assert.Equal(t, "http://localhost:3000/api", cfg.Backend.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, 64, cfg.Broadcast.QueueSize)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
server:
  api_address: ":9090"
  ws_address: ""
  rate_limits:
    committee_status:
      requests_per_second: 5
      burst_size: 10
backend:
  base_url: "http://backend.internal:3000/api"
  timeout: 3s
  retry:
    max_retries: 1
broadcast:
  queue_size: 8
  write_timeout: 2s
  allowed_origins: ["https://portal.example.com"]
snapshot:
  concurrency: 4
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.APIAddress)
	assert.Empty(t, cfg.Server.WSAddress)
	assert.Equal(t, 5.0, cfg.Server.RateLimits["committee_status"].RequestsPerSecond)
	assert.Equal(t, "http://backend.internal:3000/api", cfg.Backend.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, 1, cfg.Backend.Retry.MaxRetries)
	assert.Equal(t, 8, cfg.Broadcast.QueueSize)
	assert.Equal(t, 2*time.Second, cfg.Broadcast.WriteTimeout)
	assert.Equal(t, []string{"https://portal.example.com"}, cfg.Broadcast.AllowedOrigins)
	assert.Equal(t, 4, cfg.Snapshot.Concurrency)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("GOVHUB_API_ADDR", ":7000")
	t.Setenv("GOVHUB_WS_ADDR", "")
	t.Setenv("GOVHUB_BACKEND_URL", "https://api.example.com/api")
	t.Setenv("GOVHUB_BACKEND_TIMEOUT", "2s")
	t.Setenv("GOVHUB_QUEUE_SIZE", "16")
	t.Setenv("GOVHUB_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("GOVHUB_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("GOVHUB_OTLP_INSECURE", "true")
	t.Setenv("GOVHUB_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Server.APIAddress)
	assert.Empty(t, cfg.Server.WSAddress)
	assert.Equal(t, "https://api.example.com/api", cfg.Backend.BaseURL)
	assert.Equal(t, 2*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, 16, cfg.Broadcast.QueueSize)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Broadcast.AllowedOrigins)
	assert.Equal(t, "collector:4317", cfg.Telemetry.Endpoint)
	assert.True(t, cfg.Telemetry.Insecure)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		body    string
		env     map[string]string
		wantErr string
	}{
		{name: "invalid yaml", body: "server: [", wantErr: "failed to parse config file"},
		{name: "relative backend url", body: "backend:\n  base_url: not-a-url\n", wantErr: "BaseURL"},
		{name: "zero queue", body: "broadcast:\n  queue_size: 0\n", wantErr: "QueueSize"},
		{name: "unknown log level", body: "logging:\n  level: loud\n", wantErr: "Level"},
		{name: "same listeners", body: "server:\n  api_address: \":9000\"\n  ws_address: \":9000\"\n", wantErr: "ws_address must differ"},
		{name: "missing policy", body: "policy:\n  file: /nonexistent/approval.rego\n", wantErr: "policy configuration"},
		{name: "negative rate", body: "server:\n  rate_limits:\n    refresh:\n      requests_per_second: -1\n", wantErr: "rate limit for refresh"},
		{name: "bad env duration", env: map[string]string{"GOVHUB_BACKEND_TIMEOUT": "soon"}, wantErr: "GOVHUB_BACKEND_TIMEOUT"},
		{name: "bad env queue", env: map[string]string{"GOVHUB_QUEUE_SIZE": "many"}, wantErr: "GOVHUB_QUEUE_SIZE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := writeConfig(t, dir, tt.body)
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
