package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/Vihanga22365/governance-analysis/internal/governance"
	"github.com/Vihanga22365/governance-analysis/pkg/backend"
	"github.com/Vihanga22365/governance-analysis/pkg/broadcast"
	"github.com/Vihanga22365/governance-analysis/pkg/logging"
	"github.com/Vihanga22365/governance-analysis/pkg/snapshot"
	"github.com/Vihanga22365/governance-analysis/pkg/telemetry"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "GOVHUB_"

// Config holds the global configuration for the hub.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Backend   backend.Config   `yaml:"backend"`
	Broadcast broadcast.Config `yaml:"broadcast"`
	Snapshot  snapshot.Config  `yaml:"snapshot"`
	Policy    PolicyConfig     `yaml:"policy"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	Logging   logging.Config   `yaml:"logging"`
}

// ServerConfig holds configuration for the HTTP listeners.
type ServerConfig struct {
	// APIAddress serves the operator API, /metrics and /ws.
	APIAddress string `yaml:"api_address" validate:"required"`
	// WSAddress serves subscriber connections only. Empty disables the dedicated listener.
	WSAddress       string        `yaml:"ws_address"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// RateLimits maps operator API route identifiers to token bucket limits.
	RateLimits map[string]governance.RateLimiterConfig `yaml:"rate_limits"`
}

// PolicyConfig locates the optional committee approval policy.
type PolicyConfig struct {
	File string `yaml:"file"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			APIAddress:      ":8080",
			WSAddress:       ":8354",
			ShutdownTimeout: 10 * time.Second,
		},
		Backend: backend.Config{
			BaseURL:        "http://localhost:3000/api",
			Timeout:        backend.DefaultTimeout,
			Retry:          governance.DefaultRetryConfig(),
			CircuitBreaker: governance.DefaultCircuitBreakerConfig(),
		},
		Broadcast: broadcast.DefaultConfig(),
		Snapshot:  snapshot.Config{Concurrency: 8},
		Telemetry: telemetry.Config{ServiceName: "governance-hub"},
		Logging:   logging.Config{Level: "info", Format: "text"},
	}
}

// Load reads configuration from a file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		//nolint:gosec // Config file path is controlled by the operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if val := os.Getenv(EnvPrefix + "API_ADDR"); val != "" {
		cfg.Server.APIAddress = val
	}
	if val, ok := os.LookupEnv(EnvPrefix + "WS_ADDR"); ok {
		cfg.Server.WSAddress = val
	}
	if val := os.Getenv(EnvPrefix + "BACKEND_URL"); val != "" {
		cfg.Backend.BaseURL = val
	}
	if val := os.Getenv(EnvPrefix + "BACKEND_TIMEOUT"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("%sBACKEND_TIMEOUT: %w", EnvPrefix, err)
		}
		cfg.Backend.Timeout = d
	}
	if val := os.Getenv(EnvPrefix + "QUEUE_SIZE"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%sQUEUE_SIZE: %w", EnvPrefix, err)
		}
		cfg.Broadcast.QueueSize = n
	}
	if val := os.Getenv(EnvPrefix + "ALLOWED_ORIGINS"); val != "" {
		cfg.Broadcast.AllowedOrigins = splitList(val)
	}
	if val := os.Getenv(EnvPrefix + "POLICY_FILE"); val != "" {
		cfg.Policy.File = val
	}
	if val := os.Getenv(EnvPrefix + "OTLP_ENDPOINT"); val != "" {
		cfg.Telemetry.Endpoint = val
	}
	if val := os.Getenv(EnvPrefix + "OTLP_INSECURE"); val == "true" {
		cfg.Telemetry.Insecure = true
	}
	if val := os.Getenv(EnvPrefix + "LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv(EnvPrefix + "LOG_FORMAT"); val != "" {
		cfg.Logging.Format = val
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	if c.Server.WSAddress != "" && c.Server.WSAddress == c.Server.APIAddress {
		return fmt.Errorf("server configuration: ws_address must differ from api_address")
	}
	if c.Backend.Timeout < 0 {
		return fmt.Errorf("backend configuration: timeout must not be negative")
	}
	if c.Broadcast.WriteTimeout <= 0 {
		return fmt.Errorf("broadcast configuration: write_timeout must be positive")
	}
	if c.Broadcast.PingInterval < 0 {
		return fmt.Errorf("broadcast configuration: ping_interval must not be negative")
	}
	for route, rl := range c.Server.RateLimits {
		if rl.RequestsPerSecond < 0 || rl.BurstSize < 0 {
			return fmt.Errorf("server configuration: rate limit for %s must not be negative", route)
		}
	}
	if c.Policy.File != "" {
		if _, err := os.Stat(c.Policy.File); err != nil {
			return fmt.Errorf("policy configuration: %w", err)
		}
	}
	return nil
}

func splitList(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
