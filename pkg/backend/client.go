package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Vihanga22365/governance-analysis/internal/governance"
	"github.com/Vihanga22365/governance-analysis/pkg/domain"
	"github.com/Vihanga22365/governance-analysis/pkg/telemetry"
)

const (
	// DefaultTimeout bounds a single logical call, retries included.
	DefaultTimeout = 10 * time.Second
	// maxBodyBytes caps how much of a backend response is read.
	maxBodyBytes = 8 << 20
)

// Config configures the backend client.
type Config struct {
	BaseURL        string                          `yaml:"base_url" validate:"required,url"`
	Timeout        time.Duration                   `yaml:"timeout"`
	Retry          governance.RetryConfig          `yaml:"retry"`
	CircuitBreaker governance.CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// HTTPError is returned by mutations when the backend answers with a non-2xx status.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its transport is used as is.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithMetrics records request outcomes and breaker state on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// Client issues requests against the governance backend.
type Client struct {
	baseURL *url.URL
	timeout time.Duration
	http    *http.Client
	retry   *governance.RetryPolicy
	breaker *governance.CircuitBreaker
	metrics *telemetry.Metrics
	logger  *slog.Logger
}

// NewClient builds a Client for cfg.BaseURL.
func NewClient(cfg Config, logger *slog.Logger, opts ...Option) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("backend: parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("backend: base url %q must be absolute", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	c := &Client{
		baseURL: base,
		timeout: cfg.Timeout,
		http:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		retry:   governance.NewRetryPolicy(cfg.Retry),
		breaker: governance.NewCircuitBreaker(cfg.CircuitBreaker),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breaker.OnStateChange(func(from, to governance.CircuitBreakerState) {
		c.logger.Warn("backend circuit breaker changed state", "from", from, "to", to)
		if c.metrics != nil {
			c.metrics.SetCircuitState(string(to))
		}
	})
	if c.metrics != nil {
		c.metrics.SetCircuitState(string(governance.StateClosed))
	}
	return c, nil
}

// BreakerState reports the shared circuit breaker state.
func (c *Client) BreakerState() governance.CircuitBreakerState {
	return c.breaker.State()
}

// response is what one attempt observed.
type response struct {
	status int
	body   []byte
}

// upstreamError marks a 5xx answer so the breaker counts it.
type upstreamError struct{ status int }

func (e *upstreamError) Error() string { return fmt.Sprintf("upstream status %d", e.status) }

// get fetches path and converts every failure into a SourceError for name.
func (c *Client) get(ctx context.Context, name domain.SourceName, path *url.URL) (json.RawMessage, *domain.SourceError) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	start := time.Now()

	var last response
	status, err := c.retry.Do(ctx, func(ctx context.Context) (int, error) {
		resp, err := c.attempt(ctx, http.MethodGet, path, nil)
		last = resp
		return resp.status, err
	})

	payload, srcErr := sourceResult(name, status, last.body, err)
	c.record(string(name), http.MethodGet, srcErr == nil, time.Since(start))
	if srcErr != nil {
		c.logger.Debug("backend source failed", "endpoint", name, "status", srcErr.StatusCode, "error", srcErr.Message)
	}
	return payload, srcErr
}

// put sends body once; mutations are not retried.
func (c *Client) put(ctx context.Context, endpoint string, path *url.URL, body any) (json.RawMessage, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("backend: encode %s body: %w", endpoint, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	start := time.Now()

	resp, err := c.attempt(ctx, http.MethodPut, path, encoded)
	ok := err == nil && resp.status < 300
	c.record(endpoint, http.MethodPut, ok, time.Since(start))

	switch {
	case err != nil:
		return nil, fmt.Errorf("backend: PUT %s: %w", endpoint, err)
	case resp.status >= 300:
		return nil, &HTTPError{StatusCode: resp.status, Message: errorMessage(resp.body)}
	}
	if len(bytes.TrimSpace(resp.body)) == 0 {
		return json.RawMessage("null"), nil
	}
	return json.RawMessage(resp.body), nil
}

// attempt performs one request through the circuit breaker. 5xx answers are returned
// as *upstreamError with the response still populated.
func (c *Client) attempt(ctx context.Context, method string, path *url.URL, body []byte) (response, error) {
	var resp response
	err := c.breaker.ExecuteContext(ctx, func(ctx context.Context) error {
		target := c.baseURL.ResolveReference(path)
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		httpResp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer httpResp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		resp = response{status: httpResp.StatusCode, body: data}
		if httpResp.StatusCode >= 500 {
			return &upstreamError{status: httpResp.StatusCode}
		}
		return nil
	}, countsAgainstBreaker)

	var upstream *upstreamError
	if errors.As(err, &upstream) {
		// Status-level failure; the retry policy decides on the code alone.
		return resp, nil
	}
	return resp, err
}

// resourcePath joins path segments relative to the base URL, escaping each one.
func resourcePath(segments ...string) *url.URL {
	escaped := make([]string, len(segments))
	for i, segment := range segments {
		escaped[i] = url.PathEscape(segment)
	}
	return &url.URL{Path: strings.Join(segments, "/"), RawPath: strings.Join(escaped, "/")}
}

func countsAgainstBreaker(err error) bool {
	return !errors.Is(err, context.Canceled)
}

func (c *Client) record(endpoint, method string, ok bool, duration time.Duration) {
	if c.metrics == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	c.metrics.RecordBackendRequest(endpoint, method, outcome, duration)
}

// sourceResult maps the final outcome of a read to a payload or a SourceError.
func sourceResult(name domain.SourceName, status int, body []byte, err error) (json.RawMessage, *domain.SourceError) {
	if err != nil {
		return nil, &domain.SourceError{
			Message:  fmt.Sprintf("Error fetching %s: %v", name, err),
			Endpoint: name,
		}
	}
	if status >= 300 {
		return nil, &domain.SourceError{
			Message:    fmt.Sprintf("HTTP %d: %s", status, errorMessage(body)),
			StatusCode: status,
			Endpoint:   name,
		}
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(trimmed) {
		return nil, &domain.SourceError{
			Message:  fmt.Sprintf("Error fetching %s: invalid JSON response", name),
			Endpoint: name,
		}
	}
	return json.RawMessage(trimmed), nil
}

// errorMessage extracts the backend's error text: the "message" field of a JSON
// object body, otherwise the raw body.
func errorMessage(body []byte) string {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return strings.TrimSpace(string(body))
	}
	raw, ok := obj["message"]
	if !ok {
		return "Unknown error"
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, "; ")
	}
	return string(raw)
}
