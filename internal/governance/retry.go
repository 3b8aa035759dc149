package governance

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"net/http"
	"time"
)

// RetryConfig defines retry behavior for idempotent backend reads.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts (0 = no retries).
	MaxRetries int `yaml:"max_retries"`
	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	// MaxBackoff caps the delay between retries.
	MaxBackoff time.Duration `yaml:"max_backoff"`
	// BackoffMultiplier is the factor by which backoff increases.
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
	// Jitter adds up to 25% random delay to each backoff.
	Jitter bool `yaml:"jitter"`
	// RetryableStatusCodes lists HTTP status codes that trigger a retry.
	RetryableStatusCodes []int `yaml:"retryable_status_codes"`
}

// DefaultRetryableStatusCodes are the transient upstream statuses.
var DefaultRetryableStatusCodes = []int{
	http.StatusRequestTimeout,
	http.StatusTooManyRequests,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// DefaultRetryConfig returns sensible defaults for backend reads.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:           2,
		InitialBackoff:       100 * time.Millisecond,
		MaxBackoff:           2 * time.Second,
		BackoffMultiplier:    2.0,
		Jitter:               true,
		RetryableStatusCodes: DefaultRetryableStatusCodes,
	}
}

// RetryPolicy decides whether and when a failed attempt is repeated.
type RetryPolicy struct {
	config    RetryConfig
	retryable map[int]bool
}

// NewRetryPolicy creates a retry policy with the given configuration.
func NewRetryPolicy(config RetryConfig) *RetryPolicy {
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = 100 * time.Millisecond
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 2 * time.Second
	}
	if config.BackoffMultiplier <= 0 {
		config.BackoffMultiplier = 2.0
	}
	if config.RetryableStatusCodes == nil {
		config.RetryableStatusCodes = DefaultRetryableStatusCodes
	}

	retryable := make(map[int]bool, len(config.RetryableStatusCodes))
	for _, code := range config.RetryableStatusCodes {
		retryable[code] = true
	}
	return &RetryPolicy{config: config, retryable: retryable}
}

// Config returns a copy of the retry configuration.
func (rp *RetryPolicy) Config() RetryConfig {
	return rp.config
}

// ShouldRetry reports whether the outcome of attempt (zero based) warrants another try.
// The circuit being open is final.
func (rp *RetryPolicy) ShouldRetry(statusCode int, err error, attempt int) bool {
	if attempt >= rp.config.MaxRetries {
		return false
	}
	if err != nil {
		return !errors.Is(err, ErrCircuitOpen) && !errors.Is(err, context.Canceled)
	}
	return rp.retryable[statusCode]
}

// Backoff returns the delay before retry number attempt+1.
func (rp *RetryPolicy) Backoff(attempt int) time.Duration {
	backoff := time.Duration(float64(rp.config.InitialBackoff) * math.Pow(rp.config.BackoffMultiplier, float64(attempt)))
	if backoff > rp.config.MaxBackoff {
		backoff = rp.config.MaxBackoff
	}
	if rp.config.Jitter && backoff >= 4 {
		// #nosec G404 - Non-cryptographic random is acceptable for jitter
		backoff += time.Duration(rand.Int64N(int64(backoff / 4)))
	}
	return backoff
}

// Do runs fn until it succeeds, returns a non-retryable outcome, the retry budget is
// spent, or ctx ends. It returns the outcome of the last attempt made.
func (rp *RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) (int, error)) (int, error) {
	var (
		statusCode int
		err        error
	)
	for attempt := 0; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err == nil {
				err = ctxErr
			}
			return statusCode, err
		}

		statusCode, err = fn(ctx)
		if err == nil && statusCode < 300 {
			return statusCode, nil
		}
		if !rp.ShouldRetry(statusCode, err, attempt) {
			return statusCode, err
		}

		timer := time.NewTimer(rp.Backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return statusCode, err
		case <-timer.C:
		}
	}
}
