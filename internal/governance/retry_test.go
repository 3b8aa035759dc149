package governance

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(maxRetries int) *RetryPolicy {
	return NewRetryPolicy(RetryConfig{
		MaxRetries:     maxRetries,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	})
}

func TestRetryPolicyRetriesTransientStatus(t *testing.T) {
	rp := fastRetry(3)
	attempts := 0

	status, err := rp.Do(context.Background(), func(context.Context) (int, error) {
		attempts++
		if attempts < 3 {
			return http.StatusServiceUnavailable, nil
		}
		return http.StatusOK, nil
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 3, attempts)
}

func TestRetryPolicyStopsOnNonRetryableStatus(t *testing.T) {
	rp := fastRetry(3)
	attempts := 0

	status, err := rp.Do(context.Background(), func(context.Context) (int, error) {
		attempts++
		return http.StatusNotFound, nil
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, 1, attempts)
}

func TestRetryPolicyReturnsLastOutcomeWhenExhausted(t *testing.T) {
	rp := fastRetry(2)
	attempts := 0
	boom := errors.New("connection reset")

	_, err := rp.Do(context.Background(), func(context.Context) (int, error) {
		attempts++
		return 0, boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, attempts)
}

func TestRetryPolicyDoesNotRetryOpenCircuit(t *testing.T) {
	rp := fastRetry(5)
	attempts := 0

	_, err := rp.Do(context.Background(), func(context.Context) (int, error) {
		attempts++
		return 0, ErrCircuitOpen
	})

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 1, attempts)
}

func TestRetryPolicyHonoursContextDeadline(t *testing.T) {
	rp := NewRetryPolicy(RetryConfig{MaxRetries: 10, InitialBackoff: 50 * time.Millisecond, MaxBackoff: time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	attempts := 0

	status, _ := rp.Do(ctx, func(context.Context) (int, error) {
		attempts++
		return http.StatusBadGateway, nil
	})

	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, 1, attempts)
}

func TestRetryPolicyBackoffIsCapped(t *testing.T) {
	rp := NewRetryPolicy(RetryConfig{InitialBackoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond, BackoffMultiplier: 2})

	assert.Equal(t, 100*time.Millisecond, rp.Backoff(0))
	assert.Equal(t, 200*time.Millisecond, rp.Backoff(1))
	assert.Equal(t, 300*time.Millisecond, rp.Backoff(5))
}
