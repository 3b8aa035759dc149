package governance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var errUpstream = errors.New("upstream failed")

func failing(context.Context) error { return errUpstream }
func succeeding(context.Context) error { return nil }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(maxFailures int) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: maxFailures, OpenTimeout: time.Second, HalfOpenProbes: 1})
	cb.now = clock.Now
	return cb, clock
}

func TestCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cb, _ := newTestBreaker(3)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.ErrorIs(t, cb.ExecuteContext(ctx, failing, nil), errUpstream)
	}
	assert.Equal(t, StateClosed, cb.State())

	require.ErrorIs(t, cb.ExecuteContext(ctx, failing, nil), errUpstream)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.ExecuteContext(ctx, func(context.Context) error { called = true; return nil }, nil)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreakerSuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(2)
	ctx := context.Background()

	_ = cb.ExecuteContext(ctx, failing, nil)
	require.NoError(t, cb.ExecuteContext(ctx, succeeding, nil))
	_ = cb.ExecuteContext(ctx, failing, nil)

	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerIgnoresUncountedErrors(t *testing.T) {
	cb, _ := newTestBreaker(1)
	notCounted := func(error) bool { return false }

	for i := 0; i < 5; i++ {
		_ = cb.ExecuteContext(context.Background(), failing, notCounted)
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	cb, clock := newTestBreaker(1)
	ctx := context.Background()

	var transitions []CircuitBreakerState
	cb.OnStateChange(func(_, to CircuitBreakerState) { transitions = append(transitions, to) })

	_ = cb.ExecuteContext(ctx, failing, nil)
	require.Equal(t, StateOpen, cb.State())

	clock.Advance(2 * time.Second)
	require.NoError(t, cb.ExecuteContext(ctx, succeeding, nil))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, []CircuitBreakerState{StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(1)
	ctx := context.Background()

	_ = cb.ExecuteContext(ctx, failing, nil)
	clock.Advance(2 * time.Second)
	_ = cb.ExecuteContext(ctx, failing, nil)

	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.ExecuteContext(ctx, succeeding, nil), ErrCircuitOpen)
}

func TestCircuitBreakerIgnoresCompletionsFromEarlierState(t *testing.T) {
	cb, clock := newTestBreaker(2)
	ctx := context.Background()

	release := make(chan struct{})
	started := make(chan struct{})
	slowDone := make(chan error, 1)
	go func() {
		slowDone <- cb.ExecuteContext(ctx, func(context.Context) error {
			close(started)
			<-release
			return nil
		}, nil)
	}()
	<-started

	_ = cb.ExecuteContext(ctx, failing, nil)
	_ = cb.ExecuteContext(ctx, failing, nil)
	require.Equal(t, StateOpen, cb.State())

	clock.Advance(2 * time.Second)
	probeRelease := make(chan struct{})
	probeStarted := make(chan struct{})
	probeDone := make(chan error, 1)
	go func() {
		probeDone <- cb.ExecuteContext(ctx, func(context.Context) error {
			close(probeStarted)
			<-probeRelease
			return errUpstream
		}, nil)
	}()
	<-probeStarted
	require.Equal(t, StateHalfOpen, cb.State())

	// The request admitted while closed finishes successfully during the probe.
	close(release)
	require.NoError(t, <-slowDone)
	assert.Equal(t, StateHalfOpen, cb.State())
	assert.ErrorIs(t, cb.ExecuteContext(ctx, succeeding, nil), ErrCircuitOpen, "probe slot must still be taken")

	close(probeRelease)
	require.ErrorIs(t, <-probeDone, errUpstream)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreakerDisabled(t *testing.T) {
	cb, _ := newTestBreaker(0)
	for i := 0; i < 20; i++ {
		_ = cb.ExecuteContext(context.Background(), failing, nil)
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerReset(t *testing.T) {
	cb, _ := newTestBreaker(1)
	_ = cb.ExecuteContext(context.Background(), failing, nil)
	require.Equal(t, StateOpen, cb.State())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.NoError(t, cb.ExecuteContext(context.Background(), succeeding, nil))
}

func TestCircuitBreakerCancelledContextSkipsCall(t *testing.T) {
	cb, _ := newTestBreaker(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := cb.ExecuteContext(ctx, failing, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerOpensOnlyAtThresholdProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		threshold := rapid.IntRange(1, 10).Draw(t, "threshold")
		failures := rapid.IntRange(0, 20).Draw(t, "failures")

		cb, _ := newTestBreaker(threshold)
		for i := 0; i < failures; i++ {
			_ = cb.ExecuteContext(context.Background(), failing, nil)
		}

		if failures >= threshold {
			assert.Equal(t, StateOpen, cb.State())
		} else {
			assert.Equal(t, StateClosed, cb.State())
		}
	})
}
