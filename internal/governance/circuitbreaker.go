package governance

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrCircuitOpen is returned when the circuit breaker is in the open state.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// CircuitBreakerState represents the state of a circuit breaker.
type CircuitBreakerState string

const (
	// StateClosed indicates the circuit is closed and requests are allowed.
	StateClosed CircuitBreakerState = "closed"
	// StateOpen indicates the circuit is open and requests are rejected.
	StateOpen CircuitBreakerState = "open"
	// StateHalfOpen indicates the circuit is testing if the backend has recovered.
	StateHalfOpen CircuitBreakerState = "half-open"
)

// CircuitBreakerConfig defines thresholds for circuit breaking.
type CircuitBreakerConfig struct {
	// MaxFailures is the consecutive failure count that opens the circuit.
	// Zero disables the breaker.
	MaxFailures int `yaml:"max_failures"`
	// OpenTimeout is how long the circuit stays open before probing.
	OpenTimeout time.Duration `yaml:"open_timeout"`
	// HalfOpenProbes is the number of successful probes needed to close again.
	HalfOpenProbes int `yaml:"half_open_probes"`
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxFailures:    5,
		OpenTimeout:    30 * time.Second,
		HalfOpenProbes: 1,
	}
}

// CircuitBreaker guards calls to the governance backend.
type CircuitBreaker struct {
	mu       sync.Mutex
	state    CircuitBreakerState
	config   CircuitBreakerConfig
	now      func() time.Time
	onChange func(from, to CircuitBreakerState)

	// generation advances on every transition. Completions admitted under an
	// earlier generation are not counted.
	generation          uint64
	consecutiveFailures int
	probesInFlight      int
	probeSuccesses      int
	openUntil           time.Time
}

// NewCircuitBreaker creates a circuit breaker with the provided configuration.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.MaxFailures < 0 {
		config.MaxFailures = 0
	}
	if config.OpenTimeout <= 0 {
		config.OpenTimeout = 30 * time.Second
	}
	if config.HalfOpenProbes <= 0 {
		config.HalfOpenProbes = 1
	}
	return &CircuitBreaker{
		state:  StateClosed,
		config: config,
		now:    time.Now,
	}
}

// OnStateChange registers a callback invoked after every transition.
// The callback runs with the breaker unlocked.
func (cb *CircuitBreaker) OnStateChange(fn func(from, to CircuitBreakerState)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onChange = fn
}

// ExecuteContext runs fn unless the circuit is open. Only errors for which
// countable returns true are recorded as failures; a nil countable counts every error.
func (cb *CircuitBreaker) ExecuteContext(ctx context.Context, fn func(context.Context) error, countable func(error) bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	gen, err := cb.beforeRequest()
	if err != nil {
		return err
	}

	err = fn(ctx)
	failed := err != nil && (countable == nil || countable(err))
	cb.afterRequest(gen, failed)
	return err
}

func (cb *CircuitBreaker) beforeRequest() (uint64, error) {
	cb.mu.Lock()
	var transition func()
	defer func() {
		cb.mu.Unlock()
		if transition != nil {
			transition()
		}
	}()

	if cb.config.MaxFailures == 0 {
		return cb.generation, nil
	}

	switch cb.state {
	case StateOpen:
		if cb.now().Before(cb.openUntil) {
			return 0, ErrCircuitOpen
		}
		transition = cb.transitionLocked(StateHalfOpen)
		cb.probesInFlight++
	case StateHalfOpen:
		if cb.probesInFlight >= cb.config.HalfOpenProbes {
			return 0, ErrCircuitOpen
		}
		cb.probesInFlight++
	}
	return cb.generation, nil
}

func (cb *CircuitBreaker) afterRequest(gen uint64, failed bool) {
	cb.mu.Lock()
	var transition func()
	defer func() {
		cb.mu.Unlock()
		if transition != nil {
			transition()
		}
	}()

	if cb.config.MaxFailures == 0 || gen != cb.generation {
		return
	}

	switch cb.state {
	case StateHalfOpen:
		cb.probesInFlight--
		if failed {
			transition = cb.transitionLocked(StateOpen)
			return
		}
		cb.probeSuccesses++
		if cb.probeSuccesses >= cb.config.HalfOpenProbes {
			transition = cb.transitionLocked(StateClosed)
		}
	case StateClosed:
		if !failed {
			cb.consecutiveFailures = 0
			return
		}
		cb.consecutiveFailures++
		if cb.consecutiveFailures >= cb.config.MaxFailures {
			transition = cb.transitionLocked(StateOpen)
		}
	}
}

func (cb *CircuitBreaker) transitionLocked(to CircuitBreakerState) func() {
	from := cb.state
	if from == to {
		return nil
	}

	cb.state = to
	cb.generation++
	cb.consecutiveFailures = 0
	cb.probesInFlight = 0
	cb.probeSuccesses = 0
	if to == StateOpen {
		cb.openUntil = cb.now().Add(cb.config.OpenTimeout)
	} else {
		cb.openUntil = time.Time{}
	}

	if cb.onChange == nil {
		return nil
	}
	notify := cb.onChange
	return func() { notify(from, to) }
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset manually resets the circuit breaker to closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	transition := cb.transitionLocked(StateClosed)
	cb.mu.Unlock()
	if transition != nil {
		transition()
	}
}
