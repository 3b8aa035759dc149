package governance

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiterConfig defines per-route rate limit settings.
type RateLimiterConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size"`
}

// RateLimiter applies an independent token bucket to each configured route.
// Routes without configuration are never limited.
type RateLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
}

// NewRateLimiter creates a rate limiter with the provided configuration.
func NewRateLimiter(config map[string]RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{limiters: make(map[string]*rate.Limiter)}
	rl.Configure(config)
	return rl
}

// Configure replaces the per-route limits. Existing buckets keep their tokens.
func (rl *RateLimiter) Configure(config map[string]RateLimiterConfig) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	next := make(map[string]*rate.Limiter, len(config))
	for routeID, cfg := range config {
		limit, burst := normalize(cfg)
		if existing, ok := rl.limiters[routeID]; ok {
			existing.SetLimit(limit)
			existing.SetBurst(burst)
			next[routeID] = existing
			continue
		}
		next[routeID] = rate.NewLimiter(limit, burst)
	}
	rl.limiters = next
}

// Allow reports whether a request for routeID may proceed now.
func (rl *RateLimiter) Allow(routeID string) bool {
	rl.mu.RLock()
	limiter, ok := rl.limiters[routeID]
	rl.mu.RUnlock()
	if !ok {
		return true
	}
	return limiter.Allow()
}

// Routes returns the configured route identifiers.
func (rl *RateLimiter) Routes() []string {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	routes := make([]string, 0, len(rl.limiters))
	for routeID := range rl.limiters {
		routes = append(routes, routeID)
	}
	return routes
}

func normalize(cfg RateLimiterConfig) (rate.Limit, int) {
	if cfg.RequestsPerSecond <= 0 {
		return rate.Inf, 0
	}
	burst := cfg.BurstSize
	if burst <= 0 {
		burst = int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
	}
	return rate.Limit(cfg.RequestsPerSecond), burst
}
