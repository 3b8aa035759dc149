package broadcast

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Vihanga22365/governance-analysis/pkg/telemetry"
)

// Config tunes the publisher loop.
type Config struct {
	// QueueSize bounds the number of messages waiting for the loop.
	QueueSize int `yaml:"queue_size" validate:"gte=1"`
	// WriteTimeout bounds each per-connection send.
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// PingInterval is the period of the liveness sweep. Zero disables pings.
	PingInterval time.Duration `yaml:"ping_interval"`
	// AllowedOrigins restricts websocket upgrades. Empty allows any origin.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DefaultConfig returns the publisher loop defaults.
func DefaultConfig() Config {
	return Config{
		QueueSize:    64,
		WriteTimeout: 5 * time.Second,
		PingInterval: 30 * time.Second,
	}
}

// Stats describes the registry at one point in time.
type Stats struct {
	Running     bool `json:"running"`
	Connections int  `json:"connections"`
}

// Removal reasons reported to metrics and logs.
const (
	reasonClosed   = "closed"
	reasonFailed   = "failed"
	reasonShutdown = "shutdown"
)

type removal struct {
	id     string
	reason string
}

// Hub is the publisher loop. Its registry is only touched by the Run goroutine.
type Hub struct {
	cfg     Config
	logger  *slog.Logger
	metrics *telemetry.Metrics
	now     func() time.Time

	register   chan Subscriber
	unregister chan removal
	inbox      chan Message
	stats      chan chan Stats

	started atomic.Bool
	ready   atomic.Bool
	done    chan struct{}
}

// HubOption customises a Hub.
type HubOption func(*Hub)

// WithHubMetrics records connection and broadcast metrics on m.
func WithHubMetrics(m *telemetry.Metrics) HubOption {
	return func(h *Hub) { h.metrics = m }
}

// NewHub creates a stopped Hub. Call Run to start the loop.
func NewHub(cfg Config, logger *slog.Logger, opts ...HubOption) *Hub {
	defaults := DefaultConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaults.QueueSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PingInterval < 0 {
		cfg.PingInterval = 0
	}
	if logger == nil {
		logger = slog.Default()
	}

	h := &Hub{
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
		register:   make(chan Subscriber),
		unregister: make(chan removal),
		inbox:      make(chan Message, cfg.QueueSize),
		stats:      make(chan chan Stats),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Ready reports whether the loop is accepting work.
func (h *Hub) Ready() bool {
	return h.ready.Load()
}

// Done is closed once the loop has stopped and every subscriber was closed.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Run executes the publisher loop until ctx ends. A Hub runs at most once.
func (h *Hub) Run(ctx context.Context) error {
	if !h.started.CompareAndSwap(false, true) {
		return ErrLoopNotReady
	}

	registry := make(map[string]Subscriber)
	var pings <-chan time.Time
	if h.cfg.PingInterval > 0 {
		ticker := time.NewTicker(h.cfg.PingInterval)
		defer ticker.Stop()
		pings = ticker.C
	}

	h.ready.Store(true)
	h.logger.Info("publisher loop started", "queue_size", h.cfg.QueueSize, "ping_interval", h.cfg.PingInterval)

	defer func() {
		h.ready.Store(false)
		for id := range registry {
			h.remove(registry, id, reasonShutdown)
		}
		close(h.done)
		h.logger.Info("publisher loop stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case sub := <-h.register:
			if old, ok := registry[sub.ID()]; ok && old != sub {
				h.remove(registry, sub.ID(), reasonClosed)
			}
			registry[sub.ID()] = sub
			if h.metrics != nil {
				h.metrics.RecordConnectionOpened()
			}
			h.logger.Debug("subscriber registered", "subscriber_id", sub.ID(), "connections", len(registry))

		case r := <-h.unregister:
			h.remove(registry, r.id, r.reason)

		case msg := <-h.inbox:
			h.publish(registry, msg)

		case <-pings:
			h.ping(registry)

		case reply := <-h.stats:
			reply <- Stats{Running: true, Connections: len(registry)}
		}
	}
}

// publish serializes msg once and sends it to every member. Failed members are
// pruned after the sweep.
func (h *Hub) publish(registry map[string]Subscriber, msg Message) {
	frame, err := msg.Encode()
	if err != nil {
		h.logger.Error("dropping unencodable broadcast", "type", msg.Type, "error", err)
		return
	}

	var failed []string
	for id, sub := range registry {
		if err := sub.Send(frame, h.now().Add(h.cfg.WriteTimeout)); err != nil {
			h.logger.Debug("subscriber send failed", "subscriber_id", id, "error", err)
			failed = append(failed, id)
		}
	}
	for _, id := range failed {
		h.remove(registry, id, reasonFailed)
	}

	if h.metrics != nil {
		h.metrics.RecordBroadcast(string(msg.Type), len(failed))
	}
	h.logger.Debug("broadcast published",
		"type", msg.Type,
		"delivered", len(registry),
		"pruned", len(failed),
	)
}

func (h *Hub) ping(registry map[string]Subscriber) {
	var failed []string
	for id, sub := range registry {
		if err := sub.Ping(h.now().Add(h.cfg.WriteTimeout)); err != nil {
			failed = append(failed, id)
		}
	}
	for _, id := range failed {
		h.remove(registry, id, reasonFailed)
	}
}

// remove drops id from the registry and closes it. Unknown ids are ignored.
func (h *Hub) remove(registry map[string]Subscriber, id, reason string) {
	sub, ok := registry[id]
	if !ok {
		return
	}
	delete(registry, id)
	if err := sub.Close(); err != nil {
		h.logger.Debug("subscriber close failed", "subscriber_id", id, "error", err)
	}
	if h.metrics != nil {
		h.metrics.RecordConnectionClosed(reason)
	}
	h.logger.Debug("subscriber removed", "subscriber_id", id, "reason", reason, "connections", len(registry))
}

// Register adds sub to the registry.
func (h *Hub) Register(ctx context.Context, sub Subscriber) error {
	if !h.ready.Load() {
		return ErrLoopNotReady
	}
	select {
	case h.register <- sub:
		return nil
	case <-h.done:
		return ErrLoopNotReady
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unregister removes the subscriber with id. Removing an absent id is a no-op.
func (h *Hub) Unregister(id string) {
	if !h.ready.Load() {
		return
	}
	select {
	case h.unregister <- removal{id: id, reason: reasonClosed}:
	case <-h.done:
	}
}

// Stats queries the loop for the current registry size.
func (h *Hub) Stats(ctx context.Context) Stats {
	if !h.ready.Load() {
		return Stats{}
	}
	reply := make(chan Stats, 1)
	select {
	case h.stats <- reply:
	case <-h.done:
		return Stats{}
	case <-ctx.Done():
		return Stats{}
	}
	select {
	case s := <-reply:
		return s
	case <-ctx.Done():
		return Stats{}
	}
}

// enqueue hands msg to the loop without blocking.
func (h *Hub) enqueue(msg Message) error {
	if !h.ready.Load() {
		return ErrLoopNotReady
	}
	select {
	case <-h.done:
		return ErrLoopNotReady
	default:
	}
	select {
	case h.inbox <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}
