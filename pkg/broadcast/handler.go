package broadcast

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// maxInboundBytes caps client frames; the hub ignores their content.
const maxInboundBytes = 4096

// Handler upgrades HTTP requests to subscriber connections.
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	pongWait time.Duration
	logger   *slog.Logger
}

// NewHandler creates a Handler that registers connections with hub.
func NewHandler(hub *Hub, cfg Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	var pongWait time.Duration
	if cfg.PingInterval > 0 {
		pongWait = 2*cfg.PingInterval + cfg.WriteTimeout
	}
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
		pongWait: pongWait,
		logger:   logger,
	}
}

// ServeHTTP upgrades the request, registers the connection and reads until it fails.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.hub.Ready() {
		http.Error(w, ErrLoopNotReady.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already written an HTTP error
		h.logger.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	sub := NewWSSubscriber(uuid.NewString(), conn)
	if err := h.admit(r.Context(), sub); err != nil {
		h.logger.Warn("subscriber registration failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	h.logger.Info("subscriber connected", "subscriber_id", sub.ID(), "remote_addr", r.RemoteAddr)

	h.readLoop(sub)
	h.hub.Unregister(sub.ID())
	h.logger.Info("subscriber disconnected", "subscriber_id", sub.ID(), "state", sub.State())
}

// admit opens sub and hands it to the loop. The loop may send to sub as soon as
// Register returns, so sub must already be open.
func (h *Handler) admit(ctx context.Context, sub *WSSubscriber) error {
	sub.markOpen()
	if err := h.hub.Register(ctx, sub); err != nil {
		_ = sub.Close()
		return err
	}
	return nil
}

// readLoop observes liveness only. Inbound frames are discarded.
func (h *Handler) readLoop(sub *WSSubscriber) {
	conn := sub.conn
	conn.SetReadLimit(maxInboundBytes)
	h.extendReadDeadline(conn)
	conn.SetPongHandler(func(string) error {
		h.extendReadDeadline(conn)
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("subscriber read failed", "subscriber_id", sub.ID(), "error", err)
			}
			return
		}
		h.extendReadDeadline(conn)
	}
}

func (h *Handler) extendReadDeadline(conn *websocket.Conn) {
	if h.pongWait <= 0 {
		return
	}
	_ = conn.SetReadDeadline(time.Now().Add(h.pongWait))
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[strings.ToLower(strings.TrimRight(origin, "/"))] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := set[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}
