package broadcast

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Subscriber is one live connection awaiting pushed messages. Send and Ping are
// only ever called from the publisher loop.
type Subscriber interface {
	ID() string
	Send(frame []byte, deadline time.Time) error
	Ping(deadline time.Time) error
	Close() error
}

// ConnState is the lifecycle state of a subscriber connection.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateOpen
	StateClosing
	StateFailed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// closeGrace bounds the close handshake write.
const closeGrace = time.Second

// WSSubscriber adapts a gorilla websocket connection to Subscriber.
type WSSubscriber struct {
	id        string
	conn      *websocket.Conn
	state     atomic.Int32
	closeOnce sync.Once
	closeErr  error
}

// NewWSSubscriber wraps conn. The subscriber starts in StateConnecting.
func NewWSSubscriber(id string, conn *websocket.Conn) *WSSubscriber {
	return &WSSubscriber{id: id, conn: conn}
}

func (s *WSSubscriber) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *WSSubscriber) State() ConnState { return ConnState(s.state.Load()) }

func (s *WSSubscriber) markOpen() {
	s.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen))
}

func (s *WSSubscriber) markFailed() {
	s.state.CompareAndSwap(int32(StateOpen), int32(StateFailed))
}

// Send writes frame as a single text message.
func (s *WSSubscriber) Send(frame []byte, deadline time.Time) error {
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		s.markFailed()
		return err
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		s.markFailed()
		return err
	}
	return nil
}

// Ping writes a ping control frame.
func (s *WSSubscriber) Ping(deadline time.Time) error {
	if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
		s.markFailed()
		return err
	}
	return nil
}

// Close sends a close frame and releases the connection. Safe to call more than once.
func (s *WSSubscriber) Close() error {
	s.closeOnce.Do(func() {
		s.state.CompareAndSwap(int32(StateOpen), int32(StateClosing))
		s.state.CompareAndSwap(int32(StateConnecting), int32(StateClosing))
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
			time.Now().Add(closeGrace))
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}
