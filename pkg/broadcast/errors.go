package broadcast

import "errors"

var (
	// ErrLoopNotReady is returned when the publisher loop has not started or has stopped.
	ErrLoopNotReady = errors.New("broadcast: publisher loop not ready")
	// ErrQueueFull is returned when the publisher loop inbox is saturated.
	ErrQueueFull = errors.New("broadcast: publisher queue full")
)
