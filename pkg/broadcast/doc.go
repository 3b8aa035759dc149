// Package broadcast pushes governance updates to live subscribers.
//
// A Hub is the publisher loop: one goroutine owns the connection registry and
// performs every send, ping and removal. Other goroutines reach it only through
// channels, using Register and Unregister for membership and a Bridge to hand
// over messages. Delivery is best effort: a failed send prunes that connection
// and is never retried.
package broadcast
