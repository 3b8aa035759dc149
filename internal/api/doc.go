// Package api exposes the operator HTTP surface of the governance hub: the
// clarification and approval mutations, snapshot reads, manual refreshes, health,
// Prometheus metrics and the subscriber websocket endpoint.
package api
