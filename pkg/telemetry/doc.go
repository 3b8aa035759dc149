// Package telemetry wires OpenTelemetry tracing and Prometheus metrics for the
// governance hub.
//
// It centralises trace provider setup and owns the metric registry shared by the
// backend client, the snapshot aggregator, the broadcast hub and the operator API.
package telemetry
