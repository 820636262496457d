// Package sinks contains events.Sink implementations: structured logs,
// Prometheus collectors, Pub/Sub fan-out, and the durable event log.
package sinks
