// Package events is the notification bus of the publishing pipeline. Readers,
// writers, and the builder emit lifecycle and per-page events into a Hub,
// which batches them on a background goroutine and fans them out to sinks
// (logs, Prometheus, Pub/Sub, the Postgres event log). Delivery is best-effort:
// Emit never blocks and never fails the caller.
package events
