// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/builds to queue a site, URL, or error page build.
//   - GET /v1/builds/{id}/status and /result, POST /v1/builds/{id}/cancel.
//
// MountResults serves freshly read pages for the preview command.
package api
