// Package metrics exposes process-wide Prometheus collectors for the HTTP
// API, the render backends, and the build worker pool.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	renderRequestsTotal        *prometheus.CounterVec
	renderRedirectsTotal       *prometheus.CounterVec
	renderRateLimitDelay       *prometheus.HistogramVec
	buildJobsTotal             *prometheus.CounterVec
	activeWorkers              prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus collectors. It is safe to call repeatedly.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "staticpub_http_requests_total",
				Help: "Total number of API requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)
		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "staticpub_http_request_duration_seconds",
				Help:    "Histogram of API request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
		renderRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "staticpub_render_requests_total",
				Help: "Render calls labeled by backend and final status code.",
			},
			[]string{"backend", "code"},
		)
		renderRedirectsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "staticpub_render_redirects_total",
				Help: "Redirect hops walked while rendering, labeled by backend.",
			},
			[]string{"backend"},
		)
		renderRateLimitDelay = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "staticpub_render_rate_limit_delay_seconds",
				Help:    "Time spent waiting on the render rate limiter.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"host"},
		)
		buildJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "staticpub_build_jobs_total",
				Help: "Build jobs processed by the worker pool, labeled by final status.",
			},
			[]string{"status"},
		)
		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "staticpub_active_workers",
				Help: "Number of workers currently running a build job.",
			},
		)
	})
}

// SanitizeHost extracts a lowercase hostname for use as a label value. It
// returns "local" for path-only URLs and "unknown" for unparsable input.
func SanitizeHost(rawURL string) string {
	if strings.HasPrefix(rawURL, "/") {
		return "local"
	}
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler exposing the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest records one API request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRender records one render call and the redirects it walked.
func ObserveRender(backend string, code, redirects int) {
	Init()
	renderRequestsTotal.WithLabelValues(backend, strconv.Itoa(code)).Inc()
	if redirects > 0 {
		renderRedirectsTotal.WithLabelValues(backend).Add(float64(redirects))
	}
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	Init()
	renderRateLimitDelay.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveJob increments the job counter for the given status.
func ObserveJob(status string) {
	Init()
	buildJobsTotal.WithLabelValues(status).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}
