package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSanitizeHost(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"path only", "/content/a/", "local"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.expected, SanitizeHost(tc.input))
		})
	}
}

func TestObserveRender(t *testing.T) {
	Init()
	Init()

	before := testutil.ToFloat64(renderRequestsTotal.WithLabelValues("metrics-test", "200"))
	ObserveRender("metrics-test", 200, 2)
	require.InDelta(t, before+1, testutil.ToFloat64(renderRequestsTotal.WithLabelValues("metrics-test", "200")), 1e-9)
	require.InDelta(t, 2.0, testutil.ToFloat64(renderRedirectsTotal.WithLabelValues("metrics-test")), 1e-9)

	ObserveRateLimitDelay("metrics-test.local", 20*time.Millisecond)
	require.Positive(t, testutil.CollectAndCount(renderRateLimitDelay))
}

func TestWorkerGauge(t *testing.T) {
	Init()
	before := testutil.ToFloat64(activeWorkers)
	IncActiveWorkers()
	require.InDelta(t, before+1, testutil.ToFloat64(activeWorkers), 1e-9)
	DecActiveWorkers()
	require.InDelta(t, before, testutil.ToFloat64(activeWorkers), 1e-9)
}

func FuzzSanitizeHost(f *testing.F) {
	for _, tc := range []string{"http://example.com", "/r/a/", "ftp://example.com"} {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		require.NotEmpty(t, SanitizeHost(orig))
	})
}
