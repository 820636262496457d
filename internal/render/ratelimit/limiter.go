// Package ratelimit throttles render calls with per-host token buckets so a
// full build does not overwhelm the application being published.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/staticpub/internal/metrics"
	"github.com/JakeFAU/staticpub/internal/site"
)

// Config holds rate limiter configuration. A non-positive RPS disables limiting.
type Config struct {
	RPS   float64
	Burst int
}

// Limiter manages per-host rate limits.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     r,
		burst:    burst,
	}
}

// Wait blocks until a token is available for the host of target.
func (l *Limiter) Wait(ctx context.Context, target string) error {
	host := metrics.SanitizeHost(target)
	l.mu.Lock()
	limiter, ok := l.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[host] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(host, waited)
	}
	return nil
}

// Renderer decorates a site.Renderer with a Limiter.
type Renderer struct {
	next    site.Renderer
	limiter *Limiter
	host    string
}

var _ site.Renderer = (*Renderer)(nil)

// Wrap returns next throttled by limiter. baseURL names the host the limit
// applies to; path-only requests are attributed to it.
func Wrap(next site.Renderer, limiter *Limiter, baseURL string) *Renderer {
	host := baseURL
	if u, err := url.Parse(baseURL); err == nil && u.Host != "" {
		host = u.Scheme + "://" + u.Host
	}
	return &Renderer{next: next, limiter: limiter, host: host}
}

// Render waits for a token and delegates to the wrapped renderer.
func (r *Renderer) Render(ctx context.Context, req site.RenderRequest) (site.Response, error) {
	if err := r.limiter.Wait(ctx, r.host+req.Path); err != nil {
		return site.Response{}, err
	}
	resp, err := r.next.Render(ctx, req)
	if err != nil {
		return site.Response{}, fmt.Errorf("rate-limited render: %w", err)
	}
	return resp, nil
}
