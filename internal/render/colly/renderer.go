// Package colly renders pages by fetching them from a running HTTP origin
// with gocolly.
package colly

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/staticpub/internal/metrics"
	"github.com/JakeFAU/staticpub/internal/render"
	"github.com/JakeFAU/staticpub/internal/site"
)

// Config controls the origin and collector behavior.
type Config struct {
	BaseURL      string
	UserAgent    string
	Timeout      time.Duration
	MaxRedirects int
}

// Renderer implements site.Renderer using a fresh Colly collector per call.
// Collectors are not cloned because the redirect handler is installed on
// the collector's HTTP client, which clones share.
type Renderer struct {
	cfg       Config
	base      *url.URL
	transport http.RoundTripper
}

var _ site.Renderer = (*Renderer)(nil)

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Renderer for the origin at cfg.BaseURL.
func New(cfg Config) (*Renderer, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: render.base_url %q must be an absolute URL", site.ErrConfiguration, cfg.BaseURL)
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = site.UserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = render.DefaultMaxRedirects
	}
	return &Renderer{cfg: cfg, base: base, transport: newHTTPTransport()}, nil
}

// page accumulates the outcome of one collector run.
type page struct {
	mu       sync.Mutex
	resp     site.Response
	finalURL *url.URL
	hops     []site.Hop
	err      error
}

// Render fetches req.Path from the origin, recording each redirect hop.
func (r *Renderer) Render(ctx context.Context, req site.RenderRequest) (site.Response, error) {
	target, err := render.Resolve(r.base, req.Path)
	if err != nil {
		return site.Response{}, err
	}
	p := &page{finalURL: target}
	collector := r.buildCollector(req, p)

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target.String())
	}()
	select {
	case <-ctx.Done():
		return site.Response{}, fmt.Errorf("colly render canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return site.Response{}, fmt.Errorf("colly visit %s: %w", req.Path, err)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return site.Response{}, fmt.Errorf("colly response %s: %w", req.Path, p.err)
	}
	resp := p.resp
	resp.Redirects = p.hops
	resp.URL = r.localize(p.finalURL)
	metrics.ObserveRender("colly", resp.StatusCode, len(p.hops))
	return resp, nil
}

func (r *Renderer) buildCollector(req site.RenderRequest, p *page) *colly.Collector {
	collector := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.UserAgent(r.cfg.UserAgent),
		colly.ParseHTTPErrorResponse(),
		// Bodies are stored as-is; colly's 10 MiB default would truncate them.
		colly.MaxBodySize(0),
	)
	collector.WithTransport(r.transport)
	collector.SetRequestTimeout(r.cfg.Timeout)
	collector.SetRedirectHandler(func(next *http.Request, via []*http.Request) error {
		return r.onRedirect(p, next, via)
	})
	r.configureHooks(collector, req, p)
	return collector
}

// onRedirect records the hop that produced next and decides whether to follow it.
func (r *Renderer) onRedirect(p *page, next *http.Request, via []*http.Request) error {
	prev := via[len(via)-1]
	status := http.StatusFound
	if next.Response != nil {
		status = next.Response.StatusCode
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hops = append(p.hops, site.Hop{URL: r.localize(prev.URL), Status: status})
	p.finalURL = next.URL
	if next.URL.Host != r.base.Host {
		return http.ErrUseLastResponse
	}
	if len(p.hops) > r.cfg.MaxRedirects {
		return render.TooMany(r.localize(via[0].URL), r.cfg.MaxRedirects)
	}
	return nil
}

func (r *Renderer) configureHooks(hooks collectorHooks, req site.RenderRequest, p *page) {
	hooks.OnRequest(func(cr *colly.Request) {
		for key, values := range req.Header {
			for _, v := range values {
				cr.Headers.Add(key, v)
			}
		}
	})
	hooks.OnResponse(func(cr *colly.Response) {
		header := http.Header{}
		if cr.Headers != nil {
			header = cr.Headers.Clone()
		}
		p.mu.Lock()
		p.resp = site.Response{
			StatusCode: cr.StatusCode,
			Header:     header,
			Body:       append([]byte(nil), cr.Body...),
		}
		p.mu.Unlock()
	})
	hooks.OnError(func(_ *colly.Response, err error) {
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
	})
}

// localize reduces same-origin URLs to their request URI; other URLs are
// returned in full.
func (r *Renderer) localize(u *url.URL) string {
	if u == nil {
		return ""
	}
	if u.Host == r.base.Host {
		return u.RequestURI()
	}
	return u.String()
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
