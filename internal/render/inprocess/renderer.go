// Package inprocess renders pages by invoking an http.Handler directly,
// without a network round trip.
package inprocess

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"

	"github.com/JakeFAU/staticpub/internal/metrics"
	"github.com/JakeFAU/staticpub/internal/render"
	"github.com/JakeFAU/staticpub/internal/site"
)

// Config controls redirect following.
type Config struct {
	// Host is sent as the request Host; redirects to any other host stop the walk.
	Host         string
	MaxRedirects int
}

// Renderer implements site.Renderer over an http.Handler.
type Renderer struct {
	handler http.Handler
	cfg     Config
}

var _ site.Renderer = (*Renderer)(nil)

// New returns a Renderer serving requests from handler.
func New(handler http.Handler, cfg Config) *Renderer {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = render.DefaultMaxRedirects
	}
	return &Renderer{handler: handler, cfg: cfg}
}

// Render issues a GET for req.Path and follows same-host redirects.
func (r *Renderer) Render(ctx context.Context, req site.RenderRequest) (site.Response, error) {
	current, err := url.Parse("http://" + r.cfg.Host + req.Path)
	if err != nil {
		return site.Response{}, fmt.Errorf("parse render path %q: %w", req.Path, err)
	}
	var hops []site.Hop
	for {
		if err := ctx.Err(); err != nil {
			return site.Response{}, fmt.Errorf("render %s: %w", req.Path, err)
		}
		res, body, err := r.serve(ctx, current, req.Header)
		if err != nil {
			return site.Response{}, err
		}
		location := res.Header.Get("Location")
		if !render.IsRedirect(res.StatusCode) || location == "" {
			metrics.ObserveRender("inprocess", res.StatusCode, len(hops))
			return site.Response{
				URL:        current.RequestURI(),
				StatusCode: res.StatusCode,
				Header:     res.Header,
				Body:       body,
				Redirects:  hops,
			}, nil
		}
		if len(hops) >= r.cfg.MaxRedirects {
			return site.Response{}, render.TooMany(req.Path, r.cfg.MaxRedirects)
		}
		hops = append(hops, site.Hop{URL: current.RequestURI(), Status: res.StatusCode})
		next, err := render.Resolve(current, location)
		if err != nil {
			return site.Response{}, err
		}
		if next.Host != current.Host {
			// Off-site target: surface the redirect itself as the final response.
			metrics.ObserveRender("inprocess", res.StatusCode, len(hops))
			return site.Response{
				URL:        next.String(),
				StatusCode: res.StatusCode,
				Header:     res.Header,
				Body:       body,
				Redirects:  hops,
			}, nil
		}
		current = next
	}
}

func (r *Renderer) serve(ctx context.Context, target *url.URL, header http.Header) (*http.Response, []byte, error) {
	httpReq := httptest.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	httpReq.Host = r.cfg.Host
	for key, values := range header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	rec := httptest.NewRecorder()
	r.handler.ServeHTTP(rec, httpReq)
	res := rec.Result()
	defer func() { _ = res.Body.Close() }()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read response for %s: %w", target.RequestURI(), err)
	}
	return res, body, nil
}
