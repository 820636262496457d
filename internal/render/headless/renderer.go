// Package headless renders pages through headless Chrome so client-side
// markup is captured after scripts run.
package headless

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/staticpub/internal/metrics"
	"github.com/JakeFAU/staticpub/internal/render"
	"github.com/JakeFAU/staticpub/internal/site"
)

// Config controls the headless renderer.
type Config struct {
	BaseURL           string
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	MaxRedirects      int
}

// Renderer implements site.Renderer using chromedp.
type Renderer struct {
	cfg         Config
	base        *url.URL
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

var _ site.Renderer = (*Renderer)(nil)

// New creates a headless renderer. The browser is started lazily on the
// first Render call.
func New(cfg Config) (*Renderer, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: render.base_url %q must be an absolute URL", site.ErrConfiguration, cfg.BaseURL)
	}
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("%w: max parallel must be >= 0", site.ErrConfiguration)
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = site.UserAgent
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = render.DefaultMaxRedirects
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &Renderer{
		cfg:         cfg,
		base:        base,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close shuts the browser down.
func (r *Renderer) Close() {
	r.allocCancel()
}

// Render navigates to req.Path and returns the rendered DOM (or the raw body
// for non-HTML documents) together with the status, headers, and redirect
// hops of the main document.
func (r *Renderer) Render(ctx context.Context, req site.RenderRequest) (site.Response, error) {
	if err := r.acquire(ctx); err != nil {
		return site.Response{}, err
	}
	defer r.release()

	target, err := render.Resolve(r.base, req.Path)
	if err != nil {
		return site.Response{}, err
	}

	taskCtx, taskCancel := chromedp.NewContext(r.allocator)
	defer taskCancel()
	taskCtx, cancel := context.WithTimeout(taskCtx, r.cfg.NavigationTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	meta := newDocumentMeta(r.base)
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	var finalURL string
	actions := []chromedp.Action{
		r.networkSetupAction(req.Header),
		chromedp.Navigate(target.String()),
		chromedp.Location(&finalURL),
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return site.Response{}, fmt.Errorf("chromedp render %s: %w", req.Path, err)
	}

	resp := meta.response(finalURL)
	if len(resp.Redirects) > r.cfg.MaxRedirects {
		return site.Response{}, render.TooMany(req.Path, r.cfg.MaxRedirects)
	}
	body, err := readBody(taskCtx, meta)
	if err != nil {
		return site.Response{}, fmt.Errorf("chromedp body %s: %w", req.Path, err)
	}
	resp.Body = body
	metrics.ObserveRender("headless", resp.StatusCode, len(resp.Redirects))
	return resp, nil
}

// readBody returns the serialized DOM for HTML documents. Other types are
// shown by Chrome inside a viewer page, so their bytes come from the network
// domain instead.
func readBody(ctx context.Context, meta *documentMeta) ([]byte, error) {
	requestID, raw := meta.bodySource()
	if !raw {
		var html string
		err := chromedp.Run(ctx,
			chromedp.WaitReady("body", chromedp.ByQuery),
			chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		)
		return []byte(html), err
	}
	var body []byte
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		body, err = network.GetResponseBody(requestID).Do(ctx)
		return err
	}))
	return body, err
}

// isMarkup reports whether a main document of contentType is kept as the
// rendered DOM. A missing type is treated as HTML.
func isMarkup(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

func (r *Renderer) networkSetupAction(headers http.Header) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if err := emulation.SetUserAgentOverride(r.cfg.UserAgent).Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		extra := headers.Clone()
		extra.Del("User-Agent")
		if len(extra) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(extra)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

func (r *Renderer) acquire(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	select {
	case r.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (r *Renderer) release() {
	if r.limiter == nil {
		return
	}
	select {
	case <-r.limiter:
	default:
	}
}

// documentMeta tracks the main document's redirect chain and final response
// from network events.
type documentMeta struct {
	base *url.URL

	mu        sync.Mutex
	hops      []site.Hop
	status    int
	headers   http.Header
	url       string
	requestID network.RequestID
}

func newDocumentMeta(base *url.URL) *documentMeta {
	return &documentMeta{base: base, headers: http.Header{}}
}

func (m *documentMeta) captureEvent(ev any) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		m.captureRedirect(e)
	case *network.EventResponseReceived:
		m.captureResponse(e)
	}
}

func (m *documentMeta) captureRedirect(e *network.EventRequestWillBeSent) {
	if e.Type != network.ResourceTypeDocument || e.RedirectResponse == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hops = append(m.hops, site.Hop{
		URL:    m.localize(e.RedirectResponse.URL),
		Status: int(e.RedirectResponse.Status),
	})
}

func (m *documentMeta) captureResponse(e *network.EventResponseReceived) {
	if e.Type != network.ResourceTypeDocument || e.Response == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = int(e.Response.Status)
	m.headers = toHTTPHeader(e.Response.Headers)
	m.url = e.Response.URL
	m.requestID = e.RequestID
}

// bodySource reports the main document's request and whether its raw body
// must be fetched instead of the DOM.
func (m *documentMeta) bodySource() (network.RequestID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestID, m.requestID != "" && !isMarkup(m.headers.Get("Content-Type"))
}

func (m *documentMeta) response(finalURL string) site.Response {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw := m.url
	if raw == "" {
		raw = finalURL
	}
	status := m.status
	if status == 0 {
		status = http.StatusOK
	}
	return site.Response{
		URL:        m.localize(raw),
		StatusCode: status,
		Header:     m.headers.Clone(),
		Redirects:  append([]site.Hop(nil), m.hops...),
	}
}

func (m *documentMeta) localize(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host != m.base.Host {
		return raw
	}
	return u.RequestURI()
}

func toHTTPHeader(h network.Headers) http.Header {
	headers := http.Header{}
	for key, value := range h {
		switch v := value.(type) {
		case string:
			// Chrome joins repeated headers with newlines.
			for _, entry := range strings.Split(v, "\n") {
				headers.Add(key, entry)
			}
		case []string:
			for _, entry := range v {
				headers.Add(key, entry)
			}
		case []any:
			for _, entry := range v {
				headers.Add(key, fmt.Sprint(entry))
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	return headers
}

func toNetworkHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		headers[key] = strings.Join(values, ", ")
	}
	return headers
}
