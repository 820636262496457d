// Package reader fetches pages through the render capability and turns them
// into site.ReadResult values, materializing redirect chains as static
// redirect pages along the way.
package reader

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/staticpub/internal/clock/system"
	"github.com/JakeFAU/staticpub/internal/events"
	"github.com/JakeFAU/staticpub/internal/site"
)

// Config controls filename derivation and the redirect safety check.
type Config struct {
	ContentTypes site.ContentTypes
	AllowedHosts []string
	UserAgent    string
}

// Reader reads URLs into ReadResults. It keeps no per-call state and is
// safe for concurrent use.
type Reader struct {
	renderer  site.Renderer
	templates site.TemplateRenderer
	emitter   events.Emitter
	clock     site.Clock
	logger    *zap.Logger
	cfg       Config
}

// Option customizes a Reader.
type Option func(*Reader)

// WithClock overrides the clock used to stamp events.
func WithClock(clock site.Clock) Option {
	return func(r *Reader) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// New builds a Reader. A nil emitter or logger disables that concern.
func New(
	renderer site.Renderer,
	templates site.TemplateRenderer,
	emitter events.Emitter,
	logger *zap.Logger,
	cfg Config,
	opts ...Option,
) *Reader {
	if cfg.ContentTypes == nil {
		cfg.ContentTypes = site.DefaultContentTypes()
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = site.UserAgent
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Reader{
		renderer:  renderer,
		templates: templates,
		emitter:   events.OrNop(emitter),
		clock:     system.New(),
		logger:    logger,
		cfg:       cfg,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Read lazily reads every URL in order. Redirect pages for a URL precede its
// terminal page. The first error is yielded and ends the sequence.
func (r *Reader) Read(ctx context.Context, urls []string) iter.Seq2[site.ReadResult, error] {
	return func(yield func(site.ReadResult, error) bool) {
		start := r.clock.Now()
		r.logger.Info("reading pages", zap.String("urls", site.Summarize(urls)))
		r.emit(events.Event{Kind: events.ReaderStarted, Count: len(urls)})
		read := 0
		for _, u := range urls {
			if err := ctx.Err(); err != nil {
				yield(site.ReadResult{}, fmt.Errorf("read canceled: %w", err))
				return
			}
			results, err := r.ReadPage(ctx, u)
			if err != nil {
				yield(site.ReadResult{}, err)
				return
			}
			for _, res := range results {
				if !yield(res, nil) {
					return
				}
				read++
			}
		}
		r.emit(events.Event{Kind: events.ReaderFinished, Count: read, Dur: elapsed(r.clock, start)})
	}
}

// ReadPage reads a single URL, returning any redirect pages followed by the
// page that was finally served.
func (r *Reader) ReadPage(ctx context.Context, url string) ([]site.ReadResult, error) {
	if !site.IsUsable(url) {
		return nil, &site.ReaderError{URL: url}
	}
	resp, err := r.renderer.Render(ctx, site.RenderRequest{
		Path:   url,
		Header: http.Header{"User-Agent": {r.cfg.UserAgent}},
	})
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &site.FetchError{URL: url, StatusCode: resp.StatusCode}
	}

	rawFinal := resp.URL
	if rawFinal == "" {
		rawFinal = url
	}
	final := site.PathOf(rawFinal)

	results := make([]site.ReadResult, 0, len(resp.Redirects)+1)
	for _, hop := range resp.Redirects {
		page, err := r.redirectPage(hop.URL, final, rawFinal)
		switch {
		case errors.Is(err, site.ErrTemplateNotFound), errors.Is(err, site.ErrUnsafeRedirect):
			r.logger.Error("unable to generate a redirecting page",
				zap.String("url", hop.URL),
				zap.String("next_url", final),
				zap.Error(err),
			)
		case err != nil:
			return nil, err
		default:
			results = append(results, page)
		}
	}

	filename, err := site.DeriveFilename(final, resp.ContentType(), r.cfg.ContentTypes)
	if err != nil {
		return nil, err
	}
	r.emit(events.Event{
		Kind:     events.ReadPage,
		URL:      final,
		Filename: filename,
		Status:   resp.StatusCode,
		Response: &resp,
	})
	return append(results, site.ReadResult{
		URL:      final,
		Filename: filename,
		Status:   resp.StatusCode,
		Content:  resp.Body,
	}), nil
}

// redirectPage renders the static page standing in for one redirect hop.
func (r *Reader) redirectPage(hopURL, final, rawFinal string) (site.ReadResult, error) {
	hop := site.PathOf(hopURL)
	if !site.IsSafeRedirect(hop, r.cfg.AllowedHosts) || !site.IsSafeRedirect(rawFinal, r.cfg.AllowedHosts) {
		return site.ReadResult{}, fmt.Errorf("%w: %s -> %s", site.ErrUnsafeRedirect, hop, rawFinal)
	}
	body, err := r.templates.RenderTemplate(
		[]string{
			path.Clean(final + "/301.html"),
			path.Clean(hop + "/301.html"),
			"301.html",
		},
		map[string]any{"this_url": hop, "next_url": final},
	)
	if err != nil {
		return site.ReadResult{}, err
	}
	filename, err := site.DeriveFilename(hop, "text/html", r.cfg.ContentTypes)
	if err != nil {
		return site.ReadResult{}, err
	}
	return site.ReadResult{URL: hop, Filename: filename, Content: []byte(body)}, nil
}

func (r *Reader) emit(evt events.Event) {
	evt.Sender = events.SenderReader
	evt.TS = r.clock.Now()
	r.emitter.Emit(evt)
}

func elapsed(clock site.Clock, start time.Time) time.Duration {
	return clock.Now().Sub(start)
}
