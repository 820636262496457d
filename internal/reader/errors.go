package reader

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/JakeFAU/staticpub/internal/clock/system"
	"github.com/JakeFAU/staticpub/internal/events"
	"github.com/JakeFAU/staticpub/internal/site"
)

// DefaultErrorStatuses are the status codes that get a static error page.
var DefaultErrorStatuses = []int{
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusInternalServerError,
}

// ErrorReader renders static error pages from "{code}.html" templates.
type ErrorReader struct {
	templates site.TemplateRenderer
	emitter   events.Emitter
	clock     site.Clock
	logger    *zap.Logger
	types     site.ContentTypes
	statuses  []int
}

// NewErrorReader builds an ErrorReader for DefaultErrorStatuses.
func NewErrorReader(
	templates site.TemplateRenderer,
	emitter events.Emitter,
	logger *zap.Logger,
	types site.ContentTypes,
) *ErrorReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	if types == nil {
		types = site.DefaultContentTypes()
	}
	return &ErrorReader{
		templates: templates,
		emitter:   events.OrNop(emitter),
		clock:     system.New(),
		logger:    logger,
		types:     types,
		statuses:  DefaultErrorStatuses,
	}
}

// Read yields one page per status whose template exists; missing templates
// are logged and skipped.
func (e *ErrorReader) Read(ctx context.Context) iter.Seq2[site.ReadResult, error] {
	return func(yield func(site.ReadResult, error) bool) {
		start := e.clock.Now()
		e.emit(events.Event{Kind: events.ReaderStarted, Count: len(e.statuses)})
		read := 0
		for _, code := range e.statuses {
			if err := ctx.Err(); err != nil {
				yield(site.ReadResult{}, fmt.Errorf("error page read canceled: %w", err))
				return
			}
			res, err := e.page(code)
			if errors.Is(err, site.ErrTemplateNotFound) {
				e.logger.Error("unable to generate an error page", zap.Int("status", code), zap.Error(err))
				continue
			}
			if err != nil {
				yield(site.ReadResult{}, err)
				return
			}
			if !yield(res, nil) {
				return
			}
			read++
		}
		e.emit(events.Event{Kind: events.ReaderFinished, Count: read, Dur: elapsed(e.clock, start)})
	}
}

func (e *ErrorReader) page(code int) (site.ReadResult, error) {
	name := strconv.Itoa(code) + ".html"
	body, err := e.templates.RenderTemplate([]string{name}, map[string]any{"request_path": nil})
	if err != nil {
		return site.ReadResult{}, fmt.Errorf("render %d page: %w", code, err)
	}
	filename, err := site.DeriveFilename(name, "text/html", e.types)
	if err != nil {
		return site.ReadResult{}, err
	}
	e.emit(events.Event{
		Kind:     events.ReadPage,
		Filename: filename,
		Status:   code,
		Response: &site.Response{
			StatusCode: code,
			Header:     http.Header{"Content-Type": {"text/html; charset=utf-8"}},
			Body:       []byte(body),
		},
	})
	return site.ReadResult{Filename: filename, Status: code, Content: []byte(body)}, nil
}

func (e *ErrorReader) emit(evt events.Event) {
	evt.Sender = events.SenderErrorReader
	evt.TS = e.clock.Now()
	e.emitter.Emit(evt)
}
