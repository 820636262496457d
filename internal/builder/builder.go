// Package builder ties collection, reading, and writing together into site
// builds. Every URL is its own failure domain: one failing page is recorded
// on its Build and the rest of the site still builds.
package builder

import (
	"context"
	"fmt"
	"iter"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/staticpub/internal/clock/system"
	"github.com/JakeFAU/staticpub/internal/collector"
	"github.com/JakeFAU/staticpub/internal/events"
	"github.com/JakeFAU/staticpub/internal/site"
)

const defaultConcurrency = 4

// URLCollector discovers the URLs of the site.
type URLCollector interface {
	Collect(ctx context.Context, producers ...any) (collector.URLSet, error)
}

// PageReader reads URLs into pages.
type PageReader interface {
	Read(ctx context.Context, urls []string) iter.Seq2[site.ReadResult, error]
}

// ErrorPageReader renders the static error pages.
type ErrorPageReader interface {
	Read(ctx context.Context) iter.Seq2[site.ReadResult, error]
}

// PageWriter persists pages.
type PageWriter interface {
	Write(ctx context.Context, seq iter.Seq2[site.ReadResult, error]) iter.Seq2[site.WriteResult, error]
}

// Config controls fan-out.
type Config struct {
	Concurrency int
	// ErrorPages adds the error pages to full builds.
	ErrorPages bool
}

// Build is the outcome of reading and writing one unit of work.
type Build struct {
	URLs   []string           `json:"urls,omitempty" yaml:"urls,omitempty"`
	Reads  []site.ReadResult  `json:"reads" yaml:"reads"`
	Writes []site.WriteResult `json:"writes" yaml:"writes"`
	Error  string             `json:"error,omitempty" yaml:"error,omitempty"`
	Err    error              `json:"-" yaml:"-"`
}

// Failed reports whether the build stopped on an error.
func (b Build) Failed() bool { return b.Err != nil }

// Report summarizes a full site build.
type Report struct {
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`
	Builds     []Build   `json:"builds" yaml:"builds"`
	ErrorPages *Build    `json:"error_pages,omitempty" yaml:"error_pages,omitempty"`
}

// Totals counts pages across every build in the report.
func (r Report) Totals() (read, written, created, failed int) {
	all := r.Builds
	if r.ErrorPages != nil {
		all = append(append([]Build(nil), all...), *r.ErrorPages)
	}
	for _, b := range all {
		read += len(b.Reads)
		written += len(b.Writes)
		for _, w := range b.Writes {
			if w.Created {
				created++
			}
		}
		if b.Failed() {
			failed++
		}
	}
	return read, written, created, failed
}

// Builder runs builds.
type Builder struct {
	collector   URLCollector
	reader      PageReader
	errorReader ErrorPageReader
	writer      PageWriter
	emitter     events.Emitter
	clock       site.Clock
	logger      *zap.Logger
	cfg         Config
}

// New constructs a Builder. The collector and error reader may be nil when
// the caller only builds explicit URLs.
func New(
	c URLCollector,
	r PageReader,
	er ErrorPageReader,
	w PageWriter,
	emitter events.Emitter,
	logger *zap.Logger,
	cfg Config,
) *Builder {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		collector:   c,
		reader:      r,
		errorReader: er,
		writer:      w,
		emitter:     events.OrNop(emitter),
		clock:       system.New(),
		logger:      logger,
		cfg:         cfg,
	}
}

// BuildSingle reads and writes one URL (plus any redirect pages it yields).
func (b *Builder) BuildSingle(ctx context.Context, url string) (Build, error) {
	build := b.run(ctx, []string{url}, b.reader.Read(ctx, []string{url}))
	return build, build.Err
}

// BuildURLs builds each URL independently with bounded concurrency. Results
// are in input order; failures are recorded on their Build.
func (b *Builder) BuildURLs(ctx context.Context, urls []string) []Build {
	builds := make([]Build, len(urls))
	var g errgroup.Group
	g.SetLimit(b.cfg.Concurrency)
	for i, u := range urls {
		g.Go(func() error {
			builds[i], _ = b.BuildSingle(ctx, u)
			return nil
		})
	}
	_ = g.Wait()
	return builds
}

// BuildAll collects the site's URLs and builds all of them. Collection
// failures are fatal; page failures are recorded in the report.
func (b *Builder) BuildAll(ctx context.Context) (Report, error) {
	report := Report{StartedAt: b.clock.Now()}
	b.emit(events.Event{Kind: events.BuildStarted})
	if b.collector == nil {
		err := fmt.Errorf("%w: no collector configured", site.ErrConfiguration)
		b.finish(report, err)
		return report, err
	}
	set, err := b.collector.Collect(ctx)
	if err != nil {
		err = fmt.Errorf("collect urls: %w", err)
		b.finish(report, err)
		return report, err
	}
	urls := set.Sorted()
	b.logger.Info("building site", zap.String("urls", site.Summarize(urls)), zap.Int("count", len(urls)))
	report.Builds = b.BuildURLs(ctx, urls)
	if b.cfg.ErrorPages {
		pages, _ := b.BuildErrorPages(ctx)
		report.ErrorPages = &pages
	}
	report.FinishedAt = b.clock.Now()
	b.finish(report, nil)
	return report, nil
}

// BuildErrorPages renders and writes the error pages.
func (b *Builder) BuildErrorPages(ctx context.Context) (Build, error) {
	if b.errorReader == nil {
		err := fmt.Errorf("%w: no error page reader configured", site.ErrConfiguration)
		return Build{Err: err, Error: err.Error()}, err
	}
	build := b.run(ctx, nil, b.errorReader.Read(ctx))
	return build, build.Err
}

// BuildObject rebuilds every URL a single model object renders to. It is
// the hook for rebuilding content when it is saved.
func (b *Builder) BuildObject(ctx context.Context, obj any) (Build, error) {
	urls := collector.ObjectURLs(obj, b.logger)
	for _, u := range urls {
		if !site.IsUsable(u) {
			err := &site.CollectionError{Producer: fmt.Sprintf("%T", obj), URL: u}
			return Build{URLs: urls, Err: err, Error: err.Error()}, err
		}
	}
	if len(urls) == 0 {
		return Build{}, nil
	}
	build := b.run(ctx, urls, b.reader.Read(ctx, urls))
	return build, build.Err
}

// run reads everything seq yields before writing any of it, so a read that
// fails part way leaves storage untouched.
func (b *Builder) run(ctx context.Context, urls []string, seq iter.Seq2[site.ReadResult, error]) Build {
	build := Build{URLs: urls}
	reads, err := site.Collect(seq)
	build.Reads = reads
	if err == nil {
		build.Writes, err = site.Collect(b.writer.Write(ctx, site.Results(reads...)))
	}
	if err != nil {
		build.Err = err
		build.Error = err.Error()
		b.logger.Error("build failed", zap.String("urls", site.Summarize(urls)), zap.Error(err))
	}
	return build
}

func (b *Builder) finish(report Report, err error) {
	_, written, _, failed := report.Totals()
	evt := events.Event{Kind: events.BuildFinished, Count: written, Dur: b.clock.Now().Sub(report.StartedAt)}
	switch {
	case err != nil:
		evt.Note = err.Error()
	case failed > 0:
		evt.Note = fmt.Sprintf("%d builds failed", failed)
	}
	b.emit(evt)
}

func (b *Builder) emit(evt events.Event) {
	evt.Sender = events.SenderBuilder
	evt.TS = b.clock.Now()
	b.emitter.Emit(evt)
}
