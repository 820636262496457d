// Package worker runs queued build jobs.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/staticpub/internal/builder"
	"github.com/JakeFAU/staticpub/internal/clock/system"
	"github.com/JakeFAU/staticpub/internal/jobs"
	"github.com/JakeFAU/staticpub/internal/metrics"
	"github.com/JakeFAU/staticpub/internal/site"
)

// Builder is the subset of builder.Builder a worker drives.
type Builder interface {
	BuildAll(ctx context.Context) (builder.Report, error)
	BuildURLs(ctx context.Context, urls []string) []builder.Build
	BuildErrorPages(ctx context.Context) (builder.Build, error)
}

// Config controls Worker behavior.
type Config struct {
	// JobTimeout bounds a single job; zero means no limit.
	JobTimeout time.Duration
}

// Worker consumes queue items and runs the build they describe.
type Worker struct {
	queue   jobs.Queue
	store   jobs.Store
	builder Builder
	tracker *jobs.Tracker
	clock   site.Clock
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Worker. A nil tracker disables external cancellation.
func New(
	queue jobs.Queue,
	store jobs.Store,
	b Builder,
	tracker *jobs.Tracker,
	clock site.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if tracker == nil {
		tracker = jobs.NewTracker()
	}
	if clock == nil {
		clock = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:   queue,
		store:   store,
		builder: b,
		tracker: tracker,
		clock:   clock,
		cfg:     cfg,
		logger:  logger,
	}
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, jobs.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", item.JobID))
		w.processJob(ctx, item)
	}
}

func (w *Worker) processJob(ctx context.Context, item jobs.QueueItem) {
	// Register with the tracker before touching the store so a cancel that
	// lands from here on either stops jobCtx or is visible in the re-read.
	jobCtx, done := w.tracker.Start(ctx, item.JobID)
	defer done()

	if err := w.store.UpdateJobStatus(ctx, item.JobID, jobs.StatusRunning, "", jobs.Counters{}); err != nil {
		w.logger.Error("update job status failed", zap.String("job_id", item.JobID), zap.Error(err))
		return
	}
	job, err := w.store.GetJob(ctx, item.JobID)
	if err != nil {
		w.logger.Error("load job failed", zap.String("job_id", item.JobID), zap.Error(err))
		return
	}
	if job.Status.Terminal() {
		w.logger.Info("skipping finished job", zap.String("job_id", item.JobID), zap.String("status", string(job.Status)))
		return
	}

	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	if w.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(jobCtx, w.cfg.JobTimeout)
		defer cancel()
	}

	start := w.clock.Now()
	report, buildErr := w.run(jobCtx, item.Params)
	pages, failures := flatten(report)
	counters := countersOf(report)
	if err := w.store.RecordResult(ctx, item.JobID, pages, failures); err != nil {
		w.logger.Error("record job result failed", zap.String("job_id", item.JobID), zap.Error(err))
	}

	status, errText := deriveFinalStatus(jobCtx, counters, buildErr)
	if err := w.store.UpdateJobStatus(ctx, item.JobID, status, errText, counters); err != nil {
		w.logger.Error("final job status update failed", zap.String("job_id", item.JobID), zap.Error(err))
	}
	metrics.ObserveJob(string(status))
	w.logger.Info("job finished",
		zap.String("job_id", item.JobID),
		zap.String("kind", string(item.Params.Kind)),
		zap.String("status", string(status)),
		zap.Int("pages_written", counters.PagesWritten),
		zap.Int("builds_failed", counters.BuildsFailed),
		zap.Duration("elapsed", w.clock.Now().Sub(start)),
	)
}

func (w *Worker) run(ctx context.Context, params jobs.Params) (builder.Report, error) {
	report := builder.Report{StartedAt: w.clock.Now()}
	var err error
	switch params.Kind {
	case jobs.KindSite:
		report, err = w.builder.BuildAll(ctx)
	case jobs.KindURLs:
		report.Builds = w.builder.BuildURLs(ctx, params.URLs)
	case jobs.KindErrorPages:
		var b builder.Build
		b, err = w.builder.BuildErrorPages(ctx)
		report.ErrorPages = &b
	default:
		err = fmt.Errorf("unknown job kind %q", params.Kind)
	}
	report.FinishedAt = w.clock.Now()
	return report, err
}

func flatten(report builder.Report) ([]jobs.Page, []jobs.Failure) {
	builds := append([]builder.Build(nil), report.Builds...)
	if report.ErrorPages != nil {
		builds = append(builds, *report.ErrorPages)
	}
	var (
		pages    []jobs.Page
		failures []jobs.Failure
	)
	for _, b := range builds {
		for i, wr := range b.Writes {
			page := jobs.Page{Name: wr.Name, Filename: wr.Name, Created: wr.Created, MD5: wr.MD5}
			if i < len(b.Reads) {
				page.URL = b.Reads[i].URL
				page.Filename = b.Reads[i].Filename
				page.Status = b.Reads[i].Status
			}
			pages = append(pages, page)
		}
		if b.Failed() {
			failures = append(failures, jobs.Failure{URLs: b.URLs, Error: b.Error})
		}
	}
	return pages, failures
}

func countersOf(report builder.Report) jobs.Counters {
	read, written, created, failed := report.Totals()
	return jobs.Counters{PagesRead: read, PagesWritten: written, PagesCreated: created, BuildsFailed: failed}
}

func deriveFinalStatus(ctx context.Context, counters jobs.Counters, buildErr error) (jobs.Status, string) {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return jobs.StatusCanceled, "canceled"
	case ctx.Err() != nil:
		return jobs.StatusFailed, fmt.Sprintf("job timed out: %v", ctx.Err())
	case buildErr != nil:
		return jobs.StatusFailed, buildErr.Error()
	case counters.BuildsFailed > 0 && counters.PagesWritten == 0:
		return jobs.StatusFailed, fmt.Sprintf("%d builds failed", counters.BuildsFailed)
	case counters.BuildsFailed > 0:
		return jobs.StatusSucceeded, fmt.Sprintf("%d builds failed", counters.BuildsFailed)
	default:
		return jobs.StatusSucceeded, ""
	}
}
