// Package server builds the application's dependency graph from
// configuration and runs it, either as a one-shot build or as the HTTP
// build service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/staticpub/internal/api"
	"github.com/JakeFAU/staticpub/internal/builder"
	"github.com/JakeFAU/staticpub/internal/clock/system"
	"github.com/JakeFAU/staticpub/internal/collector"
	"github.com/JakeFAU/staticpub/internal/config"
	"github.com/JakeFAU/staticpub/internal/dispatcher"
	"github.com/JakeFAU/staticpub/internal/events"
	"github.com/JakeFAU/staticpub/internal/hash/md5"
	"github.com/JakeFAU/staticpub/internal/id/uuid"
	"github.com/JakeFAU/staticpub/internal/jobs"
	"github.com/JakeFAU/staticpub/internal/logging"
	"github.com/JakeFAU/staticpub/internal/metrics"
	gcppublisher "github.com/JakeFAU/staticpub/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/staticpub/internal/queue/memory"
	"github.com/JakeFAU/staticpub/internal/reader"
	"github.com/JakeFAU/staticpub/internal/render/headless"
	"github.com/JakeFAU/staticpub/internal/site"
	"github.com/JakeFAU/staticpub/internal/storage/bolt"
	memoryStorage "github.com/JakeFAU/staticpub/internal/storage/memory"
	pgstore "github.com/JakeFAU/staticpub/internal/storage/postgres"
	"github.com/JakeFAU/staticpub/internal/templates"
	"github.com/JakeFAU/staticpub/internal/worker"
	"github.com/JakeFAU/staticpub/internal/writer"
)

// App contains the application's dependencies.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	ownsLog  bool
	promReg  prometheus.Registerer
	clock    site.Clock
	renderer site.Renderer

	Registry    *collector.Registry
	Collector   *collector.Collector
	Reader      *reader.Reader
	ErrorReader *reader.ErrorReader
	Writer      *writer.Writer
	Builder     *builder.Builder
	Store       site.ContentStore

	hub          *events.Hub
	headless     *headless.Renderer
	gcsClient    *storage.Client
	boltStore    *bolt.ContentStore
	pgPool       *pgxpool.Pool
	eventLog     *pgstore.EventLog
	pubsubClient *pubsub.Client
	publisher    *gcppublisher.Publisher
	sqlite       *sqliteSources
}

// Option customizes Build.
type Option func(*App)

// WithLogger uses logger instead of building one from cfg.Logging.
func WithLogger(logger *zap.Logger) Option {
	return func(a *App) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithRenderer replaces the configured render backend.
func WithRenderer(r site.Renderer) Option {
	return func(a *App) {
		a.renderer = r
	}
}

// WithRegisterer sets where the event metrics are registered.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(a *App) {
		a.promReg = reg
	}
}

// WithClock overrides the clock used for events and jobs.
func WithClock(clock site.Clock) Option {
	return func(a *App) {
		if clock != nil {
			a.clock = clock
		}
	}
}

// Build creates the application's dependencies. Callers must Close the App.
func Build(ctx context.Context, cfg config.Config, opts ...Option) (app *App, err error) {
	app = &App{cfg: cfg, clock: system.New(), promReg: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(app)
	}
	if app.logger == nil {
		logger, err := logging.New(logging.Config{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
		app.logger = logger
		app.ownsLog = true
		zap.ReplaceGlobals(logger)
	}
	defer func() {
		if err != nil {
			app.closeInfrastructure(context.Background())
			app = nil
		}
	}()

	app.logger.Info("building application dependencies",
		zap.String("render_backend", cfg.Render.Backend),
		zap.String("storage_backend", cfg.Storage.Backend),
	)
	metrics.Init()

	if app.renderer == nil {
		if app.renderer, err = setupRenderer(app); err != nil {
			return nil, err
		}
	}
	if app.Store, err = setupStorage(ctx, app); err != nil {
		return nil, err
	}
	if err = setupDatabase(ctx, app); err != nil {
		return nil, err
	}
	emitter, err := setupEvents(ctx, app)
	if err != nil {
		return nil, err
	}
	if app.Registry, err = setupRegistry(app); err != nil {
		return nil, err
	}

	types := site.DefaultContentTypes().Merge(cfg.Site.ContentTypes)
	tmpl := templates.NewDir(cfg.Site.TemplatesDir)
	app.Collector = collector.New(app.Registry, app.logger.Named("collector"), collector.Config{
		Producers: cfg.Producers,
	})
	app.Reader = reader.New(app.renderer, tmpl, emitter, app.logger.Named("reader"), reader.Config{
		ContentTypes: types,
		AllowedHosts: cfg.Site.AllowedHosts,
		UserAgent:    cfg.Site.UserAgent,
	}, reader.WithClock(app.clock))
	app.ErrorReader = reader.NewErrorReader(tmpl, emitter, app.logger.Named("error_reader"), types)
	app.Writer = writer.New(app.Store, emitter, app.logger.Named("writer"),
		writer.WithHasher(md5.New()),
		writer.WithClock(app.clock),
	)
	app.Builder = builder.New(
		app.Collector,
		app.Reader,
		app.ErrorReader,
		app.Writer,
		emitter,
		app.logger.Named("builder"),
		builder.Config{Concurrency: cfg.Build.Concurrency, ErrorPages: cfg.Build.ErrorPages},
	)
	return app, nil
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Clock returns the clock stamped on events and reports.
func (a *App) Clock() site.Clock {
	return a.clock
}

// Renderer returns the render backend pages are read through.
func (a *App) Renderer() site.Renderer {
	return a.renderer
}

// Issues runs the configuration checks against the names the registry knows.
func (a *App) Issues() []config.Issue {
	return config.Check(a.cfg, a.Registry.Names())
}

// Service is the HTTP build service: API server plus worker pool.
type Service struct {
	app      *App
	queue    *queueMemory.Queue
	dispatch *dispatcher.Dispatcher
	api      *api.Server
}

// NewService wires the job queue, worker pool, and API server onto the App.
func (a *App) NewService() *Service {
	jobStore := memoryStorage.NewJobStore()
	tracker := jobs.NewTracker()
	queue := queueMemory.NewQueue(a.cfg.Build.QueueDepth)

	workerCfg := worker.Config{JobTimeout: a.cfg.JobTimeout()}
	a.logger.Info("worker config",
		zap.Int("workers", a.cfg.Build.Workers),
		zap.Int("queue_depth", a.cfg.Build.QueueDepth),
		zap.Duration("job_timeout", workerCfg.JobTimeout),
	)
	workers := make([]*worker.Worker, 0, a.cfg.Build.Workers)
	for i := 0; i < a.cfg.Build.Workers; i++ {
		workers = append(workers, worker.New(
			queue,
			jobStore,
			a.Builder,
			tracker,
			a.clock,
			workerCfg,
			a.logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	dispatch := dispatcher.New(queue, workers, tracker)
	return &Service{
		app:      a,
		queue:    queue,
		dispatch: dispatch,
		api:      api.NewServer(jobStore, dispatch, uuid.New(), a.clock, a.cfg, a.logger.Named("api")),
	}
}

// Handler exposes the API router.
func (s *Service) Handler() http.Handler {
	return s.api.Handler()
}

// Run starts the workers and HTTP server and blocks until the context is
// canceled or a termination signal arrives.
func (s *Service) Run(ctx context.Context) error {
	logger := s.app.logger
	logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		logger.Info("dispatcher started")
		s.dispatch.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.app.cfg.Server.Port),
		Handler:           s.api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("http server started", zap.Int("port", s.app.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	s.queue.Close()
	<-dispatchDone
	return nil
}

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) error {
	a.closeInfrastructure(ctx)
	if a.ownsLog {
		_ = a.logger.Sync()
	}
	a.logger.Info("shutdown complete")
	return nil
}

// closeInfrastructure flushes the event hub first so sinks still have their
// clients, then releases the clients.
func (a *App) closeInfrastructure(ctx context.Context) {
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("event hub close failed", zap.Error(err))
		}
	}
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.eventLog != nil {
		a.eventLog.Close()
	} else if a.pgPool != nil {
		a.pgPool.Close()
	}
	if a.sqlite != nil {
		a.sqlite.Close(a.logger)
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.boltStore != nil {
		if err := a.boltStore.Close(); err != nil {
			a.logger.Warn("bolt store close failed", zap.Error(err))
		}
	}
	if a.headless != nil {
		a.headless.Close()
	}
}
