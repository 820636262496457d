package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/staticpub/internal/collector"
	"github.com/JakeFAU/staticpub/internal/collector/feed"
	"github.com/JakeFAU/staticpub/internal/collector/sitemap"
	"github.com/JakeFAU/staticpub/internal/collector/spider"
	"github.com/JakeFAU/staticpub/internal/config"
	"github.com/JakeFAU/staticpub/internal/events"
	"github.com/JakeFAU/staticpub/internal/events/sinks"
	gcppublisher "github.com/JakeFAU/staticpub/internal/publisher/pubsub"
	collyrender "github.com/JakeFAU/staticpub/internal/render/colly"
	"github.com/JakeFAU/staticpub/internal/render/headless"
	"github.com/JakeFAU/staticpub/internal/render/ratelimit"
	"github.com/JakeFAU/staticpub/internal/site"
	"github.com/JakeFAU/staticpub/internal/storage/bolt"
	gcsstorage "github.com/JakeFAU/staticpub/internal/storage/gcs"
	localstorage "github.com/JakeFAU/staticpub/internal/storage/local"
	memoryStorage "github.com/JakeFAU/staticpub/internal/storage/memory"
	pgstore "github.com/JakeFAU/staticpub/internal/storage/postgres"
	"github.com/JakeFAU/staticpub/internal/storage/sqlite"
)

func setupRenderer(app *App) (site.Renderer, error) {
	cfg := app.cfg
	var (
		renderer site.Renderer
		err      error
	)
	switch cfg.Render.Backend {
	case config.RenderHeadless:
		app.headless, err = headless.New(headless.Config{
			BaseURL:           cfg.Render.BaseURL,
			MaxParallel:       cfg.Render.Headless.MaxParallel,
			UserAgent:         cfg.Site.UserAgent,
			NavigationTimeout: time.Duration(cfg.Render.Headless.NavTimeoutSec) * time.Second,
			MaxRedirects:      cfg.Render.MaxRedirects,
		})
		if err != nil {
			return nil, fmt.Errorf("headless renderer init failed: %w", err)
		}
		renderer = app.headless
		app.logger.Info("using headless renderer", zap.Int("max_parallel", cfg.Render.Headless.MaxParallel))
	default:
		renderer, err = collyrender.New(collyrender.Config{
			BaseURL:      cfg.Render.BaseURL,
			UserAgent:    cfg.Site.UserAgent,
			Timeout:      cfg.RenderTimeout(),
			MaxRedirects: cfg.Render.MaxRedirects,
		})
		if err != nil {
			return nil, fmt.Errorf("colly renderer init failed: %w", err)
		}
		app.logger.Info("using colly renderer", zap.String("base_url", cfg.Render.BaseURL))
	}

	if cfg.Render.RateLimitRPS > 0 {
		limiter := ratelimit.New(ratelimit.Config{RPS: cfg.Render.RateLimitRPS, Burst: cfg.Render.RateLimitBurst})
		renderer = ratelimit.Wrap(renderer, limiter, cfg.Render.BaseURL)
		app.logger.Info("render rate limiter enabled",
			zap.Float64("rps", cfg.Render.RateLimitRPS),
			zap.Int("burst", cfg.Render.RateLimitBurst),
		)
	}
	return renderer, nil
}

func setupStorage(ctx context.Context, app *App) (site.ContentStore, error) {
	cfg := app.cfg.Storage
	switch cfg.Backend {
	case config.StorageGCS:
		app.logger.Info("using GCS storage backend", zap.String("bucket", cfg.GCS.Bucket))
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		app.gcsClient = client
		store, err := gcsstorage.New(client, gcsstorage.Config{Bucket: cfg.GCS.Bucket, Prefix: cfg.GCS.Prefix})
		if err != nil {
			return nil, fmt.Errorf("gcs content store init failed: %w", err)
		}
		return store, nil
	case config.StorageBolt:
		app.logger.Info("using bolt storage backend", zap.String("path", cfg.Bolt.Path))
		store, err := bolt.Open(bolt.Config{Path: cfg.Bolt.Path, Bucket: cfg.Bolt.Bucket})
		if err != nil {
			return nil, fmt.Errorf("bolt content store init failed: %w", err)
		}
		app.boltStore = store
		return store, nil
	case config.StorageMemory:
		app.logger.Info("using in-memory storage backend")
		return memoryStorage.NewContentStore(), nil
	case config.StorageLocal, "":
		if cfg.Backend == "" {
			app.logger.Warn("storage.backend not set, falling back to local storage")
		}
		app.logger.Info("using local storage backend", zap.String("path", cfg.Local.BaseDir))
		store, err := localstorage.New(localstorage.Config{BaseDir: cfg.Local.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local content store init failed: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: unknown storage backend %q", site.ErrConfiguration, cfg.Backend)
	}
}

func setupDatabase(ctx context.Context, app *App) error {
	cfg := app.cfg.DB
	if cfg.DSN == "" {
		app.logger.Debug("no DSN specified for database, skipping event log and postgres producers")
		return nil
	}
	pool, err := pgstore.Connect(ctx, pgstore.PoolConfig{
		DSN:             cfg.DSN,
		MaxConns:        cfg.MaxConns,
		MinConns:        cfg.MinConns,
		MaxConnLifetime: time.Duration(cfg.MaxConnLifetimeMinutes) * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("postgres init failed: %w", err)
	}
	app.pgPool = pool
	app.logger.Info("postgres pool initialized", zap.Int32("max_conns", cfg.MaxConns))
	return nil
}

func setupEvents(ctx context.Context, app *App) (events.Emitter, error) {
	cfg := app.cfg.Events
	if !cfg.Enabled {
		app.logger.Info("events disabled")
		return nil, nil
	}
	var sinkList []events.Sink
	if cfg.LogEnabled {
		sinkList = append(sinkList, sinks.NewLogSink(app.logger.Named("events")))
	}
	if cfg.MetricsEnabled {
		promSink, err := sinks.NewPrometheusSink(app.promReg)
		if err != nil {
			return nil, fmt.Errorf("prometheus sink init failed: %w", err)
		}
		sinkList = append(sinkList, promSink)
	}
	if app.pgPool != nil && app.cfg.DB.EventLogTable != "" {
		eventLog, err := pgstore.NewEventLog(app.pgPool, app.cfg.DB.EventLogTable)
		if err != nil {
			return nil, fmt.Errorf("event log init failed: %w", err)
		}
		app.eventLog = eventLog
		sinkList = append(sinkList, sinks.NewEventLogSink(eventLog, app.logger.Named("eventlog")))
		app.logger.Info("event log enabled", zap.String("table", app.cfg.DB.EventLogTable))
	}
	if app.cfg.PubSub.ProjectID != "" && app.cfg.PubSub.TopicName != "" {
		client, err := pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client init failed: %w", err)
		}
		app.pubsubClient = client
		app.publisher = gcppublisher.New(client)
		sinkList = append(sinkList, sinks.NewPublisherSink(
			app.publisher,
			app.cfg.PubSub.TopicName,
			events.WritePage,
			events.BuildFinished,
		))
		app.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", app.cfg.PubSub.ProjectID),
			zap.String("topic", app.cfg.PubSub.TopicName),
		)
	}
	if len(sinkList) == 0 {
		app.logger.Warn("events enabled but no sinks configured")
		return nil, nil
	}
	hubCfg := events.Config{
		BufferSize:     cfg.BufferSize,
		MaxBatchEvents: cfg.Batch.MaxEvents,
		MaxBatchWait:   time.Duration(cfg.Batch.MaxWaitMs) * time.Millisecond,
		SinkTimeout:    time.Duration(cfg.SinkTimeoutMs) * time.Millisecond,
		BaseContext:    context.WithoutCancel(ctx),
		Logger:         app.logger.Named("event_hub"),
	}
	app.hub = events.NewHub(hubCfg, sinkList...)
	app.logger.Info("event hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
	)
	return app.hub, nil
}

// setupRegistry registers the built-in "sitemap" producer plus one factory
// per producer_defs entry. Factories run at collection time, so sources that
// talk to the site are only touched when a build asks for them.
func setupRegistry(app *App) (*collector.Registry, error) {
	registry := collector.NewRegistry()
	if _, defined := app.cfg.ProducerDefs[config.ProducerSitemap]; !defined {
		if err := registry.Register(config.ProducerSitemap, func() (any, error) {
			return sitemap.New(app.renderer, sitemap.DefaultPath)
		}); err != nil {
			return nil, err
		}
	}
	app.sqlite = &sqliteSources{open: make(map[string]*sqlite.ModelSource)}
	for name, def := range app.cfg.ProducerDefs {
		factory, err := producerFactory(app, def)
		if err != nil {
			return nil, fmt.Errorf("producer %s: %w", name, err)
		}
		if err := registry.Register(name, factory); err != nil {
			return nil, err
		}
	}
	app.logger.Debug("producers registered", zap.Strings("names", registry.Names()))
	return registry, nil
}

func producerFactory(app *App, def config.ProducerDef) (collector.Factory, error) {
	switch def.Type {
	case config.ProducerSitemap:
		return func() (any, error) { return sitemap.New(app.renderer, def.Path) }, nil
	case config.ProducerFeed:
		return func() (any, error) { return feed.New(app.renderer, def.Path) }, nil
	case config.ProducerSpider:
		cfg := spider.Config{Start: def.Start, MaxPages: def.MaxPages}
		return func() (any, error) { return spider.New(app.renderer, cfg, app.logger.Named("spider")) }, nil
	case config.ProducerStatic:
		urls := collector.List(append([]string(nil), def.URLs...))
		return func() (any, error) { return urls, nil }, nil
	case config.ProducerPostgres:
		return func() (any, error) {
			if app.pgPool == nil {
				return nil, fmt.Errorf("%w: postgres producer needs db.dsn", site.ErrConfiguration)
			}
			return pgstore.NewModelSource(app.pgPool, def.Table)
		}, nil
	case config.ProducerSQLite:
		return func() (any, error) { return app.sqlite.get(def) }, nil
	default:
		return nil, fmt.Errorf("%w: unknown producer type %q", site.ErrConfiguration, def.Type)
	}
}

// sqliteSources opens each SQLite model source once and shares it between
// collections.
type sqliteSources struct {
	mu   sync.Mutex
	open map[string]*sqlite.ModelSource
}

func (s *sqliteSources) get(def config.ProducerDef) (*sqlite.ModelSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := def.DBPath + "#" + def.Table
	if src, ok := s.open[key]; ok {
		return src, nil
	}
	src, err := sqlite.Open(def.DBPath, def.Table)
	if err != nil {
		return nil, err
	}
	s.open[key] = src
	return src, nil
}

// Close closes every opened source.
func (s *sqliteSources) Close(logger *zap.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, src := range s.open {
		if err := src.Close(); err != nil {
			logger.Warn("sqlite model source close failed", zap.String("source", key), zap.Error(err))
		}
		delete(s.open, key)
	}
}
