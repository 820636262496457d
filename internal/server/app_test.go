package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/staticpub/internal/config"
	"github.com/JakeFAU/staticpub/internal/jobs"
	"github.com/JakeFAU/staticpub/internal/render/inprocess"
	"github.com/JakeFAU/staticpub/internal/site"
	memoryStorage "github.com/JakeFAU/staticpub/internal/storage/memory"
)

const sitemapXML = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>http://example.com/about/</loc></url>
  <url><loc>http://example.com/news/</loc></url>
</urlset>`

const feedXML = `<?xml version="1.0"?>
<rss version="2.0"><channel>
  <item><title>Launch</title><link>http://example.com/news/launch/</link></item>
</channel></rss>`

func siteHandler() http.Handler {
	page := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(body))
		}
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/{$}", page("home"))
	mux.HandleFunc("/about/", page("about"))
	mux.HandleFunc("/news/{$}", page("news"))
	mux.HandleFunc("/news/launch/", page("launch"))
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(sitemapXML))
	})
	mux.HandleFunc("/feed.rss", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(feedXML))
	})
	return mux
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	tplDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tplDir, "404.html"), []byte("not found"), 0o600))
	return config.Config{
		Server:    config.ServerConfig{Port: 8080},
		Site:      config.SiteConfig{UserAgent: "staticpub", TemplatesDir: tplDir},
		Build:     config.BuildConfig{Concurrency: 2, ErrorPages: true, Workers: 1, QueueDepth: 4},
		Producers: []string{"pages", "sitemap", "news"},
		ProducerDefs: map[string]config.ProducerDef{
			"pages": {Type: config.ProducerStatic, URLs: []string{"/"}},
			"news":  {Type: config.ProducerFeed, Path: "/feed.rss"},
		},
		Storage: config.StorageConfig{Backend: config.StorageMemory},
		Events: config.EventsConfig{
			Enabled:        true,
			LogEnabled:     true,
			MetricsEnabled: true,
			Batch:          config.BatchConfig{MaxEvents: 8, MaxWaitMs: 10},
		},
	}
}

func buildTestApp(t *testing.T, cfg config.Config) *App {
	t.Helper()
	app, err := Build(
		context.Background(),
		cfg,
		WithLogger(zap.NewNop()),
		WithRenderer(inprocess.New(siteHandler(), inprocess.Config{Host: "example.com"})),
		WithRegisterer(prometheus.NewRegistry()),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, app.Close(context.Background()))
	})
	return app
}

func TestBuildWiresProducersAndStore(t *testing.T) {
	t.Parallel()

	app := buildTestApp(t, testConfig(t))
	assert.Equal(t, []string{"news", "pages", "sitemap"}, app.Registry.Names())

	report, err := app.Builder.BuildAll(context.Background())
	require.NoError(t, err)
	read, written, created, failed := report.Totals()
	assert.Equal(t, 0, failed)
	assert.Equal(t, 5, read)
	assert.Equal(t, 5, written)
	assert.Equal(t, 5, created)

	store, ok := app.Store.(*memoryStorage.ContentStore)
	require.True(t, ok)
	assert.Equal(t, []string{
		"404.html",
		"about/index.html",
		"index.html",
		"news/index.html",
		"news/launch/index.html",
	}, store.Names())
	body, ok := store.Bytes("news/launch/index.html")
	require.True(t, ok)
	assert.Equal(t, "launch", string(body))
}

func TestBuildRejectsUnknownStorage(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Storage.Backend = "s3"
	_, err := Build(context.Background(), cfg, WithLogger(zap.NewNop()),
		WithRenderer(inprocess.New(siteHandler(), inprocess.Config{})),
		WithRegisterer(prometheus.NewRegistry()),
	)
	require.ErrorIs(t, err, site.ErrConfiguration)
}

func TestBuildRejectsUnknownProducerType(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.ProducerDefs["odd"] = config.ProducerDef{Type: "ldap"}
	_, err := Build(context.Background(), cfg, WithLogger(zap.NewNop()),
		WithRenderer(inprocess.New(siteHandler(), inprocess.Config{})),
		WithRegisterer(prometheus.NewRegistry()),
	)
	require.ErrorIs(t, err, site.ErrConfiguration)
}

func TestPostgresProducerNeedsDSN(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Producers = []string{"articles"}
	cfg.ProducerDefs = map[string]config.ProducerDef{
		"articles": {Type: config.ProducerPostgres, Table: "articles"},
	}
	app := buildTestApp(t, cfg)

	_, err := app.Collector.Collect(context.Background())
	require.ErrorIs(t, err, site.ErrConfiguration)
}

func TestIssuesUseRegistryNames(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Producers = []string{"pages", "ghost"}
	app := buildTestApp(t, cfg)

	issues := app.Issues()
	require.Len(t, issues, 1)
	assert.Equal(t, "E002", issues[0].ID)
	assert.Contains(t, issues[0].Msg, "ghost")
}

func TestServiceRunsQueuedBuild(t *testing.T) {
	t.Parallel()

	app := buildTestApp(t, testConfig(t))
	svc := app.NewService()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.dispatch.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	rec := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/builds/",
		bytes.NewBufferString(`{"urls":["/about/"]}`)))
	require.Equal(t, http.StatusAccepted, rec.Code)
	var accepted map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	jobID := accepted["job_id"]
	require.NotEmpty(t, jobID)

	var result jobs.Result
	require.Eventually(t, func() bool {
		rec := httptest.NewRecorder()
		svc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/builds/"+jobID+"/result", nil))
		if rec.Code != http.StatusOK {
			return false
		}
		result = jobs.Result{}
		if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
			return false
		}
		return result.Job.Status.Terminal()
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, jobs.StatusSucceeded, result.Job.Status)
	require.Len(t, result.Pages, 1)
	assert.Equal(t, "about/index.html", result.Pages[0].Name)
	assert.Equal(t, 1, result.Job.Counters.PagesWritten)
}
