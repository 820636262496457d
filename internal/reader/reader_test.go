package reader

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/staticpub/internal/events"
	"github.com/JakeFAU/staticpub/internal/render/inprocess"
	"github.com/JakeFAU/staticpub/internal/site"
	"github.com/JakeFAU/staticpub/internal/templates"
)

func testApp() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/content/a/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/content/a/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("content_a"))
	})
	mux.HandleFunc("/content/a/b/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("content_a_b"))
	})
	mux.HandleFunc("/feed/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
		_, _ = w.Write([]byte("<rss/>"))
	})
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("User-agent: *"))
	})
	mux.HandleFunc("/r/a/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/r/a_b/", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/r/a_b/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/content/a/b/", http.StatusFound)
	})
	mux.HandleFunc("/ua/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.Header.Get("User-Agent")))
	})
	return mux
}

func newReader(t *testing.T, fsys fstest.MapFS, emitter events.Emitter) *Reader {
	t.Helper()
	if fsys == nil {
		fsys = fstest.MapFS{
			"301.html": {Data: []byte("{{.this_url}} -> {{.next_url}}")},
		}
	}
	return New(
		inprocess.New(testApp(), inprocess.Config{}),
		templates.New(fsys),
		emitter,
		nil,
		Config{AllowedHosts: []string{"localhost"}},
	)
}

func TestReadPageSimple(t *testing.T) {
	t.Parallel()

	results, err := newReader(t, nil, nil).ReadPage(context.Background(), "/content/a/")
	require.NoError(t, err)
	require.Equal(t, []site.ReadResult{{
		URL:      "/content/a/",
		Filename: "content/a/index.html",
		Status:   http.StatusOK,
		Content:  []byte("content_a"),
	}}, results)
}

func TestReadPageContentTypes(t *testing.T) {
	t.Parallel()

	r := newReader(t, nil, nil)
	results, err := r.ReadPage(context.Background(), "/feed/")
	require.NoError(t, err)
	require.Equal(t, "feed/index.rss", results[0].Filename)

	results, err = r.ReadPage(context.Background(), "/robots.txt")
	require.NoError(t, err)
	require.Equal(t, "robots.txt", results[0].Filename)
}

func TestReadPageSendsUserAgent(t *testing.T) {
	t.Parallel()

	results, err := newReader(t, nil, nil).ReadPage(context.Background(), "/ua/")
	require.NoError(t, err)
	require.Equal(t, site.UserAgent, string(results[0].Content))
}

func TestReadPageMaterializesRedirects(t *testing.T) {
	t.Parallel()

	results, err := newReader(t, nil, nil).ReadPage(context.Background(), "/r/a/")
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, site.ReadResult{
		URL:      "/r/a/",
		Filename: "r/a/index.html",
		Content:  []byte("/r/a/ -> /content/a/b/"),
	}, results[0])
	assert.Equal(t, "/r/a_b/", results[1].URL)
	assert.Equal(t, "r/a_b/index.html", results[1].Filename)
	assert.Zero(t, results[1].Status)
	assert.Equal(t, site.ReadResult{
		URL:      "/content/a/b/",
		Filename: "content/a/b/index.html",
		Status:   http.StatusOK,
		Content:  []byte("content_a_b"),
	}, results[2])
}

func TestReadPagePrefersMostSpecificRedirectTemplate(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"content/a/b/301.html": {Data: []byte("final-specific")},
		"r/a/301.html":         {Data: []byte("hop-specific")},
		"301.html":             {Data: []byte("generic")},
	}
	results, err := newReader(t, fsys, nil).ReadPage(context.Background(), "/r/a/")
	require.NoError(t, err)
	require.Equal(t, "final-specific", string(results[0].Content))
	require.Equal(t, "final-specific", string(results[1].Content))
}

func TestReadPageSkipsRedirectsWithoutTemplate(t *testing.T) {
	t.Parallel()

	results, err := newReader(t, fstest.MapFS{}, nil).ReadPage(context.Background(), "/r/a/")
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "/content/a/b/", results[0].URL)
}

// offsiteRenderer answers every request as if the origin redirected to
// another host.
type offsiteRenderer struct{}

func (offsiteRenderer) Render(context.Context, site.RenderRequest) (site.Response, error) {
	return site.Response{
		URL:        "https://evil.example/landing/",
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {"text/html"}},
		Body:       []byte("landing"),
		Redirects:  []site.Hop{{URL: "/away/", Status: http.StatusFound}},
	}, nil
}

func TestReadPageSkipsUnsafeRedirects(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.ErrorLevel)
	r := New(
		offsiteRenderer{},
		templates.New(fstest.MapFS{"301.html": {Data: []byte("{{.this_url}} -> {{.next_url}}")}}),
		nil,
		zap.New(core),
		Config{AllowedHosts: []string{"localhost"}},
	)

	results, err := r.ReadPage(context.Background(), "/away/")
	require.NoError(t, err)
	require.Equal(t, []site.ReadResult{{
		URL:      "/landing/",
		Filename: "landing/index.html",
		Status:   http.StatusOK,
		Content:  []byte("landing"),
	}}, results)

	entries := logs.FilterMessage("unable to generate a redirecting page").All()
	require.Len(t, entries, 1)
	require.Equal(t, "/away/", entries[0].ContextMap()["url"])
	require.Contains(t, entries[0].ContextMap()["error"], site.ErrUnsafeRedirect.Error())
}

func TestReadPageRejectsNon200(t *testing.T) {
	t.Parallel()

	_, err := newReader(t, nil, nil).ReadPage(context.Background(), "/content/a/missing/")
	var fetchErr *site.FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
}

func TestReadPageRejectsUnusableURL(t *testing.T) {
	t.Parallel()

	_, err := newReader(t, nil, nil).ReadPage(context.Background(), "/content/a")
	var readerErr *site.ReaderError
	require.ErrorAs(t, err, &readerErr)
	require.ErrorIs(t, err, site.ErrUnusableURL)
}

func TestReadYieldsInOrderAndEmitsEvents(t *testing.T) {
	t.Parallel()

	rec := &recordingEmitter{}
	r := newReader(t, nil, rec)
	results, err := site.Collect(r.Read(context.Background(), []string{"/content/a/", "/r/a/"}))
	require.NoError(t, err)

	urls := make([]string, 0, len(results))
	for _, res := range results {
		urls = append(urls, res.URL)
	}
	require.Equal(t, []string{"/content/a/", "/r/a/", "/r/a_b/", "/content/a/b/"}, urls)

	kinds := rec.Kinds()
	require.Equal(t, []events.Kind{
		events.ReaderStarted,
		events.ReadPage,
		events.ReadPage,
		events.ReaderFinished,
	}, kinds)
	first := rec.Events()[1]
	require.Equal(t, events.SenderReader, first.Sender)
	require.Equal(t, "content/a/index.html", first.Filename)
	require.NotNil(t, first.Response)
	require.NoError(t, first.Validate())
}

func TestReadStopsAtFirstError(t *testing.T) {
	t.Parallel()

	rec := &recordingEmitter{}
	r := newReader(t, nil, rec)
	var got []site.ReadResult
	var gotErr error
	for res, err := range r.Read(context.Background(), []string{"/content/a/", "/nope/", "/content/a/b/"}) {
		if err != nil {
			gotErr = err
			break
		}
		got = append(got, res)
	}
	require.Len(t, got, 1)
	var fetchErr *site.FetchError
	require.True(t, errors.As(gotErr, &fetchErr))
	require.NotContains(t, rec.Kinds(), events.ReaderFinished)
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingEmitter) Emit(evt events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

func (r *recordingEmitter) Kinds() []events.Kind {
	var kinds []events.Kind
	for _, e := range r.Events() {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}
