package spider

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/staticpub/internal/render/inprocess"
)

func testSite() http.Handler {
	pages := map[string]string{
		"/":           `<a href="/a/">a</a><a href="b/">b</a><a href="https://elsewhere.test/x/">x</a><a href="#top">top</a>`,
		"/a/":         `<a href="../">home</a><a href="/gone/">gone</a><a href="/noext">bad</a>`,
		"/b/":         `<a href="feed.rss">feed</a>`,
		"/b/feed.rss": `<rss/>`,
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if r.URL.Path == "/b/feed.rss" {
			w.Header().Set("Content-Type", "application/rss+xml")
		} else {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
		}
		_, _ = w.Write([]byte(body))
	})
}

func TestSpiderWalksSameSiteLinks(t *testing.T) {
	t.Parallel()

	s, err := New(inprocess.New(testSite(), inprocess.Config{}), Config{}, nil)
	require.NoError(t, err)

	paths, err := s.Paths(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"/", "/a/", "/b/", "/b/feed.rss"}, paths)
}

func TestSpiderMaxPages(t *testing.T) {
	t.Parallel()

	s, err := New(inprocess.New(testSite(), inprocess.Config{}), Config{MaxPages: 2}, nil)
	require.NoError(t, err)

	paths, err := s.Paths(context.Background())
	require.NoError(t, err)
	assert.Len(t, paths, 2)
}

func TestSpiderCanceled(t *testing.T) {
	t.Parallel()

	s, err := New(inprocess.New(testSite(), inprocess.Config{}), Config{}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Paths(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
