package site

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsUsable(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"/":              true,
		"/content/a/":    true,
		"/feed.rss":      true,
		"404.html":       true,
		"/a.b/c":         false,
		"/content/a":     false,
		"/a/.hidden":     false,
		"/archive/2020.": true,
		"":               false,
	}
	for url, want := range cases {
		t.Run(url, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, want, IsUsable(url))
		})
	}
}

func TestDeriveFilename(t *testing.T) {
	t.Parallel()

	types := DefaultContentTypes()
	tests := []struct {
		name        string
		url         string
		contentType string
		want        string
	}{
		{name: "directory html", url: "/content/a/", contentType: "text/html", want: "content/a/index.html"},
		{name: "nested directory", url: "/content/a/b/", contentType: "text/html; charset=utf-8", want: "content/a/b/index.html"},
		{name: "root", url: "/", contentType: "text/html", want: "index.html"},
		{name: "json directory", url: "/api/", contentType: "application/json", want: "api/index.json"},
		{name: "explicit extension wins", url: "/feeds/latest.rss", contentType: "text/html", want: "feeds/latest.rss"},
		{name: "error page", url: "404.html", contentType: "text/html", want: "404.html"},
		{name: "mime fallback", url: "/logo/", contentType: "image/png", want: "logo/index.png"},
		{name: "unknown type", url: "/blob/", contentType: "application/x-staticpub-unknown", want: "blob/index"},
		{name: "dot segments cleaned", url: "/a/../b/", contentType: "text/plain", want: "b/index.txt"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := DeriveFilename(tc.url, tc.contentType, types)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)

			again, err := DeriveFilename(tc.url, tc.contentType, types)
			require.NoError(t, err)
			assert.Equal(t, got, again)
		})
	}
}

func TestDeriveFilenameRejectsUnusableURL(t *testing.T) {
	t.Parallel()

	_, err := DeriveFilename("/content/a", "text/html", DefaultContentTypes())
	require.Error(t, err)
	var readerErr *ReaderError
	require.True(t, errors.As(err, &readerErr))
	assert.Equal(t, "/content/a", readerErr.URL)
	assert.ErrorIs(t, err, ErrUnusableURL)
}

func TestContentTypesMerge(t *testing.T) {
	t.Parallel()

	base := DefaultContentTypes()
	merged := base.Merge(map[string]string{"text/html": ".htm", "text/csv": ".csv"})

	assert.Equal(t, ".htm", merged.Extension("text/html"))
	assert.Equal(t, ".csv", merged.Extension("text/csv; charset=utf-8"))
	assert.Equal(t, ".html", base.Extension("text/html"), "base table must not change")
}

func TestReadResultPatterns(t *testing.T) {
	t.Parallel()

	page := ReadResult{URL: "/content/a/", Filename: "content/a/index.html"}
	assert.Equal(t, []string{"/content/a/", "/content/a/index.html"}, page.Patterns())

	errorPage := ReadResult{Filename: "404.html", Status: 404}
	assert.Equal(t, []string{"/404.html"}, errorPage.Patterns())

	file := ReadResult{URL: "/robots.txt", Filename: "robots.txt"}
	assert.Equal(t, []string{"/robots.txt"}, file.Patterns())
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `["/a/", "/b/"]`, Summarize([]string{"/a/", "/b/"}))
	assert.Equal(t,
		`["/a/", "/b/", "/c/" ... 2 remaining]`,
		Summarize([]string{"/a/", "/b/", "/c/", "/d/", "/e/"}),
	)
	assert.Equal(t, "[]", Summarize(nil))
}
