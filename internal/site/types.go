package site

import (
	"fmt"
	"iter"
	"net/http"
	"strings"
)

// UserAgent identifies staticpub to the application being rendered.
const UserAgent = "staticpub"

// ReadResult is one fetched or synthesized page. URL is empty for pages that
// have no source URL (error pages) and Status is zero for synthetic redirect
// pages.
type ReadResult struct {
	URL      string `json:"url,omitempty" yaml:"url,omitempty"`
	Filename string `json:"filename" yaml:"filename"`
	Status   int    `json:"status,omitempty" yaml:"status,omitempty"`
	Content  []byte `json:"-" yaml:"-"`
}

// Patterns returns the request paths the result answers to when served back
// over HTTP: its source URL (when present) and its derived filename.
func (r ReadResult) Patterns() []string {
	patterns := make([]string, 0, 2)
	if r.URL != "" {
		patterns = append(patterns, r.URL)
	}
	filename := "/" + strings.TrimPrefix(r.Filename, "/")
	if filename != r.URL {
		patterns = append(patterns, filename)
	}
	return patterns
}

// WriteResult is the outcome of persisting a ReadResult.
type WriteResult struct {
	Name          string `json:"name" yaml:"name"`
	Created       bool   `json:"created" yaml:"created"`
	Modified      bool   `json:"modified" yaml:"modified"`
	MD5           string `json:"md5" yaml:"md5"`
	StorageResult string `json:"storage_result" yaml:"storage_result"`
}

// Hop is one redirect walked while rendering a URL.
type Hop struct {
	URL    string `json:"url"`
	Status int    `json:"status"`
}

// RenderRequest asks the render capability for a single URL path.
type RenderRequest struct {
	Path   string
	Header http.Header
}

// Response is what the render capability returns. Redirects lists every URL
// that answered with a redirect, in walk order, starting with the requested
// URL; URL is the final location reached.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	Redirects  []Hop
}

// ContentType returns the declared Content-Type header, defaulting to HTML.
func (r Response) ContentType() string {
	if r.Header != nil {
		if ct := r.Header.Get("Content-Type"); ct != "" {
			return ct
		}
	}
	return "text/html; charset=utf-8"
}

// Results adapts a slice into the lazy sequence shape consumed by the writer.
func Results(results ...ReadResult) iter.Seq2[ReadResult, error] {
	return func(yield func(ReadResult, error) bool) {
		for _, r := range results {
			if !yield(r, nil) {
				return
			}
		}
	}
}

// Collect drains a sequence, stopping at the first error.
func Collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var out []T
	for v, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Summarize renders a short description of a URL list for log lines, showing
// the first three entries and how many remain.
func Summarize(urls []string) string {
	top := urls
	if len(top) > 3 {
		top = top[:3]
	}
	quoted := make([]string, len(top))
	for i, u := range top {
		quoted[i] = fmt.Sprintf("%q", u)
	}
	out := "[" + strings.Join(quoted, ", ")
	if remaining := len(urls) - len(top); remaining > 0 {
		out += fmt.Sprintf(" ... %d remaining", remaining)
	}
	return out + "]"
}
