package api

import (
	"mime"
	"net/http"
	"path"

	"github.com/go-chi/chi/v5"

	"github.com/JakeFAU/staticpub/internal/site"
)

// MountResults serves each result under every path it answers to (its URL
// and its filename), so a build can be previewed before it is written.
// Later results win when two share a path. It returns the mounted paths.
func MountResults(r chi.Router, results []site.ReadResult) []string {
	byPattern := make(map[string]site.ReadResult)
	var order []string
	for _, res := range results {
		for _, pattern := range res.Patterns() {
			if _, seen := byPattern[pattern]; !seen {
				order = append(order, pattern)
			}
			byPattern[pattern] = res
		}
	}
	for _, pattern := range order {
		r.Get(pattern, resultHandler(byPattern[pattern]))
	}
	return order
}

func resultHandler(res site.ReadResult) http.HandlerFunc {
	contentType := mime.TypeByExtension(path.Ext(res.Filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	status := res.Status
	if status == 0 {
		status = http.StatusOK
	}
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
		_, _ = w.Write(res.Content)
	}
}
