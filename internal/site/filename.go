package site

import (
	"maps"
	"mime"
	"path"
	"strings"
)

// ContentTypes maps a major content type (the part before ";") to the file
// extension used for directory-style URLs.
type ContentTypes map[string]string

// DefaultContentTypes returns the built-in content-type table.
func DefaultContentTypes() ContentTypes {
	return ContentTypes{
		"text/plain":                ".txt",
		"text/html":                 ".html",
		"text/javascript":           ".js",
		"application/javascript":    ".js",
		"text/json":                 ".json",
		"application/json":          ".json",
		"text/css":                  ".css",
		"text/x-markdown":           ".md",
		"text/markdown":             ".md",
		"text/xml":                  ".xml",
		"application/xml":           ".xml",
		"text/rss+xml":              ".rss",
		"application/rss+xml":       ".rss",
		"application/atom+xml":      ".atom",
		"application/pdf":           ".pdf",
		"text/tab-separated-values": ".tsv",
	}
}

// Merge returns a copy of the table with overrides applied on top.
func (c ContentTypes) Merge(overrides map[string]string) ContentTypes {
	out := make(ContentTypes, len(c)+len(overrides))
	maps.Copy(out, c)
	maps.Copy(out, overrides)
	return out
}

// Extension resolves the extension for a Content-Type header value, falling
// back to the system MIME table when the mapping has no entry. It returns ""
// when nothing is known about the type.
func (c ContentTypes) Extension(contentType string) string {
	major, _, _ := strings.Cut(contentType, ";")
	major = strings.TrimSpace(major)
	if ext, ok := c[major]; ok {
		return ext
	}
	exts, err := mime.ExtensionsByType(major)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return exts[0]
}

// Ext returns the extension of the final path segment. Leading dots of the
// segment do not start an extension, so "/a/.well" has none.
func Ext(p string) string {
	base := p[strings.LastIndex(p, "/")+1:]
	base = strings.TrimLeft(base, ".")
	idx := strings.LastIndex(base, ".")
	if idx < 0 {
		return ""
	}
	return base[idx:]
}

// IsUsable reports whether a URL ends in "/" or carries a file extension.
func IsUsable(url string) bool {
	return strings.HasSuffix(url, "/") || Ext(url) != ""
}

// DeriveFilename maps a URL and the response content type onto the storage
// name of the page. URLs without an extension become "{url}/index{ext}".
func DeriveFilename(url, contentType string, types ContentTypes) (string, error) {
	if !IsUsable(url) {
		return "", &ReaderError{URL: url}
	}
	filename := url
	if Ext(url) == "" {
		filename = url + "/index" + types.Extension(contentType)
	}
	return path.Clean(strings.TrimLeft(filename, "/")), nil
}
