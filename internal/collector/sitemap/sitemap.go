// Package sitemap reads sitemap.xml documents served by the application and
// exposes them as a collector.Sitemap. A sitemap index makes one page per
// child sitemap; a plain urlset is a single page.
package sitemap

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/JakeFAU/staticpub/internal/collector"
	"github.com/JakeFAU/staticpub/internal/site"
)

// DefaultPath is where sitemaps are looked up when none is configured.
const DefaultPath = "/sitemap.xml"

// Source fetches sitemap documents through a renderer. It holds no state
// between calls, so one Source can serve concurrent collections.
type Source struct {
	renderer site.Renderer
	path     string
}

var _ collector.Sitemap = (*Source)(nil)

// New constructs a Source for the sitemap at path.
func New(renderer site.Renderer, path string) (*Source, error) {
	if renderer == nil {
		return nil, fmt.Errorf("%w: sitemap renderer is required", site.ErrConfiguration)
	}
	if strings.TrimSpace(path) == "" {
		path = DefaultPath
	}
	return &Source{renderer: renderer, path: path}, nil
}

// NumPages loads the root document and reports how many pages it has.
func (s *Source) NumPages(ctx context.Context) (int, error) {
	children, _, err := s.root(ctx)
	if err != nil {
		return 0, err
	}
	if children == nil {
		return 1, nil
	}
	return len(children), nil
}

// Page returns the entries on page n, counting from 1. The root document is
// read again so pages always agree with the index they came from.
func (s *Source) Page(ctx context.Context, n int) ([]collector.SitemapEntry, error) {
	children, doc, err := s.root(ctx)
	if err != nil {
		return nil, err
	}
	if children == nil {
		if n != 1 {
			return nil, fmt.Errorf("sitemap page %d out of range (1 pages)", n)
		}
		return Entries(doc), nil
	}
	if n < 1 || n > len(children) {
		return nil, fmt.Errorf("sitemap page %d out of range (%d pages)", n, len(children))
	}
	child, err := s.fetch(ctx, children[n-1])
	if err != nil {
		return nil, err
	}
	return Entries(child), nil
}

// root fetches the configured document. For a sitemap index it returns the
// paths of the child sitemaps; for a urlset children is nil.
func (s *Source) root(ctx context.Context) ([]string, *xmlquery.Node, error) {
	doc, err := s.fetch(ctx, s.path)
	if err != nil {
		return nil, nil, err
	}
	index := xmlquery.Find(doc, "//*[local-name()='sitemapindex']/*[local-name()='sitemap']/*[local-name()='loc']")
	if len(index) == 0 {
		return nil, doc, nil
	}
	children := []string{}
	for _, loc := range index {
		if text := strings.TrimSpace(loc.InnerText()); text != "" {
			children = append(children, site.PathOf(text))
		}
	}
	return children, doc, nil
}

// Entries extracts every <url> of a urlset document.
func Entries(doc *xmlquery.Node) []collector.SitemapEntry {
	var entries []collector.SitemapEntry
	for _, node := range xmlquery.Find(doc, "//*[local-name()='urlset']/*[local-name()='url']") {
		entry := collector.SitemapEntry{}
		if loc := xmlquery.FindOne(node, "*[local-name()='loc']"); loc != nil {
			entry.Location = strings.TrimSpace(loc.InnerText())
		}
		if mod := xmlquery.FindOne(node, "*[local-name()='lastmod']"); mod != nil {
			entry.LastModified = strings.TrimSpace(mod.InnerText())
		}
		entries = append(entries, entry)
	}
	return entries
}

func (s *Source) fetch(ctx context.Context, path string) (*xmlquery.Node, error) {
	resp, err := s.renderer.Render(ctx, site.RenderRequest{
		Path:   path,
		Header: http.Header{"User-Agent": []string{site.UserAgent}},
	})
	if err != nil {
		return nil, fmt.Errorf("render sitemap %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &site.FetchError{URL: path, StatusCode: resp.StatusCode}
	}
	doc, err := xmlquery.Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parse sitemap %s: %w", path, err)
	}
	return doc, nil
}
