// Package feed reads RSS and Atom feeds served by the application and
// exposes their entries as a collector.Feed.
package feed

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

// Source fetches one feed document through a renderer.
type Source struct {
	renderer site.Renderer
	path     string
}

var _ collector.Feed = (*Source)(nil)

// New constructs a Source for the feed at path.
func New(renderer site.Renderer, path string) (*Source, error) {
	if renderer == nil {
		return nil, fmt.Errorf("%w: feed renderer is required", site.ErrConfiguration)
	}
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: feed path is required", site.ErrConfiguration)
	}
	return &Source{renderer: renderer, path: path}, nil
}

// Items returns the <item> (RSS) or <entry> (Atom) nodes of the feed.
func (s *Source) Items(ctx context.Context) ([]any, error) {
	resp, err := s.renderer.Render(ctx, site.RenderRequest{
		Path:   s.path,
		Header: http.Header{"User-Agent": []string{site.UserAgent}},
	})
	if err != nil {
		return nil, fmt.Errorf("render feed %s: %w", s.path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &site.FetchError{URL: s.path, StatusCode: resp.StatusCode}
	}
	doc, err := xmlquery.Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", s.path, err)
	}
	nodes := xmlquery.Find(doc, "//*[local-name()='item' or local-name()='entry']")
	items := make([]any, len(nodes))
	for i, n := range nodes {
		items[i] = n
	}
	return items, nil
}

// ItemLink returns the path an item links to. Atom entries prefer the
// rel="alternate" link and fall back to the first link with an href.
func (s *Source) ItemLink(item any) (string, error) {
	node, ok := item.(*xmlquery.Node)
	if !ok || node == nil {
		return "", fmt.Errorf("unexpected feed item %T", item)
	}
	var link string
	if alt := xmlquery.FindOne(node, "*[local-name()='link'][@rel='alternate']"); alt != nil {
		link = alt.SelectAttr("href")
	}
	if link == "" {
		if n := xmlquery.FindOne(node, "*[local-name()='link'][@href]"); n != nil {
			link = n.SelectAttr("href")
		}
	}
	if link == "" {
		if n := xmlquery.FindOne(node, "*[local-name()='link']"); n != nil {
			link = strings.TrimSpace(n.InnerText())
		}
	}
	if link == "" {
		return "", fmt.Errorf("feed item in %s has no link", s.path)
	}
	return site.PathOf(link), nil
}
