// Package spider discovers pages by following same-site links from a set of
// start paths, rendering each page through the configured renderer.
package spider

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/staticpub/internal/collector"
	"github.com/JakeFAU/staticpub/internal/site"
)

const defaultMaxPages = 500

// Config bounds the walk.
type Config struct {
	Start    []string
	MaxPages int
}

// Spider implements collector.Crawler.
type Spider struct {
	renderer site.Renderer
	cfg      Config
	logger   *zap.Logger
}

var _ collector.Crawler = (*Spider)(nil)

// New constructs a Spider.
func New(renderer site.Renderer, cfg Config, logger *zap.Logger) (*Spider, error) {
	if renderer == nil {
		return nil, fmt.Errorf("%w: spider renderer is required", site.ErrConfiguration)
	}
	if len(cfg.Start) == 0 {
		cfg.Start = []string{"/"}
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaultMaxPages
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Spider{renderer: renderer, cfg: cfg, logger: logger}, nil
}

// Paths walks breadth-first and returns every usable path that rendered
// successfully, in discovery order.
func (s *Spider) Paths(ctx context.Context) ([]string, error) {
	queue := append([]string(nil), s.cfg.Start...)
	seen := make(map[string]bool, len(queue))
	for _, p := range queue {
		seen[p] = true
	}
	var found []string
	for len(queue) > 0 && len(found) < s.cfg.MaxPages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		current := queue[0]
		queue = queue[1:]
		resp, err := s.renderer.Render(ctx, site.RenderRequest{
			Path:   current,
			Header: http.Header{"User-Agent": []string{site.UserAgent}},
		})
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", current, err)
		}
		if resp.StatusCode != http.StatusOK {
			s.logger.Debug("spider skipping page", zap.String("url", current), zap.Int("status", resp.StatusCode))
			continue
		}
		found = append(found, current)
		if !strings.HasPrefix(resp.ContentType(), "text/html") {
			continue
		}
		links, err := Links(current, resp.Body)
		if err != nil {
			return nil, err
		}
		for _, link := range links {
			if !seen[link] {
				seen[link] = true
				queue = append(queue, link)
			}
		}
	}
	return found, nil
}

// Links returns the usable same-site paths linked from an HTML page.
func Links(pagePath string, body []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pagePath, err)
	}
	base := &url.URL{Path: pagePath}
	var links []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil || ref.Scheme != "" || ref.Host != "" {
			return
		}
		resolved := base.ResolveReference(ref).Path
		if site.IsUsable(resolved) {
			links = append(links, resolved)
		}
	})
	return links, nil
}
