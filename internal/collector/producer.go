// Package collector discovers the URLs that make up a site. Producers come in
// a closed set of shapes (plain lists, sitemaps, crawlers, feeds, and
// model-backed sources) and are normalized into Producer values up front.
package collector

import (
	"context"
	"fmt"
	"iter"

	"go.uber.org/zap"

	"github.com/JakeFAU/staticpub/internal/site"
)

// Kind names the shape a producer was classified as.
type Kind string

// Producer shapes.
const (
	KindPlain   Kind = "plain"
	KindSitemap Kind = "sitemap"
	KindCrawler Kind = "crawler"
	KindFeed    Kind = "feed"
	KindModel   Kind = "model"
)

// modelChunkSize bounds how many objects are fetched per model page.
const modelChunkSize = 50

// Producer yields site-relative URLs.
type Producer interface {
	URLs(ctx context.Context) iter.Seq2[string, error]
}

// SitemapEntry is one <url> in a sitemap page.
type SitemapEntry struct {
	Location     string
	LastModified string
}

// Sitemap is a paginated list of locations; pages are numbered from 1.
type Sitemap interface {
	NumPages(ctx context.Context) (int, error)
	Page(ctx context.Context, n int) ([]SitemapEntry, error)
}

// Crawler returns the paths it found in one call.
type Crawler interface {
	Paths(ctx context.Context) ([]string, error)
}

// Feed exposes items and the link of each.
type Feed interface {
	Items(ctx context.Context) ([]any, error)
	ItemLink(item any) (string, error)
}

// ModelSource pages through stored objects in a stable order.
type ModelSource interface {
	Page(ctx context.Context, offset, limit int) ([]any, error)
}

// Objects returned by a ModelSource opt into URL generation by implementing
// any of the following.
type (
	// Buildable objects may veto their own build.
	Buildable interface{ CanBuild() bool }
	// StaticURLer objects list every URL they render to. A nil result falls
	// back to AbsoluteURLer.
	StaticURLer interface{ StaticURLs() []string }
	// AbsoluteURLer objects render to a single detail URL. An empty result
	// counts as absent.
	AbsoluteURLer interface{ AbsoluteURL() string }
	// ListURLer objects also contribute the URL of their listing page.
	ListURLer interface{ ListURL() string }
)

// Factory builds a producer value on demand. The result is classified again,
// so a factory may return any supported shape.
type Factory func() (any, error)

// Func is a plain producer function.
type Func func(ctx context.Context) ([]string, error)

// URLs implements Producer.
func (f Func) URLs(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		urls, err := f(ctx)
		if err != nil {
			yield("", err)
			return
		}
		for _, u := range urls {
			if !yield(u, nil) {
				return
			}
		}
	}
}

// List is a fixed set of URLs.
type List []string

// URLs implements Producer.
func (l List) URLs(context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, u := range l {
			if !yield(u, nil) {
				return
			}
		}
	}
}

// maxFactoryDepth stops factories that keep returning factories.
const maxFactoryDepth = 8

// Classify normalizes v into a Producer. Interfaces are checked in a fixed
// order, so a value that is both a Producer and a Sitemap is used as a
// Producer.
func Classify(v any, logger *zap.Logger) (Producer, Kind, error) {
	return classify(v, logger, 0)
}

func classify(v any, logger *zap.Logger, depth int) (Producer, Kind, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch p := v.(type) {
	case nil:
		return nil, "", fmt.Errorf("%w: nil producer", site.ErrConfiguration)
	case Producer:
		return p, KindPlain, nil
	case Sitemap:
		return sitemapProducer{sitemap: p}, KindSitemap, nil
	case Crawler:
		return crawlerProducer{crawler: p}, KindCrawler, nil
	case Feed:
		return feedProducer{feed: p}, KindFeed, nil
	case ModelSource:
		return modelProducer{source: p, logger: logger}, KindModel, nil
	case []string:
		return List(p), KindPlain, nil
	case func(context.Context) ([]string, error):
		return Func(p), KindPlain, nil
	case Factory:
		return classifyFactory(p, logger, depth)
	case func() (any, error):
		return classifyFactory(p, logger, depth)
	default:
		return nil, "", fmt.Errorf("%w: unsupported producer type %T", site.ErrConfiguration, v)
	}
}

func classifyFactory(f Factory, logger *zap.Logger, depth int) (Producer, Kind, error) {
	if depth >= maxFactoryDepth {
		return nil, "", fmt.Errorf("%w: producer factories nested too deeply", site.ErrConfiguration)
	}
	v, err := f()
	if err != nil {
		return nil, "", fmt.Errorf("%w: build producer: %v", site.ErrConfiguration, err)
	}
	return classify(v, logger, depth+1)
}

type sitemapProducer struct {
	sitemap Sitemap
}

// URLs yields the path of every located entry on every page.
func (p sitemapProducer) URLs(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		pages, err := p.sitemap.NumPages(ctx)
		if err != nil {
			yield("", fmt.Errorf("sitemap pages: %w", err))
			return
		}
		for n := 1; n <= pages; n++ {
			entries, err := p.sitemap.Page(ctx, n)
			if err != nil {
				yield("", fmt.Errorf("sitemap page %d: %w", n, err))
				return
			}
			for _, entry := range entries {
				if entry.Location == "" {
					continue
				}
				if !yield(site.PathOf(entry.Location), nil) {
					return
				}
			}
		}
	}
}

type crawlerProducer struct {
	crawler Crawler
}

func (p crawlerProducer) URLs(ctx context.Context) iter.Seq2[string, error] {
	return Func(p.crawler.Paths).URLs(ctx)
}

type feedProducer struct {
	feed Feed
}

func (p feedProducer) URLs(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		items, err := p.feed.Items(ctx)
		if err != nil {
			yield("", fmt.Errorf("feed items: %w", err))
			return
		}
		for _, item := range items {
			link, err := p.feed.ItemLink(item)
			if err != nil {
				yield("", fmt.Errorf("feed item link: %w", err))
				return
			}
			if !yield(link, nil) {
				return
			}
		}
	}
}

type modelProducer struct {
	source ModelSource
	logger *zap.Logger
}

// URLs walks the source in fixed-size chunks until a short page.
func (p modelProducer) URLs(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for offset := 0; ; offset += modelChunkSize {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			objects, err := p.source.Page(ctx, offset, modelChunkSize)
			if err != nil {
				yield("", fmt.Errorf("model page at offset %d: %w", offset, err))
				return
			}
			for _, obj := range objects {
				for _, u := range ObjectURLs(obj, p.logger) {
					if !yield(u, nil) {
						return
					}
				}
			}
			if len(objects) < modelChunkSize {
				return
			}
		}
	}
}

// ObjectURLs returns the URLs a single model object renders to, honoring its
// CanBuild veto.
func ObjectURLs(obj any, logger *zap.Logger) []string {
	if logger == nil {
		logger = zap.NewNop()
	}
	if b, ok := obj.(Buildable); ok && !b.CanBuild() {
		return nil
	}
	var urls []string
	static, hasStatic := obj.(StaticURLer)
	var staticURLs []string
	if hasStatic {
		staticURLs = static.StaticURLs()
	}
	var absolute string
	if abs, ok := obj.(AbsoluteURLer); ok {
		absolute = abs.AbsoluteURL()
	}
	switch {
	case staticURLs != nil:
		urls = append(urls, staticURLs...)
	case absolute != "":
		urls = append(urls, absolute)
	default:
		logger.Warn("model object has no absolute URL", zap.String("object", fmt.Sprintf("%T", obj)))
	}
	if l, ok := obj.(ListURLer); ok && l.ListURL() != "" {
		urls = append(urls, l.ListURL())
	}
	return urls
}
