package collector

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/staticpub/internal/site"
)

// URLSet is a deduplicated set of URLs.
type URLSet map[string]struct{}

// Add inserts u.
func (s URLSet) Add(u string) { s[u] = struct{}{} }

// Has reports whether u is in the set.
func (s URLSet) Has(u string) bool {
	_, ok := s[u]
	return ok
}

// Sorted returns the members in lexical order.
func (s URLSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for u := range s {
		out = append(out, u)
	}
	slices.Sort(out)
	return out
}

// Config names the producers used when Collect is called without any.
type Config struct {
	Producers []string
}

// Collector gathers URLs from producers.
type Collector struct {
	registry *Registry
	defaults []string
	logger   *zap.Logger
}

// New constructs a Collector.
func New(registry *Registry, logger *zap.Logger, cfg Config) *Collector {
	if registry == nil {
		registry = NewRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		registry: registry,
		defaults: append([]string(nil), cfg.Producers...),
		logger:   logger,
	}
}

// Collect runs every producer and returns the union of their URLs. Producers
// may be values of any supported shape or names from the registry; with none
// given the configured names are used. Any unusable URL aborts collection.
func (c *Collector) Collect(ctx context.Context, producers ...any) (URLSet, error) {
	if len(producers) == 0 {
		if len(c.defaults) == 0 {
			return nil, fmt.Errorf("%w: no producers configured", site.ErrConfiguration)
		}
		for _, name := range c.defaults {
			producers = append(producers, name)
		}
	}
	producers = dedupe(producers)
	start := time.Now()
	urls := make(URLSet)
	for _, raw := range producers {
		name, producer, kind, err := c.resolve(raw)
		if err != nil {
			return nil, err
		}
		before := len(urls)
		for u, err := range producer.URLs(ctx) {
			if err != nil {
				return nil, fmt.Errorf("producer %s: %w", name, err)
			}
			if !site.IsUsable(u) {
				return nil, &site.CollectionError{Producer: name, URL: u}
			}
			urls.Add(u)
		}
		c.logger.Debug("producer collected",
			zap.String("producer", name),
			zap.String("kind", string(kind)),
			zap.Int("new_urls", len(urls)-before),
		)
	}
	c.logger.Info("collection finished",
		zap.Int("producers", len(producers)),
		zap.Int("urls", len(urls)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return urls, nil
}

// dedupe drops repeated producers, keeping the first occurrence. Registry
// names and comparable values compare by equality; list producers compare by
// their contents. Anything else (funcs, factories) is kept as given.
func dedupe(producers []any) []any {
	seen := make(map[any]struct{}, len(producers))
	out := make([]any, 0, len(producers))
	for _, raw := range producers {
		key, ok := producerKey(raw)
		if ok {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}
		out = append(out, raw)
	}
	return out
}

type listKey string

func producerKey(raw any) (any, bool) {
	switch v := raw.(type) {
	case List:
		return listKey(strings.Join(v, "\x00")), true
	case []string:
		return listKey(strings.Join(v, "\x00")), true
	}
	if raw == nil || !reflect.ValueOf(raw).Comparable() {
		return nil, false
	}
	return raw, true
}

func (c *Collector) resolve(raw any) (string, Producer, Kind, error) {
	name := fmt.Sprintf("%T", raw)
	if s, ok := raw.(string); ok {
		f, found := c.registry.Lookup(s)
		if !found {
			return s, nil, "", fmt.Errorf("%w: unknown producer %q", site.ErrConfiguration, s)
		}
		name, raw = s, f
	}
	p, kind, err := Classify(raw, c.logger)
	if err != nil {
		return name, nil, "", fmt.Errorf("producer %s: %w", name, err)
	}
	return name, p, kind, nil
}
