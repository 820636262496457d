package sinks

import (
	"context"
	"fmt"

	"github.com/JakeFAU/staticpub/internal/events"
)

// Publisher ships payloads to a topic and reports the broker's message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// PublisherSink forwards every event as an events.Record. The first failed
// publish aborts the rest of the batch.
type PublisherSink struct {
	publisher Publisher
	topic     string
	kinds     map[events.Kind]struct{}
}

// NewPublisherSink builds a sink that publishes to topic. When kinds is
// non-empty only those kinds are forwarded.
func NewPublisherSink(publisher Publisher, topic string, kinds ...events.Kind) *PublisherSink {
	filter := make(map[events.Kind]struct{}, len(kinds))
	for _, k := range kinds {
		filter[k] = struct{}{}
	}
	return &PublisherSink{publisher: publisher, topic: topic, kinds: filter}
}

// Consume publishes each matching event.
func (s *PublisherSink) Consume(ctx context.Context, batch []events.Event) error {
	if s == nil || s.publisher == nil {
		return nil
	}
	for _, evt := range batch {
		if len(s.kinds) > 0 {
			if _, ok := s.kinds[evt.Kind]; !ok {
				continue
			}
		}
		if _, err := s.publisher.Publish(ctx, s.topic, evt.ToRecord()); err != nil {
			return fmt.Errorf("publish %s event: %w", evt.Kind, err)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PublisherSink) Close(context.Context) error {
	return nil
}
