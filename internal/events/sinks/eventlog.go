package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/staticpub/internal/events"
)

// EventLogSink records one durable log entry per written page.
type EventLogSink struct {
	recorder events.LogRecorder
	logger   *zap.Logger
}

// NewEventLogSink constructs an EventLogSink for the provided recorder.
func NewEventLogSink(recorder events.LogRecorder, logger *zap.Logger) *EventLogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventLogSink{recorder: recorder, logger: logger}
}

// Consume collects write_page events into entries and records them in one call.
func (s *EventLogSink) Consume(ctx context.Context, batch []events.Event) error {
	if s == nil || s.recorder == nil {
		return nil
	}
	entries := make([]events.LogEntry, 0, len(batch))
	for _, evt := range batch {
		if evt.Kind != events.WritePage {
			continue
		}
		entry, err := events.WrittenEntry(evt)
		if err != nil {
			s.logger.Warn("skipping event log entry", zap.Error(err))
			continue
		}
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		return nil
	}
	if err := s.recorder.Record(ctx, entries); err != nil {
		return fmt.Errorf("record event log: %w", err)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *EventLogSink) Close(context.Context) error {
	return nil
}
