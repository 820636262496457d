package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/staticpub/internal/events"
)

// LogSink writes one structured log line per event. Page content is never logged.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []events.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("kind", string(evt.Kind)),
			zap.String("sender", evt.Sender),
		}
		switch evt.Kind {
		case events.ReadPage:
			fields = append(fields,
				zap.String("url", evt.URL),
				zap.String("filename", evt.Filename),
				zap.Int("status", evt.Status),
			)
		case events.WritePage:
			fields = append(fields,
				zap.String("url", evt.Read.URL),
				zap.String("filename", evt.Write.Name),
				zap.Bool("created", evt.Write.Created),
				zap.String("md5", evt.Write.MD5),
			)
		default:
			fields = append(fields, zap.Int("count", evt.Count))
			if evt.Dur > 0 {
				fields = append(fields, zap.Duration("dur", evt.Dur))
			}
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		s.logger.Info("pipeline event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
