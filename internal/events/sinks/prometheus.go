package sinks

import (
	"context"
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/staticpub/internal/events"
)

// PrometheusSink exports pipeline counters derived from events.
type PrometheusSink struct {
	phases        *prometheus.CounterVec
	phaseDuration *prometheus.HistogramVec
	pagesRead     *prometheus.CounterVec
	pagesWritten  *prometheus.CounterVec
	bytesRead     *prometheus.CounterVec
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		phases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "staticpub_phases_total",
			Help: "Reader, writer, and build phases partitioned by sender and phase.",
		}, []string{"sender", "phase"}),
		phaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "staticpub_phase_duration_seconds",
			Help:    "Wall time of finished phases partitioned by sender.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"sender"}),
		pagesRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "staticpub_pages_read_total",
			Help: "Pages read partitioned by sender and status class.",
		}, []string{"sender", "status_class"}),
		pagesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "staticpub_pages_written_total",
			Help: "Pages written partitioned by whether the file was newly created.",
		}, []string{"created"}),
		bytesRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "staticpub_response_bytes_total",
			Help: "Rendered response bytes partitioned by sender.",
		}, []string{"sender"}),
	}
	for _, collector := range []prometheus.Collector{
		s.phases,
		s.phaseDuration,
		s.pagesRead,
		s.pagesWritten,
		s.bytesRead,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register event collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []events.Event) error {
	for _, evt := range batch {
		switch evt.Kind {
		case events.ReaderStarted, events.WriterStarted, events.BuildStarted:
			s.phases.WithLabelValues(evt.Sender, "started").Inc()
		case events.ReaderFinished, events.WriterFinished, events.BuildFinished:
			s.phases.WithLabelValues(evt.Sender, "finished").Inc()
			if evt.Dur > 0 {
				s.phaseDuration.WithLabelValues(evt.Sender).Observe(evt.Dur.Seconds())
			}
		case events.ReadPage:
			s.pagesRead.WithLabelValues(evt.Sender, events.StatusClass(evt.Status)).Inc()
			if evt.Response != nil && len(evt.Response.Body) > 0 {
				s.bytesRead.WithLabelValues(evt.Sender).Add(float64(len(evt.Response.Body)))
			}
		case events.WritePage:
			s.pagesWritten.WithLabelValues(strconv.FormatBool(evt.Write.Created)).Inc()
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
