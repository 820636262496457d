package sinks

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/staticpub/internal/events"
	"github.com/JakeFAU/staticpub/internal/publisher/memory"
	"github.com/JakeFAU/staticpub/internal/site"
)

func pageBatch() []events.Event {
	now := time.Unix(1700000000, 0).UTC()
	read := &site.ReadResult{URL: "/content/a/", Filename: "content/a/index.html", Status: 200, Content: []byte("content_a")}
	write := &site.WriteResult{
		Name:          "content/a/index.html",
		Created:       true,
		Modified:      true,
		MD5:           "95792493d34debeaee4af352d18f1c76",
		StorageResult: "content/a/index.html",
	}
	return []events.Event{
		{Kind: events.ReaderStarted, Sender: events.SenderReader, TS: now, Count: 1},
		{
			Kind:     events.ReadPage,
			Sender:   events.SenderReader,
			TS:       now,
			URL:      "/content/a/",
			Filename: "content/a/index.html",
			Status:   200,
			Response: &site.Response{URL: "/content/a/", StatusCode: 200, Body: []byte("content_a")},
		},
		{Kind: events.ReaderFinished, Sender: events.SenderReader, TS: now, Count: 1, Dur: 20 * time.Millisecond},
		{Kind: events.WritePage, Sender: events.SenderWriter, TS: now, Read: read, Write: write},
	}
}

func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	require.NoError(t, sink.Consume(context.Background(), pageBatch()))

	require.InDelta(t, 1.0, testutil.ToFloat64(sink.phases.WithLabelValues(events.SenderReader, "started")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.phases.WithLabelValues(events.SenderReader, "finished")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.pagesRead.WithLabelValues(events.SenderReader, "2xx")), 1e-9)
	require.InDelta(t, 9.0, testutil.ToFloat64(sink.bytesRead.WithLabelValues(events.SenderReader)), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.pagesWritten.WithLabelValues("true")), 1e-9)
	require.Equal(t, 1, testutil.CollectAndCount(sink.phaseDuration, "staticpub_phase_duration_seconds"))
}

func TestPrometheusSinkRejectsDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}

func TestPublisherSinkPublishesRecords(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	sink := NewPublisherSink(pub, "builds", events.WritePage)
	require.NoError(t, sink.Consume(context.Background(), pageBatch()))

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "builds", msgs[0].Topic)
	rec, ok := msgs[0].Payload.(events.Record)
	require.True(t, ok)
	require.Equal(t, events.WritePage, rec.Kind)
	require.Equal(t, "95792493d34debeaee4af352d18f1c76", rec.Write.MD5)

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	require.NotContains(t, string(data), "content_a\"")
}

func TestPublisherSinkStopsOnError(t *testing.T) {
	t.Parallel()

	sink := NewPublisherSink(failingPublisher{}, "builds")
	err := sink.Consume(context.Background(), pageBatch())
	require.ErrorContains(t, err, "reader_started")
}

func TestEventLogSinkRecordsWrites(t *testing.T) {
	t.Parallel()

	rec := &fakeRecorder{}
	sink := NewEventLogSink(rec, nil)
	require.NoError(t, sink.Consume(context.Background(), pageBatch()))

	require.Len(t, rec.entries, 1)
	entry := rec.entries[0]
	require.Equal(t, `URL "/content/a/" written`, entry.Action)

	var extra map[string]map[string]any
	require.NoError(t, json.Unmarshal(entry.Extra, &extra))
	require.Equal(t, "content/a/index.html", extra["read"]["filename"])
	require.Equal(t, true, extra["write"]["created"])
	require.NotContains(t, extra["read"], "content")
}

func TestEventLogSinkSkipsEmptyBatches(t *testing.T) {
	t.Parallel()

	rec := &fakeRecorder{err: errors.New("should not be called")}
	sink := NewEventLogSink(rec, nil)
	require.NoError(t, sink.Consume(context.Background(), pageBatch()[:3]))
	require.Empty(t, rec.entries)
}

func TestEventLogSinkWrapsRecorderErrors(t *testing.T) {
	t.Parallel()

	sink := NewEventLogSink(&fakeRecorder{err: errors.New("db down")}, nil)
	err := sink.Consume(context.Background(), pageBatch())
	require.ErrorContains(t, err, "db down")
}

func TestLogSinkOmitsContent(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	sink := NewLogSink(zap.New(core))
	require.NoError(t, sink.Consume(context.Background(), pageBatch()))

	entries := logs.All()
	require.Len(t, entries, 4)
	write := entries[3].ContextMap()
	require.Equal(t, "content/a/index.html", write["filename"])
	require.Equal(t, true, write["created"])
	for _, e := range entries {
		for _, v := range e.ContextMap() {
			require.NotEqual(t, "content_a", v)
		}
	}
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, string, any) (string, error) {
	return "", errors.New("broker unavailable")
}

type fakeRecorder struct {
	entries []events.LogEntry
	err     error
}

func (f *fakeRecorder) Record(_ context.Context, entries []events.LogEntry) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, entries...)
	return nil
}
