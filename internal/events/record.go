package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/JakeFAU/staticpub/internal/site"
)

// Record is the wire form of an Event shared by sinks that ship events
// off-process. Page content and raw response bodies are never included.
type Record struct {
	Kind     Kind              `json:"kind"`
	Sender   string            `json:"sender"`
	TS       time.Time         `json:"ts"`
	URL      string            `json:"url,omitempty"`
	Filename string            `json:"filename,omitempty"`
	Status   int               `json:"status,omitempty"`
	Count    int               `json:"count,omitempty"`
	DurMS    int64             `json:"dur_ms,omitempty"`
	Note     string            `json:"note,omitempty"`
	Read     *site.ReadResult  `json:"read,omitempty"`
	Write    *site.WriteResult `json:"write,omitempty"`
}

// ToRecord projects an Event onto its wire form.
func (e Event) ToRecord() Record {
	return Record{
		Kind:     e.Kind,
		Sender:   e.Sender,
		TS:       e.TS.UTC(),
		URL:      e.URL,
		Filename: e.Filename,
		Status:   e.Status,
		Count:    e.Count,
		DurMS:    e.Dur.Milliseconds(),
		Note:     e.Note,
		Read:     e.Read,
		Write:    e.Write,
	}
}

// LogEntry is one row of the durable event log.
type LogEntry struct {
	ActionTime time.Time
	Action     string
	Extra      json.RawMessage
}

// LogRecorder persists event log entries.
type LogRecorder interface {
	Record(ctx context.Context, entries []LogEntry) error
}

// WrittenEntry builds the event log entry for a write_page event.
func WrittenEntry(evt Event) (LogEntry, error) {
	if evt.Kind != WritePage || evt.Read == nil || evt.Write == nil {
		return LogEntry{}, fmt.Errorf("event %q is not a write_page event", evt.Kind)
	}
	extra, err := json.Marshal(struct {
		Read  *site.ReadResult  `json:"read"`
		Write *site.WriteResult `json:"write"`
	}{evt.Read, evt.Write})
	if err != nil {
		return LogEntry{}, fmt.Errorf("marshal event log extra: %w", err)
	}
	url := evt.Read.URL
	if url == "" {
		url = "/" + evt.Read.Filename
	}
	return LogEntry{
		ActionTime: evt.TS.UTC(),
		Action:     fmt.Sprintf("URL %q written", url),
		Extra:      extra,
	}, nil
}

// Attributes exposes routing attributes for brokers that support filters.
func (r Record) Attributes() map[string]string {
	return map[string]string{"kind": string(r.Kind), "sender": r.Sender}
}
