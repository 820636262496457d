package events

import (
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/staticpub/internal/site"
)

// Kind names a pipeline notification.
type Kind string

// Notifications fired by the reader, writer, and builder.
const (
	ReaderStarted  Kind = "reader_started"
	ReadPage       Kind = "read_page"
	ReaderFinished Kind = "reader_finished"
	WriterStarted  Kind = "writer_started"
	WritePage      Kind = "write_page"
	WriterFinished Kind = "writer_finished"
	BuildStarted   Kind = "build_started"
	BuildFinished  Kind = "build_finished"
)

// Senders identify which component fired an event.
const (
	SenderReader      = "reader"
	SenderErrorReader = "error_reader"
	SenderWriter      = "writer"
	SenderBuilder     = "builder"
)

// Event is one notification on the bus. Which fields are populated depends
// on Kind: read_page carries URL, Filename, Status and Response; write_page
// carries Read and Write; *_started and *_finished carry Count (and Dur on
// finish).
type Event struct {
	Kind     Kind
	Sender   string
	TS       time.Time
	URL      string
	Filename string
	Status   int
	Response *site.Response
	Read     *site.ReadResult
	Write    *site.WriteResult
	Count    int
	Dur      time.Duration
	Note     string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.Sender == "" {
		return errors.New("sender is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Kind {
	case ReaderStarted, ReaderFinished, WriterStarted, WriterFinished, BuildStarted, BuildFinished:
	case ReadPage:
		if e.Filename == "" {
			return errors.New("read_page requires filename")
		}
	case WritePage:
		if e.Read == nil || e.Write == nil {
			return errors.New("write_page requires read and write results")
		}
	default:
		return fmt.Errorf("unknown kind %q", e.Kind)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// StatusClass groups HTTP status codes for labeling; synthetic pages with no
// status fall into "none".
func StatusClass(code int) string {
	switch {
	case code == 0:
		return "none"
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "other"
	}
}
