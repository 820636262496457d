// Package jobs defines build jobs: what is queued when a build is requested
// over the API, how its lifecycle is tracked, and the storage and queue
// contracts the worker pool runs against.
package jobs

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by stores for unknown job IDs.
	ErrNotFound = errors.New("job not found")
	// ErrQueueClosed is returned by Dequeue after shutdown.
	ErrQueueClosed = errors.New("queue closed")
)

// Status represents the lifecycle state of a build job.
type Status string

// Job status values persisted in the job store.
const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Terminal reports whether no further transitions are expected.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// Kind selects what a job builds.
type Kind string

// Build job kinds.
const (
	KindSite       Kind = "site"
	KindURLs       Kind = "urls"
	KindErrorPages Kind = "error_pages"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindSite, KindURLs, KindErrorPages:
		return true
	default:
		return false
	}
}

// Params captures what the client asked to build.
type Params struct {
	Kind Kind     `json:"kind"`
	URLs []string `json:"urls,omitempty"`
}

// Counters tracks page totals per job.
type Counters struct {
	PagesRead    int `json:"pages_read"`
	PagesWritten int `json:"pages_written"`
	PagesCreated int `json:"pages_created"`
	BuildsFailed int `json:"builds_failed"`
}

// Job is the persisted state of one build request.
type Job struct {
	ID         string     `json:"id"`
	Status     Status     `json:"status"`
	Submitted  time.Time  `json:"submitted_at"`
	Started    *time.Time `json:"started_at,omitempty"`
	Finished   *time.Time `json:"finished_at,omitempty"`
	ErrorText  string     `json:"error_text,omitempty"`
	Parameters Params     `json:"parameters"`
	Counters   Counters   `json:"counters"`
}

// Page is one written page in a job result.
type Page struct {
	URL      string `json:"url,omitempty"`
	Filename string `json:"filename"`
	Status   int    `json:"status,omitempty"`
	Name     string `json:"name"`
	Created  bool   `json:"created"`
	MD5      string `json:"md5"`
}

// Failure is one build that stopped on an error.
type Failure struct {
	URLs  []string `json:"urls,omitempty"`
	Error string   `json:"error"`
}

// Result is returned by the result endpoint.
type Result struct {
	Job      Job       `json:"job"`
	Pages    []Page    `json:"pages"`
	Failures []Failure `json:"failures,omitempty"`
}

// QueueItem is the payload handed to workers.
type QueueItem struct {
	JobID     string
	Params    Params
	Attempt   int
	Submitted int64
}

// Queue is a bounded FIFO of pending jobs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Store persists job state and results.
type Store interface {
	CreateJob(ctx context.Context, job Job) error
	UpdateJobStatus(ctx context.Context, jobID string, status Status, errText string, counters Counters) error
	RecordResult(ctx context.Context, jobID string, pages []Page, failures []Failure) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	GetResult(ctx context.Context, jobID string) (Result, error)
}
