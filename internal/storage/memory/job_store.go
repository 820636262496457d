package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/staticpub/internal/jobs"
)

// JobStore keeps build jobs and their results in memory.
type JobStore struct {
	mu       sync.RWMutex
	jobs     map[string]jobs.Job
	pages    map[string][]jobs.Page
	failures map[string][]jobs.Failure
	now      func() time.Time
}

var _ jobs.Store = (*JobStore)(nil)

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs:     make(map[string]jobs.Job),
		pages:    make(map[string][]jobs.Page),
		failures: make(map[string][]jobs.Failure),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateJob stores a new job.
func (s *JobStore) CreateJob(_ context.Context, job jobs.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return errors.New("job already exists")
	}
	s.jobs[job.ID] = job
	return nil
}

// UpdateJobStatus updates the status and counters for a job. Once a job is
// terminal its status no longer changes, so a late worker update cannot undo
// a cancellation.
func (s *JobStore) UpdateJobStatus(
	_ context.Context,
	jobID string,
	status jobs.Status,
	errText string,
	counters jobs.Counters,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", jobs.ErrNotFound, jobID)
	}
	if job.Status.Terminal() {
		return nil
	}
	job.Status = status
	job.ErrorText = errText
	job.Counters = counters
	now := s.now()
	if status == jobs.StatusRunning && job.Started == nil {
		job.Started = pointerTime(now)
	}
	if status.Terminal() {
		job.Finished = pointerTime(now)
	}
	s.jobs[jobID] = job
	return nil
}

// RecordResult replaces the pages and failures recorded for a job.
func (s *JobStore) RecordResult(_ context.Context, jobID string, pages []jobs.Page, failures []jobs.Failure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; !ok {
		return fmt.Errorf("%w: %s", jobs.ErrNotFound, jobID)
	}
	s.pages[jobID] = append([]jobs.Page(nil), pages...)
	s.failures[jobID] = append([]jobs.Failure(nil), failures...)
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (jobs.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return jobs.Job{}, fmt.Errorf("%w: %s", jobs.ErrNotFound, jobID)
	}
	return job, nil
}

// GetResult returns a job with copies of its recorded pages and failures.
func (s *JobStore) GetResult(_ context.Context, jobID string) (jobs.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return jobs.Result{}, fmt.Errorf("%w: %s", jobs.ErrNotFound, jobID)
	}
	return jobs.Result{
		Job:      job,
		Pages:    append([]jobs.Page{}, s.pages[jobID]...),
		Failures: append([]jobs.Failure(nil), s.failures[jobID]...),
	}, nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
