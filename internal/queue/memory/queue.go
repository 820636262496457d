// Package memory provides the in-process build job queue used by serve mode.
package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/JakeFAU/staticpub/internal/jobs"
)

// ErrDuplicateJob is returned when a job ID is already waiting in the queue.
var ErrDuplicateJob = errors.New("job already queued")

// Queue is a FIFO of pending build jobs. Enqueue blocks while the queue holds
// capacity items; a capacity of zero or less means unbounded. Pending jobs can
// be withdrawn with Remove, which is how queued builds are canceled before a
// worker picks them up.
type Queue struct {
	mu       sync.Mutex
	items    []jobs.QueueItem
	capacity int
	closed   bool
	// changed is closed and replaced on every state change so waiters can
	// select on it alongside their context.
	changed chan struct{}
}

// NewQueue constructs a queue holding at most capacity pending jobs.
func NewQueue(capacity int) *Queue {
	return &Queue{capacity: capacity, changed: make(chan struct{})}
}

// Enqueue appends a job, blocking while the queue is full. It stamps
// Submitted when the caller left it unset.
func (q *Queue) Enqueue(ctx context.Context, item jobs.QueueItem) error {
	if item.JobID == "" {
		return errors.New("enqueue: job id is required")
	}
	if item.Submitted == 0 {
		item.Submitted = time.Now().UnixNano()
	}
	for {
		q.mu.Lock()
		switch {
		case q.closed:
			q.mu.Unlock()
			return jobs.ErrQueueClosed
		case q.indexLocked(item.JobID) >= 0:
			q.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrDuplicateJob, item.JobID)
		case q.capacity <= 0 || len(q.items) < q.capacity:
			q.items = append(q.items, item)
			q.notifyLocked()
			q.mu.Unlock()
			return nil
		}
		wait := q.changed
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return fmt.Errorf("enqueue canceled: %w", ctx.Err())
		case <-wait:
		}
	}
}

// Dequeue pops the oldest job, blocking until one is available. Jobs still
// pending at Close are drained before ErrQueueClosed is returned.
func (q *Queue) Dequeue(ctx context.Context) (jobs.QueueItem, error) {
	for {
		if err := ctx.Err(); err != nil {
			return jobs.QueueItem{}, fmt.Errorf("dequeue canceled: %w", err)
		}
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items = slices.Delete(q.items, 0, 1)
			q.notifyLocked()
			q.mu.Unlock()
			return item, nil
		}
		if q.closed {
			q.mu.Unlock()
			return jobs.QueueItem{}, jobs.ErrQueueClosed
		}
		wait := q.changed
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return jobs.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
		case <-wait:
		}
	}
}

// Remove withdraws a pending job, reporting whether it was still queued.
func (q *Queue) Remove(jobID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.indexLocked(jobID)
	if i < 0 {
		return false
	}
	q.items = slices.Delete(q.items, i, i+1)
	q.notifyLocked()
	return true
}

// Pending returns the IDs of queued jobs in dequeue order.
func (q *Queue) Pending() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	ids := make([]string, len(q.items))
	for i, item := range q.items {
		ids[i] = item.JobID
	}
	return ids
}

// Len reports how many jobs are waiting.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops accepting jobs and wakes every waiter. It is safe to call more
// than once.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.notifyLocked()
}

func (q *Queue) indexLocked(jobID string) int {
	return slices.IndexFunc(q.items, func(it jobs.QueueItem) bool { return it.JobID == jobID })
}

func (q *Queue) notifyLocked() {
	close(q.changed)
	q.changed = make(chan struct{})
}

var _ jobs.Queue = (*Queue)(nil)
