package jobs

import (
	"context"
	"sync"
)

// Tracker holds the cancel functions of running jobs so they can be
// stopped from outside the worker that runs them.
type Tracker struct {
	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{running: make(map[string]context.CancelFunc)}
}

// Start derives a cancelable context for jobID. The returned func must be
// called when the job ends.
func (t *Tracker) Start(ctx context.Context, jobID string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.running[jobID] = cancel
	t.mu.Unlock()
	return ctx, func() {
		t.mu.Lock()
		delete(t.running, jobID)
		t.mu.Unlock()
		cancel()
	}
}

// Cancel stops a running job and reports whether it was running.
func (t *Tracker) Cancel(jobID string) bool {
	t.mu.Lock()
	cancel, ok := t.running[jobID]
	t.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Running reports how many jobs are in flight.
func (t *Tracker) Running() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.running)
}
