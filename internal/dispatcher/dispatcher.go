// Package dispatcher manages worker fan-out over the build job queue.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/staticpub/internal/jobs"
	"github.com/JakeFAU/staticpub/internal/worker"
)

// remover is implemented by queues that can withdraw pending jobs.
type remover interface {
	Remove(jobID string) bool
}

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue   jobs.Queue
	workers []*worker.Worker
	tracker *jobs.Tracker
}

// New creates a Dispatcher. The tracker should be the one the workers were
// built with so Cancel reaches running jobs.
func New(queue jobs.Queue, workers []*worker.Worker, tracker *jobs.Tracker) *Dispatcher {
	if tracker == nil {
		tracker = jobs.NewTracker()
	}
	return &Dispatcher{
		queue:   queue,
		workers: workers,
		tracker: tracker,
	}
}

// Run starts all workers and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, item jobs.QueueItem) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// Cancel withdraws a job that is still queued or stops one that is running,
// reporting whether either happened.
func (d *Dispatcher) Cancel(jobID string) bool {
	if r, ok := d.queue.(remover); ok && r.Remove(jobID) {
		return true
	}
	return d.tracker.Cancel(jobID)
}
