package tasks

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/gammazero/workerpool"
	"github.com/getsentry/sentry-go"
)

// PoolQueue runs tasks in process on a bounded worker pool.
type PoolQueue struct {
	pool   *workerpool.WorkerPool
	router *Router
	mu     sync.RWMutex
	closed bool
}

// NewPoolQueue creates a queue with the given number of workers.
func NewPoolQueue(router *Router, workers int) (*PoolQueue, error) {
	if router == nil {
		return nil, fmt.Errorf("router cannot be nil")
	}
	if workers < 1 {
		workers = 1
	}
	return &PoolQueue{pool: workerpool.New(workers), router: router}, nil
}

// Enqueue submits the task. It does not wait for the task to run; the task
// context is detached from ctx since the caller usually is an HTTP request.
func (q *PoolQueue) Enqueue(_ context.Context, task Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	q.pool.Submit(func() {
		if err := q.router.Process(context.Background(), task); err != nil {
			sentry.CaptureException(fmt.Errorf("task %s (%s): %w", task.ID, task.Kind, err))
		}
	})
	return nil
}

// Close stops accepting tasks and waits for queued ones to finish.
func (q *PoolQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	log.Printf("[Tasks] Draining worker pool (%d waiting)", q.pool.WaitingQueueSize())
	q.pool.StopWait()
	return nil
}
