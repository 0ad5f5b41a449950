package tasks

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
)

// HandlerFunc processes one task.
type HandlerFunc func(ctx context.Context, task Task) error

// Router dispatches tasks to the handler registered for their kind.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	timeout  time.Duration
}

// NewRouter creates a Router. Each task gets at most timeout to complete;
// zero means no limit.
func NewRouter(timeout time.Duration) *Router {
	return &Router{handlers: make(map[string]HandlerFunc), timeout: timeout}
}

// Handle registers fn for kind, replacing any previous handler.
func (r *Router) Handle(kind string, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = fn
}

// Process runs the handler for the task. A panicking handler is recovered,
// reported to Sentry and turned into an error.
func (r *Router) Process(ctx context.Context, task Task) (err error) {
	r.mu.RLock()
	fn, ok := r.handlers[task.Kind]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKind, task.Kind)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[Task %s:%s] PANIC recovered: %v", task.Kind, task.ID, rec)
			sentry.CurrentHub().Recover(rec)
			err = fmt.Errorf("task %s panicked: %v", task.ID, rec)
		}
	}()

	start := time.Now()
	err = fn(ctx, task)
	if err != nil {
		log.Printf("[Task %s:%s] Failed after %s: %v", task.Kind, task.ID, time.Since(start), err)
		return err
	}
	log.Printf("[Task %s:%s] Done in %s", task.Kind, task.ID, time.Since(start))
	return nil
}
