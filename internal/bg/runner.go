// Package bg runs fire-and-forget persistence calls. Tasks sharing a key
// run one at a time in submission order; different keys run concurrently.
package bg

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hpungsan/stream/internal/logger"
)

// Task is a unit of background work. The context carries the per-task timeout.
type Task func(ctx context.Context)

// Runner is a keyed serial task runner.
type Runner struct {
	mu      sync.Mutex
	queues  map[string][]Task
	wg      sync.WaitGroup
	timeout time.Duration
	log     *logger.Logger
}

// New returns a Runner. A zero timeout means tasks run without a deadline.
func New(timeout time.Duration, log *logger.Logger) *Runner {
	return &Runner{
		queues:  make(map[string][]Task),
		timeout: timeout,
		log:     logger.OrNop(log),
	}
}

// Do queues fn behind any pending task with the same key.
func (r *Runner) Do(key string, fn Task) {
	r.wg.Add(1)

	r.mu.Lock()
	q, running := r.queues[key]
	r.queues[key] = append(q, fn)
	r.mu.Unlock()

	if !running {
		go r.drain(key)
	}
}

func (r *Runner) drain(key string) {
	for {
		r.mu.Lock()
		q := r.queues[key]
		if len(q) == 0 {
			delete(r.queues, key)
			r.mu.Unlock()
			return
		}
		fn := q[0]
		r.queues[key] = q[1:]
		r.mu.Unlock()

		r.run(key, fn)
		r.wg.Done()
	}
}

func (r *Runner) run(key string, fn Task) {
	ctx := context.Background()
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("background task panicked", "key", key, "panic", fmt.Sprint(p))
		}
	}()
	fn(ctx)
}

// Wait blocks until every queued task has finished or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
