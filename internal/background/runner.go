// Package background runs detached tasks with a completion guarantee.
//
// DESIGN: Work scheduled here outlives the HTTP response that spawned it, but
// is still tracked: Shutdown blocks until every outstanding task finishes (or
// the shutdown context expires). A plain "go fn()" gives no such guarantee
// and can be killed mid-flight when the process recycles.
package background

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Runner tracks detached tasks so shutdown can wait for them.
type Runner struct {
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewRunner creates a Runner.
func NewRunner() *Runner {
	return &Runner{}
}

// Go schedules fn as a detached task. The task receives a fresh context with
// the given timeout, independent of any request context, so it survives the
// response being closed. Panics are recovered and logged; a detached task must
// never take the process down. Returns false if the runner is shut down.
func (r *Runner) Go(name string, timeout time.Duration, fn func(ctx context.Context)) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		log.Warn().Str("task", name).Msg("background: runner closed, task dropped")
		return false
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().Str("task", name).Interface("panic", rec).Msg("background: task panicked")
			}
		}()

		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		start := time.Now()
		fn(ctx)
		log.Debug().Str("task", name).Dur("elapsed", time.Since(start)).Msg("background: task done")
	}()
	return true
}

// Shutdown stops accepting new tasks and waits for outstanding ones.
// Returns the shutdown context's error if it expires first.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

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
