// Package tasks runs detached background work for the relay. Work scheduled
// here outlives the request that scheduled it; failures are logged and never
// reach the request lane.
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/texts-hq/sentry-relay/internal/metrics"
)

// Pool runs background functions with a bounded in-flight count. Go never
// blocks the caller; excess tasks wait for a slot inside their own
// goroutine. Drain waits for everything scheduled so far, which is what
// keeps the process alive until detached work finishes at shutdown.
type Pool struct {
	sem    chan struct{}
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewPool creates a pool allowing maxInFlight concurrently running tasks.
func NewPool(maxInFlight int, logger *slog.Logger) *Pool {
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		sem:    make(chan struct{}, maxInFlight),
		logger: logger,
	}
}

// Go schedules fn on the pool. The function receives a background context:
// no cancellation is threaded through, so once scheduled a task runs to
// completion or fails (logged). Panics are contained the same way.
func (p *Pool) Go(name string, fn func(ctx context.Context) error) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.sem <- struct{}{}
		defer func() { <-p.sem }()

		metrics.TasksInFlight.Inc()
		defer metrics.TasksInFlight.Dec()

		defer func() {
			if rec := recover(); rec != nil {
				p.logger.Error("background task panicked",
					slog.String("task", name),
					slog.Any("panic", rec),
				)
			}
		}()

		if err := fn(context.Background()); err != nil {
			p.logger.Error("background task failed",
				slog.String("task", name),
				slog.Any("error", err),
			)
		}
	}()
}

// Drain waits for all scheduled tasks to finish, up to timeout.
func (p *Pool) Drain(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("task pool drain timed out after %s", timeout)
	}
}
