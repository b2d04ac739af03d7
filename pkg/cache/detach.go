package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Task is a unit of background work.
type Task func(ctx context.Context) error

// Detacher runs tasks independently of the request that scheduled them.
type Detacher interface {
	// Detach schedules task. The task context keeps parent's values but not
	// its cancellation.
	Detach(parent context.Context, name string, task Task)
	// Wait blocks until all scheduled tasks finish or ctx is done.
	Wait(ctx context.Context) error
}

// GoroutineDetacher runs each task in its own goroutine with a timeout.
// Errors and panics are logged.
type GoroutineDetacher struct {
	timeout time.Duration
	logger  zerolog.Logger
	wg      sync.WaitGroup
}

// NewGoroutineDetacher creates a detacher bounding each task by timeout.
// A timeout <= 0 leaves tasks unbounded.
func NewGoroutineDetacher(timeout time.Duration, logger zerolog.Logger) *GoroutineDetacher {
	return &GoroutineDetacher{
		timeout: timeout,
		logger:  logger,
	}
}

func (d *GoroutineDetacher) Detach(parent context.Context, name string, task Task) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error().Str("task", name).Interface("panic", r).Msg("Background task panicked")
			}
		}()

		ctx := context.WithoutCancel(parent)
		if d.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d.timeout)
			defer cancel()
		}

		start := time.Now()
		if err := task(ctx); err != nil {
			d.logger.Warn().Err(err).Str("task", name).Dur("duration", time.Since(start)).Msg("Background task failed")
			return
		}
		d.logger.Debug().Str("task", name).Dur("duration", time.Since(start)).Msg("Background task completed")
	}()
}

func (d *GoroutineDetacher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
