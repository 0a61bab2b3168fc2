package report

// limiter.go bounds concurrent report exports. Exports wait up to maxWait for
// a slot before failing with ErrExportBusy.

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrExportBusy is returned when every export slot stays occupied for the
// whole wait budget.
var ErrExportBusy = errors.New("export busy, please try again later")

// DefaultMaxConcurrent is the default limit for parallel exports.
const DefaultMaxConcurrent = 2

// DefaultMaxWait is how long to wait for a slot before rejecting.
const DefaultMaxWait = 10 * time.Second

// Limiter controls concurrent exports with a weighted semaphore.
type Limiter struct {
	sem     *semaphore.Weighted
	max     int
	maxWait time.Duration
	active  atomic.Int64
}

// NewLimiter creates a limiter allowing maxConcurrent simultaneous exports.
func NewLimiter(maxConcurrent int, maxWait time.Duration) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	return &Limiter{
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		max:     maxConcurrent,
		maxWait: maxWait,
	}
}

// Acquire waits for a slot. The caller must call Release when done.
func (l *Limiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	if err := l.sem.Acquire(waitCtx, 1); err != nil {
		// Distinguish caller cancellation from the wait budget running out.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrExportBusy
	}
	l.active.Add(1)
	return nil
}

// TryAcquire takes a slot without blocking.
func (l *Limiter) TryAcquire() bool {
	if !l.sem.TryAcquire(1) {
		return false
	}
	l.active.Add(1)
	return true
}

// Release frees a slot taken by Acquire or TryAcquire.
func (l *Limiter) Release() {
	l.active.Add(-1)
	l.sem.Release(1)
}

// ActiveCount returns the number of running exports.
func (l *Limiter) ActiveCount() int {
	return int(l.active.Load())
}

// MaxConcurrent returns the slot count.
func (l *Limiter) MaxConcurrent() int {
	return l.max
}
