package cache

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
)

// guard is a partition's exclusive lock. Unlike sync.Mutex it supports a
// bounded wait, which the scavenger needs so that it never queues behind
// foreground traffic indefinitely.
type guard struct {
	sem *semaphore.Weighted
}

func newGuard() guard { return guard{sem: semaphore.NewWeighted(1)} }

// lock blocks until the guard is held.
func (g guard) lock() {
	if g.sem.TryAcquire(1) {
		return
	}
	// Acquire only fails when ctx is done; Background never is.
	_ = g.sem.Acquire(context.Background(), 1)
}

// lockWithin tries to take the guard for at most d.
// It returns ErrUnavailable on timeout.
func (g guard) lockWithin(d time.Duration) error {
	if g.sem.TryAcquire(1) {
		return nil
	}
	if d <= 0 {
		return ErrUnavailable
	}
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return ErrUnavailable
	}
	return nil
}

func (g guard) unlock() { g.sem.Release(1) }
