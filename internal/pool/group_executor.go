package pool

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// GroupExecutor runs tasks on an errgroup capped at a fixed number of
// goroutines. Submit never blocks: a full group rejects with ErrPoolFull.
// Task errors are counted, not propagated, because each federation run
// reports source failures itself.
type GroupExecutor struct {
	g      errgroup.Group
	closed atomic.Bool

	submitted atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
}

// NewGroupExecutor creates an executor running at most limit tasks at once.
// A non-positive limit removes the cap.
func NewGroupExecutor(limit int) *GroupExecutor {
	e := &GroupExecutor{}
	if limit > 0 {
		e.g.SetLimit(limit)
	}
	return e
}

// Submit starts task unless the group is full or closed.
func (e *GroupExecutor) Submit(ctx context.Context, task Task) error {
	if e.closed.Load() {
		return ErrPoolClosed
	}
	ok := e.g.TryGo(func() error {
		if err := task(ctx); err != nil {
			e.failed.Add(1)
		}
		return nil
	})
	if !ok {
		e.rejected.Add(1)
		return ErrPoolFull
	}
	e.submitted.Add(1)
	return nil
}

// Close rejects new tasks and waits for running ones.
func (e *GroupExecutor) Close() {
	e.closed.Store(true)
	_ = e.g.Wait()
}

// Stats returns executor statistics in the pool's shape.
func (e *GroupExecutor) Stats() GoroutinePoolStats {
	return GoroutinePoolStats{
		Submitted: e.submitted.Load(),
		Failed:    e.failed.Load(),
		Rejected:  e.rejected.Load(),
	}
}
