package federation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/BaSui01/catalogfed/types"
)

// ErrQueueClosed is returned by Put after Close.
var ErrQueueClosed = errors.New("result queue is closed")

const defaultQueueCapacity = 64

// ResultSource is the reading end of a result stream.
type ResultSource interface {
	// Take blocks for the next result. ok is false once the stream is closed
	// and drained.
	Take(ctx context.Context) (r types.Result, ok bool, err error)
}

// ResultSink is the writing end of a result stream. Close must be called
// exactly once by the single owner of the sink so waiting readers unblock.
type ResultSink interface {
	Put(ctx context.Context, r types.Result) error
	Close()
}

// ResultQueue is a bounded channel of results with an idempotent Close.
// Put and Close belong to one owner goroutine; Take may be called from
// another.
type ResultQueue struct {
	ch        chan types.Result
	closed    atomic.Bool
	closeOnce sync.Once
}

var (
	_ ResultSource = (*ResultQueue)(nil)
	_ ResultSink   = (*ResultQueue)(nil)
)

// NewResultQueue creates a queue. Non-positive capacities use the default.
func NewResultQueue(capacity int) *ResultQueue {
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}
	return &ResultQueue{ch: make(chan types.Result, capacity)}
}

// Put blocks until the result is queued or ctx is done.
func (q *ResultQueue) Put(ctx context.Context, r types.Result) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	select {
	case q.ch <- r:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Take blocks for the next result.
func (q *ResultQueue) Take(ctx context.Context) (types.Result, bool, error) {
	select {
	case r, ok := <-q.ch:
		return r, ok, nil
	case <-ctx.Done():
		return types.Result{}, false, ctx.Err()
	}
}

// Close marks the end of the stream. Calling it again is a no-op.
func (q *ResultQueue) Close() {
	q.closeOnce.Do(func() {
		q.closed.Store(true)
		close(q.ch)
	})
}

// Closed reports whether Close has been called.
func (q *ResultQueue) Closed() bool {
	return q.closed.Load()
}

// Drain reads src until it closes or ctx is done and returns what it read.
func Drain(ctx context.Context, src ResultSource) ([]types.Result, error) {
	out := make([]types.Result, 0)
	for {
		r, ok, err := src.Take(ctx)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, r)
	}
}
