package federation

import "context"

// Executor runs one source task per participating source. It is owned by the
// caller and may be shared by concurrent Federate calls; the engine never
// closes it. Submit must not block on task completion.
type Executor interface {
	Submit(ctx context.Context, task func(ctx context.Context) error) error
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, task func(ctx context.Context) error) error

// Submit calls f.
func (f ExecutorFunc) Submit(ctx context.Context, task func(ctx context.Context) error) error {
	return f(ctx, task)
}

// GoExecutor starts every task on its own goroutine. It suits tests and
// callers without a shared pool.
var GoExecutor Executor = ExecutorFunc(func(ctx context.Context, task func(ctx context.Context) error) error {
	go func() { _ = task(ctx) }()
	return nil
})
