package pool

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGoroutinePool_SubmitRunsTasks(t *testing.T) {
	p := NewGoroutinePool(GoroutinePoolConfig{MaxWorkers: 4, QueueSize: 16}, zap.NewNop())

	var ran atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) error {
			defer wg.Done()
			ran.Add(1)
			return nil
		}))
	}
	wg.Wait()
	p.Close()

	assert.Equal(t, int32(10), ran.Load())
	stats := p.Stats()
	assert.Equal(t, int64(10), stats.Submitted)
	assert.Equal(t, int64(10), stats.Completed)
	assert.Zero(t, stats.Rejected)
}

func TestGoroutinePool_SubmitWaitReturnsTaskError(t *testing.T) {
	p := NewGoroutinePool(DefaultGoroutinePoolConfig(), nil)
	defer p.Close()

	want := errors.New("source down")
	err := p.SubmitWait(context.Background(), func(context.Context) error { return want })
	assert.ErrorIs(t, err, want)
	assert.Equal(t, int64(1), p.Stats().Failed)
}

func TestGoroutinePool_RecoversPanics(t *testing.T) {
	var handled atomic.Value
	p := NewGoroutinePool(GoroutinePoolConfig{
		MaxWorkers:   1,
		QueueSize:    1,
		PanicHandler: func(r any) { handled.Store(r) },
	}, nil)
	defer p.Close()

	err := p.SubmitWait(context.Background(), func(context.Context) error { panic("boom") })
	assert.ErrorIs(t, err, ErrTaskPanic)
	assert.Equal(t, "boom", handled.Load())
	assert.Equal(t, int64(1), p.Stats().Panicked)

	// The worker survives the panic.
	assert.NoError(t, p.SubmitWait(context.Background(), func(context.Context) error { return nil }))
}

func TestGoroutinePool_RejectsWhenFull(t *testing.T) {
	p := NewGoroutinePool(GoroutinePoolConfig{MaxWorkers: 1, QueueSize: 1}, nil)
	release := make(chan struct{})
	started := make(chan struct{})
	defer func() {
		close(release)
		p.Close()
	}()

	require.NoError(t, p.Submit(context.Background(), func(context.Context) error {
		close(started)
		<-release
		return nil
	}))
	<-started
	require.NoError(t, p.Submit(context.Background(), func(context.Context) error { return nil }))

	err := p.Submit(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrPoolFull)
	assert.Equal(t, int64(1), p.Stats().Rejected)
}

func TestGoroutinePool_Closed(t *testing.T) {
	p := NewGoroutinePool(DefaultGoroutinePoolConfig(), nil)
	p.Close()
	p.Close()

	assert.ErrorIs(t, p.Submit(context.Background(), func(context.Context) error { return nil }), ErrPoolClosed)
	assert.ErrorIs(t, p.SubmitWait(context.Background(), func(context.Context) error { return nil }), ErrPoolClosed)
}

func TestGroupExecutor(t *testing.T) {
	e := NewGroupExecutor(1)
	release := make(chan struct{})
	started := make(chan struct{})

	require.NoError(t, e.Submit(context.Background(), func(context.Context) error {
		close(started)
		<-release
		return errors.New("failed source")
	}))
	<-started

	assert.ErrorIs(t, e.Submit(context.Background(), func(context.Context) error { return nil }), ErrPoolFull)

	close(release)
	e.Close()

	assert.ErrorIs(t, e.Submit(context.Background(), func(context.Context) error { return nil }), ErrPoolClosed)
	stats := e.Stats()
	assert.Equal(t, int64(1), stats.Submitted)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(1), stats.Rejected)
}

func TestGroupExecutor_Unbounded(t *testing.T) {
	e := NewGroupExecutor(0)
	var ran atomic.Int32
	for i := 0; i < 20; i++ {
		require.NoError(t, e.Submit(context.Background(), func(context.Context) error {
			ran.Add(1)
			return nil
		}))
	}
	e.Close()
	assert.Equal(t, int32(20), ran.Load())
}

func TestSlicePool_ClearsElements(t *testing.T) {
	p := NewSlicePool[*int](4)

	s := p.Get()
	assert.Empty(t, s)
	v := 1
	s = append(s, &v, &v)
	p.Put(s)

	assert.Nil(t, s[0], "Put must drop references")
	assert.Empty(t, p.Get())
}

func TestPool_Stats(t *testing.T) {
	p := NewPool(func() *bytes.Buffer { return new(bytes.Buffer) }, func(b **bytes.Buffer) { (*b).Reset() })

	b := p.Get()
	b.WriteString("x")
	p.Put(b)

	stats := p.Stats()
	assert.Equal(t, int64(1), stats.Gets)
	assert.Equal(t, int64(1), stats.Puts)
	assert.Equal(t, int64(1), stats.Resets)
	assert.Zero(t, b.Len())
	assert.Zero(t, PoolStats{}.HitRate())
}

func TestGoroutinePool_SubmitWaitContext(t *testing.T) {
	p := NewGoroutinePool(GoroutinePoolConfig{MaxWorkers: 1, QueueSize: 1}, nil)
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.SubmitWait(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
