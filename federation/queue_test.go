package federation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/catalogfed/types"
)

func TestResultQueue_PutTakeClose(t *testing.T) {
	ctx := context.Background()
	q := NewResultQueue(2)

	require.NoError(t, q.Put(ctx, types.Result{ID: "a"}))
	require.NoError(t, q.Put(ctx, types.Result{ID: "b"}))
	q.Close()
	q.Close()

	assert.True(t, q.Closed())
	assert.ErrorIs(t, q.Put(ctx, types.Result{ID: "c"}), ErrQueueClosed)

	got, err := Drain(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, []string{got[0].ID, got[1].ID})

	_, ok, err := q.Take(ctx)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestResultQueue_TakeUnblocksOnClose(t *testing.T) {
	q := NewResultQueue(0)
	done := make(chan bool, 1)

	go func() {
		_, ok, _ := q.Take(context.Background())
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Take did not unblock after Close")
	}
}

func TestResultQueue_ContextCancellation(t *testing.T) {
	q := NewResultQueue(1)
	require.NoError(t, q.Put(context.Background(), types.Result{ID: "a"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, q.Put(ctx, types.Result{ID: "b"}), context.Canceled)

	empty := NewResultQueue(1)
	_, ok, err := empty.Take(ctx)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}
