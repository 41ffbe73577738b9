package testutil

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/BaSui01/catalogfed/types"
)

// TestContext returns a context with a timeout, cancelled on cleanup.
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext returns a context that is already cancelled.
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// AssertResultIDs asserts the ids of results, in order.
func AssertResultIDs(t *testing.T, expected []string, actual []types.Result) {
	t.Helper()

	if len(expected) != len(actual) {
		t.Errorf("result count mismatch: expected %d, got %d", len(expected), len(actual))
		return
	}
	for i := range expected {
		if expected[i] != actual[i].ID {
			t.Errorf("result[%d] id mismatch: expected %q, got %q", i, expected[i], actual[i].ID)
		}
	}
}

// AssertEventuallyEqual asserts that getter returns expected within timeout.
func AssertEventuallyEqual(t *testing.T, expected any, getter func() any, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	var lastValue any
	for time.Now().Before(deadline) {
		lastValue = getter()
		if reflect.DeepEqual(expected, lastValue) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("value did not become %v within %v, last value: %v", expected, timeout, lastValue)
}

// Sources converts concrete sources to the interface slice Federate takes.
func Sources[S types.Source](in ...S) []types.Source {
	out := make([]types.Source, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
