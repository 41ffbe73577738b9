// MockSource is a test double for types.Source.
//
// It supports fixed results, error injection, delays and panics, and records
// every request it receives.
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/catalogfed/types"
)

// MockSource is a scripted types.Source.
type MockSource struct {
	mu sync.RWMutex

	id         string
	results    []types.Result
	hits       int64
	hitsSet    bool
	properties map[string]any
	details    []types.ProcessingDetail
	err        error
	panicValue any
	nilResp    bool
	delay      time.Duration
	ignoreCtx  bool
	queryFunc  func(ctx context.Context, req *types.QueryRequest) (*types.SourceResponse, error)

	calls []*types.QueryRequest
}

var _ types.Source = (*MockSource)(nil)

// NewMockSource creates a source that returns no results.
func NewMockSource(id string) *MockSource {
	return &MockSource{id: id, properties: make(map[string]any)}
}

// WithResults sets the results. Hits defaults to their count.
func (m *MockSource) WithResults(results ...types.Result) *MockSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = results
	return m
}

// WithHits overrides the reported hit count.
func (m *MockSource) WithHits(hits int64) *MockSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits = hits
	m.hitsSet = true
	return m
}

// WithProperty adds a response property.
func (m *MockSource) WithProperty(key string, value any) *MockSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.properties[key] = value
	return m
}

// WithDetails makes the source self-report processing details.
func (m *MockSource) WithDetails(details ...types.ProcessingDetail) *MockSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.details = details
	return m
}

// WithError makes every query fail with err.
func (m *MockSource) WithError(err error) *MockSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithPanic makes every query panic with v.
func (m *MockSource) WithPanic(v any) *MockSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panicValue = v
	return m
}

// WithNilResponse makes every query return (nil, nil).
func (m *MockSource) WithNilResponse() *MockSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nilResp = true
	return m
}

// WithDelay delays every query. The delay is cut short when the context is
// done unless IgnoreContext was called.
func (m *MockSource) WithDelay(d time.Duration) *MockSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// IgnoreContext makes the delay run to completion even after cancellation.
func (m *MockSource) IgnoreContext() *MockSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ignoreCtx = true
	return m
}

// WithQueryFunc replaces the scripted behavior entirely.
func (m *MockSource) WithQueryFunc(fn func(ctx context.Context, req *types.QueryRequest) (*types.SourceResponse, error)) *MockSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queryFunc = fn
	return m
}

// ID implements types.Source.
func (m *MockSource) ID() string { return m.id }

// Query implements types.Source.
func (m *MockSource) Query(ctx context.Context, req *types.QueryRequest) (*types.SourceResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	queryFunc := m.queryFunc
	delay, ignoreCtx := m.delay, m.ignoreCtx
	m.mu.Unlock()

	if queryFunc != nil {
		return queryFunc(ctx, req)
	}

	if delay > 0 {
		if ignoreCtx {
			time.Sleep(delay)
		} else {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			}
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.panicValue != nil {
		panic(m.panicValue)
	}
	if m.err != nil {
		return nil, m.err
	}
	if m.nilResp {
		return nil, nil
	}

	results := make([]types.Result, len(m.results))
	copy(results, m.results)
	resp := types.NewSourceResponse(results)
	if m.hitsSet {
		resp.Hits = m.hits
	}
	for k, v := range m.properties {
		resp.Properties[k] = v
	}
	resp.ProcessingDetails = append(resp.ProcessingDetails, m.details...)
	return resp, nil
}

// Calls returns the requests received so far.
func (m *MockSource) Calls() []*types.QueryRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*types.QueryRequest, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many queries were received.
func (m *MockSource) CallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.calls)
}

// LastRequest returns the most recent request, or nil.
func (m *MockSource) LastRequest() *types.QueryRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.calls) == 0 {
		return nil
	}
	return m.calls[len(m.calls)-1]
}
