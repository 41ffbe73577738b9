package sources

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/catalogfed/internal/ctxkeys"
	"github.com/BaSui01/catalogfed/testutil"
	"github.com/BaSui01/catalogfed/types"
)

type upstreamCall struct {
	Body      httpSearchRequest
	RequestID string
	TraceID   string
}

// recordingRecorder captures upstream metrics.
type recordingRecorder struct {
	mu        sync.Mutex
	statuses  []int
	queries   []string
	conns     int
	cacheHits []bool
}

func (r *recordingRecorder) RecordUpstreamRequest(_ string, status int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func (r *recordingRecorder) RecordDBQuery(_ string, op string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, op)
}

func (r *recordingRecorder) RecordDBConnections(string, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns++
}

func (r *recordingRecorder) RecordCacheLookup(_ string, hit bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cacheHits = append(r.cacheHits, hit)
}

// newCatalogServer serves the search protocol and returns a snapshot func of
// the calls it received.
func newCatalogServer(t *testing.T, handler func(w http.ResponseWriter, call upstreamCall)) (*httptest.Server, func() []upstreamCall) {
	t.Helper()
	var mu sync.Mutex
	var calls []upstreamCall
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body httpSearchRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		call := upstreamCall{
			Body:      body,
			RequestID: r.Header.Get("X-Request-ID"),
			TraceID:   r.Header.Get("X-Trace-ID"),
		}
		mu.Lock()
		calls = append(calls, call)
		mu.Unlock()
		handler(w, call)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []upstreamCall {
		mu.Lock()
		defer mu.Unlock()
		return append([]upstreamCall(nil), calls...)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func fastHTTPConfig(url string) HTTPConfig {
	cfg := DefaultHTTPConfig("remote", url)
	cfg.Timeout = 5 * time.Second
	cfg.RetryDelay = time.Millisecond
	return cfg
}

func TestHTTPSource_Query(t *testing.T) {
	records := catalogRecords()
	srv, calls := newCatalogServer(t, func(w http.ResponseWriter, call upstreamCall) {
		writeJSON(w, map[string]any{
			"hits":    42,
			"records": records[:2],
		})
	})
	rec := &recordingRecorder{}
	src := NewHTTPSource(fastHTTPConfig(srv.URL), zap.NewNop(), WithHTTPMetrics(rec))
	assert.Equal(t, "remote", src.ID())

	req := queryRequest("harbour", 3, 2)
	req.Query.RequestsTotalHits = true
	req.SetProperty(types.PropertyRequestID, "req-1")

	ctx := ctxkeys.WithTraceID(testutil.TestContext(t), "trace-1")
	resp, err := src.Query(ctx, req)
	require.NoError(t, err)

	testutil.AssertResultIDs(t, []string{"c-1", "c-2"}, resp.Results)
	assert.Equal(t, int64(42), resp.Hits)
	assert.Empty(t, resp.ProcessingDetails)
	assert.Equal(t, "remote", resp.Results[0].SourceID)
	effective, ok := resp.Results[1].Time(types.AttributeEffective)
	require.True(t, ok)
	assert.True(t, effective.Equal(records[1].Effective))

	require.Len(t, calls(), 1)
	call := calls()[0]
	assert.Equal(t, "req-1", call.RequestID)
	assert.Equal(t, "trace-1", call.TraceID)
	assert.Equal(t, httpSearchRequest{
		Query:      "harbour",
		StartIndex: 3,
		PageSize:   2,
		Sort:       req.Query.Sort,
		TotalHits:  true,
	}, call.Body)
	assert.Equal(t, []int{http.StatusOK}, rec.statuses)
}

func TestHTTPSource_HitsAndWarnings(t *testing.T) {
	tests := []struct {
		name     string
		answer   map[string]any
		wantHits int64
		wantWarn []string
	}{
		{"missing hits", map[string]any{"records": []Record{}}, types.UnknownHits, nil},
		{"negative hits", map[string]any{"hits": -3}, types.UnknownHits, nil},
		{"zero hits", map[string]any{"hits": 0}, 0, nil},
		{"warnings", map[string]any{"hits": 1, "warnings": []string{"index rebuilding"}}, 1, []string{"index rebuilding"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newCatalogServer(t, func(w http.ResponseWriter, _ upstreamCall) {
				writeJSON(w, tt.answer)
			})
			src := NewHTTPSource(fastHTTPConfig(srv.URL), nil)

			resp, err := src.Query(testutil.TestContext(t), queryRequest(nil, 1, 10))
			require.NoError(t, err)
			assert.Equal(t, tt.wantHits, resp.Hits)
			if tt.wantWarn == nil {
				assert.Empty(t, resp.ProcessingDetails)
				return
			}
			require.Len(t, resp.ProcessingDetails, 1)
			detail := resp.ProcessingDetails[0]
			assert.Equal(t, "remote", detail.SourceID)
			assert.False(t, detail.HasError())
			assert.Equal(t, tt.wantWarn, detail.Warnings)
		})
	}
}

func TestHTTPSource_Retries(t *testing.T) {
	tests := []struct {
		name      string
		statuses  []int
		wantCalls int
		wantErr   bool
	}{
		{"recovers after 503", []int{http.StatusServiceUnavailable, http.StatusOK}, 2, false},
		{"recovers after 429", []int{http.StatusTooManyRequests, http.StatusOK}, 2, false},
		{"gives up after retries", []int{500, 502, 503}, 3, true},
		{"bad request is final", []int{http.StatusBadRequest, http.StatusOK}, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var n atomic.Int32
			srv, calls := newCatalogServer(t, func(w http.ResponseWriter, _ upstreamCall) {
				i := int(n.Add(1)) - 1
				status := tt.statuses[min(i, len(tt.statuses)-1)]
				if status != http.StatusOK {
					w.WriteHeader(status)
					return
				}
				writeJSON(w, map[string]any{"hits": 0})
			})
			src := NewHTTPSource(fastHTTPConfig(srv.URL), nil)

			_, err := src.Query(testutil.TestContext(t), queryRequest(nil, 1, 10))
			assert.Len(t, calls(), tt.wantCalls)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, types.IsErrorCode(err, types.ErrUpstreamError))
		})
	}
}

func TestHTTPSource_MalformedAnswer(t *testing.T) {
	srv, _ := newCatalogServer(t, func(w http.ResponseWriter, _ upstreamCall) {
		_, _ = w.Write([]byte("{not json"))
	})
	src := NewHTTPSource(fastHTTPConfig(srv.URL), nil)

	_, err := src.Query(testutil.TestContext(t), queryRequest(nil, 1, 10))
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrUpstreamError))
	assert.False(t, types.IsRetryable(err))
}

func TestHTTPSource_RateLimitWaitAborted(t *testing.T) {
	srv, calls := newCatalogServer(t, func(w http.ResponseWriter, _ upstreamCall) {
		writeJSON(w, map[string]any{"hits": 0})
	})
	cfg := fastHTTPConfig(srv.URL)
	cfg.RateLimit = 0.01
	cfg.Burst = 1
	src := NewHTTPSource(cfg, nil)

	_, err := src.Query(testutil.TestContext(t), queryRequest(nil, 1, 10))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = src.Query(ctx, queryRequest(nil, 1, 10))
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrRateLimited))
	assert.Len(t, calls(), 1)
}

func TestHTTPSource_CancelledContext(t *testing.T) {
	srv, calls := newCatalogServer(t, func(w http.ResponseWriter, _ upstreamCall) {
		writeJSON(w, map[string]any{"hits": 0})
	})
	src := NewHTTPSource(fastHTTPConfig(srv.URL), nil)

	_, err := src.Query(testutil.CancelledContext(), queryRequest(nil, 1, 10))
	require.Error(t, err)
	assert.Empty(t, calls())
}
