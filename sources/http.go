package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/catalogfed/internal/ctxkeys"
	"github.com/BaSui01/catalogfed/internal/pool"
	"github.com/BaSui01/catalogfed/internal/tlsutil"
	"github.com/BaSui01/catalogfed/types"
)

// maxResponseBytes caps how much of a backend answer is read.
const maxResponseBytes = 16 << 20

// HTTPConfig configures an HTTPSource.
type HTTPConfig struct {
	ID  string
	URL string
	// Timeout bounds a single attempt. Zero leaves it to the query context.
	Timeout time.Duration
	// RateLimit is requests per second; zero disables limiting.
	RateLimit  float64
	Burst      int
	RetryCount int
	RetryDelay time.Duration
}

// DefaultHTTPConfig returns conservative defaults for a catalog endpoint.
func DefaultHTTPConfig(id, url string) HTTPConfig {
	return HTTPConfig{
		ID:         id,
		URL:        url,
		Timeout:    30 * time.Second,
		RetryCount: 2,
		RetryDelay: 200 * time.Millisecond,
	}
}

// httpSearchRequest is the JSON body posted to a catalog endpoint.
type httpSearchRequest struct {
	Query      string       `json:"q,omitempty"`
	StartIndex int          `json:"start_index"`
	PageSize   int          `json:"page_size,omitempty"`
	Sort       types.SortBy `json:"sort"`
	TotalHits  bool         `json:"total_hits"`
}

// httpSearchResponse is the JSON answer of a catalog endpoint. A negative or
// missing hit count is reported as unknown.
type httpSearchResponse struct {
	Hits     *int64   `json:"hits"`
	Records  []Record `json:"records"`
	Warnings []string `json:"warnings,omitempty"`
}

// HTTPSource queries a remote catalog speaking a small JSON search protocol.
// Requests are rate limited per source and retried on transport errors, 429
// and 5xx answers.
type HTTPSource struct {
	config  HTTPConfig
	client  *http.Client
	limiter *rate.Limiter
	metrics MetricsRecorder
	logger  *zap.Logger
}

// HTTPOption configures an HTTPSource.
type HTTPOption func(*HTTPSource)

// WithHTTPClient replaces the hardened default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPSource) {
		if c != nil {
			s.client = c
		}
	}
}

// WithHTTPMetrics records upstream requests.
func WithHTTPMetrics(m MetricsRecorder) HTTPOption {
	return func(s *HTTPSource) {
		s.metrics = recorderOrNop(m)
	}
}

// NewHTTPSource creates an HTTP catalog source.
func NewHTTPSource(config HTTPConfig, logger *zap.Logger, opts ...HTTPOption) *HTTPSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &HTTPSource{
		config:  config,
		client:  tlsutil.SecureHTTPClient(config.Timeout),
		limiter: rate.NewLimiter(rate.Inf, 0),
		metrics: nopRecorder{},
		logger:  logger.With(zap.String("component", "http_source"), zap.String("source", config.ID)),
	}
	if config.RateLimit > 0 {
		burst := config.Burst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID implements types.Source.
func (s *HTTPSource) ID() string { return s.config.ID }

// Query implements types.Source.
func (s *HTTPSource) Query(ctx context.Context, req *types.QueryRequest) (*types.SourceResponse, error) {
	body := httpSearchRequest{
		Query:      FilterText(req.Query),
		StartIndex: req.Query.NormalizedStartIndex(),
		Sort:       req.Query.Sort,
		TotalHits:  req.Query.RequestsTotalHits,
	}
	if req.Query.Bounded() {
		body.PageSize = req.Query.PageSize
	}

	requestID, _ := req.Property(types.PropertyRequestID)
	dispatchID, _ := req.Property(types.PropertyDispatchID)
	ids := correlation{}
	ids.request, _ = requestID.(string)
	ids.dispatch, _ = dispatchID.(string)

	var answer *httpSearchResponse
	var err error
	for attempt := 0; attempt <= s.config.RetryCount; attempt++ {
		if attempt > 0 {
			delay := s.config.RetryDelay << (attempt - 1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			s.logger.Debug("retrying catalog request", zap.Int("attempt", attempt))
		}

		if werr := s.limiter.Wait(ctx); werr != nil {
			return nil, types.NewError(types.ErrRateLimited, "rate limit wait aborted").
				WithSource(s.config.ID).WithCause(werr)
		}

		answer, err = s.do(ctx, body, ids)
		if err == nil || !types.IsRetryable(err) || ctx.Err() != nil {
			break
		}
		s.logger.Warn("catalog request failed", zap.Int("attempt", attempt), zap.Error(err))
	}
	if err != nil {
		return nil, err
	}

	results := make([]types.Result, 0, len(answer.Records))
	for _, r := range answer.Records {
		results = append(results, r.Result(s.config.ID))
	}
	resp := types.NewSourceResponse(results)
	resp.Hits = types.UnknownHits
	if answer.Hits != nil && *answer.Hits >= 0 {
		resp.Hits = *answer.Hits
	}
	if len(answer.Warnings) > 0 {
		resp.ProcessingDetails = append(resp.ProcessingDetails,
			types.NewProcessingDetail(s.config.ID, nil, answer.Warnings))
	}
	return resp, nil
}

// correlation carries the ids forwarded as request headers.
type correlation struct {
	request  string
	dispatch string
}

func (s *HTTPSource) do(ctx context.Context, body httpSearchRequest, ids correlation) (*httpSearchResponse, error) {
	// The transport may read the body after Do returns, so the pooled
	// buffer only serves as encoding scratch space.
	buf := pool.ByteBufferPool.Get()
	err := json.NewEncoder(buf).Encode(body)
	payload := bytes.Clone(buf.Bytes())
	pool.ByteBufferPool.Put(buf)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "encode search request").WithSource(s.config.ID).WithCause(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "build search request").WithSource(s.config.ID).WithCause(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if ids.request != "" {
		httpReq.Header.Set("X-Request-ID", ids.request)
	}
	if ids.dispatch != "" {
		httpReq.Header.Set("X-Dispatch-ID", ids.dispatch)
	}
	if traceID, ok := ctxkeys.TraceID(ctx); ok {
		httpReq.Header.Set("X-Trace-ID", traceID)
	}

	start := time.Now()
	resp, err := s.client.Do(httpReq)
	if err != nil {
		s.metrics.RecordUpstreamRequest(s.config.ID, 0, time.Since(start))
		return nil, types.NewError(types.ErrUpstreamError, "catalog request failed").
			WithSource(s.config.ID).WithCause(err).WithRetryable(!errors.Is(err, context.Canceled))
	}
	defer resp.Body.Close()
	s.metrics.RecordUpstreamRequest(s.config.ID, resp.StatusCode, time.Since(start))

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, types.NewError(types.ErrUpstreamError, fmt.Sprintf("catalog returned status %d", resp.StatusCode)).
			WithSource(s.config.ID).WithRetryable(retryable)
	}

	var answer httpSearchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&answer); err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "decode catalog response").WithSource(s.config.ID).WithCause(err)
	}
	return &answer, nil
}
