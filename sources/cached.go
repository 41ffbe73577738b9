package sources

import (
	"context"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/BaSui01/catalogfed/internal/cache"
	"github.com/BaSui01/catalogfed/types"
)

// ResponseCache stores encoded source responses. internal/cache.Manager
// implements it.
type ResponseCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// CachedSource answers repeated queries from a ResponseCache. Only complete
// answers, those without processing details, are stored. Cached results
// carry their record payload as raw JSON.
type CachedSource struct {
	source  types.Source
	cache   ResponseCache
	ttl     time.Duration
	logger  *zap.Logger
	metrics MetricsRecorder
}

// NewCachedSource wraps source. A nil recorder disables cache metrics.
func NewCachedSource(source types.Source, c ResponseCache, ttl time.Duration, logger *zap.Logger, metrics MetricsRecorder) *CachedSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedSource{
		source:  source,
		cache:   c,
		ttl:     ttl,
		logger:  logger.With(zap.String("source", source.ID()), zap.String("layer", "cache")),
		metrics: recorderOrNop(metrics),
	}
}

// ID returns the wrapped source id.
func (s *CachedSource) ID() string { return s.source.ID() }

// Unwrap returns the wrapped source.
func (s *CachedSource) Unwrap() types.Source { return s.source }

type cacheKeyInput struct {
	Query     types.Query `json:"query"`
	SourceIDs []string    `json:"source_ids,omitempty"`
}

type cachedResult struct {
	ID         string          `json:"id"`
	Attributes map[string]any  `json:"attributes,omitempty"`
	Score      float64         `json:"score,omitempty"`
	Record     json.RawMessage `json:"record,omitempty"`
}

type cachedResponse struct {
	Hits       int64          `json:"hits"`
	Results    []cachedResult `json:"results"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Query serves req from the cache when possible, otherwise from the wrapped
// source.
func (s *CachedSource) Query(ctx context.Context, req *types.QueryRequest) (*types.SourceResponse, error) {
	key, ok := s.key(req)
	if !ok {
		return s.source.Query(ctx, req)
	}

	if resp, hit := s.lookup(ctx, key); hit {
		s.metrics.RecordCacheLookup(s.ID(), true)
		return resp, nil
	}
	s.metrics.RecordCacheLookup(s.ID(), false)

	resp, err := s.source.Query(ctx, req)
	if err != nil || resp == nil || len(resp.ProcessingDetails) > 0 {
		return resp, err
	}
	s.store(ctx, key, resp)
	return resp, nil
}

// key hashes the query and target list. Filters that cannot be encoded
// bypass the cache.
func (s *CachedSource) key(req *types.QueryRequest) (string, bool) {
	if req == nil {
		return "", false
	}
	data, err := json.Marshal(cacheKeyInput{Query: req.Query, SourceIDs: req.SourceIDs})
	if err != nil {
		s.logger.Debug("query not cacheable", zap.Error(err))
		return "", false
	}
	return "response:" + s.ID() + ":" + strconv.FormatUint(xxhash.Sum64(data), 16), true
}

func (s *CachedSource) lookup(ctx context.Context, key string) (*types.SourceResponse, bool) {
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		if !cache.IsCacheMiss(err) {
			s.logger.Warn("cache read failed", zap.Error(err))
		}
		return nil, false
	}

	var entry cachedResponse
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		s.logger.Warn("discarding undecodable cache entry", zap.Error(err))
		return nil, false
	}

	results := make([]types.Result, 0, len(entry.Results))
	for _, r := range entry.Results {
		restoreTimes(r.Attributes)
		result := types.Result{
			ID:         r.ID,
			SourceID:   s.ID(),
			Attributes: r.Attributes,
			Score:      r.Score,
		}
		if len(r.Record) > 0 {
			result.Record = r.Record
		}
		results = append(results, result)
	}
	props := entry.Properties
	if props == nil {
		props = make(map[string]any)
	}
	return &types.SourceResponse{Results: results, Hits: entry.Hits, Properties: props}, true
}

func (s *CachedSource) store(ctx context.Context, key string, resp *types.SourceResponse) {
	entry := cachedResponse{
		Hits:       resp.Hits,
		Results:    make([]cachedResult, 0, len(resp.Results)),
		Properties: resp.Properties,
	}
	for _, r := range resp.Results {
		cr := cachedResult{ID: r.ID, Attributes: r.Attributes, Score: r.Score}
		if r.Record != nil {
			record, err := json.Marshal(r.Record)
			if err != nil {
				s.logger.Debug("response not cacheable", zap.String("result", r.ID), zap.Error(err))
				return
			}
			cr.Record = record
		}
		entry.Results = append(entry.Results, cr)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		s.logger.Debug("response not cacheable", zap.Error(err))
		return
	}
	if err := s.cache.Set(ctx, key, string(data), s.ttl); err != nil {
		s.logger.Warn("cache write failed", zap.Error(err))
	}
}

// restoreTimes turns the well known time attributes back into time.Time
// after a JSON round trip.
func restoreTimes(attrs map[string]any) {
	for _, k := range []string{types.AttributeEffective, types.AttributeCreated, types.AttributeModified} {
		v, ok := attrs[k].(string)
		if !ok {
			continue
		}
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			attrs[k] = t
		}
	}
}

// Close closes the wrapped source.
func (s *CachedSource) Close() error {
	if c, ok := s.source.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
