package types

import (
	"context"
	"time"
)

// UnknownHits marks a hit count a source could not or did not compute.
const UnknownHits int64 = -1

// Result is one catalog entry returned by a source. Attributes holds the values
// used for ordering; Record is the opaque payload the engine passes through.
type Result struct {
	ID         string         `json:"id"`
	SourceID   string         `json:"source_id"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Score      float64        `json:"score,omitempty"`
	Record     any            `json:"record,omitempty"`
}

// Time returns the attribute as a time.Time. Missing attributes and values of
// any other type report false.
func (r Result) Time(attribute string) (time.Time, bool) {
	if r.Attributes == nil {
		return time.Time{}, false
	}
	switch v := r.Attributes[attribute].(type) {
	case time.Time:
		return v, true
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return *v, true
	default:
		return time.Time{}, false
	}
}

// SourceResponse is what a single source returns for a query.
type SourceResponse struct {
	Results           []Result           `json:"results"`
	Hits              int64              `json:"hits"`
	Properties        map[string]any     `json:"properties,omitempty"`
	ProcessingDetails []ProcessingDetail `json:"-"`
}

// NewSourceResponse builds a response whose hit count is the number of results.
func NewSourceResponse(results []Result) *SourceResponse {
	return &SourceResponse{
		Results:    results,
		Hits:       int64(len(results)),
		Properties: make(map[string]any),
	}
}

// Source is an independent backend able to answer a query. Implementations
// must return results already ordered by the request's sort attribute.
type Source interface {
	// ID returns the stable source identifier.
	ID() string
	// Query runs the request against the backend.
	Query(ctx context.Context, req *QueryRequest) (*SourceResponse, error)
}
