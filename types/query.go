package types

import (
	"maps"
	"slices"
	"time"
)

// SortDirection is the ordering direction of a sort attribute.
type SortDirection string

const (
	SortAscending  SortDirection = "asc"
	SortDescending SortDirection = "desc"
)

// Well known sort attributes.
const (
	AttributeEffective = "effective"
	AttributeCreated   = "created"
	AttributeModified  = "modified"
	AttributeRelevance = "relevance"
)

// SortBy names the attribute results are ordered by.
type SortBy struct {
	Attribute string        `json:"attribute" yaml:"attribute"`
	Direction SortDirection `json:"direction" yaml:"direction"`
}

// Descending reports whether the sort runs from largest to smallest.
// An empty direction is treated as descending.
func (s SortBy) Descending() bool {
	return s.Direction != SortAscending
}

// Query is the engine's view of a catalog query. The filter is opaque: only
// sources interpret it.
type Query struct {
	Filter            any    `json:"filter,omitempty"`
	StartIndex        int    `json:"start_index"`
	PageSize          int    `json:"page_size"`
	Sort              SortBy `json:"sort"`
	TimeoutMillis     int64  `json:"timeout_millis"`
	RequestsTotalHits bool   `json:"requests_total_hits"`
}

// NormalizedStartIndex returns the 1-based start index, treating anything
// below 1 as the first result.
func (q Query) NormalizedStartIndex() int {
	if q.StartIndex < 1 {
		return 1
	}
	return q.StartIndex
}

// Bounded reports whether the query asks for a limited page.
func (q Query) Bounded() bool {
	return q.PageSize > 0
}

// Timeout returns the query time budget, zero meaning unbounded.
func (q Query) Timeout() time.Duration {
	if q.TimeoutMillis <= 0 {
		return 0
	}
	return time.Duration(q.TimeoutMillis) * time.Millisecond
}

// WithPaging returns a copy of the query with a different window.
func (q Query) WithPaging(startIndex, pageSize int) Query {
	q.StartIndex = startIndex
	q.PageSize = pageSize
	return q
}

// QueryRequest wraps a query with its target sources and a property bag.
type QueryRequest struct {
	Query Query `json:"query"`

	// SourceIDs restricts the federation to these sources. Empty means all.
	SourceIDs []string `json:"source_ids,omitempty"`

	// Properties carries contextual data to sources and plugins.
	Properties map[string]any `json:"properties,omitempty"`
}

// NewQueryRequest creates a request for all sources with an empty property bag.
func NewQueryRequest(q Query) *QueryRequest {
	return &QueryRequest{
		Query:      q,
		Properties: make(map[string]any),
	}
}

// Clone returns a copy whose slices and property bag can be changed without
// affecting the receiver. Property values themselves are shared.
func (r *QueryRequest) Clone() *QueryRequest {
	if r == nil {
		return nil
	}
	c := &QueryRequest{
		Query:      r.Query,
		SourceIDs:  slices.Clone(r.SourceIDs),
		Properties: maps.Clone(r.Properties),
	}
	if c.Properties == nil {
		c.Properties = make(map[string]any)
	}
	return c
}

// WithQuery returns a clone carrying a different query.
func (r *QueryRequest) WithQuery(q Query) *QueryRequest {
	c := r.Clone()
	c.Query = q
	return c
}

// Property returns a value from the property bag.
func (r *QueryRequest) Property(key string) (any, bool) {
	if r == nil || r.Properties == nil {
		return nil, false
	}
	v, ok := r.Properties[key]
	return v, ok
}

// SetProperty stores a value in the property bag, creating it if needed.
func (r *QueryRequest) SetProperty(key string, value any) {
	if r.Properties == nil {
		r.Properties = make(map[string]any)
	}
	r.Properties[key] = value
}

// TargetsSource reports whether the request includes the given source id.
func (r *QueryRequest) TargetsSource(id string) bool {
	if len(r.SourceIDs) == 0 {
		return true
	}
	return slices.Contains(r.SourceIDs, id)
}
