package types

import "maps"

// Response property keys written by the federation engine.
const (
	// PropertySourceElapsedPrefix prefixes the per-source latency entry, in
	// milliseconds.
	PropertySourceElapsedPrefix = "metrics.source.elapsed."
	// PropertyHitsPerSource maps source id to the hits it reported.
	PropertyHitsPerSource = "hitsPerSource"
	// PropertyRequestID carries the id stamped on every federation run.
	PropertyRequestID = "federation.request.id"
	// PropertyDispatchID identifies one source request within a federation.
	PropertyDispatchID = "federation.dispatch.id"
	// PropertyStartIndexApplied is set when a start index beyond the maximum
	// was clamped; it holds the start index the page was taken from.
	PropertyStartIndexApplied = "federation.startIndex.applied"
)

// ElapsedPropertyKey returns the response property key holding a source's
// elapsed time.
func ElapsedPropertyKey(sourceID string) string {
	return PropertySourceElapsedPrefix + sourceID
}

// QueryResponse is the merged answer of a federated query.
type QueryResponse struct {
	// Request is the caller's original request.
	Request *QueryRequest `json:"request"`

	Results []Result `json:"results"`

	// Hits is the sum of per-source hit counts, or UnknownHits.
	Hits int64 `json:"hits"`

	HasMoreResults bool `json:"has_more_results"`

	ProcessingDetails *ProcessingDetailSet `json:"processing_details"`

	Properties map[string]any `json:"properties,omitempty"`
}

// NewQueryResponse creates an empty response for the request.
func NewQueryResponse(req *QueryRequest) *QueryResponse {
	return &QueryResponse{
		Request:           req,
		Results:           []Result{},
		ProcessingDetails: NewProcessingDetailSet(),
		Properties:        make(map[string]any),
	}
}

// Clone returns a copy with its own result slice, result attribute maps,
// property bag and processing details, so post-query plugins can transform a
// response without touching the input. Records are shared.
func (r *QueryResponse) Clone() *QueryResponse {
	if r == nil {
		return nil
	}
	c := *r
	c.Results = make([]Result, len(r.Results))
	for i, res := range r.Results {
		res.Attributes = maps.Clone(res.Attributes)
		c.Results[i] = res
	}
	c.Properties = maps.Clone(r.Properties)
	if c.Properties == nil {
		c.Properties = make(map[string]any)
	}
	c.ProcessingDetails = r.ProcessingDetails.Clone()
	return &c
}

// Elapsed returns the recorded latency of a source in milliseconds.
func (r *QueryResponse) Elapsed(sourceID string) (int64, bool) {
	v, ok := r.Properties[ElapsedPropertyKey(sourceID)].(int64)
	return v, ok
}
