// Package fixtures builds catalog results and requests for tests.
package fixtures

import (
	"fmt"
	"time"

	"github.com/BaSui01/catalogfed/types"
)

// BaseTime is the reference instant used by the time based fixtures.
var BaseTime = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// ResultAt returns a result whose effective date is BaseTime plus offset.
func ResultAt(id, sourceID string, offset time.Duration) types.Result {
	return types.Result{
		ID:       id,
		SourceID: sourceID,
		Attributes: map[string]any{
			types.AttributeEffective: BaseTime.Add(offset),
		},
		Record: map[string]any{"title": "record " + id},
	}
}

// UndatedResult returns a result without an effective date.
func UndatedResult(id, sourceID string) types.Result {
	return types.Result{
		ID:         id,
		SourceID:   sourceID,
		Attributes: map[string]any{},
	}
}

// ScoredResult returns a result ranked by score.
func ScoredResult(id, sourceID string, score float64) types.Result {
	return types.Result{ID: id, SourceID: sourceID, Score: score}
}

// DescendingSeries returns n results from sourceID whose effective dates
// decrease by step, starting at BaseTime plus start. The ids are
// "<sourceID>-<i>".
func DescendingSeries(sourceID string, n int, start, step time.Duration) []types.Result {
	out := make([]types.Result, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, ResultAt(fmt.Sprintf("%s-%d", sourceID, i), sourceID, start-time.Duration(i)*step))
	}
	return out
}

// Request returns a request for the given page.
func Request(startIndex, pageSize int) *types.QueryRequest {
	return types.NewQueryRequest(types.Query{
		Filter:     "anyText LIKE '*'",
		StartIndex: startIndex,
		PageSize:   pageSize,
		Sort: types.SortBy{
			Attribute: types.AttributeEffective,
			Direction: types.SortDescending,
		},
		TimeoutMillis: 5000,
	})
}

// IDs returns the ids of results in order.
func IDs(results []types.Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}
