package federation

import (
	"cmp"
	"strings"

	"github.com/BaSui01/catalogfed/types"
)

// Comparator is a total order over results. Compare returns a negative value
// when a sorts before b.
type Comparator interface {
	Compare(a, b types.Result) int
}

// ComparatorFunc adapts a function to the Comparator interface.
type ComparatorFunc func(a, b types.Result) int

// Compare calls f.
func (f ComparatorFunc) Compare(a, b types.Result) int { return f(a, b) }

// ComparatorFactory picks the comparator for a request's sort.
type ComparatorFactory func(sort types.SortBy) Comparator

// TemporalComparator orders results by a time attribute. Results without the
// attribute, or with a value that is not a time, sort after every result that
// has it in both directions.
type TemporalComparator struct {
	Attribute  string
	Descending bool
}

// Compare implements Comparator.
func (c TemporalComparator) Compare(a, b types.Result) int {
	ta, okA := a.Time(c.Attribute)
	tb, okB := b.Time(c.Attribute)
	switch {
	case !okA && !okB:
		return 0
	case !okA:
		return 1
	case !okB:
		return -1
	}
	if c.Descending {
		return tb.Compare(ta)
	}
	return ta.Compare(tb)
}

// ScoreComparator orders results by the score their source assigned.
type ScoreComparator struct {
	Descending bool
}

// Compare implements Comparator.
func (c ScoreComparator) Compare(a, b types.Result) int {
	if c.Descending {
		return cmp.Compare(b.Score, a.Score)
	}
	return cmp.Compare(a.Score, b.Score)
}

// ComparatorFor is the default ComparatorFactory. Relevance sorts use the
// source score; every other attribute is compared as a time, with an empty
// attribute meaning the effective date.
func ComparatorFor(sort types.SortBy) Comparator {
	attr := strings.TrimSpace(sort.Attribute)
	switch strings.ToLower(attr) {
	case types.AttributeRelevance, "score":
		return ScoreComparator{Descending: sort.Descending()}
	case "":
		attr = types.AttributeEffective
	}
	return TemporalComparator{Attribute: attr, Descending: sort.Descending()}
}
