package sources

import (
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/catalogfed/types"
)

// AttributeTitle is the result attribute holding a record title.
const AttributeTitle = "title"

// Record is a catalog entry as stored by the bundled sources.
type Record struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Effective time.Time      `json:"effective"`
	Created   time.Time      `json:"created"`
	Modified  time.Time      `json:"modified"`
	Score     float64        `json:"score,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Result converts the record into an engine result. Zero times are left out
// of the attributes so they sort as missing.
func (r Record) Result(sourceID string) types.Result {
	attrs := map[string]any{AttributeTitle: r.Title}
	setTime(attrs, types.AttributeEffective, r.Effective)
	setTime(attrs, types.AttributeCreated, r.Created)
	setTime(attrs, types.AttributeModified, r.Modified)
	return types.Result{
		ID:         r.ID,
		SourceID:   sourceID,
		Attributes: attrs,
		Score:      r.Score,
		Record:     r,
	}
}

// Matches reports whether the record satisfies a text filter. An empty
// filter matches everything.
func (r Record) Matches(text string) bool {
	if text == "" {
		return true
	}
	text = strings.ToLower(text)
	return strings.Contains(strings.ToLower(r.Title), text) || strings.Contains(strings.ToLower(r.ID), text)
}

func setTime(attrs map[string]any, key string, t time.Time) {
	if !t.IsZero() {
		attrs[key] = t
	}
}

// FilterText extracts the free-text filter the bundled sources understand:
// a string or a fmt.Stringer. Anything else is treated as no filter.
func FilterText(q types.Query) string {
	switch f := q.Filter.(type) {
	case string:
		return strings.TrimSpace(f)
	case fmt.Stringer:
		return strings.TrimSpace(f.String())
	default:
		return ""
	}
}

// window returns the zero-based [from, to) slice bounds of a query page over
// n items.
func window(q types.Query, n int) (from, to int) {
	from = min(q.NormalizedStartIndex()-1, n)
	to = n
	if q.Bounded() {
		to = min(from+q.PageSize, n)
	}
	return from, to
}
