package types

import (
	"encoding/json"
	"reflect"
	"slices"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// UnknownSourceID is recorded when a problem cannot be tied to a source.
const UnknownSourceID = "unknown"

// ProcessingDetail records a per-source problem that did not abort the query.
//
// Equality is structural over SourceID, Cause and Warnings. Causes compare by
// dynamic type and message, so two distinct error values of the same type
// with the same text are the same cause. A nil Warnings slice is distinct
// from an empty one.
type ProcessingDetail struct {
	SourceID string
	Cause    error
	Warnings []string
}

// NewProcessingDetail builds a detail. The warnings slice is kept as given,
// including nil.
func NewProcessingDetail(sourceID string, cause error, warnings []string) ProcessingDetail {
	return ProcessingDetail{SourceID: sourceID, Cause: cause, Warnings: warnings}
}

// HasError reports whether the detail carries a cause.
func (d ProcessingDetail) HasError() bool { return d.Cause != nil }

// HasWarnings reports whether the detail carries at least one warning.
func (d ProcessingDetail) HasWarnings() bool { return len(d.Warnings) > 0 }

// Equal reports structural equality.
func (d ProcessingDetail) Equal(other ProcessingDetail) bool {
	return d.SourceID == other.SourceID &&
		causesEqual(d.Cause, other.Cause) &&
		warningsEqual(d.Warnings, other.Warnings)
}

// Hash returns a hash consistent with Equal.
func (d ProcessingDetail) Hash() uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(d.SourceID)
	_, _ = h.Write([]byte{0})
	if d.Cause == nil {
		_, _ = h.Write([]byte{0xff})
	} else {
		_, _ = h.WriteString(reflect.TypeOf(d.Cause).String())
		_, _ = h.Write([]byte{0})
		_, _ = h.WriteString(d.Cause.Error())
	}
	_, _ = h.Write([]byte{0})
	if d.Warnings == nil {
		_, _ = h.Write([]byte{0xfe})
	} else {
		_, _ = h.WriteString(strconv.Itoa(len(d.Warnings)))
		for _, w := range d.Warnings {
			_, _ = h.Write([]byte{0})
			_, _ = h.WriteString(w)
		}
	}
	return h.Sum64()
}

// MarshalJSON renders the cause as its message.
func (d ProcessingDetail) MarshalJSON() ([]byte, error) {
	out := struct {
		SourceID string   `json:"source_id,omitempty"`
		Cause    string   `json:"cause,omitempty"`
		Code     string   `json:"code,omitempty"`
		Warnings []string `json:"warnings,omitempty"`
	}{
		SourceID: d.SourceID,
		Code:     string(GetErrorCode(d.Cause)),
		Warnings: d.Warnings,
	}
	if d.Cause != nil {
		out.Cause = d.Cause.Error()
	}
	return json.Marshal(out)
}

func causesEqual(a, b error) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	// Interface comparison panics on uncomparable dynamic types.
	if ta.Comparable() && a == b {
		return true
	}
	return a.Error() == b.Error()
}

func warningsEqual(a, b []string) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return slices.Equal(a, b)
}

// ProcessingDetailSet is an insertion-ordered set of details deduplicated by
// structural equality. It is safe for concurrent use.
type ProcessingDetailSet struct {
	mu      sync.RWMutex
	buckets map[uint64][]int
	items   []ProcessingDetail
}

// NewProcessingDetailSet creates a set holding the given details.
func NewProcessingDetailSet(details ...ProcessingDetail) *ProcessingDetailSet {
	s := &ProcessingDetailSet{buckets: make(map[uint64][]int)}
	for _, d := range details {
		s.Add(d)
	}
	return s
}

// Add inserts the detail unless an equal one is present. It reports whether
// the set changed.
func (s *ProcessingDetailSet) Add(d ProcessingDetail) bool {
	h := d.Hash()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.buckets == nil {
		s.buckets = make(map[uint64][]int)
	}
	for _, idx := range s.buckets[h] {
		if s.items[idx].Equal(d) {
			return false
		}
	}
	s.buckets[h] = append(s.buckets[h], len(s.items))
	s.items = append(s.items, d)
	return true
}

// Clone returns an independent set with the same details.
func (s *ProcessingDetailSet) Clone() *ProcessingDetailSet {
	if s == nil {
		return NewProcessingDetailSet()
	}
	return NewProcessingDetailSet(s.List()...)
}

// Contains reports whether an equal detail is present.
func (s *ProcessingDetailSet) Contains(d ProcessingDetail) bool {
	if s == nil {
		return false
	}
	h := d.Hash()

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, idx := range s.buckets[h] {
		if s.items[idx].Equal(d) {
			return true
		}
	}
	return false
}

// Len returns the number of distinct details.
func (s *ProcessingDetailSet) Len() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// List returns the details in insertion order.
func (s *ProcessingDetailSet) List() []ProcessingDetail {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.items)
}

// BySource returns the details recorded for one source.
func (s *ProcessingDetailSet) BySource(sourceID string) []ProcessingDetail {
	var out []ProcessingDetail
	for _, d := range s.List() {
		if d.SourceID == sourceID {
			out = append(out, d)
		}
	}
	return out
}

// MarshalJSON renders the set as a list.
func (s *ProcessingDetailSet) MarshalJSON() ([]byte, error) {
	list := s.List()
	if list == nil {
		list = []ProcessingDetail{}
	}
	return json.Marshal(list)
}
