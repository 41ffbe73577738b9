package federation

import (
	"context"
	"maps"
	"slices"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/catalogfed/internal/pool"
	"github.com/BaSui01/catalogfed/types"
)

var mergeBuffers = pool.NewSlicePool[types.Result](64)

// SourceCompletion is what a source task hands to the monitor when it ends.
type SourceCompletion struct {
	SourceID string
	Response *types.SourceResponse
	Err      error
	Elapsed  time.Duration
}

// MonitorInput carries everything one merge run needs.
type MonitorInput struct {
	// Completions delivers one value per dispatched source, in completion order.
	Completions <-chan SourceCompletion
	// Pending lists the ids of the dispatched sources.
	Pending []string
	// DispatchedAt is when the first task was submitted.
	DispatchedAt time.Time
	// Deadline ends the merge early. The zero value means no deadline.
	Deadline time.Time
	// Comparator orders the merged stream.
	Comparator Comparator
	// PageSize bounds the merged stream. Non-positive means unbounded.
	PageSize int
	Details  *DetailsCollector
	// Output receives the merged results. The monitor closes it on return.
	Output ResultSink
}

// MergeSummary describes a finished merge.
type MergeSummary struct {
	// Hits is the sum of the hits reported by the sources, or
	// types.UnknownHits when none reported any.
	Hits int64
	// Properties merges the property bags of the successful sources.
	Properties map[string]any
	Completed  int
	TimedOut   []string
	// Truncated is set when the page size bound dropped merged results.
	Truncated bool
	Emitted   int
}

// Monitor merges the completions of one federation run.
type Monitor interface {
	Run(ctx context.Context, in MonitorInput) (*MergeSummary, error)
}

// MonitorFactory creates the monitor for a request.
type MonitorFactory func(req *types.QueryRequest) (Monitor, error)

// DefaultMonitorFactory returns a factory producing SortedMonitor values.
func DefaultMonitorFactory(logger *zap.Logger) MonitorFactory {
	return func(*types.QueryRequest) (Monitor, error) {
		return NewSortedMonitor(logger), nil
	}
}

// SortedMonitor keeps a sorted window of at most PageSize results. Each result
// is inserted after every result it compares equal to, so ties keep
// completion order. It drains every completion until all sources finish or
// the deadline passes, then writes the window to the output.
type SortedMonitor struct {
	logger *zap.Logger
}

// NewSortedMonitor creates a SortedMonitor.
func NewSortedMonitor(logger *zap.Logger) *SortedMonitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SortedMonitor{logger: logger.With(zap.String("component", "sorted_monitor"))}
}

// Run implements Monitor.
func (m *SortedMonitor) Run(ctx context.Context, in MonitorInput) (*MergeSummary, error) {
	defer in.Output.Close()

	comparator := in.Comparator
	if comparator == nil {
		comparator = ComparatorFor(types.SortBy{})
	}
	details := in.Details
	if details == nil {
		details = NewDetailsCollector(nil)
	}

	summary := &MergeSummary{
		Hits:       types.UnknownHits,
		Properties: make(map[string]any),
	}

	pending := make(map[string]int, len(in.Pending))
	for _, id := range in.Pending {
		pending[id]++
	}
	remaining := len(in.Pending)

	var deadline <-chan time.Time
	if !in.Deadline.IsZero() {
		timer := time.NewTimer(time.Until(in.Deadline))
		defer timer.Stop()
		deadline = timer.C
	}

	merged := mergeBuffers.Get()
	defer func() { mergeBuffers.Put(merged) }()

drain:
	for remaining > 0 {
		select {
		case c := <-in.Completions:
			remaining--
			pending[c.SourceID]--
			summary.Completed++
			merged = m.accept(c, merged, comparator, in.PageSize, details, summary)
		case <-deadline:
			m.expire(pending, in.DispatchedAt, details, summary, func(id string) error {
				return types.NewTimeoutError(id)
			})
			break drain
		case <-ctx.Done():
			m.expire(pending, in.DispatchedAt, details, summary, func(id string) error {
				return types.NewError(types.ErrTimeout, "query cancelled").
					WithCause(ctx.Err()).
					WithSource(id)
			})
			break drain
		}
	}

	for _, r := range merged {
		if err := in.Output.Put(ctx, r); err != nil {
			m.logger.Debug("merged output abandoned", zap.Error(err))
			break
		}
		summary.Emitted++
	}

	return summary, nil
}

func (m *SortedMonitor) accept(c SourceCompletion, merged []types.Result, cmp Comparator, pageSize int,
	details *DetailsCollector, summary *MergeSummary) []types.Result {

	if c.Err != nil {
		details.RecordOutcome(c.SourceID, StatusFailed, c.Elapsed)
		details.AddSourceFailure(c.SourceID, c.Err)
		m.logger.Warn("source query failed",
			zap.String("source_id", c.SourceID),
			zap.Duration("elapsed", c.Elapsed),
			zap.Error(c.Err))
		return merged
	}
	if c.Response == nil {
		details.RecordOutcome(c.SourceID, StatusFailed, c.Elapsed)
		details.AddSourceFailure(c.SourceID,
			types.NewError(types.ErrSourceNilResponse, "source returned no response").WithSource(c.SourceID))
		return merged
	}

	resp := c.Response
	details.RecordOutcome(c.SourceID, StatusSuccess, c.Elapsed)
	details.AddSourceDetails(c.SourceID, resp.ProcessingDetails)

	if resp.Hits >= 0 {
		if summary.Hits == types.UnknownHits {
			summary.Hits = 0
		}
		summary.Hits += resp.Hits
		details.RecordHits(c.SourceID, resp.Hits)
	}
	maps.Copy(summary.Properties, resp.Properties)

	for _, r := range resp.Results {
		if r.SourceID == "" {
			r.SourceID = c.SourceID
		}
		var dropped bool
		merged, dropped = insertBounded(merged, r, cmp, pageSize)
		if dropped {
			summary.Truncated = true
		}
	}
	return merged
}

func (m *SortedMonitor) expire(pending map[string]int, dispatchedAt time.Time, details *DetailsCollector,
	summary *MergeSummary, cause func(id string) error) {

	elapsed := time.Since(dispatchedAt)
	for id, n := range pending {
		if n <= 0 {
			continue
		}
		details.RecordOutcome(id, StatusTimeout, elapsed)
		details.AddSourceFailure(id, cause(id))
		summary.TimedOut = append(summary.TimedOut, id)
	}
	slices.Sort(summary.TimedOut)
	m.logger.Warn("federation deadline reached",
		zap.Strings("pending_sources", summary.TimedOut),
		zap.Duration("elapsed", elapsed))
}

// insertBounded inserts r after every element that does not sort after it and
// trims the slice to pageSize. It reports whether a result was dropped.
func insertBounded(merged []types.Result, r types.Result, cmp Comparator, pageSize int) ([]types.Result, bool) {
	idx := sort.Search(len(merged), func(i int) bool {
		return cmp.Compare(r, merged[i]) < 0
	})
	if pageSize > 0 && idx >= pageSize {
		return merged, true
	}
	merged = slices.Insert(merged, idx, r)
	if pageSize > 0 && len(merged) > pageSize {
		return merged[:pageSize], true
	}
	return merged, false
}
