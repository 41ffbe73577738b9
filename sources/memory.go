package sources

import (
	"context"
	"slices"

	"go.uber.org/zap"

	"github.com/BaSui01/catalogfed/federation"
	"github.com/BaSui01/catalogfed/types"
)

// MemorySource serves a fixed set of records. It filters, sorts and pages
// natively, which makes it the reference for how a source should behave.
type MemorySource struct {
	id      string
	records []Record
	logger  *zap.Logger
}

// NewMemorySource creates a source over a private copy of records.
func NewMemorySource(id string, records []Record, logger *zap.Logger) *MemorySource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemorySource{
		id:      id,
		records: slices.Clone(records),
		logger:  logger.With(zap.String("component", "memory_source"), zap.String("source", id)),
	}
}

// ID implements types.Source.
func (s *MemorySource) ID() string { return s.id }

// Len returns the number of records held.
func (s *MemorySource) Len() int { return len(s.records) }

// Query implements types.Source.
func (s *MemorySource) Query(ctx context.Context, req *types.QueryRequest) (*types.SourceResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text := FilterText(req.Query)
	matched := make([]types.Result, 0, len(s.records))
	for _, r := range s.records {
		if r.Matches(text) {
			matched = append(matched, r.Result(s.id))
		}
	}

	cmp := federation.ComparatorFor(req.Query.Sort)
	slices.SortStableFunc(matched, cmp.Compare)

	from, to := window(req.Query, len(matched))
	resp := types.NewSourceResponse(matched[from:to])
	resp.Hits = int64(len(matched))

	s.logger.Debug("memory query served",
		zap.String("filter", text),
		zap.Int("matched", len(matched)),
		zap.Int("returned", to-from))

	return resp, nil
}
