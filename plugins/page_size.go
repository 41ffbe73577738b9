package plugins

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/BaSui01/catalogfed/federation"
	"github.com/BaSui01/catalogfed/types"
)

var _ federation.PreQueryPlugin = (*PageSizeCapPlugin)(nil)

// PageSizeCapPlugin bounds the page size forwarded to a source. Unbounded
// requests are given the cap as their page size. A zero cap forwards
// requests unchanged.
//
// Under deep paging the engine asks each source for offset+pageSize-1
// results, so a cap below that window truncates the merged page. The cap can
// be moved with SetMax while queries run.
type PageSizeCapPlugin struct {
	max atomic.Int64
}

// NewPageSizeCapPlugin creates the plugin. max must not be negative.
func NewPageSizeCapPlugin(max int) (*PageSizeCapPlugin, error) {
	p := &PageSizeCapPlugin{}
	if err := p.SetMax(max); err != nil {
		return nil, err
	}
	return p, nil
}

// Name implements federation.PreQueryPlugin.
func (p *PageSizeCapPlugin) Name() string { return "page_size_cap" }

// Max returns the cap.
func (p *PageSizeCapPlugin) Max() int { return int(p.max.Load()) }

// SetMax replaces the cap. Zero lifts it.
func (p *PageSizeCapPlugin) SetMax(max int) error {
	if max < 0 {
		return types.NewError(types.ErrInvalidConfiguration, fmt.Sprintf("page size cap must not be negative, got %d", max))
	}
	p.max.Store(int64(max))
	return nil
}

// Process implements federation.PreQueryPlugin.
func (p *PageSizeCapPlugin) Process(_ context.Context, _ types.Source, req *types.QueryRequest) federation.PreQueryOutcome {
	limit := p.Max()
	q := req.Query
	if limit == 0 || (q.Bounded() && q.PageSize <= limit) {
		return federation.Continue(req)
	}
	q.PageSize = limit
	req.Query = q
	return federation.Continue(req)
}
