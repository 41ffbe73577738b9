package plugins

import (
	"context"

	"github.com/BaSui01/catalogfed/federation"
	"github.com/BaSui01/catalogfed/types"
)

var _ federation.PreQueryPlugin = (*SourceDenyListPlugin)(nil)

// SourceDenyListPlugin vetoes the sources it names.
type SourceDenyListPlugin struct {
	denied map[string]struct{}
}

// NewSourceDenyListPlugin creates a plugin denying ids. Empty ids are ignored.
func NewSourceDenyListPlugin(ids ...string) *SourceDenyListPlugin {
	denied := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			denied[id] = struct{}{}
		}
	}
	return &SourceDenyListPlugin{denied: denied}
}

// Name implements federation.PreQueryPlugin.
func (p *SourceDenyListPlugin) Name() string { return "source_deny_list" }

// Denies reports whether id is on the list.
func (p *SourceDenyListPlugin) Denies(id string) bool {
	_, ok := p.denied[id]
	return ok
}

// Process implements federation.PreQueryPlugin.
func (p *SourceDenyListPlugin) Process(_ context.Context, source types.Source, req *types.QueryRequest) federation.PreQueryOutcome {
	if p.Denies(source.ID()) {
		return federation.Skip()
	}
	return federation.Continue(req)
}
