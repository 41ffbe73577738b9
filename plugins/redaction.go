package plugins

import (
	"context"
	"maps"

	"github.com/BaSui01/catalogfed/federation"
	"github.com/BaSui01/catalogfed/types"
)

var _ federation.PostQueryPlugin = (*AttributeRedactionPlugin)(nil)

// AttributeRedactionPlugin removes attributes from every merged result. The
// response it receives is left untouched.
type AttributeRedactionPlugin struct {
	attributes []string
}

// NewAttributeRedactionPlugin creates a plugin stripping attributes.
func NewAttributeRedactionPlugin(attributes ...string) *AttributeRedactionPlugin {
	return &AttributeRedactionPlugin{attributes: attributes}
}

// Name implements federation.PostQueryPlugin.
func (p *AttributeRedactionPlugin) Name() string { return "attribute_redaction" }

// Process implements federation.PostQueryPlugin.
func (p *AttributeRedactionPlugin) Process(_ context.Context, resp *types.QueryResponse) (*types.QueryResponse, error) {
	if len(p.attributes) == 0 {
		return resp, nil
	}
	out := resp.Clone()
	for i, r := range out.Results {
		if !p.touches(r) {
			continue
		}
		attrs := maps.Clone(r.Attributes)
		for _, a := range p.attributes {
			delete(attrs, a)
		}
		out.Results[i].Attributes = attrs
	}
	return out, nil
}

func (p *AttributeRedactionPlugin) touches(r types.Result) bool {
	for _, a := range p.attributes {
		if _, ok := r.Attributes[a]; ok {
			return true
		}
	}
	return false
}
