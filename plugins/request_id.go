package plugins

import (
	"context"

	"github.com/google/uuid"

	"github.com/BaSui01/catalogfed/federation"
	"github.com/BaSui01/catalogfed/internal/ctxkeys"
	"github.com/BaSui01/catalogfed/types"
)

var _ federation.PreQueryPlugin = (*RequestIDPlugin)(nil)

// RequestIDPlugin makes sure every source request carries the federation
// request id and gives it a fresh dispatch id.
type RequestIDPlugin struct {
	newID func() string
}

// NewRequestIDPlugin creates the plugin with uuid v4 ids.
func NewRequestIDPlugin() *RequestIDPlugin {
	return &RequestIDPlugin{newID: uuid.NewString}
}

// Name implements federation.PreQueryPlugin.
func (p *RequestIDPlugin) Name() string { return "request_id" }

// Process implements federation.PreQueryPlugin. A request id already in the
// properties wins over the one in ctx; with neither, a new one is minted.
func (p *RequestIDPlugin) Process(ctx context.Context, _ types.Source, req *types.QueryRequest) federation.PreQueryOutcome {
	if v, _ := req.Property(types.PropertyRequestID); v == nil || v == "" {
		id, ok := ctxkeys.RequestID(ctx)
		if !ok {
			id = p.newID()
		}
		req.SetProperty(types.PropertyRequestID, id)
	}
	req.SetProperty(types.PropertyDispatchID, p.newID())
	return federation.Continue(req)
}
