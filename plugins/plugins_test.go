package plugins

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/catalogfed/federation"
	"github.com/BaSui01/catalogfed/internal/ctxkeys"
	"github.com/BaSui01/catalogfed/testutil"
	"github.com/BaSui01/catalogfed/testutil/fixtures"
	"github.com/BaSui01/catalogfed/testutil/mocks"
	"github.com/BaSui01/catalogfed/types"
)

func TestRequestIDPlugin(t *testing.T) {
	n := 0
	p := NewRequestIDPlugin()
	p.newID = func() string {
		n++
		return "minted-" + string(rune('0'+n))
	}
	src := mocks.NewMockSource("s")

	tests := []struct {
		name          string
		ctx           context.Context
		existing      any
		wantRequestID string
	}{
		{"keeps existing", context.Background(), "given", "given"},
		{"takes context id", ctxkeys.WithRequestID(context.Background(), "from-ctx"), nil, "from-ctx"},
		{"mints when absent", context.Background(), nil, "minted-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n = 0
			req := fixtures.Request(1, 10)
			if tt.existing != nil {
				req.SetProperty(types.PropertyRequestID, tt.existing)
			}

			out := p.Process(tt.ctx, src, req)
			require.Equal(t, federation.OutcomeContinue, out.Kind())
			got, _ := out.Request().Property(types.PropertyRequestID)
			assert.Equal(t, tt.wantRequestID, got)
			dispatch, _ := out.Request().Property(types.PropertyDispatchID)
			assert.NotEmpty(t, dispatch)
			assert.NotEqual(t, got, dispatch)
		})
	}
}

func TestRequestIDPlugin_UniqueDispatchIDs(t *testing.T) {
	p := NewRequestIDPlugin()
	seen := make(map[any]struct{})
	for i := 0; i < 50; i++ {
		out := p.Process(context.Background(), mocks.NewMockSource("s"), fixtures.Request(1, 1))
		id, _ := out.Request().Property(types.PropertyDispatchID)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, 50)
}

func TestSourceDenyListPlugin(t *testing.T) {
	p := NewSourceDenyListPlugin("blocked", "")
	assert.True(t, p.Denies("blocked"))
	assert.False(t, p.Denies(""))

	out := p.Process(context.Background(), mocks.NewMockSource("blocked"), fixtures.Request(1, 1))
	assert.Equal(t, federation.OutcomeSkip, out.Kind())

	req := fixtures.Request(1, 1)
	out = p.Process(context.Background(), mocks.NewMockSource("open"), req)
	assert.Equal(t, federation.OutcomeContinue, out.Kind())
	assert.Same(t, req, out.Request())
}

func TestPageSizeCapPlugin(t *testing.T) {
	_, err := NewPageSizeCapPlugin(-1)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidConfiguration))

	p, err := NewPageSizeCapPlugin(100)
	require.NoError(t, err)
	assert.Equal(t, 100, p.Max())

	tests := []struct {
		name     string
		pageSize int
		want     int
	}{
		{"below cap", 10, 10},
		{"at cap", 100, 100},
		{"above cap", 5000, 100},
		{"unbounded", 0, 100},
		{"negative", -1, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := p.Process(context.Background(), mocks.NewMockSource("s"), fixtures.Request(3, tt.pageSize))
			require.Equal(t, federation.OutcomeContinue, out.Kind())
			assert.Equal(t, tt.want, out.Request().Query.PageSize)
			assert.Equal(t, 3, out.Request().Query.StartIndex)
		})
	}
}

func TestPageSizeCapPlugin_SetMax(t *testing.T) {
	p, err := NewPageSizeCapPlugin(10)
	require.NoError(t, err)
	src := mocks.NewMockSource("s")

	out := p.Process(context.Background(), src, fixtures.Request(1, 50))
	assert.Equal(t, 10, out.Request().Query.PageSize)

	require.NoError(t, p.SetMax(40))
	out = p.Process(context.Background(), src, fixtures.Request(1, 50))
	assert.Equal(t, 40, out.Request().Query.PageSize)

	require.NoError(t, p.SetMax(0))
	out = p.Process(context.Background(), src, fixtures.Request(1, 50))
	assert.Equal(t, 50, out.Request().Query.PageSize)
	out = p.Process(context.Background(), src, fixtures.Request(1, 0))
	assert.Equal(t, 0, out.Request().Query.PageSize)

	err = p.SetMax(-5)
	require.Error(t, err)
	assert.Equal(t, 0, p.Max())
}

func TestAttributeRedactionPlugin(t *testing.T) {
	resp := types.NewQueryResponse(fixtures.Request(1, 10))
	resp.Results = []types.Result{
		{ID: "a", Attributes: map[string]any{"title": "A", "owner": "alice"}},
		{ID: "b", Attributes: map[string]any{"title": "B"}},
		{ID: "c"},
	}

	out, err := NewAttributeRedactionPlugin("owner").Process(context.Background(), resp)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"title": "A"}, out.Results[0].Attributes)
	assert.Equal(t, map[string]any{"title": "B"}, out.Results[1].Attributes)
	assert.Nil(t, out.Results[2].Attributes)
	assert.Equal(t, "alice", resp.Results[0].Attributes["owner"], "input response is not modified")

	same, err := NewAttributeRedactionPlugin().Process(context.Background(), resp)
	require.NoError(t, err)
	assert.Same(t, resp, same)
}

func TestPlugins_ThroughOrchestrator(t *testing.T) {
	denied := mocks.NewMockSource("denied").WithResults(fixtures.ResultAt("d1", "denied", time.Hour))
	open := mocks.NewMockSource("open").WithResults(types.Result{
		ID:       "o1",
		SourceID: "open",
		Attributes: map[string]any{
			types.AttributeEffective: fixtures.BaseTime,
			"secret":                 "x",
		},
	})
	capPlugin, err := NewPageSizeCapPlugin(25)
	require.NoError(t, err)

	o, err := federation.NewOrchestrator(federation.GoExecutor,
		[]federation.PreQueryPlugin{NewRequestIDPlugin(), NewSourceDenyListPlugin("denied"), capPlugin},
		[]federation.PostQueryPlugin{NewAttributeRedactionPlugin("secret")},
		federation.WithLogger(zap.NewNop()))
	require.NoError(t, err)

	resp, err := o.Federate(testutil.TestContext(t), testutil.Sources(denied, open), fixtures.Request(1, 0))
	require.NoError(t, err)

	testutil.AssertResultIDs(t, []string{"o1"}, resp.Results)
	assert.NotContains(t, resp.Results[0].Attributes, "secret")
	assert.Zero(t, denied.CallCount())

	sent := open.LastRequest()
	require.NotNil(t, sent)
	assert.Equal(t, 25, sent.Query.PageSize)
	requestID, _ := sent.Property(types.PropertyRequestID)
	assert.Equal(t, resp.Properties[types.PropertyRequestID], requestID)
	_, ok := sent.Property(types.PropertyDispatchID)
	assert.True(t, ok)
}
