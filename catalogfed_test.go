package catalogfed

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/catalogfed/config"
	"github.com/BaSui01/catalogfed/federation"
	"github.com/BaSui01/catalogfed/testutil"
	"github.com/BaSui01/catalogfed/testutil/fixtures"
	"github.com/BaSui01/catalogfed/testutil/mocks"
	"github.com/BaSui01/catalogfed/types"
)

func memorySourceConfig(id string, days ...int) config.SourceConfig {
	sc := config.SourceConfig{ID: id, Type: config.SourceTypeMemory}
	for _, d := range days {
		sc.Records = append(sc.Records, config.RecordConfig{
			ID:        id + "-" + strconv.Itoa(d),
			Title:     id + " record",
			Effective: fixtures.BaseTime.AddDate(0, 0, d),
			Metadata:  map[string]any{"owner": "ops"},
		})
	}
	return sc
}

// pageRequest asks for a page, newest first, without a text filter.
func pageRequest(start, size int) *types.QueryRequest {
	return types.NewQueryRequest(types.Query{
		StartIndex: start,
		PageSize:   size,
		Sort:       types.SortBy{Attribute: types.AttributeEffective, Direction: types.SortDescending},
	})
}

func testConfig(srcs ...config.SourceConfig) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Metrics.Enabled = false
	cfg.Sources = srcs
	return cfg
}

func newTestEngine(t *testing.T, cfg *config.Config, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithLogger(zap.NewNop())}, opts...)
	e, err := New(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close(context.Background()) })
	return e
}

func TestNew_DefaultConfig(t *testing.T) {
	e := newTestEngine(t, nil)
	assert.Empty(t, e.Sources())

	resp, err := e.Query(testutil.TestContext(t), pageRequest(1, 10))
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.Zero(t, resp.Hits)
}

func TestEngine_QueryMergesSources(t *testing.T) {
	cfg := testConfig(memorySourceConfig("a", 1, 3, 5), memorySourceConfig("b", 2, 4))
	e := newTestEngine(t, cfg)
	assert.Equal(t, []string{"a", "b"}, e.Sources())

	resp, err := e.Query(testutil.TestContext(t), pageRequest(2, 3))
	require.NoError(t, err)

	days := make([]int, 0, len(resp.Results))
	for _, r := range resp.Results {
		eff, ok := r.Time(types.AttributeEffective)
		require.True(t, ok)
		days = append(days, int(eff.Sub(fixtures.BaseTime).Hours()/24))
	}
	assert.Equal(t, []int{4, 3, 2}, days)
	assert.Equal(t, int64(5), resp.Hits)
	assert.True(t, resp.HasMoreResults)
	assert.NotEmpty(t, resp.Properties[types.PropertyRequestID])
}

func TestEngine_Normalize(t *testing.T) {
	cfg := testConfig()
	cfg.Federation.DefaultPageSize = 7
	cfg.Federation.MaxPageSize = 50
	cfg.Federation.DefaultTimeout = 2 * time.Second

	spy := mocks.NewMockSource("spy")
	e := newTestEngine(t, cfg, WithSources(spy))

	tests := []struct {
		name        string
		pageSize    int
		timeout     int64
		wantSize    int
		wantTimeout int64
	}{
		{"defaults applied", 0, 0, 7, 2000},
		{"caller values kept", 10, 500, 10, 500},
		{"page size capped", 500, 0, 50, 2000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := types.NewQueryRequest(types.Query{PageSize: tt.pageSize, TimeoutMillis: tt.timeout})
			_, err := e.Query(testutil.TestContext(t), req)
			require.NoError(t, err)

			sent := spy.LastRequest()
			require.NotNil(t, sent)
			assert.Equal(t, tt.wantSize, sent.Query.PageSize)
			assert.Equal(t, tt.wantTimeout, sent.Query.TimeoutMillis)
			assert.Equal(t, tt.pageSize, req.Query.PageSize, "caller request is not modified")
		})
	}
}

func TestEngine_BuiltInPlugins(t *testing.T) {
	cfg := testConfig(memorySourceConfig("open", 1), memorySourceConfig("blocked", 2))
	cfg.Federation.DeniedSources = []string{"blocked"}
	cfg.Federation.RedactedAttributes = []string{"title"}

	var seen []string
	spyPlugin := federation.PreQueryFunc("spy", func(_ context.Context, s types.Source, req *types.QueryRequest) federation.PreQueryOutcome {
		seen = append(seen, s.ID())
		_, ok := req.Property(types.PropertyDispatchID)
		assert.True(t, ok)
		return federation.Continue(req)
	})
	e := newTestEngine(t, cfg, WithPreQueryPlugins(spyPlugin))

	resp, err := e.Query(testutil.TestContext(t), pageRequest(1, 10))
	require.NoError(t, err)

	require.Len(t, resp.Results, 1)
	assert.Equal(t, "open", resp.Results[0].SourceID)
	assert.NotContains(t, resp.Results[0].Attributes, "title")
	assert.Equal(t, []string{"open"}, seen)
}

func TestEngine_GroupExecutor(t *testing.T) {
	cfg := testConfig(memorySourceConfig("a", 1), memorySourceConfig("b", 2))
	cfg.Federation.Executor = "group"
	e := newTestEngine(t, cfg)
	assert.Equal(t, "group", e.executorName)

	resp, err := e.Query(testutil.TestContext(t), pageRequest(1, 10))
	require.NoError(t, err)
	assert.Len(t, resp.Results, 2)
}

func TestEngine_Metrics(t *testing.T) {
	cfg := testConfig(memorySourceConfig("a", 1))
	cfg.Metrics.Enabled = true
	cfg.Metrics.Namespace = "catalogfed_engine_test"
	e := newTestEngine(t, cfg)
	require.NotNil(t, e.collector)

	_, err := e.Query(testutil.TestContext(t), pageRequest(1, 10))
	assert.NoError(t, err)
}

func TestEngine_Reload(t *testing.T) {
	extra := mocks.NewMockSource("extra").WithResults(fixtures.ResultAt("x1", "extra", 0))
	e := newTestEngine(t, testConfig(memorySourceConfig("a", 1)), WithSources(extra))
	assert.Equal(t, []string{"a", "extra"}, e.Sources())

	next := testConfig(memorySourceConfig("b", 1), memorySourceConfig("c", 2))
	next.Federation.MaxStartIndex = 100
	require.NoError(t, e.Reload(context.Background(), next))

	assert.Equal(t, []string{"b", "c", "extra"}, e.Sources())
	assert.Equal(t, 100, e.orchestrator.MaxStartIndex())

	bad := testConfig(memorySourceConfig("extra"))
	err := e.Reload(context.Background(), bad)
	require.Error(t, err)
	assert.Equal(t, []string{"b", "c", "extra"}, e.Sources(), "failed reload keeps current sources")

	assert.Error(t, e.Reload(context.Background(), nil))
}

func TestEngine_ReloadMovesDeepPagingCap(t *testing.T) {
	a := mocks.NewMockSource("a").WithResults(fixtures.DescendingSeries("a", 8, 20*time.Hour, 2*time.Hour)...)
	b := mocks.NewMockSource("b").WithResults(fixtures.DescendingSeries("b", 8, 19*time.Hour, 2*time.Hour)...)

	cfg := testConfig()
	cfg.Federation.MaxStartIndex = 2
	cfg.Federation.MaxPageSize = 2
	e := newTestEngine(t, cfg, WithSources(a, b))
	assert.Equal(t, 3, e.pageCap.Max())

	_, err := e.Query(testutil.TestContext(t), pageRequest(5, 2))
	require.NoError(t, err)
	assert.Equal(t, 3, a.LastRequest().Query.PageSize)

	next := testConfig()
	next.Federation.MaxStartIndex = 10
	next.Federation.MaxPageSize = 2
	require.NoError(t, e.Reload(context.Background(), next))
	assert.Equal(t, 11, e.pageCap.Max())

	resp, err := e.Query(testutil.TestContext(t), pageRequest(5, 2))
	require.NoError(t, err)
	for _, s := range []*mocks.MockSource{a, b} {
		assert.Equal(t, 6, s.LastRequest().Query.PageSize)
	}
	// Global order a-0 b-0 a-1 b-1 a-2 b-2; positions 5 and 6.
	testutil.AssertResultIDs(t, []string{"a-2", "b-2"}, resp.Results)

	uncapped := testConfig()
	uncapped.Federation.MaxPageSize = 0
	require.NoError(t, e.Reload(context.Background(), uncapped))
	assert.Equal(t, 0, e.pageCap.Max())
}

func TestWindowCap(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.FederationConfig
		want int
	}{
		{"uncapped", config.FederationConfig{MaxStartIndex: 10}, 0},
		{"window", config.FederationConfig{MaxStartIndex: 10, MaxPageSize: 5}, 14},
		{"default max start", config.FederationConfig{MaxPageSize: 1}, federation.DefaultMaxStartIndex},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, windowCap(tt.cfg))
		})
	}
}

func TestEngine_WatchReloads(t *testing.T) {
	path := t.TempDir() + "/catalogfed.yaml"
	require.NoError(t, writeFile(path, "metrics:\n  enabled: false\nsources:\n  - id: first\n    type: memory\n"))

	loader := config.NewLoader().WithConfigPath(path)
	cfg, err := loader.Load()
	require.NoError(t, err)
	e := newTestEngine(t, cfg)
	assert.Equal(t, []string{"first"}, e.Sources())

	w := config.NewWatcher(loader, config.WithPollInterval(10*time.Millisecond), config.WithDebounceDelay(10*time.Millisecond))
	e.Watch(w)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, writeFile(path, "metrics:\n  enabled: false\nsources:\n  - id: second\n    type: memory\n"))
	require.NoError(t, touchFuture(path))

	testutil.AssertEventuallyEqual(t, []string{"second"}, func() any { return e.Sources() }, 2*time.Second)
}

func TestEngine_Closed(t *testing.T) {
	e, err := New(context.Background(), testConfig(memorySourceConfig("a", 1)))
	require.NoError(t, err)
	require.NoError(t, e.Close(context.Background()))
	require.NoError(t, e.Close(context.Background()))

	_, err = e.Query(context.Background(), pageRequest(1, 1))
	assert.ErrorIs(t, err, ErrEngineClosed)
	assert.ErrorIs(t, e.Reload(context.Background(), testConfig()), ErrEngineClosed)
}

func TestEngine_NilRequest(t *testing.T) {
	e := newTestEngine(t, testConfig())
	_, err := e.Query(context.Background(), nil)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))
}

func TestNew_BadSource(t *testing.T) {
	cfg := testConfig(config.SourceConfig{ID: "x", Type: config.SourceTypeSQL, Driver: "oracle", DSN: "d"})
	_, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidConfiguration))
}

func TestEngine_ResponseCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cached := memorySourceConfig("a", 1, 2)
	cached.CacheTTL = time.Minute
	cfg := testConfig(cached, memorySourceConfig("b", 3))
	cfg.Cache.Enabled = true
	cfg.Cache.Addr = mr.Addr()
	cfg.Cache.KeyPrefix = "engine:"

	e := newTestEngine(t, cfg)
	require.NotNil(t, e.cache)

	first, err := e.Query(testutil.TestContext(t), pageRequest(1, 10))
	require.NoError(t, err)
	second, err := e.Query(testutil.TestContext(t), pageRequest(1, 10))
	require.NoError(t, err)

	testutil.AssertResultIDs(t, []string{"b-3", "a-2", "a-1"}, first.Results)
	testutil.AssertResultIDs(t, []string{"b-3", "a-2", "a-1"}, second.Results)

	keys := mr.Keys()
	require.Len(t, keys, 1, "only the source with a cache_ttl is cached")
	assert.Contains(t, keys[0], "engine:response:a:")
}

func TestNew_CacheUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig(memorySourceConfig("a", 1))
	cfg.Cache.Enabled = true
	cfg.Cache.Addr = addr
	_, err := New(context.Background(), cfg)
	assert.ErrorContains(t, err, "init response cache")
}
