// Package catalogfed is the top-level entry point: it builds a ready to use
// federation engine from a configuration.
//
// Usage:
//
//	cfg, err := config.NewLoader().WithConfigPath("catalogfed.yaml").Load()
//	engine, err := catalogfed.New(ctx, cfg, catalogfed.WithLogger(logger))
//	defer engine.Close(ctx)
//
//	resp, err := engine.Query(ctx, types.NewQueryRequest(types.Query{Filter: "harbour", PageSize: 20}))
//
// New wires the configured sources, the shared executor, the built-in plugins,
// the optional Redis response cache, Prometheus metrics and OpenTelemetry
// tracing around a federation.Orchestrator.
package catalogfed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/catalogfed/config"
	"github.com/BaSui01/catalogfed/federation"
	"github.com/BaSui01/catalogfed/internal/cache"
	"github.com/BaSui01/catalogfed/internal/metrics"
	"github.com/BaSui01/catalogfed/internal/pool"
	"github.com/BaSui01/catalogfed/internal/telemetry"
	"github.com/BaSui01/catalogfed/plugins"
	"github.com/BaSui01/catalogfed/sources"
	"github.com/BaSui01/catalogfed/types"
)

// executor is what the engine needs from the pool implementations.
type executor interface {
	federation.Executor
	Close()
	Stats() pool.GoroutinePoolStats
}

// Engine federates queries over the configured sources.
type Engine struct {
	orchestrator *federation.Orchestrator
	registry     *sources.Registry
	executor     executor
	executorName string
	collector    *metrics.Collector
	cache        *cache.Manager
	telemetry    *telemetry.Providers
	logger       *zap.Logger

	// deps and extra are reused by Reload.
	deps  sources.Deps
	extra []types.Source

	// querying is held shared by running queries; Reload takes it
	// exclusively before closing the sources it replaced.
	querying sync.RWMutex

	defaultTimeout  atomic.Int64
	defaultPageSize atomic.Int64
	maxPageSize     atomic.Int64
	// pageCap follows max_start_index and max_page_size across reloads.
	pageCap *plugins.PageSizeCapPlugin

	closed atomic.Bool
}

// Option configures New.
type Option func(*options)

type options struct {
	logger  *zap.Logger
	sources []types.Source
	pre     []federation.PreQueryPlugin
	post    []federation.PostQueryPlugin
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithSources adds sources built outside the configuration. They survive
// reloads.
func WithSources(s ...types.Source) Option {
	return func(o *options) {
		o.sources = append(o.sources, s...)
	}
}

// WithPreQueryPlugins appends pre-query plugins after the built-in ones.
func WithPreQueryPlugins(p ...federation.PreQueryPlugin) Option {
	return func(o *options) {
		o.pre = append(o.pre, p...)
	}
}

// WithPostQueryPlugins adds post-query plugins. They run before attribute
// redaction.
func WithPostQueryPlugins(p ...federation.PostQueryPlugin) Option {
	return func(o *options) {
		o.post = append(o.post, p...)
	}
}

// New builds an engine from cfg. A nil cfg means config.DefaultConfig.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	o := &options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}

	e := &Engine{logger: o.logger.With(zap.String("component", "engine"))}

	var err error
	e.telemetry, err = telemetry.Init(cfg.Telemetry, o.logger)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	var recorder sources.MetricsRecorder
	orchestratorOpts := []federation.Option{
		federation.WithLogger(o.logger),
		federation.WithTracer(e.telemetry.Tracer()),
		federation.WithMaxStartIndex(cfg.Federation.MaxStartIndex),
	}
	if cfg.Metrics.Enabled {
		e.collector = metrics.NewCollector(cfg.Metrics.Namespace, o.logger)
		recorder = e.collector
		orchestratorOpts = append(orchestratorOpts, federation.WithMetrics(e.collector))
	}

	e.executorName = cfg.Federation.Executor
	switch cfg.Federation.Executor {
	case "group":
		e.executor = pool.NewGroupExecutor(cfg.Pool.MaxWorkers)
	default:
		e.executorName = "pool"
		e.executor = pool.NewGoroutinePool(pool.GoroutinePoolConfig{
			MaxWorkers:  cfg.Pool.MaxWorkers,
			QueueSize:   cfg.Pool.QueueSize,
			IdleTimeout: cfg.Pool.IdleTimeout,
		}, o.logger)
	}

	pre, post, pageCap, err := buildPlugins(cfg.Federation, o)
	e.pageCap = pageCap
	if err == nil {
		e.orchestrator, err = federation.NewOrchestrator(e.executor, pre, post, orchestratorOpts...)
	}
	if err != nil {
		_ = e.shutdown(ctx)
		return nil, err
	}

	deps := sources.Deps{Logger: o.logger, Metrics: recorder}
	if cfg.Cache.Enabled {
		e.cache, err = cache.NewManager(ctx, cacheConfig(cfg.Cache), o.logger)
		if err != nil {
			_ = e.shutdown(ctx)
			return nil, fmt.Errorf("init response cache: %w", err)
		}
		deps.Cache = e.cache
	}
	built, err := sources.BuildAll(ctx, cfg.Sources, deps)
	if err != nil {
		_ = e.shutdown(ctx)
		return nil, err
	}
	e.registry, err = sources.NewRegistry(append(built, o.sources...)...)
	if err != nil {
		_ = sources.CloseAll(built)
		_ = e.shutdown(ctx)
		return nil, err
	}

	e.deps = deps
	e.extra = o.sources
	e.applyFederation(cfg.Federation)

	e.logger.Info("engine ready",
		zap.Strings("sources", e.registry.IDs()),
		zap.String("executor", e.executorName),
		zap.Int("max_start_index", e.orchestrator.MaxStartIndex()))
	return e, nil
}

func cacheConfig(cfg config.CacheConfig) cache.Config {
	c := cache.DefaultConfig()
	c.Addr = cfg.Addr
	c.Password = cfg.Password
	c.DB = cfg.DB
	c.TLS = cfg.TLS
	if cfg.KeyPrefix != "" {
		c.KeyPrefix = cfg.KeyPrefix
	}
	if cfg.DefaultTTL > 0 {
		c.DefaultTTL = cfg.DefaultTTL
	}
	return c
}

// windowCap is the widest window deep paging can ask a source for, or zero
// when page sizes are not capped.
func windowCap(cfg config.FederationConfig) int {
	if cfg.MaxPageSize <= 0 {
		return 0
	}
	maxStart := cfg.MaxStartIndex
	if maxStart <= 0 {
		maxStart = federation.DefaultMaxStartIndex
	}
	return maxStart + cfg.MaxPageSize - 1
}

func buildPlugins(cfg config.FederationConfig, o *options) ([]federation.PreQueryPlugin, []federation.PostQueryPlugin, *plugins.PageSizeCapPlugin, error) {
	pre := []federation.PreQueryPlugin{plugins.NewRequestIDPlugin()}
	if len(cfg.DeniedSources) > 0 {
		pre = append(pre, plugins.NewSourceDenyListPlugin(cfg.DeniedSources...))
	}
	capPlugin, err := plugins.NewPageSizeCapPlugin(windowCap(cfg))
	if err != nil {
		return nil, nil, nil, err
	}
	pre = append(pre, capPlugin)
	pre = append(pre, o.pre...)

	post := append([]federation.PostQueryPlugin{}, o.post...)
	if len(cfg.RedactedAttributes) > 0 {
		post = append(post, plugins.NewAttributeRedactionPlugin(cfg.RedactedAttributes...))
	}
	return pre, post, capPlugin, nil
}

func (e *Engine) applyFederation(cfg config.FederationConfig) {
	e.orchestrator.SetMaxStartIndex(cfg.MaxStartIndex)
	e.defaultTimeout.Store(int64(cfg.DefaultTimeout))
	e.defaultPageSize.Store(int64(cfg.DefaultPageSize))
	e.maxPageSize.Store(int64(cfg.MaxPageSize))
	if e.pageCap != nil {
		_ = e.pageCap.SetMax(windowCap(cfg))
	}
}

// Query federates req over the registered sources. The request gets the
// configured default timeout and page size when it carries none, and its
// page size is capped at the configured maximum.
func (e *Engine) Query(ctx context.Context, req *types.QueryRequest) (*types.QueryResponse, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}
	if req == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "request is required")
	}

	e.querying.RLock()
	defer e.querying.RUnlock()

	resp, err := e.orchestrator.Federate(ctx, e.registry.Sources(), e.normalize(req))
	if e.collector != nil {
		e.collector.RecordPoolStats(e.executorName, e.executor.Stats())
	}
	return resp, err
}

func (e *Engine) normalize(req *types.QueryRequest) *types.QueryRequest {
	q := req.Query
	changed := false
	if d := time.Duration(e.defaultTimeout.Load()); q.TimeoutMillis <= 0 && d > 0 {
		q.TimeoutMillis = d.Milliseconds()
		changed = true
	}
	if size := int(e.defaultPageSize.Load()); q.PageSize == 0 && size > 0 {
		q.PageSize = size
		changed = true
	}
	if limit := int(e.maxPageSize.Load()); limit > 0 && q.PageSize > limit {
		q.PageSize = limit
		changed = true
	}
	if !changed {
		return req
	}
	return req.WithQuery(q)
}

// Sources returns the ids of the registered sources.
func (e *Engine) Sources() []string {
	return e.registry.IDs()
}

// Collector returns the Prometheus collector, nil when metrics are disabled.
func (e *Engine) Collector() *metrics.Collector {
	return e.collector
}

// Registry exposes the source registry.
func (e *Engine) Registry() *sources.Registry {
	return e.registry
}

// Reload rebuilds the configured sources and swaps them in. Queries already
// running finish against the old sources, which are closed afterwards.
// The page size cap follows the new federation settings; other plugins and
// the executor keep their original settings.
func (e *Engine) Reload(ctx context.Context, cfg *config.Config) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	if cfg == nil {
		return types.NewError(types.ErrInvalidConfiguration, "config is required")
	}

	built, err := sources.BuildAll(ctx, cfg.Sources, e.deps)
	if err != nil {
		return err
	}
	old, err := e.registry.Replace(append(built, e.extra...))
	if err != nil {
		_ = sources.CloseAll(built)
		return err
	}
	e.applyFederation(cfg.Federation)

	// Queries still holding the old snapshot finish first.
	e.querying.Lock()
	closeErr := sources.CloseAll(withoutSources(old, e.extra))
	e.querying.Unlock()

	e.logger.Info("sources reloaded",
		zap.Strings("sources", e.registry.IDs()),
		zap.Int("replaced", len(old)))
	return closeErr
}

// Watch reloads the engine whenever w reports a new configuration.
func (e *Engine) Watch(w *config.Watcher) {
	w.OnReload(func(cfg *config.Config) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := e.Reload(ctx, cfg); err != nil {
			e.logger.Error("reload failed, keeping current sources", zap.Error(err))
		}
	})
}

// Close releases the sources, the executor, the response cache and the
// telemetry exporters.
func (e *Engine) Close(ctx context.Context) error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.querying.Lock()
	defer e.querying.Unlock()

	err := e.registry.Close()
	return errors.Join(err, e.shutdown(ctx))
}

func (e *Engine) shutdown(ctx context.Context) error {
	if e.executor != nil {
		e.executor.Close()
	}
	var cacheErr error
	if e.cache != nil {
		cacheErr = e.cache.Close()
	}
	return errors.Join(cacheErr, e.telemetry.Shutdown(ctx))
}

// withoutSources drops the entries of keep from list.
func withoutSources(list, keep []types.Source) []types.Source {
	if len(keep) == 0 {
		return list
	}
	ids := make(map[string]struct{}, len(keep))
	for _, k := range keep {
		ids[k.ID()] = struct{}{}
	}
	out := make([]types.Source, 0, len(list))
	for _, s := range list {
		if _, ok := ids[s.ID()]; !ok {
			out = append(out, s)
		}
	}
	return out
}

// ErrEngineClosed is returned by an Engine after Close.
var ErrEngineClosed = errors.New("catalogfed: engine is closed")
