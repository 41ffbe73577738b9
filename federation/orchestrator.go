package federation

import (
	"context"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/catalogfed/internal/ctxkeys"
	"github.com/BaSui01/catalogfed/types"
)

// DefaultMaxStartIndex bounds how deep a federated query may page.
const DefaultMaxStartIndex = 50000

const tracerName = "github.com/BaSui01/catalogfed/federation"

// Strategy federates one request across a set of sources.
type Strategy interface {
	Federate(ctx context.Context, sources []types.Source, req *types.QueryRequest) (*types.QueryResponse, error)
}

// Orchestrator is the sorted scatter-gather Strategy. It fans a request out to
// every selected source through the injected Executor, merges the sorted
// partial results and applies deep-offset pagination. Per-source problems are
// reported as processing details; past input validation Federate never fails.
type Orchestrator struct {
	executor          Executor
	chain             *chainRunner
	monitorFactory    MonitorFactory
	comparatorFactory ComparatorFactory
	metrics           MetricsRecorder
	tracer            trace.Tracer
	logger            *zap.Logger
	queueCapacity     int

	maxStartIndex atomic.Int64
}

var _ Strategy = (*Orchestrator)(nil)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMonitorFactory replaces the merge monitor.
func WithMonitorFactory(f MonitorFactory) Option {
	return func(o *Orchestrator) {
		if f != nil {
			o.monitorFactory = f
		}
	}
}

// WithComparatorFactory replaces the comparator selection.
func WithComparatorFactory(f ComparatorFactory) Option {
	return func(o *Orchestrator) {
		if f != nil {
			o.comparatorFactory = f
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithTracer sets the tracer. The global otel tracer is used by default.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithMaxStartIndex sets the initial maximum start index.
func WithMaxStartIndex(v int) Option {
	return func(o *Orchestrator) {
		o.SetMaxStartIndex(v)
	}
}

// WithQueueCapacity sets the capacity of the internal result queues.
func WithQueueCapacity(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.queueCapacity = n
		}
	}
}

// NewOrchestrator creates an Orchestrator. The executor and both plugin lists
// are required; an empty list is fine, a nil list or a nil element is not.
func NewOrchestrator(executor Executor, pre []PreQueryPlugin, post []PostQueryPlugin, opts ...Option) (*Orchestrator, error) {
	if executor == nil {
		return nil, types.NewError(types.ErrInvalidConfiguration, "executor is required")
	}
	if pre == nil {
		return nil, types.NewError(types.ErrInvalidConfiguration, "pre-query plugin list is required")
	}
	if post == nil {
		return nil, types.NewError(types.ErrInvalidConfiguration, "post-query plugin list is required")
	}
	for i, p := range pre {
		if p == nil {
			return nil, types.NewError(types.ErrInvalidConfiguration, fmt.Sprintf("pre-query plugin %d is nil", i))
		}
	}
	for i, p := range post {
		if p == nil {
			return nil, types.NewError(types.ErrInvalidConfiguration, fmt.Sprintf("post-query plugin %d is nil", i))
		}
	}

	o := &Orchestrator{
		executor:          executor,
		comparatorFactory: ComparatorFor,
		metrics:           nopMetrics{},
		tracer:            otel.Tracer(tracerName),
		logger:            zap.NewNop(),
		queueCapacity:     defaultQueueCapacity,
	}
	o.maxStartIndex.Store(DefaultMaxStartIndex)
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With(zap.String("component", "federation"))
	if o.monitorFactory == nil {
		o.monitorFactory = DefaultMonitorFactory(o.logger)
	}
	o.chain = &chainRunner{
		pre:     slices.Clone(pre),
		post:    slices.Clone(post),
		logger:  o.logger,
		metrics: o.metrics,
	}
	return o, nil
}

// MaxStartIndex returns the current maximum start index.
func (o *Orchestrator) MaxStartIndex() int {
	return int(o.maxStartIndex.Load())
}

// SetMaxStartIndex sets the maximum start index. Values <= 0 restore
// DefaultMaxStartIndex.
func (o *Orchestrator) SetMaxStartIndex(v int) {
	if v <= 0 {
		o.logger.Debug("invalid max start index, using default",
			zap.Int("requested", v),
			zap.Int("default", DefaultMaxStartIndex))
		v = DefaultMaxStartIndex
	}
	o.maxStartIndex.Store(int64(v))
}

type dispatch struct {
	source  types.Source
	request *types.QueryRequest
}

type monitorOutcome struct {
	summary *MergeSummary
	err     error
}

// Federate runs req against sources. It returns an error only for a nil
// source list, a nil request or a nil source.
func (o *Orchestrator) Federate(ctx context.Context, sources []types.Source, req *types.QueryRequest) (*types.QueryResponse, error) {
	if sources == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "sources are required")
	}
	if req == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "request is required")
	}
	for i, s := range sources {
		if s == nil {
			return nil, types.NewError(types.ErrInvalidRequest, fmt.Sprintf("source %d is nil", i))
		}
	}

	start := time.Now()
	requestID := requestIDFor(req)
	ctx = ctxkeys.WithRequestID(ctx, requestID)
	ctx, span := o.tracer.Start(ctx, "federation.federate", trace.WithAttributes(
		attribute.String("federation.request_id", requestID),
		attribute.Int("federation.sources", len(sources)),
		attribute.Int("query.start_index", req.Query.StartIndex),
		attribute.Int("query.page_size", req.Query.PageSize),
	))
	defer span.End()

	logger := o.logger.With(zap.String("request_id", requestID))
	if sc := span.SpanContext(); sc.HasTraceID() {
		ctx = ctxkeys.WithTraceID(ctx, sc.TraceID().String())
		logger = logger.With(zap.String("trace_id", sc.TraceID().String()))
	}

	resp, err := o.federate(ctx, sources, req, requestID, logger)
	if err != nil {
		logger.Error("federation failed", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.metrics.RecordFederation(StatusFailed, time.Since(start), len(sources), 0)
		resp = failedResponse(req, requestID, err)
	} else {
		o.metrics.RecordFederation(StatusSuccess, time.Since(start), len(sources), len(resp.Results))
	}

	span.SetAttributes(
		attribute.Int("federation.results", len(resp.Results)),
		attribute.Int64("federation.hits", resp.Hits),
		attribute.Int("federation.processing_details", resp.ProcessingDetails.Len()),
	)
	logger.Debug("federation complete",
		zap.Int("results", len(resp.Results)),
		zap.Int64("hits", resp.Hits),
		zap.Bool("has_more", resp.HasMoreResults),
		zap.Duration("elapsed", time.Since(start)))

	return o.chain.runPost(ctx, resp), nil
}

// federate does the fan-out and merge. An error means the merge machinery
// itself failed; source failures never surface here.
func (o *Orchestrator) federate(ctx context.Context, sources []types.Source, req *types.QueryRequest,
	requestID string, logger *zap.Logger) (resp *types.QueryResponse, err error) {

	defer func() {
		if r := recover(); r != nil {
			resp, err = nil, panicError("federation", r)
		}
	}()

	resp = types.NewQueryResponse(req)
	resp.Properties[types.PropertyRequestID] = requestID
	details := NewDetailsCollector(o.metrics)

	if len(sources) == 0 {
		details.ApplyTo(resp)
		return resp, nil
	}

	selected := o.selectSources(sources, req, details)

	query := req.Query
	startIndex := query.NormalizedStartIndex()
	offset := min(startIndex, o.MaxStartIndex())
	deepPaging := len(selected) > 1 && startIndex > 1
	if deepPaging && offset < startIndex {
		resp.Properties[types.PropertyStartIndexApplied] = offset
		details.AddDetail(types.NewProcessingDetail(types.UnknownSourceID, nil, []string{
			fmt.Sprintf("start index %d exceeds the maximum of %d; results start at %d", startIndex, offset, offset),
		}))
		logger.Warn("start index clamped",
			zap.Int("start_index", startIndex),
			zap.Int("applied", offset))
	}

	dispatchQuery := query
	pageBound := 0
	if query.Bounded() {
		pageBound = query.PageSize
	}
	if deepPaging {
		if query.Bounded() {
			pageBound = offset + query.PageSize - 1
		}
		dispatchQuery = query.WithPaging(1, pageBound)
	}

	dispatches := make([]dispatch, 0, len(selected))
	for _, s := range selected {
		sreq := req.WithQuery(dispatchQuery)
		sreq.SetProperty(types.PropertyRequestID, requestID)
		out, ok := o.chain.runPre(ctx, s, sreq)
		if !ok {
			continue
		}
		dispatches = append(dispatches, dispatch{source: s, request: out})
	}

	if len(dispatches) == 0 {
		details.ApplyTo(resp)
		return resp, nil
	}

	monitor, err := o.newMonitor(req)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var deadline time.Time
	taskCtx := runCtx
	if timeout := query.Timeout(); timeout > 0 {
		deadline = time.Now().Add(timeout)
		var taskCancel context.CancelFunc
		taskCtx, taskCancel = context.WithDeadline(runCtx, deadline)
		defer taskCancel()
	}

	completions := make(chan SourceCompletion, len(dispatches))
	pending := make([]string, 0, len(dispatches))
	dispatchedAt := time.Now()
	for _, d := range dispatches {
		pending = append(pending, d.source.ID())
		o.submit(taskCtx, d, completions, logger)
	}

	merged := NewResultQueue(o.queueCapacity)
	var results ResultSource = merged
	if deepPaging {
		window := NewResultQueue(o.queueCapacity)
		handler := NewOffsetHandler(merged, window, query.PageSize, offset-1, logger)
		go handler.Run(runCtx)
		results = window
	}

	outcome := make(chan monitorOutcome, 1)
	go func() {
		var mo monitorOutcome
		defer func() {
			if r := recover(); r != nil {
				mo = monitorOutcome{err: panicError("monitor", r)}
			}
			merged.Close()
			outcome <- mo
		}()
		summary, err := monitor.Run(runCtx, MonitorInput{
			Completions:  completions,
			Pending:      pending,
			DispatchedAt: dispatchedAt,
			Deadline:     deadline,
			Comparator:   o.comparatorFactory(query.Sort),
			PageSize:     pageBound,
			Details:      details,
			Output:       merged,
		})
		mo = monitorOutcome{summary: summary, err: err}
	}()

	collected, drainErr := Drain(runCtx, results)
	if drainErr != nil {
		// The caller gave up; stop the merge and keep what arrived.
		cancel()
	}
	mo := <-outcome
	if mo.err != nil {
		return nil, mo.err
	}
	summary := mo.summary
	if summary == nil {
		summary = &MergeSummary{Hits: types.UnknownHits}
	}

	resp.Results = collected
	resp.Hits = summary.Hits
	consumed := int64(startIndex - 1)
	if deepPaging {
		consumed = int64(offset - 1)
	}
	consumed += int64(len(collected))
	resp.HasMoreResults = summary.Truncated || (summary.Hits >= 0 && consumed < summary.Hits)

	for k, v := range summary.Properties {
		resp.Properties[k] = v
	}
	details.ApplyTo(resp)
	resp.Properties[types.PropertyRequestID] = requestID
	return resp, nil
}

// selectSources keeps the sources the request targets and records a detail
// for every requested id no source answers to.
func (o *Orchestrator) selectSources(sources []types.Source, req *types.QueryRequest, details *DetailsCollector) []types.Source {
	if len(req.SourceIDs) == 0 {
		return sources
	}
	selected := make([]types.Source, 0, len(req.SourceIDs))
	known := make(map[string]struct{}, len(sources))
	for _, s := range sources {
		known[s.ID()] = struct{}{}
		if req.TargetsSource(s.ID()) {
			selected = append(selected, s)
		}
	}
	for _, id := range req.SourceIDs {
		if _, ok := known[id]; !ok {
			details.AddSourceFailure(id, types.NewSourceUnavailableError(id))
		}
	}
	return selected
}

func (o *Orchestrator) newMonitor(req *types.QueryRequest) (m Monitor, err error) {
	defer func() {
		if r := recover(); r != nil {
			m, err = nil, panicError("monitor factory", r)
		}
	}()
	m, err = o.monitorFactory(req)
	if err == nil && m == nil {
		err = types.NewError(types.ErrInternalError, "monitor factory returned nil")
	}
	return m, err
}

// submit hands one source task to the executor. A rejected task completes
// immediately with an error so the monitor still accounts for it.
func (o *Orchestrator) submit(ctx context.Context, d dispatch, completions chan<- SourceCompletion, logger *zap.Logger) {
	id := d.source.ID()
	task := func(taskCtx context.Context) error {
		c := o.querySource(taskCtx, d)
		completions <- c
		return c.Err
	}
	if err := o.executor.Submit(ctx, task); err != nil {
		logger.Warn("source task rejected", zap.String("source_id", id), zap.Error(err))
		completions <- SourceCompletion{
			SourceID: id,
			Err:      types.NewError(types.ErrExecutorRejected, "source task rejected").WithCause(err).WithSource(id),
		}
	}
}

func (o *Orchestrator) querySource(ctx context.Context, d dispatch) (c SourceCompletion) {
	id := d.source.ID()
	ctx = ctxkeys.WithSourceID(ctx, id)
	ctx, span := o.tracer.Start(ctx, "federation.source.query",
		trace.WithAttributes(attribute.String("source.id", id)))
	defer span.End()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			c.Response = nil
			c.Err = types.NewError(types.ErrSourceQueryFailed, fmt.Sprintf("source panicked: %v", r)).WithSource(id)
		}
		c.SourceID = id
		c.Elapsed = time.Since(start)
		if c.Err != nil {
			span.RecordError(c.Err)
			span.SetStatus(codes.Error, c.Err.Error())
		} else if c.Response != nil {
			span.SetAttributes(attribute.Int("source.results", len(c.Response.Results)))
		}
	}()

	resp, err := d.source.Query(ctx, d.request)
	return SourceCompletion{Response: resp, Err: err}
}

// panicError converts a recovered value, keeping it as the cause when it is an
// error.
func panicError(where string, r any) error {
	e := types.NewError(types.ErrInternalError, fmt.Sprintf("%s panicked: %v", where, r))
	if cause, ok := r.(error); ok {
		e = e.WithCause(cause)
	}
	return e
}

// requestIDFor reuses a caller supplied request id or mints one.
func requestIDFor(req *types.QueryRequest) string {
	if v, ok := req.Property(types.PropertyRequestID); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return uuid.NewString()
}

// failedResponse is the fail-soft answer when the merge machinery breaks.
func failedResponse(req *types.QueryRequest, requestID string, cause error) *types.QueryResponse {
	resp := types.NewQueryResponse(req)
	resp.Hits = 0
	resp.HasMoreResults = false
	resp.ProcessingDetails.Add(types.NewProcessingDetail(types.UnknownSourceID, cause, nil))
	resp.Properties[types.PropertyRequestID] = requestID
	return resp
}
