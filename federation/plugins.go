package federation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/catalogfed/types"
)

// Plugin stage labels.
const (
	StagePreQuery  = "pre_query"
	StagePostQuery = "post_query"
)

// OutcomeKind tells the chain runner what a pre-query plugin decided.
type OutcomeKind int

const (
	// OutcomeContinue passes a (possibly rewritten) request to the next plugin.
	OutcomeContinue OutcomeKind = iota
	// OutcomeSkip excludes the source from this query.
	OutcomeSkip
	// OutcomeFailed reports a plugin failure; the chain continues with the
	// last good request.
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeContinue:
		return "continue"
	case OutcomeSkip:
		return "skip"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// PreQueryOutcome is the result of one pre-query plugin invocation.
type PreQueryOutcome struct {
	kind    OutcomeKind
	request *types.QueryRequest
	err     error
}

// Continue passes req on. A nil req keeps the current request.
func Continue(req *types.QueryRequest) PreQueryOutcome {
	return PreQueryOutcome{kind: OutcomeContinue, request: req}
}

// Skip vetoes the source.
func Skip() PreQueryOutcome {
	return PreQueryOutcome{kind: OutcomeSkip}
}

// Failed reports err without stopping the chain.
func Failed(err error) PreQueryOutcome {
	return PreQueryOutcome{kind: OutcomeFailed, err: err}
}

func (o PreQueryOutcome) Kind() OutcomeKind { return o.kind }
func (o PreQueryOutcome) Request() *types.QueryRequest { return o.request }
func (o PreQueryOutcome) Err() error { return o.err }

// PreQueryPlugin rewrites or vetoes the request sent to one source. The
// request it receives is a private copy for that source.
type PreQueryPlugin interface {
	Name() string
	Process(ctx context.Context, source types.Source, req *types.QueryRequest) PreQueryOutcome
}

// PostQueryPlugin transforms the assembled response.
type PostQueryPlugin interface {
	Name() string
	Process(ctx context.Context, resp *types.QueryResponse) (*types.QueryResponse, error)
}

type preQueryFunc struct {
	name string
	fn   func(ctx context.Context, source types.Source, req *types.QueryRequest) PreQueryOutcome
}

func (p preQueryFunc) Name() string { return p.name }

func (p preQueryFunc) Process(ctx context.Context, source types.Source, req *types.QueryRequest) PreQueryOutcome {
	return p.fn(ctx, source, req)
}

// PreQueryFunc builds a named PreQueryPlugin from a function.
func PreQueryFunc(name string, fn func(ctx context.Context, source types.Source, req *types.QueryRequest) PreQueryOutcome) PreQueryPlugin {
	return preQueryFunc{name: name, fn: fn}
}

type postQueryFunc struct {
	name string
	fn   func(ctx context.Context, resp *types.QueryResponse) (*types.QueryResponse, error)
}

func (p postQueryFunc) Name() string { return p.name }

func (p postQueryFunc) Process(ctx context.Context, resp *types.QueryResponse) (*types.QueryResponse, error) {
	return p.fn(ctx, resp)
}

// PostQueryFunc builds a named PostQueryPlugin from a function.
func PostQueryFunc(name string, fn func(ctx context.Context, resp *types.QueryResponse) (*types.QueryResponse, error)) PostQueryPlugin {
	return postQueryFunc{name: name, fn: fn}
}

// PluginPanicError wraps a value recovered from a plugin.
type PluginPanicError struct {
	Plugin string
	Value  any
}

func (e *PluginPanicError) Error() string {
	return fmt.Sprintf("plugin %s panicked: %v", e.Plugin, e.Value)
}

// chainRunner applies the plugin chains in order. Failures are logged and
// never abort a query.
type chainRunner struct {
	pre     []PreQueryPlugin
	post    []PostQueryPlugin
	logger  *zap.Logger
	metrics MetricsRecorder
}

// runPre returns the request to dispatch to source, or false when a plugin
// vetoed it.
func (c *chainRunner) runPre(ctx context.Context, source types.Source, req *types.QueryRequest) (*types.QueryRequest, bool) {
	current := req
	for _, p := range c.pre {
		out := c.safePre(ctx, p, source, current)
		switch out.Kind() {
		case OutcomeContinue:
			if out.Request() != nil {
				current = out.Request()
			}
		case OutcomeSkip:
			c.logger.Debug("source vetoed by plugin",
				zap.String("source_id", source.ID()),
				zap.String("plugin", p.Name()))
			c.metrics.RecordSourceVeto(source.ID())
			return nil, false
		default:
			c.logger.Warn("pre-query plugin failed",
				zap.String("source_id", source.ID()),
				zap.String("plugin", p.Name()),
				zap.Error(out.Err()))
			c.metrics.RecordPluginFailure(StagePreQuery, p.Name())
		}
	}
	return current, true
}

func (c *chainRunner) safePre(ctx context.Context, p PreQueryPlugin, source types.Source, req *types.QueryRequest) (out PreQueryOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Failed(&PluginPanicError{Plugin: p.Name(), Value: r})
		}
	}()
	return p.Process(ctx, source, req)
}

// runPost feeds resp through the post-query chain. Each plugin works on a
// copy, so a failing plugin leaves the response as it was before it ran.
func (c *chainRunner) runPost(ctx context.Context, resp *types.QueryResponse) *types.QueryResponse {
	current := resp
	for _, p := range c.post {
		next, err := c.safePost(ctx, p, current.Clone())
		if err == nil && next == nil {
			err = fmt.Errorf("plugin %s returned a nil response", p.Name())
		}
		if err != nil {
			c.logger.Warn("post-query plugin failed",
				zap.String("plugin", p.Name()),
				zap.Error(err))
			c.metrics.RecordPluginFailure(StagePostQuery, p.Name())
			continue
		}
		current = next
	}
	return current
}

func (c *chainRunner) safePost(ctx context.Context, p PostQueryPlugin, resp *types.QueryResponse) (out *types.QueryResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, &PluginPanicError{Plugin: p.Name(), Value: r}
		}
	}()
	return p.Process(ctx, resp)
}
