package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/diffscope/diffscope/core"
	"github.com/diffscope/diffscope/internal/util"
	"github.com/diffscope/diffscope/logging"
)

// Request names one tool invocation with already-decoded arguments.
type Request struct {
	Name string
	Args map[string]any
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	// MaxCalls caps the number of tool calls per analysis (0 = unlimited).
	MaxCalls int
	// MaxResponseSize caps the serialized character count of a successful
	// tool result. The boundary is inclusive: a result of exactly
	// MaxResponseSize characters is accepted.
	MaxResponseSize int
	// Logger defaults to NoOpLogger when nil.
	Logger logging.Logger
}

// Dispatcher turns tool requests into ToolExecutionResults, enforcing every
// cross-cutting policy a tool author should not have to reimplement:
// cancellation precedence, the per-analysis call ceiling, registry lookup,
// argument validation, error/timeout normalization and response size
// capping. One Dispatcher instance is exclusively owned by one in-flight
// analysis; only the internal call counter is synchronized (for parallel
// fan-out within a turn).
type Dispatcher struct {
	registry        *Registry
	limiter         *core.CallLimiter
	maxResponseSize int
	logger          logging.Logger
}

// NewDispatcher constructs a Dispatcher over the given registry.
func NewDispatcher(registry *Registry, optFns ...func(o *DispatcherOptions)) *Dispatcher {
	opts := DispatcherOptions{
		MaxCalls:        50,
		MaxResponseSize: 50000,
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Dispatcher{
		registry:        registry,
		limiter:         core.NewCallLimiter(opts.MaxCalls),
		maxResponseSize: opts.MaxResponseSize,
		logger:          opts.Logger,
	}
}

// Execute runs a single tool request.
//
// The returned error is non-nil only for cancellation, which always wins:
// it is checked before the rate limit so a cancelled dispatch never
// increments the call counter. Every ordinary failure (rate limit, unknown
// tool, invalid arguments, execution error, timeout, oversized response)
// is reported as a failure result so the model can self-correct.
func (d *Dispatcher) Execute(execCtx *core.ExecutionContext, req Request) (core.ToolExecutionResult, error) {
	if execCtx.Cancelled() {
		return core.ToolExecutionResult{}, execCtx.Err()
	}

	count, ok := d.limiter.Increment()
	if !ok {
		d.logger.Warn("dispatch.rate_limited", "tool", req.Name, "count", count, "max", d.limiter.Max())

		return core.FailureResult(req.Name, fmt.Sprintf(
			"Rate limit exceeded: %d tool calls made, maximum %d", count, d.limiter.Max())), nil
	}

	t, found := d.registry.Get(req.Name)
	if !found {
		return core.FailureResult(req.Name, fmt.Sprintf(
			"Tool '%s' not found in registry", req.Name)), nil
	}

	if err := validateAgainstSchema(req.Args, t.Parameters()); err != nil {
		return core.FailureResult(req.Name, fmt.Sprintf("Invalid arguments: %v", err)), nil
	}

	start := time.Now()
	value, err := callGuarded(t, execCtx, req.Args)
	dur := time.Since(start)

	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Cancellation propagates un-wrapped so the runner can
			// distinguish "user cancelled" from "tool failed".
			return core.ToolExecutionResult{}, err
		}

		if isTimeout(err) {
			d.logger.Warn("dispatch.timeout", "tool", req.Name, "duration_ms", dur.Milliseconds())

			return core.FailureResult(req.Name, fmt.Sprintf(
				"Tool '%s' timed out. Narrow your query or request a smaller scope, then try again.", req.Name)), nil
		}

		d.logger.Warn("dispatch.failed", "tool", req.Name, "error", err.Error())

		return core.FailureResult(req.Name, err.Error()), nil
	}

	if size := resultSize(value); size > d.maxResponseSize {
		return core.FailureResult(req.Name, fmt.Sprintf(
			"Tool response too large: %d characters, maximum %d. Narrow your query and try again.",
			size, d.maxResponseSize)), nil
	}

	d.logger.Debug("dispatch.success", "tool", req.Name, "duration_ms", dur.Milliseconds())

	return core.SuccessResult(req.Name, value), nil
}

// ExecuteMany runs all requests concurrently (fan-out/fan-in) and returns
// results in input order regardless of completion order. A cancellation
// observed by any call aborts the whole dispatch.
func (d *Dispatcher) ExecuteMany(execCtx *core.ExecutionContext, reqs []Request) ([]core.ToolExecutionResult, error) {
	if execCtx.Cancelled() {
		return nil, execCtx.Err()
	}

	results := make([]core.ToolExecutionResult, len(reqs))
	errs := make([]error, len(reqs))

	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func(i int, req Request) {
			defer wg.Done()
			results[i], errs[i] = d.Execute(execCtx, req)
		}(i, req)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// ExecuteSequentially runs requests one at a time in order, continuing past
// individual failures. Used where determinism matters more than latency.
func (d *Dispatcher) ExecuteSequentially(execCtx *core.ExecutionContext, reqs []Request) ([]core.ToolExecutionResult, error) {
	results := make([]core.ToolExecutionResult, 0, len(reqs))
	for _, req := range reqs {
		res, err := d.Execute(execCtx, req)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// AvailableTools returns the tools currently visible through the registry.
func (d *Dispatcher) AvailableTools() []Tool { return d.registry.All() }

// IsAvailable reports whether name resolves to a registered tool.
func (d *Dispatcher) IsAvailable(name string) bool { return d.registry.Has(name) }

// CallCount returns the number of calls counted so far, including rejected
// over-budget calls.
func (d *Dispatcher) CallCount() int { return d.limiter.Count() }

// callGuarded invokes the tool converting panics into plain errors via
// string coercion, so a misbehaving tool can never take down the analysis.
func callGuarded(t Tool, execCtx *core.ExecutionContext, args map[string]any) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = fmt.Errorf("%v", r)
		}
	}()
	return t.Call(execCtx, args)
}

// validateAgainstSchema tolerates tools that declare no schema.
func validateAgainstSchema(args map[string]any, schema map[string]any) error {
	if schema == nil {
		return nil
	}
	return util.ValidateParameters(args, schema)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr.Code == CodeTimeout
	}
	return false
}

// resultSize measures the serialized character count of a successful result.
func resultSize(value any) int {
	if s, ok := value.(string); ok {
		return len(s)
	}
	data, err := json.Marshal(value)
	if err != nil {
		return 0
	}
	return len(data)
}
