package core

import (
	"context"

	"github.com/diffscope/diffscope/logging"
)

// PlanHandle exposes the single designated plan mutation a tool may perform
// on its session slot, plus read access. Implemented by session.Registry
// (active slot) and by pinned per-key scopes handed to subagents.
type PlanHandle interface {
	UpdatePlan(text string)
	Plan() (string, bool)
}

// SubagentExecutor runs a nested, independently budgeted analysis. The nested
// run shares the parent's cancellation (via ctx) but receives entirely fresh
// conversation and dispatcher state.
type SubagentExecutor interface {
	RunSubagent(ctx context.Context, task string) (string, error)
}

// ExecutionContext is the constrained surface threaded through every tool
// invocation. Tools must treat it as read-only except for the plan handle's
// UpdatePlan operation. The cancellation signal of the outermost caller is
// carried by Context().
type ExecutionContext struct {
	ctx      context.Context
	plan     PlanHandle
	executor SubagentExecutor
	logger   logging.Logger
}

// ExecutionContextOptions configures construction of an ExecutionContext.
type ExecutionContextOptions struct {
	// Plan is the optional plan-state handle for this analysis' session slot.
	Plan PlanHandle
	// Executor is the optional nested-analysis executor.
	Executor SubagentExecutor
	// Logger defaults to NoOpLogger when nil.
	Logger logging.Logger
}

// NewExecutionContext constructs an ExecutionContext bound to ctx.
func NewExecutionContext(ctx context.Context, optFns ...func(o *ExecutionContextOptions)) *ExecutionContext {
	opts := ExecutionContextOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &ExecutionContext{ctx: ctx, plan: opts.Plan, executor: opts.Executor, logger: opts.Logger}
}

// Context returns the cancellation context for this invocation.
func (ec *ExecutionContext) Context() context.Context { return ec.ctx }

// Err returns the context error if cancellation has been observed.
func (ec *ExecutionContext) Err() error { return ec.ctx.Err() }

// Cancelled reports whether the cancellation signal is already set.
func (ec *ExecutionContext) Cancelled() bool { return ec.ctx.Err() != nil }

// PlanHandle returns the plan-state handle or nil when not configured.
func (ec *ExecutionContext) PlanHandle() PlanHandle { return ec.plan }

// Executor returns the nested-analysis executor or nil when not configured.
func (ec *ExecutionContext) Executor() SubagentExecutor { return ec.executor }

// Logger returns the non-nil logger for this invocation.
func (ec *ExecutionContext) Logger() logging.Logger { return ec.logger }
