// Package diffscope provides a high-level façade over the analysis runner and
// its services (tool registry, sessions, model clients & logging) enabling
// rapid construction of model-driven code analysis loops. Most applications
// interact with this package by:
//  1. Creating a DiffScope via New() with a model client (optionally
//     overriding the default registry, sessions or configuration)
//  2. Registering workspace tools (built-in or custom)
//  3. Running analyses with Analyze()
//
// The façade delegates orchestration to runner.Runner while keeping setup and
// usage ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically tighten the runner configuration
// and supply a structured logger.
package diffscope

import (
	"context"

	"github.com/diffscope/diffscope/core"
	"github.com/diffscope/diffscope/logging"
	"github.com/diffscope/diffscope/model"
	"github.com/diffscope/diffscope/runner"
	"github.com/diffscope/diffscope/session"
	"github.com/diffscope/diffscope/tool"
)

// Options configures the DiffScope instance.
type Options struct {
	// Config carries the runner limits (iterations, tool calls, budget
	// thresholds). Defaults to runner.DefaultConfig.
	Config runner.Config

	// SystemPrompt is sent with every model request. It never enters the
	// conversation history.
	SystemPrompt string

	// WorkspaceRoot enables the built-in workspace tools (search_text,
	// list_files, find_symbol) rooted at the given directory. Empty disables
	// them.
	WorkspaceRoot string

	// Registry defaults to a fresh registry carrying update_plan,
	// submit_analysis and run_subagent, plus the workspace tools when
	// WorkspaceRoot is set.
	Registry *tool.Registry

	// Sessions defaults to a fresh in-memory session registry.
	Sessions *session.Registry

	// Logger defaults to NoOp logger if nil.
	Logger logging.Logger
}

// DiffScope is the high-level façade aggregating the runner and its services.
type DiffScope struct {
	opts     Options
	registry *tool.Registry
	runner   *runner.Runner
}

// New creates a DiffScope instance with optional overrides. An unset registry
// is initialized with the built-in tool set.
func New(client model.Client, optFns ...func(o *Options)) (*DiffScope, error) {
	opts := Options{
		Config: runner.DefaultConfig,
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Sessions == nil {
		opts.Sessions = session.NewRegistry()
	}

	registry := opts.Registry
	if registry == nil {
		registry = tool.NewRegistry()

		builtins := []tool.Tool{
			tool.NewUpdatePlanTool(),
			tool.NewSubmitAnalysisTool(),
			tool.NewSubagentTool(),
		}
		if opts.WorkspaceRoot != "" {
			builtins = append(builtins,
				tool.NewSearchTool(opts.WorkspaceRoot),
				tool.NewListFilesTool(opts.WorkspaceRoot, 0),
				tool.NewSymbolTool(opts.WorkspaceRoot),
			)
		}
		for _, t := range builtins {
			if err := registry.Register(t); err != nil {
				return nil, err
			}
		}
	}

	r := runner.New(client, registry, func(o *runner.Options) {
		o.Config = opts.Config
		o.SystemPrompt = opts.SystemPrompt
		o.Sessions = opts.Sessions
		o.Logger = opts.Logger
	})

	return &DiffScope{opts: opts, registry: registry, runner: r}, nil
}

// RegisterTool adds a custom tool to the underlying registry.
func (d *DiffScope) RegisterTool(t tool.Tool) error { return d.registry.Register(t) }

// Tools returns the names of all registered tools.
func (d *DiffScope) Tools() []string { return d.registry.Names() }

// Sessions returns the session registry backing the runner.
func (d *DiffScope) Sessions() *session.Registry { return d.runner.Sessions() }

// Analyze runs one full analysis over inputText and returns the final result.
func (d *DiffScope) Analyze(ctx context.Context, inputText string, optFns ...func(o *runner.AnalyzeOptions)) (*runner.Result, error) {
	return d.runner.Analyze(ctx, inputText, optFns...)
}

// AnalyzeWithProgress is a convenience wrapper that forwards progress events
// to the given callback.
func (d *DiffScope) AnalyzeWithProgress(ctx context.Context, inputText string, progress core.ProgressFunc) (*runner.Result, error) {
	return d.runner.Analyze(ctx, inputText, func(o *runner.AnalyzeOptions) {
		o.Progress = progress
	})
}
