package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/diffscope/diffscope/budget"
	"github.com/diffscope/diffscope/conversation"
	"github.com/diffscope/diffscope/core"
	"github.com/diffscope/diffscope/logging"
	"github.com/diffscope/diffscope/model"
	"github.com/diffscope/diffscope/session"
	"github.com/diffscope/diffscope/tool"
)

// MaxIterationsNotice is the fixed analysis text reported when the iteration
// ceiling is hit before the model concludes.
const MaxIterationsNotice = "Analysis reached the maximum number of iterations; the conversation may be incomplete."

// finalAnswerDirective is injected when the context budget demands an
// immediate conclusion.
const finalAnswerDirective = "The context window is exhausted. Provide your final analysis now, " +
	"based on the information gathered so far. Do not call any more tools."

// modelErrorNote prefixes the assistant note recorded after a transport
// failure so a retry turn carries the failure context.
const modelErrorNote = "I encountered an error while contacting the model: "

// Config carries the read-only limits of one analysis. The zero value is not
// usable; start from DefaultConfig.
type Config struct {
	// MaxIterations caps model turns per analysis.
	MaxIterations int
	// MaxToolCalls caps dispatched tool calls per analysis.
	MaxToolCalls int
	// MaxResponseSize caps the serialized size of one tool result.
	MaxResponseSize int
	// RequestTimeout bounds a single model request (0 = unbounded).
	RequestTimeout time.Duration
	// WarningThreshold is the utilization fraction that triggers eviction.
	WarningThreshold float64
	// TargetUtilization is the fraction eviction shrinks the history to.
	TargetUtilization float64
	// MaxSubagents caps nested analyses spawned from one top-level run.
	MaxSubagents int
	// RequireExplicitCompletion makes a call to CompletionTool the only
	// terminal act; plain content responses keep the loop going.
	RequireExplicitCompletion bool
	// CompletionTool is the designated completion tool name.
	CompletionTool string
}

// DefaultConfig is the baseline configuration for interactive analyses.
var DefaultConfig = Config{
	MaxIterations:     25,
	MaxToolCalls:      50,
	MaxResponseSize:   50000,
	WarningThreshold:  0.9,
	TargetUtilization: 0.7,
	MaxSubagents:      3,
	CompletionTool:    tool.SubmitToolName,
}

// Options holds dependency and configuration overrides passed to New.
type Options struct {
	// Config carries the analysis limits (defaults to DefaultConfig).
	Config Config
	// SystemPrompt is sent with every model request.
	SystemPrompt string
	// Sessions is the plan/session registry (defaults to a fresh one).
	Sessions *session.Registry
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// Runner coordinates analysis execution against one model client and one
// shared tool registry. Public methods are safe for concurrent use; all
// per-analysis mutable state is constructed inside Analyze.
type Runner struct {
	client       model.Client
	registry     *tool.Registry
	cfg          Config
	systemPrompt string
	sessions     *session.Registry
	logger       logging.Logger
}

// New constructs a Runner with optional overrides.
func New(client model.Client, registry *tool.Registry, optFns ...func(o *Options)) *Runner {
	opts := Options{
		Config: DefaultConfig,
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Sessions == nil {
		opts.Sessions = session.NewRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Config.CompletionTool == "" {
		opts.Config.CompletionTool = tool.SubmitToolName
	}

	return &Runner{
		client:       client,
		registry:     registry,
		cfg:          opts.Config,
		systemPrompt: opts.SystemPrompt,
		sessions:     opts.Sessions,
		logger:       opts.Logger,
	}
}

// Sessions returns the session registry backing this runner.
func (r *Runner) Sessions() *session.Registry { return r.sessions }

// ToolCallRecord summarizes one dispatched tool call for the caller.
type ToolCallRecord struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
	Success  bool          `json:"success"`
	Subagent bool          `json:"subagent,omitempty"`
}

// Result is the outcome of one analysis.
type Result struct {
	Analysis  string           `json:"analysis"`
	ToolCalls []ToolCallRecord `json:"tool_calls,omitempty"`
	Completed bool             `json:"completed"`
	Error     string           `json:"error,omitempty"`
}

// AnalyzeOptions configures a single Analyze invocation.
type AnalyzeOptions struct {
	// Progress receives iteration and tool-call notifications.
	Progress core.ProgressFunc
	// SessionKey selects the session slot (defaults to session.DefaultKey).
	SessionKey string

	// internal: shared across a subagent tree
	subagentLimiter *core.CallLimiter
	subagentDepth   int
}

// Analyze runs the full conversation loop over inputText and returns the
// final analysis. Cancellation of ctx aborts all in-flight work and is
// returned as the context's error, never converted into a degraded Result.
// Every other failure mode degrades to a best-effort Result.
func (r *Runner) Analyze(ctx context.Context, inputText string, optFns ...func(o *AnalyzeOptions)) (*Result, error) {
	opts := AnalyzeOptions{SessionKey: session.DefaultKey}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.subagentLimiter == nil {
		opts.subagentLimiter = core.NewCallLimiter(r.cfg.MaxSubagents)
	}

	analysisID := core.NewID()
	logger := r.logger

	// Per-invocation state: never shared, never long-lived (see package doc).
	store := conversation.NewStore()
	dispatcher := tool.NewDispatcher(r.registry, func(o *tool.DispatcherOptions) {
		o.MaxCalls = r.cfg.MaxToolCalls
		o.MaxResponseSize = r.cfg.MaxResponseSize
		o.Logger = logger
	})
	budgetMgr := budget.NewManager(r.client, func(o *budget.ManagerOptions) {
		o.WarningThreshold = r.cfg.WarningThreshold
		o.MaxResponseSize = r.cfg.MaxResponseSize
		o.Logger = logger
	})

	execCtx := core.NewExecutionContext(ctx, func(o *core.ExecutionContextOptions) {
		o.Plan = r.sessions.Scope(opts.SessionKey)
		o.Executor = &subagentExecutor{
			runner:   r,
			limiter:  opts.subagentLimiter,
			progress: opts.Progress,
			depth:    opts.subagentDepth,
		}
		o.Logger = logger
	})

	store.AddUser(inputText)

	logger.Info("analysis.start", "analysis_id", analysisID, "session_key", opts.SessionKey, "subagent_depth", opts.subagentDepth)

	var records []ToolCallRecord
	finalAnswerRequested := false

	for iteration := 1; iteration <= r.cfg.MaxIterations; iteration++ {
		emitProgress(opts.Progress, core.ProgressEvent{
			Kind:      core.ProgressIteration,
			Iteration: iteration,
			Subagent:  opts.subagentDepth > 0,
		})

		r.applyBudget(store, budgetMgr, &finalAnswerRequested)

		resp, err := r.sendRequest(ctx, store)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			logger.Warn("analysis.model_error", "analysis_id", analysisID, "iteration", iteration, "error", err.Error())
			store.Add(core.NewAssistantMessage(modelErrorNote + err.Error()))

			if iteration == r.cfg.MaxIterations {
				return &Result{
					Analysis:  "Analysis failed: " + err.Error(),
					ToolCalls: records,
					Completed: false,
					Error:     err.Error(),
				}, nil
			}
			continue
		}

		if len(resp.ToolCalls) == 0 {
			text := ""
			if resp.Content != nil {
				text = *resp.Content
			}
			store.Add(core.NewAssistantMessage(text))

			if r.cfg.RequireExplicitCompletion {
				// Plain content is not a terminal act in this mode; keep
				// iterating until the completion tool is called.
				continue
			}

			logger.Info("analysis.completed", "analysis_id", analysisID, "iterations", iteration, "tool_calls", len(records))
			return &Result{Analysis: text, ToolCalls: records, Completed: true}, nil
		}

		store.AddAssistant(resp.Content, resp.ToolCalls...)

		requests, parsedArgs := buildRequests(resp.ToolCalls)

		results, durations, err := executeParallel(execCtx, dispatcher, requests)
		if err != nil {
			// Only cancellation escapes the dispatcher as an error.
			return nil, err
		}

		for i, res := range results {
			call := resp.ToolCalls[i]

			rec := ToolCallRecord{
				Name:     call.Name,
				Duration: durations[i],
				Success:  res.Success,
				Subagent: call.Name == "run_subagent",
			}
			records = append(records, rec)

			emitProgress(opts.Progress, core.ProgressEvent{
				Kind:      core.ProgressToolCall,
				Iteration: iteration,
				Tool:      call.Name,
				Duration:  durations[i],
				Success:   res.Success,
				Subagent:  rec.Subagent,
			})

			store.AddTool(call.ID, renderResult(res))
		}

		if analysis, done := r.checkExplicitCompletion(resp.ToolCalls, results, parsedArgs); done {
			logger.Info("analysis.completed", "analysis_id", analysisID, "iterations", iteration, "tool_calls", len(records))
			return &Result{Analysis: analysis, ToolCalls: records, Completed: true}, nil
		}
	}

	logger.Warn("analysis.max_iterations", "analysis_id", analysisID, "tool_calls", len(records))

	return &Result{Analysis: MaxIterationsNotice, ToolCalls: records, Completed: false}, nil
}

// applyBudget consults the budget manager and mutates the conversation
// according to the suggested action.
func (r *Runner) applyBudget(store *conversation.Store, budgetMgr *budget.Manager, finalAnswerRequested *bool) {
	validation := budgetMgr.Validate(store.History(), r.systemPrompt)

	switch validation.SuggestedAction {
	case budget.ActionRemoveOldContext:
		cleaned, report := budgetMgr.Cleanup(store.History(), r.systemPrompt, r.cfg.TargetUtilization)
		if report.RemovedToolResults > 0 || report.RemovedAssistantMessages > 0 {
			store.Replace(cleaned)
		}
	case budget.ActionRequestFinalAnswer:
		if !*finalAnswerRequested {
			store.AddUser(finalAnswerDirective)
			*finalAnswerRequested = true
		}
	}
}

// sendRequest performs one model request under the configured timeout.
func (r *Runner) sendRequest(ctx context.Context, store *conversation.Store) (*model.Response, error) {
	reqCtx := ctx
	if r.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, r.cfg.RequestTimeout)
		defer cancel()
	}

	return r.client.SendRequest(reqCtx, model.Request{
		SystemPrompt: r.systemPrompt,
		Messages:     store.History(),
		Tools:        r.toolDefinitions(),
	})
}

// toolDefinitions exposes the registry contents to the model, name-sorted
// for deterministic request payloads.
func (r *Runner) toolDefinitions() []model.ToolDefinition {
	tools := r.registry.All()
	defs := make([]model.ToolDefinition, len(tools))
	for i, t := range tools {
		defs[i] = model.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		}
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// buildRequests decodes each call's JSON arguments. Malformed JSON becomes
// an empty argument set so schema validation produces a precise tool-result
// error instead of crashing the loop.
func buildRequests(calls []core.ToolCallRef) ([]tool.Request, []map[string]any) {
	requests := make([]tool.Request, len(calls))
	parsed := make([]map[string]any, len(calls))

	for i, call := range calls {
		args := map[string]any{}
		if call.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
				args = map[string]any{}
			}
		}
		requests[i] = tool.Request{Name: call.Name, Args: args}
		parsed[i] = args
	}
	return requests, parsed
}

// executeParallel fans the turn's calls out through the dispatcher, timing
// each one. Results land in input order regardless of completion order; a
// cancellation observed by any call aborts the whole turn.
func executeParallel(execCtx *core.ExecutionContext, dispatcher *tool.Dispatcher, requests []tool.Request) ([]core.ToolExecutionResult, []time.Duration, error) {
	results := make([]core.ToolExecutionResult, len(requests))
	durations := make([]time.Duration, len(requests))
	errs := make([]error, len(requests))

	var wg sync.WaitGroup
	for i, req := range requests {
		wg.Add(1)
		go func(i int, req tool.Request) {
			defer wg.Done()
			start := time.Now()
			results[i], errs[i] = dispatcher.Execute(execCtx, req)
			durations[i] = time.Since(start)
		}(i, req)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, nil, err
		}
	}
	return results, durations, nil
}

// renderResult serializes a tool execution result into tool-message content.
func renderResult(res core.ToolExecutionResult) string {
	if !res.Success {
		return "Error: " + res.Error
	}
	if s, ok := res.Result.(string); ok {
		return s
	}
	data, err := json.Marshal(res.Result)
	if err != nil {
		return fmt.Sprintf("%v", res.Result)
	}
	return string(data)
}

// checkExplicitCompletion reports whether this turn carried a successful
// call to the designated completion tool, extracting the final analysis
// from that call's arguments.
func (r *Runner) checkExplicitCompletion(calls []core.ToolCallRef, results []core.ToolExecutionResult, parsedArgs []map[string]any) (string, bool) {
	for i, call := range calls {
		if call.Name != r.cfg.CompletionTool || !results[i].Success {
			continue
		}
		if analysis, ok := parsedArgs[i]["analysis"].(string); ok && analysis != "" {
			return analysis, true
		}
		return renderResult(results[i]), true
	}
	return "", false
}

// emitProgress guards against a nil callback.
func emitProgress(fn core.ProgressFunc, ev core.ProgressEvent) {
	if fn != nil {
		fn(ev)
	}
}

// subagentExecutor implements core.SubagentExecutor by running a nested
// analysis with a fresh session key and entirely fresh per-run state, while
// sharing the parent's cancellation and the tree-wide subagent budget.
type subagentExecutor struct {
	runner   *Runner
	limiter  *core.CallLimiter
	progress core.ProgressFunc
	depth    int
}

// RunSubagent implements core.SubagentExecutor.
func (e *subagentExecutor) RunSubagent(ctx context.Context, task string) (string, error) {
	count, ok := e.limiter.Increment()
	if !ok {
		return "", fmt.Errorf("subagent limit exceeded: %d subagents started, maximum %d", count, e.limiter.Max())
	}

	key := e.runner.sessions.NewSessionKey()

	res, err := e.runner.Analyze(ctx, task, func(o *AnalyzeOptions) {
		o.SessionKey = key
		o.Progress = e.progress
		o.subagentLimiter = e.limiter
		o.subagentDepth = e.depth + 1
	})
	if err != nil {
		return "", err // cancellation propagates untouched
	}
	if res.Error != "" {
		return "", errors.New(res.Error)
	}
	return res.Analysis, nil
}
