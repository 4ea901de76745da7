package tool

import (
	"fmt"

	"github.com/diffscope/diffscope/core"
)

// subagentTool delegates a focused sub-task to a nested analysis via the
// ExecutionContext's executor handle. The nested run shares the parent's
// cancellation signal but gets entirely fresh conversation and dispatcher
// state, and its own session key.
type subagentTool struct{}

// NewSubagentTool constructs the subagent delegation tool instance.
func NewSubagentTool() Tool { return &subagentTool{} }

func (t *subagentTool) Name() string { return "run_subagent" }

func (t *subagentTool) Description() string {
	return "Delegate a focused sub-task to a nested analysis agent and return its " +
		"final answer. Use for self-contained questions whose full tool output " +
		"would crowd the main context."
}

func (t *subagentTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"task": map[string]any{"type": "string", "description": "Self-contained task description for the subagent"},
		},
		"required": []string{"task"},
	}
}

func (t *subagentTool) Call(execCtx *core.ExecutionContext, args map[string]any) (any, error) {
	raw, ok := args["task"]
	if !ok {
		return nil, fmt.Errorf("missing required field 'task'")
	}
	task, ok := raw.(string)
	if !ok || task == "" {
		return nil, fmt.Errorf("field 'task' must be non-empty string")
	}

	executor := execCtx.Executor()
	if executor == nil {
		return nil, fmt.Errorf("subagent execution not configured")
	}

	// Cancellation errors pass through untouched so the dispatcher can
	// propagate them instead of recording a tool failure.
	analysis, err := executor.RunSubagent(execCtx.Context(), task)
	if err != nil {
		return nil, err
	}

	return map[string]any{"analysis": analysis}, nil
}
