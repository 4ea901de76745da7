package tool

import (
	"fmt"

	"github.com/diffscope/diffscope/core"
)

// updatePlanTool writes the analysis plan through the ExecutionContext's
// plan handle into the owning session slot. This is the single mutation a
// tool is allowed to perform on session state.
type updatePlanTool struct{}

// NewUpdatePlanTool constructs the plan update tool instance.
func NewUpdatePlanTool() Tool { return &updatePlanTool{} }

func (t *updatePlanTool) Name() string { return "update_plan" }

func (t *updatePlanTool) Description() string {
	return "Record or revise the current analysis plan. Call this before starting " +
		"multi-step investigations and whenever the plan changes."
}

func (t *updatePlanTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"plan": map[string]any{"type": "string", "description": "The full updated plan text"},
		},
		"required": []string{"plan"},
	}
}

func (t *updatePlanTool) Call(execCtx *core.ExecutionContext, args map[string]any) (any, error) {
	raw, ok := args["plan"]
	if !ok {
		return nil, fmt.Errorf("missing required field 'plan'")
	}
	plan, ok := raw.(string)
	if !ok || plan == "" {
		return nil, fmt.Errorf("field 'plan' must be non-empty string")
	}

	handle := execCtx.PlanHandle()
	if handle == nil {
		return nil, fmt.Errorf("plan state not configured")
	}
	handle.UpdatePlan(plan)

	return map[string]any{"updated": true}, nil
}
