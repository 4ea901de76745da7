package tool

import (
	"fmt"

	"github.com/diffscope/diffscope/core"
)

// SubmitToolName is the designated completion tool the runner watches for
// when explicit completion is required.
const SubmitToolName = "submit_analysis"

// submitAnalysisTool is the terminal act of an analysis in explicit
// completion mode. The runner extracts the final analysis text from the
// call's arguments; the tool itself only acknowledges.
type submitAnalysisTool struct{}

// NewSubmitAnalysisTool constructs the completion tool instance.
func NewSubmitAnalysisTool() Tool { return &submitAnalysisTool{} }

func (t *submitAnalysisTool) Name() string { return SubmitToolName }

func (t *submitAnalysisTool) Description() string {
	return "Submit the final analysis. Call exactly once, when the investigation is " +
		"complete; this ends the analysis."
}

func (t *submitAnalysisTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"analysis": map[string]any{"type": "string", "description": "The complete final analysis text"},
		},
		"required": []string{"analysis"},
	}
}

func (t *submitAnalysisTool) Call(_ *core.ExecutionContext, args map[string]any) (any, error) {
	raw, ok := args["analysis"]
	if !ok {
		return nil, fmt.Errorf("missing required field 'analysis'")
	}
	analysis, ok := raw.(string)
	if !ok || analysis == "" {
		return nil, fmt.Errorf("field 'analysis' must be non-empty string")
	}

	return map[string]any{"submitted": true}, nil
}
