package tool

import (
	"fmt"

	"github.com/diffscope/diffscope/core"
	"github.com/diffscope/diffscope/internal/util"
)

// Tool defines the closed interface every analysis capability implements.
//
// Tools receive an ExecutionContext giving access to the cancellation signal,
// the plan-state handle and the subagent executor. They must treat the
// context as read-only except for the plan handle's update operation, and
// should be stateless aside from whatever they close over.
type Tool interface {
	// Name returns the unique identifier for this tool (snake_case).
	Name() string

	// Description returns the human-readable description provided to the
	// model so it understands when and how to use the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected arguments.
	Parameters() map[string]any

	// Call executes the tool with validated arguments. Ordinary failures are
	// returned as errors and normalized to failure results by the
	// dispatcher; only cancellation may propagate as a context error.
	Call(execCtx *core.ExecutionContext, args map[string]any) (any, error)
}

// ValidationError re-exports the schema validation error type.
type ValidationError = util.ValidationError

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

// Error codes used across the dispatch layer.
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeExecution        = "EXECUTION_ERROR"
	CodeTimeout          = "TIMEOUT"
	CodeNotFound         = "NOT_FOUND"
	CodeRateLimit        = "RATE_LIMIT"
	CodeResponseTooLarge = "RESPONSE_TOO_LARGE"
)

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// DuplicateToolError is returned by Registry.Register when a tool name is
// already taken.
type DuplicateToolError struct {
	Name string
}

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("tool '%s' is already registered", e.Name)
}
