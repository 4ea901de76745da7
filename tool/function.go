package tool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/diffscope/diffscope/core"
	"github.com/diffscope/diffscope/internal/util"
)

// FunctionTool is a generic adapter that exposes a plain Go function as a
// diffscope tool.
//
// Responsibilities:
//   - Holds a lightweight JSON-Schema-like parameter specification
//   - Validates supplied arguments against that schema before execution
//   - Invokes the wrapped function with the *core.ExecutionContext
//   - Normalizes error handling so callers receive *ToolError with
//     consistent codes (VALIDATION_ERROR for schema mismatch,
//     EXECUTION_ERROR for plain errors, custom codes preserved when the
//     function returns *ToolError directly)
//
// A FunctionTool has no internal mutable state after construction and is
// safe for concurrent use by multiple goroutines.
type FunctionTool struct {
	// Tool identifier (snake_case recommended)
	name string
	// Human-readable description shown to models
	description string
	// JSON schema describing accepted arguments
	parameters map[string]any
	// User supplied implementation
	fn func(execCtx *core.ExecutionContext, args map[string]any) (any, error)
}

// NewFunctionTool constructs a FunctionTool from explicit schema and function.
//
// Example:
//
//	countTool := NewFunctionTool(
//	  "count_lines",
//	  "Count the lines in a text snippet",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "text": map[string]any{"type": "string"},
//	    },
//	    "required": []string{"text"},
//	  },
//	  func(ec *core.ExecutionContext, args map[string]any) (any, error) {
//	    return strings.Count(args["text"].(string), "\n") + 1, nil
//	  },
//	)
func NewFunctionTool(
	name, description string,
	parameters map[string]any,
	fn func(execCtx *core.ExecutionContext, args map[string]any) (any, error),
) *FunctionTool {
	return &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
	}
}

// NewFunctionToolFromStruct derives the parameter schema from a struct using
// reflection, equivalent to util.CreateSchema(structType).
func NewFunctionToolFromStruct(
	name, description string,
	structType any,
	fn func(execCtx *core.ExecutionContext, args map[string]any) (any, error),
) *FunctionTool {
	return NewFunctionTool(name, description, util.CreateSchema(structType), fn)
}

// Name returns the unique tool name used in tool declarations and routing.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the short natural language description exposed to models.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the JSON schema describing expected arguments.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// Call validates the provided args against the declared schema then invokes
// the underlying function. Validation or execution failures are wrapped (or
// passed through) as *ToolError for uniform downstream handling.
func (t *FunctionTool) Call(execCtx *core.ExecutionContext, args map[string]any) (any, error) {
	logger := execCtx.Logger()
	start := time.Now()

	logger.Debug("tool.call.start", "tool", t.name)

	if err := util.ValidateParameters(args, t.parameters); err != nil {
		logger.Warn("tool.call.validation_failed", "tool", t.name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
		}
	}

	result, err := t.fn(execCtx, args)
	if err != nil {
		if toolErr, ok := err.(*ToolError); ok { // already a ToolError -> forward
			logger.Warn("tool.call.error", "tool", t.name, "error", toolErr.Message)

			return nil, toolErr
		}

		// Cancellation must stay recognizable to the dispatcher.
		if errors.Is(err, context.Canceled) {
			return nil, err
		}

		logger.Warn("tool.call.error", "tool", t.name, "error", err.Error())

		code := CodeExecution
		if errors.Is(err, context.DeadlineExceeded) {
			code = CodeTimeout
		}

		return nil, &ToolError{
			Tool:    t.name,
			Message: err.Error(),
			Code:    code,
		}
	}

	logger.Info("tool.call.success", "tool", t.name, "duration_ms", time.Since(start).Milliseconds())

	return result, nil
}
