package core

// ToolExecutionResult is the tagged outcome of a single dispatched tool call.
// Exactly one of Result / Error is meaningful: Result on success, Error on
// failure. Ordinary tool failures travel inside the conversation as data so
// the model can self-correct; they are never raised as Go errors.
type ToolExecutionResult struct {
	Name    string `json:"name"`
	Success bool   `json:"success"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// SuccessResult constructs a successful execution result.
func SuccessResult(name string, value any) ToolExecutionResult {
	return ToolExecutionResult{Name: name, Success: true, Result: value}
}

// FailureResult constructs a failed execution result carrying an error message.
func FailureResult(name, message string) ToolExecutionResult {
	return ToolExecutionResult{Name: name, Success: false, Error: message}
}
