package core

import "time"

// ProgressKind categorizes progress notifications emitted by the runner.
type ProgressKind string

const (
	// ProgressIteration fires at each iteration boundary of the analysis loop.
	ProgressIteration ProgressKind = "iteration"
	// ProgressToolCall fires when a dispatched tool call completes.
	ProgressToolCall ProgressKind = "tool_call"
)

// ProgressEvent is the payload passed to an optional progress callback.
// Tool is set for ProgressToolCall events; Subagent marks nested-analysis
// tool calls.
type ProgressEvent struct {
	Kind      ProgressKind
	Iteration int
	Tool      string
	Duration  time.Duration
	Success   bool
	Subagent  bool
}

// ProgressFunc receives progress notifications. It is invoked synchronously
// from the analysis goroutine and must return promptly.
type ProgressFunc func(ProgressEvent)
