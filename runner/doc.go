// Package runner drives the analysis conversation state machine: seed the
// conversation, request a completion, dispatch any tool calls in parallel,
// fold results back into history, consult the context budget, and loop until
// the model concludes or a ceiling is hit. Every Analyze invocation
// constructs its own conversation store, dispatcher and call counters so
// concurrent and nested analyses never share mutable state; only the tool
// registry is shared, read-only.
package runner
