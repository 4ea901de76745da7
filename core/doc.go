// Package core defines the shared leaf types of diffscope: conversation
// messages and tool call references, structured tool execution results, the
// ExecutionContext handed to every tool invocation, the per-analysis call
// limiter and progress events. Higher-level packages (conversation, tool,
// budget, runner) depend on core; core depends on nothing but logging.
package core
