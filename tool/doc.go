// Package tool implements the tool calling subsystem: the name-keyed
// registry, the dispatcher that enforces every cross-cutting execution policy
// (cancellation precedence, call-count ceiling, schema validation, error and
// timeout normalization, response size capping, parallel and sequential
// fan-out), the FunctionTool adapter for plain Go functions, and the built-in
// analysis tools (text search, file listing, symbol lookup, plan updates,
// explicit completion and subagent delegation).
package tool
