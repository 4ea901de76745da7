// Package model defines the provider-neutral language model client surface
// consumed by the analysis runner: a single-shot SendRequest carrying the
// full conversation history, system prompt and tool definitions, plus the
// token accounting hooks the budget manager relies on. Vendor adapters live
// in the anthropic and openai subpackages; MockClient serves tests and
// examples.
package model
