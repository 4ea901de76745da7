// Package testutil provides small shared helpers for package tests: stub
// implementations of the core handles and builders for conversation
// histories.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/diffscope/diffscope/core"
)

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

// RecordingPlan is a core.PlanHandle that records every update.
type RecordingPlan struct {
	mu      sync.Mutex
	updates []string
}

// UpdatePlan implements core.PlanHandle.
func (p *RecordingPlan) UpdatePlan(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, text)
}

// Plan implements core.PlanHandle.
func (p *RecordingPlan) Plan() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.updates) == 0 {
		return "", false
	}
	return p.updates[len(p.updates)-1], true
}

// Updates returns a copy of every recorded plan text in order.
func (p *RecordingPlan) Updates() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.updates))
	copy(out, p.updates)
	return out
}

// StubExecutor is a core.SubagentExecutor returning a canned answer or error.
type StubExecutor struct {
	Answer string
	Err    error

	mu    sync.Mutex
	tasks []string
}

// RunSubagent implements core.SubagentExecutor.
func (e *StubExecutor) RunSubagent(_ context.Context, task string) (string, error) {
	e.mu.Lock()
	e.tasks = append(e.tasks, task)
	e.mu.Unlock()
	if e.Err != nil {
		return "", e.Err
	}
	return e.Answer, nil
}

// Tasks returns every delegated task in order.
func (e *StubExecutor) Tasks() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.tasks))
	copy(out, e.tasks)
	return out
}

// Counter is a deterministic budget.TokenCounter: one token per character,
// with an optional forced error.
type Counter struct {
	MaxTokens int
	Err       error
}

// CountTokens implements the token counter with tokens == len(text).
func (c *Counter) CountTokens(text string) (int, error) {
	if c.Err != nil {
		return 0, c.Err
	}
	return len(text), nil
}

// MaxInputTokens implements the token counter.
func (c *Counter) MaxInputTokens() int { return c.MaxTokens }

// ToolTurn builds an assistant message carrying n tool calls plus the n
// matching tool result messages, for history fixtures. IDs follow the
// pattern "<prefix>-1" .. "<prefix>-n".
func ToolTurn(prefix, toolName string, results ...string) []core.Message {
	calls := make([]core.ToolCallRef, len(results))
	for i := range results {
		calls[i] = core.ToolCallRef{
			ID:        fmt.Sprintf("%s-%d", prefix, i+1),
			Name:      toolName,
			Arguments: "{}",
		}
	}

	out := []core.Message{core.NewAssistantToolCallMessage(nil, calls...)}
	for i, res := range results {
		out = append(out, core.NewToolMessage(calls[i].ID, res))
	}
	return out
}
