package model

import (
	"context"
	"sync"

	"github.com/diffscope/diffscope/core"
)

// ToolDefinition declaratively exposes a callable tool to the model.
// Parameters is a JSON Schema object (minimal subset expected).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request captures one normalized model request: the literal conversation
// history, the system prompt and the available tool definitions.
type Request struct {
	SystemPrompt string           `json:"system_prompt"`
	Messages     []core.Message   `json:"messages"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
}

// Response is the model's reply to one request. Content may be nil when the
// turn consists solely of tool calls.
type Response struct {
	Content   *string            `json:"content"`
	ToolCalls []core.ToolCallRef `json:"tool_calls,omitempty"`
}

// Info contains metadata about a client implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"`
	SupportsTools bool   `json:"supports_tools"`
}

// Client is the minimal interface the runner and budget manager depend on.
// The core never depends on a specific provider beyond this shape.
type Client interface {
	// SendRequest performs one completion request, honoring ctx cancellation.
	SendRequest(ctx context.Context, req Request) (*Response, error)

	// CountTokens estimates the token cost of a text fragment.
	CountTokens(text string) (int, error)

	// MaxInputTokens returns the model's context window size in tokens.
	MaxInputTokens() int

	// Info returns information about the client implementation.
	Info() Info
}

// EstimateTokens is the byte heuristic (~4 characters per token) used by the
// provider adapters. Counting is advisory, so a cheap local estimate beats a
// network round-trip in the hot loop.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(text)/4 + 1
}

// MockTurn scripts one SendRequest outcome for MockClient.
type MockTurn struct {
	Response *Response
	Err      error
}

// MockClient is a scripted in-memory Client for tests and examples. Turns
// are consumed in order; when the script is exhausted a plain completion is
// returned. All recorded requests are retained for assertions.
type MockClient struct {
	mu             sync.Mutex
	turns          []MockTurn
	requests       []Request
	maxInputTokens int
	countErr       error
}

// NewMockClient constructs a MockClient with the given context window size.
func NewMockClient(maxInputTokens int) *MockClient {
	if maxInputTokens <= 0 {
		maxInputTokens = 100000
	}
	return &MockClient{maxInputTokens: maxInputTokens}
}

// EnqueueText scripts a plain assistant text response.
func (m *MockClient) EnqueueText(text string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, MockTurn{Response: &Response{Content: &text}})
	return m
}

// EnqueueToolCalls scripts an assistant response carrying tool calls.
func (m *MockClient) EnqueueToolCalls(content *string, calls ...core.ToolCallRef) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, MockTurn{Response: &Response{Content: content, ToolCalls: calls}})
	return m
}

// EnqueueError scripts a transport failure.
func (m *MockClient) EnqueueError(err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, MockTurn{Err: err})
	return m
}

// SetCountError makes CountTokens fail, for budget degradation tests.
func (m *MockClient) SetCountError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.countErr = err
}

// Requests returns a copy of every request seen so far.
func (m *MockClient) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// SendRequest implements Client.
func (m *MockClient) SendRequest(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	if len(m.turns) == 0 {
		text := "Mock analysis complete."
		return &Response{Content: &text}, nil
	}

	turn := m.turns[0]
	m.turns = m.turns[1:]
	if turn.Err != nil {
		return nil, turn.Err
	}
	return turn.Response, nil
}

// CountTokens implements Client using the shared estimate.
func (m *MockClient) CountTokens(text string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.countErr != nil {
		return 0, m.countErr
	}
	return EstimateTokens(text), nil
}

// MaxInputTokens implements Client.
func (m *MockClient) MaxInputTokens() int { return m.maxInputTokens }

// Info implements Client.
func (m *MockClient) Info() Info {
	return Info{Name: "mock", Provider: "mock", SupportsTools: true}
}
