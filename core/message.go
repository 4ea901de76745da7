package core

import "github.com/google/uuid"

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleSystem marks instruction content supplied by the embedder.
	RoleSystem Role = "system"
	// RoleUser marks content attributed to the requesting user.
	RoleUser Role = "user"
	// RoleAssistant marks model-authored content, optionally carrying tool calls.
	RoleAssistant Role = "assistant"
	// RoleTool marks a tool execution result bound to an earlier tool call.
	RoleTool Role = "tool"
)

// ToolCallRef identifies one tool invocation requested by an assistant turn.
// Arguments holds the raw JSON argument payload as produced by the model;
// it is parsed lazily so malformed payloads surface as validation errors
// rather than transport failures.
type ToolCallRef struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one turn of a conversation. Messages are the literal model
// request payload, so insertion order is load-bearing.
//
// Invariants:
//   - a RoleTool message always carries a ToolCallID matching a ToolCallRef
//     of some earlier assistant message
//   - an assistant message with ToolCalls set may have a nil Content
type Message struct {
	Role       Role          `json:"role"`
	Content    *string       `json:"content"`
	ToolCalls  []ToolCallRef `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

// NewSystemMessage constructs a system instruction message.
func NewSystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: &text}
}

// NewUserMessage constructs a user message.
func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Content: &text}
}

// NewAssistantMessage constructs a plain assistant text message.
func NewAssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: &text}
}

// NewAssistantToolCallMessage constructs an assistant message carrying tool
// calls. Content may be nil when the model emitted calls without prose.
func NewAssistantToolCallMessage(content *string, calls ...ToolCallRef) Message {
	m := Message{Role: RoleAssistant, ToolCalls: append([]ToolCallRef(nil), calls...)}
	if content != nil {
		c := *content
		m.Content = &c
	}
	return m
}

// NewToolMessage constructs a tool result message bound to the originating
// tool call id.
func NewToolMessage(toolCallID, text string) Message {
	return Message{Role: RoleTool, Content: &text, ToolCallID: toolCallID}
}

// Clone returns a deep copy safe for independent mutation.
func (m Message) Clone() Message {
	c := m
	if m.Content != nil {
		s := *m.Content
		c.Content = &s
	}
	if m.ToolCalls != nil {
		c.ToolCalls = make([]ToolCallRef, len(m.ToolCalls))
		copy(c.ToolCalls, m.ToolCalls)
	}
	return c
}

// CloneMessages deep-copies a message slice preserving order.
func CloneMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

// Text returns the content string or "" when Content is nil.
func (m Message) Text() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

// HasToolCalls reports whether the message carries at least one tool call.
func (m Message) HasToolCalls() bool { return len(m.ToolCalls) > 0 }

// NewID generates a unique identifier for tool calls, analysis runs and
// session keys.
func NewID() string { return uuid.NewString() }
