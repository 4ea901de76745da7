package conversation

import "github.com/diffscope/diffscope/core"

// Store is the append-only conversation log. Messages are immutable once
// stored; all accessors return clones. Insertion order is load-bearing: the
// history is the literal model request payload.
type Store struct {
	messages []core.Message
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Add appends a deep copy of the message; the caller's value is never
// referenced afterward.
func (s *Store) Add(m core.Message) {
	s.messages = append(s.messages, m.Clone())
}

// AddUser appends a user message.
func (s *Store) AddUser(text string) {
	s.Add(core.NewUserMessage(text))
}

// AddAssistant appends an assistant message. Content may be nil when the
// turn consists solely of tool calls.
func (s *Store) AddAssistant(content *string, calls ...core.ToolCallRef) {
	s.Add(core.NewAssistantToolCallMessage(content, calls...))
}

// AddTool appends a tool result message bound to toolCallID.
func (s *Store) AddTool(toolCallID, text string) {
	s.Add(core.NewToolMessage(toolCallID, text))
}

// History returns a fresh deep copy of the full ordered sequence.
func (s *Store) History() []core.Message {
	return core.CloneMessages(s.messages)
}

// Len returns the number of stored messages.
func (s *Store) Len() int { return len(s.messages) }

// Slice returns deep copies of messages[start:end]. Negative indices are
// tail-relative; end is optional and defaults to the full length. Out of
// range bounds clamp rather than panic.
func (s *Store) Slice(start int, end ...int) []core.Message {
	n := len(s.messages)
	stop := n
	if len(end) > 0 {
		stop = end[0]
	}
	start = clampIndex(start, n)
	stop = clampIndex(stop, n)
	if start >= stop {
		return []core.Message{}
	}
	return core.CloneMessages(s.messages[start:stop])
}

func clampIndex(i, n int) int {
	if i < 0 {
		i += n
	}
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}

// ByRole returns deep copies of all messages with the given role,
// order-preserving.
func (s *Store) ByRole(role core.Role) []core.Message {
	out := make([]core.Message, 0)
	for _, m := range s.messages {
		if m.Role == role {
			out = append(out, m.Clone())
		}
	}
	return out
}

// Last returns a copy of the last message, or false when the store is empty.
func (s *Store) Last() (core.Message, bool) {
	if len(s.messages) == 0 {
		return core.Message{}, false
	}
	return s.messages[len(s.messages)-1].Clone(), true
}

// Prepend inserts deep copies of msgs at the head, preserving their internal
// order ahead of the existing sequence. Used to splice retrieved prior
// context in front of the current turn.
func (s *Store) Prepend(msgs []core.Message) {
	if len(msgs) == 0 {
		return
	}
	head := core.CloneMessages(msgs)
	s.messages = append(head, s.messages...)
}

// Replace swaps the full history for deep copies of msgs. Used by the runner
// after budget eviction rewrites the conversation.
func (s *Store) Replace(msgs []core.Message) {
	s.messages = core.CloneMessages(msgs)
}

// Clear drops all messages. Idempotent.
func (s *Store) Clear() {
	s.messages = nil
}
