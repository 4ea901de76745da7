package conversation

import (
	"testing"

	"github.com/diffscope/diffscope/core"
	"github.com/stretchr/testify/assert"
)

func TestStore_AddAndHistoryLength(t *testing.T) {
	s := NewStore()
	s.AddUser("one")
	s.AddAssistant(nil, core.ToolCallRef{ID: "c1", Name: "search_text"})
	s.AddTool("c1", "result")

	assert.Equal(t, 3, s.Len())
	assert.Len(t, s.History(), 3)
}

func TestStore_DeepCopyIsolation(t *testing.T) {
	s := NewStore()
	content := "original"
	msg := core.NewAssistantToolCallMessage(&content, core.ToolCallRef{ID: "c1", Name: "search_text"})
	s.Add(msg)

	// Mutating the caller's message after Add must not affect the store.
	*msg.Content = "caller-mutated"
	msg.ToolCalls[0].Name = "caller-mutated"

	h := s.History()
	assert.Equal(t, "original", *h[0].Content)
	assert.Equal(t, "search_text", h[0].ToolCalls[0].Name)

	// Mutating a returned copy must not affect subsequent reads.
	*h[0].Content = "reader-mutated"
	h[0].ToolCalls[0].Name = "reader-mutated"

	h2 := s.History()
	assert.Equal(t, "original", *h2[0].Content)
	assert.Equal(t, "search_text", h2[0].ToolCalls[0].Name)
}

func TestStore_PrependOrder(t *testing.T) {
	s := NewStore()
	s.AddUser("cur")

	m1 := core.NewUserMessage("m1")
	m2 := core.NewAssistantMessage("m2")
	s.Prepend([]core.Message{m1, m2})

	h := s.History()
	assert.Len(t, h, 3)
	assert.Equal(t, "m1", h[0].Text())
	assert.Equal(t, "m2", h[1].Text())
	assert.Equal(t, "cur", h[2].Text())
}

func TestStore_SliceNegativeIndices(t *testing.T) {
	s := NewStore()
	s.AddUser("a")
	s.AddUser("b")
	s.AddUser("c")
	s.AddUser("d")

	tail := s.Slice(-2)
	assert.Len(t, tail, 2)
	assert.Equal(t, "c", tail[0].Text())
	assert.Equal(t, "d", tail[1].Text())

	mid := s.Slice(1, -1)
	assert.Len(t, mid, 2)
	assert.Equal(t, "b", mid[0].Text())
	assert.Equal(t, "c", mid[1].Text())

	assert.Empty(t, s.Slice(3, 1))
	assert.Len(t, s.Slice(-100), 4)
}

func TestStore_ByRole(t *testing.T) {
	s := NewStore()
	s.AddUser("u1")
	s.AddAssistant(nil, core.ToolCallRef{ID: "c1", Name: "t"})
	s.AddTool("c1", "r1")
	s.AddUser("u2")

	users := s.ByRole(core.RoleUser)
	assert.Len(t, users, 2)
	assert.Equal(t, "u1", users[0].Text())
	assert.Equal(t, "u2", users[1].Text())

	assert.Empty(t, s.ByRole(core.RoleSystem))
}

func TestStore_Last(t *testing.T) {
	s := NewStore()
	_, ok := s.Last()
	assert.False(t, ok)

	s.AddUser("only")
	last, ok := s.Last()
	assert.True(t, ok)
	assert.Equal(t, "only", last.Text())
}

func TestStore_ClearIdempotent(t *testing.T) {
	s := NewStore()
	s.AddUser("x")
	s.Clear()
	assert.Equal(t, 0, s.Len())
	s.Clear()
	assert.Equal(t, 0, s.Len())
}

func TestStore_Replace(t *testing.T) {
	s := NewStore()
	s.AddUser("old")

	repl := []core.Message{core.NewUserMessage("new1"), core.NewAssistantMessage("new2")}
	s.Replace(repl)

	h := s.History()
	assert.Len(t, h, 2)
	assert.Equal(t, "new1", h[0].Text())

	// Replace took deep copies.
	*repl[0].Content = "mutated"
	assert.Equal(t, "new1", *s.History()[0].Content)
}
