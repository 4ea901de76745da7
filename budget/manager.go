package budget

import (
	"encoding/json"
	"fmt"

	"github.com/diffscope/diffscope/core"
	"github.com/diffscope/diffscope/logging"
)

// Action is the budget manager's suggestion for the next request.
type Action string

const (
	// ActionContinue means utilization is under the warning threshold.
	ActionContinue Action = "continue"
	// ActionRemoveOldContext means utilization is at or over the warning
	// threshold but under the hard max; the caller should evict old tool
	// interactions before the next request.
	ActionRemoveOldContext Action = "remove_old_context"
	// ActionRequestFinalAnswer means utilization is at or over the hard
	// max; the caller must instruct the model to conclude immediately.
	ActionRequestFinalAnswer Action = "request_final_answer"
)

// ContextFullNotice is the fixed synthetic user message appended after any
// eviction so the model is explicitly told why earlier tool output vanished.
const ContextFullNotice = "Note: the conversation context is nearly full, so older tool results " +
	"have been removed. Re-run a tool if you need that information again, or provide " +
	"your final analysis now."

// TokenCounter is the counting dependency, satisfied by model.Client.
type TokenCounter interface {
	CountTokens(text string) (int, error)
	MaxInputTokens() int
}

// Validation is the outcome of a budget check for a prospective request.
type Validation struct {
	TotalTokens     int
	MaxTokens       int
	SuggestedAction Action
}

// CleanupReport summarizes one eviction pass.
type CleanupReport struct {
	RemovedToolResults       int
	RemovedAssistantMessages int
	NoticeAppended           bool
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// WarningThreshold is the utilization fraction at which proactive
	// eviction begins (default 0.9).
	WarningThreshold float64
	// PerMessageOverhead is the fixed token cost added per message for
	// role/framing metadata (default 4).
	PerMessageOverhead int
	// MaxResponseSize is the inclusive character cap for tool responses
	// checked by IsResponseSizeAcceptable (default 50000).
	MaxResponseSize int
	// Logger defaults to NoOpLogger when nil.
	Logger logging.Logger
}

// Manager performs token accounting and eviction for one analysis. It holds
// no per-call mutable state and may be shared by a runner across iterations.
type Manager struct {
	counter            TokenCounter
	warningThreshold   float64
	perMessageOverhead int
	maxResponseSize    int
	logger             logging.Logger
}

// NewManager constructs a Manager over the given token counter.
func NewManager(counter TokenCounter, optFns ...func(o *ManagerOptions)) *Manager {
	opts := ManagerOptions{
		WarningThreshold:   0.9,
		PerMessageOverhead: 4,
		MaxResponseSize:    50000,
		Logger:             logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Manager{
		counter:            counter,
		warningThreshold:   opts.WarningThreshold,
		perMessageOverhead: opts.PerMessageOverhead,
		maxResponseSize:    opts.MaxResponseSize,
		logger:             opts.Logger,
	}
}

// Validate counts the projected cost of sending messages plus systemPrompt
// and classifies utilization. Counting failures return a conservative
// continue with zero tokens: counting is advisory, not load-bearing.
func (m *Manager) Validate(messages []core.Message, systemPrompt string) Validation {
	maxTokens := m.counter.MaxInputTokens()

	total, err := m.countRequest(messages, systemPrompt)
	if err != nil {
		m.logger.Warn("budget.count_failed", "error", err.Error())
		return Validation{TotalTokens: 0, MaxTokens: maxTokens, SuggestedAction: ActionContinue}
	}

	v := Validation{TotalTokens: total, MaxTokens: maxTokens}
	switch {
	case total >= maxTokens:
		v.SuggestedAction = ActionRequestFinalAnswer
	case float64(total) >= m.warningThreshold*float64(maxTokens):
		v.SuggestedAction = ActionRemoveOldContext
	default:
		v.SuggestedAction = ActionContinue
	}
	return v
}

// Cleanup repeatedly removes the oldest complete tool interaction (the
// earliest tool-role message plus the assistant message that issued the
// matching call, plus every sibling tool result of that same assistant turn)
// until projected utilization drops to or under targetUtilization, or no
// tool interactions remain. After any eviction a single context-full notice
// is appended. On any internal error the original messages are returned
// unchanged with a zero report.
func (m *Manager) Cleanup(messages []core.Message, systemPrompt string, targetUtilization float64) ([]core.Message, CleanupReport) {
	work := core.CloneMessages(messages)
	var report CleanupReport

	target := targetUtilization * float64(m.counter.MaxInputTokens())

	for {
		total, err := m.countRequest(work, systemPrompt)
		if err != nil {
			m.logger.Warn("budget.cleanup_count_failed", "error", err.Error())
			return core.CloneMessages(messages), CleanupReport{}
		}
		if float64(total) <= target {
			break
		}

		next, removedTools, removedAssistants := removeOldestInteraction(work)
		if removedTools == 0 && removedAssistants == 0 {
			break // no tool interactions remain
		}
		work = next
		report.RemovedToolResults += removedTools
		report.RemovedAssistantMessages += removedAssistants
	}

	if report.RemovedToolResults > 0 || report.RemovedAssistantMessages > 0 {
		work = append(work, core.NewUserMessage(ContextFullNotice))
		report.NoticeAppended = true

		m.logger.Info("budget.evicted",
			"tool_results", report.RemovedToolResults,
			"assistant_messages", report.RemovedAssistantMessages)
	}

	return work, report
}

// IsResponseSizeAcceptable reports whether a tool response fits the
// configured cap. The boundary is inclusive.
func (m *Manager) IsResponseSizeAcceptable(text string) bool {
	return len(text) <= m.maxResponseSize
}

// MaxResponseSize returns the configured tool-response character cap.
func (m *Manager) MaxResponseSize() int { return m.maxResponseSize }

// countRequest computes cost = tokens(systemPrompt) + per message
// [tokens(content) + tokens(JSON-encoded tool calls) + fixed overhead].
func (m *Manager) countRequest(messages []core.Message, systemPrompt string) (int, error) {
	total, err := m.counter.CountTokens(systemPrompt)
	if err != nil {
		return 0, fmt.Errorf("count system prompt: %w", err)
	}

	for _, msg := range messages {
		n, err := m.counter.CountTokens(msg.Text())
		if err != nil {
			return 0, fmt.Errorf("count message content: %w", err)
		}
		total += n

		if msg.HasToolCalls() {
			encoded, err := json.Marshal(msg.ToolCalls)
			if err != nil {
				return 0, fmt.Errorf("encode tool calls: %w", err)
			}
			n, err := m.counter.CountTokens(string(encoded))
			if err != nil {
				return 0, fmt.Errorf("count tool calls: %w", err)
			}
			total += n
		}

		total += m.perMessageOverhead
	}

	return total, nil
}

// removeOldestInteraction drops the earliest tool-role message together with
// the assistant message that issued its call and all of that turn's other
// tool results. An assistant turn with multiple calls loses every matching
// result in the same step, so no tool result is ever orphaned.
func removeOldestInteraction(messages []core.Message) ([]core.Message, int, int) {
	oldestTool := -1
	for i, msg := range messages {
		if msg.Role == core.RoleTool {
			oldestTool = i
			break
		}
	}
	if oldestTool == -1 {
		return messages, 0, 0
	}

	callID := messages[oldestTool].ToolCallID

	ownerIdx := -1
	for i, msg := range messages {
		if msg.Role != core.RoleAssistant {
			continue
		}
		for _, call := range msg.ToolCalls {
			if call.ID == callID {
				ownerIdx = i
				break
			}
		}
		if ownerIdx != -1 {
			break
		}
	}

	// No owning assistant turn: drop the orphaned tool result alone so the
	// pass still converges.
	if ownerIdx == -1 {
		out := append(messages[:oldestTool:oldestTool], messages[oldestTool+1:]...)
		return out, 1, 0
	}

	ownedIDs := make(map[string]bool, len(messages[ownerIdx].ToolCalls))
	for _, call := range messages[ownerIdx].ToolCalls {
		ownedIDs[call.ID] = true
	}

	out := make([]core.Message, 0, len(messages))
	removedTools := 0
	for i, msg := range messages {
		if i == ownerIdx {
			continue
		}
		if msg.Role == core.RoleTool && ownedIDs[msg.ToolCallID] {
			removedTools++
			continue
		}
		out = append(out, msg)
	}

	return out, removedTools, 1
}
