package runner

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diffscope/diffscope/core"
	"github.com/diffscope/diffscope/model"
	"github.com/diffscope/diffscope/session"
	"github.com/diffscope/diffscope/tool"
)

func echoTool() tool.Tool {
	return tool.NewFunctionTool(
		"echo",
		"Echo the input text back",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text": map[string]any{"type": "string"},
			},
			"required": []string{"text"},
		},
		func(_ *core.ExecutionContext, args map[string]any) (any, error) {
			return "echo: " + args["text"].(string), nil
		},
	)
}

func newRegistry(t *testing.T, tools ...tool.Tool) *tool.Registry {
	t.Helper()
	reg := tool.NewRegistry()
	for _, tl := range tools {
		require.NoError(t, reg.Register(tl))
	}
	return reg
}

func TestAnalyzeCompletesWithoutToolCalls(t *testing.T) {
	client := model.NewMockClient(100000)
	client.EnqueueText("The change is a pure refactor.")

	r := New(client, newRegistry(t))

	res, err := r.Analyze(context.Background(), "Analyze this diff.")
	require.NoError(t, err)

	assert.True(t, res.Completed)
	assert.Equal(t, "The change is a pure refactor.", res.Analysis)
	assert.Empty(t, res.ToolCalls)

	reqs := client.Requests()
	require.Len(t, reqs, 1)
	require.Len(t, reqs[0].Messages, 1)
	assert.Equal(t, core.RoleUser, reqs[0].Messages[0].Role)
	assert.Equal(t, "Analyze this diff.", reqs[0].Messages[0].Text())
}

func TestAnalyzeSystemPromptSentSeparately(t *testing.T) {
	client := model.NewMockClient(100000)
	client.EnqueueText("done")

	r := New(client, newRegistry(t), func(o *Options) {
		o.SystemPrompt = "You are a code reviewer."
	})

	_, err := r.Analyze(context.Background(), "input")
	require.NoError(t, err)

	reqs := client.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "You are a code reviewer.", reqs[0].SystemPrompt)
	// The prompt travels on the request, never inside the history.
	for _, msg := range reqs[0].Messages {
		assert.NotEqual(t, core.RoleSystem, msg.Role)
	}
}

func TestAnalyzeToolCallRoundTrip(t *testing.T) {
	client := model.NewMockClient(100000)
	client.EnqueueToolCalls(nil, core.ToolCallRef{
		ID: "call-1", Name: "echo", Arguments: `{"text":"hello"}`,
	})
	client.EnqueueText("final answer")

	r := New(client, newRegistry(t, echoTool()))

	res, err := r.Analyze(context.Background(), "go")
	require.NoError(t, err)

	assert.True(t, res.Completed)
	assert.Equal(t, "final answer", res.Analysis)
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, "echo", res.ToolCalls[0].Name)
	assert.True(t, res.ToolCalls[0].Success)

	reqs := client.Requests()
	require.Len(t, reqs, 2)

	// Second request carries: user, assistant (with calls), tool result.
	msgs := reqs[1].Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, core.RoleUser, msgs[0].Role)
	assert.Equal(t, core.RoleAssistant, msgs[1].Role)
	require.Len(t, msgs[1].ToolCalls, 1)
	assert.Equal(t, core.RoleTool, msgs[2].Role)
	assert.Equal(t, "call-1", msgs[2].ToolCallID)
	assert.Equal(t, "echo: hello", msgs[2].Text())
}

func TestAnalyzeToolResultsPreserveCallOrder(t *testing.T) {
	client := model.NewMockClient(100000)
	client.EnqueueToolCalls(nil,
		core.ToolCallRef{ID: "call-a", Name: "echo", Arguments: `{"text":"first"}`},
		core.ToolCallRef{ID: "call-b", Name: "echo", Arguments: `{"text":"second"}`},
	)
	client.EnqueueText("done")

	r := New(client, newRegistry(t, echoTool()))

	res, err := r.Analyze(context.Background(), "go")
	require.NoError(t, err)
	require.Len(t, res.ToolCalls, 2)

	reqs := client.Requests()
	require.Len(t, reqs, 2)

	msgs := reqs[1].Messages
	require.Len(t, msgs, 4)
	assert.Equal(t, "call-a", msgs[2].ToolCallID)
	assert.Equal(t, "echo: first", msgs[2].Text())
	assert.Equal(t, "call-b", msgs[3].ToolCallID)
	assert.Equal(t, "echo: second", msgs[3].Text())
}

func TestAnalyzeUnknownToolBecomesFailureResult(t *testing.T) {
	client := model.NewMockClient(100000)
	client.EnqueueToolCalls(nil, core.ToolCallRef{
		ID: "call-1", Name: "nope", Arguments: `{}`,
	})
	client.EnqueueText("recovered")

	r := New(client, newRegistry(t))

	res, err := r.Analyze(context.Background(), "go")
	require.NoError(t, err)

	assert.True(t, res.Completed)
	require.Len(t, res.ToolCalls, 1)
	assert.False(t, res.ToolCalls[0].Success)

	reqs := client.Requests()
	require.Len(t, reqs, 2)
	toolMsg := reqs[1].Messages[2]
	assert.Equal(t, core.RoleTool, toolMsg.Role)
	assert.Contains(t, toolMsg.Text(), "Error:")
	assert.Contains(t, toolMsg.Text(), "'nope' not found")
}

func TestAnalyzeMalformedArgumentsSurfaceAsValidationFailure(t *testing.T) {
	client := model.NewMockClient(100000)
	client.EnqueueToolCalls(nil, core.ToolCallRef{
		ID: "call-1", Name: "echo", Arguments: `{not json`,
	})
	client.EnqueueText("recovered")

	r := New(client, newRegistry(t, echoTool()))

	res, err := r.Analyze(context.Background(), "go")
	require.NoError(t, err)

	assert.True(t, res.Completed)
	require.Len(t, res.ToolCalls, 1)
	assert.False(t, res.ToolCalls[0].Success)

	reqs := client.Requests()
	toolMsg := reqs[1].Messages[2]
	assert.Contains(t, toolMsg.Text(), "Invalid arguments")
}

func TestAnalyzeMaxIterationsNotice(t *testing.T) {
	client := model.NewMockClient(100000)
	for i := 0; i < 5; i++ {
		client.EnqueueToolCalls(nil, core.ToolCallRef{
			ID: "call", Name: "echo", Arguments: `{"text":"loop"}`,
		})
	}

	r := New(client, newRegistry(t, echoTool()), func(o *Options) {
		cfg := DefaultConfig
		cfg.MaxIterations = 3
		o.Config = cfg
	})

	res, err := r.Analyze(context.Background(), "go")
	require.NoError(t, err)

	assert.False(t, res.Completed)
	assert.Equal(t, MaxIterationsNotice, res.Analysis)
	assert.Len(t, res.ToolCalls, 3)
	assert.Len(t, client.Requests(), 3)
}

func TestAnalyzeModelErrorRetriesWithNote(t *testing.T) {
	client := model.NewMockClient(100000)
	client.EnqueueError(errors.New("rate limited upstream"))
	client.EnqueueText("succeeded on retry")

	r := New(client, newRegistry(t))

	res, err := r.Analyze(context.Background(), "go")
	require.NoError(t, err)

	assert.True(t, res.Completed)
	assert.Equal(t, "succeeded on retry", res.Analysis)

	reqs := client.Requests()
	require.Len(t, reqs, 2)

	// The retry request carries an assistant note about the failure.
	msgs := reqs[1].Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, core.RoleAssistant, msgs[1].Role)
	assert.Contains(t, msgs[1].Text(), "rate limited upstream")
}

func TestAnalyzeModelErrorOnLastIterationIsTerminal(t *testing.T) {
	client := model.NewMockClient(100000)
	client.EnqueueError(errors.New("boom"))

	r := New(client, newRegistry(t), func(o *Options) {
		cfg := DefaultConfig
		cfg.MaxIterations = 1
		o.Config = cfg
	})

	res, err := r.Analyze(context.Background(), "go")
	require.NoError(t, err)

	assert.False(t, res.Completed)
	assert.Equal(t, "boom", res.Error)
	assert.Contains(t, res.Analysis, "boom")
}

func TestAnalyzeCancellationPropagates(t *testing.T) {
	client := model.NewMockClient(100000)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := New(client, newRegistry(t))

	res, err := r.Analyze(ctx, "go")
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnalyzeCancellationDuringToolCall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	blocker := tool.NewFunctionTool(
		"block",
		"Cancels the run then observes it",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(execCtx *core.ExecutionContext, _ map[string]any) (any, error) {
			cancel()
			return nil, execCtx.Context().Err()
		},
	)

	client := model.NewMockClient(100000)
	client.EnqueueToolCalls(nil, core.ToolCallRef{
		ID: "call-1", Name: "block", Arguments: `{}`,
	})

	r := New(client, newRegistry(t, blocker))

	res, err := r.Analyze(ctx, "go")
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnalyzeRequireExplicitCompletion(t *testing.T) {
	client := model.NewMockClient(100000)
	// Plain text must not complete the run in explicit mode.
	client.EnqueueText("thinking out loud")
	client.EnqueueToolCalls(nil, core.ToolCallRef{
		ID: "call-1", Name: tool.SubmitToolName,
		Arguments: `{"analysis":"the verdict"}`,
	})

	r := New(client, newRegistry(t, tool.NewSubmitAnalysisTool()), func(o *Options) {
		cfg := DefaultConfig
		cfg.RequireExplicitCompletion = true
		o.Config = cfg
	})

	res, err := r.Analyze(context.Background(), "go")
	require.NoError(t, err)

	assert.True(t, res.Completed)
	assert.Equal(t, "the verdict", res.Analysis)
	assert.Len(t, client.Requests(), 2)
}

func TestAnalyzeSubagentDelegation(t *testing.T) {
	client := model.NewMockClient(100000)
	// Parent delegates; the nested run consumes the next scripted turn.
	client.EnqueueToolCalls(nil, core.ToolCallRef{
		ID: "call-1", Name: "run_subagent", Arguments: `{"task":"inspect the parser"}`,
	})
	client.EnqueueText("parser looks fine")
	client.EnqueueText("overall: fine")

	r := New(client, newRegistry(t, tool.NewSubagentTool()))

	res, err := r.Analyze(context.Background(), "go")
	require.NoError(t, err)

	assert.True(t, res.Completed)
	assert.Equal(t, "overall: fine", res.Analysis)

	require.Len(t, res.ToolCalls, 1)
	assert.True(t, res.ToolCalls[0].Subagent)
	assert.True(t, res.ToolCalls[0].Success)

	reqs := client.Requests()
	require.Len(t, reqs, 3)
	// The nested run starts from a fresh single-message history.
	require.Len(t, reqs[1].Messages, 1)
	assert.Equal(t, "inspect the parser", reqs[1].Messages[0].Text())
	// The subagent's answer lands in the parent's tool result.
	assert.Contains(t, reqs[2].Messages[2].Text(), "parser looks fine")
}

func TestAnalyzeSubagentLimit(t *testing.T) {
	// First delegation consumes the only slot, then the second must fail.
	client := model.NewMockClient(100000)
	client.EnqueueToolCalls(nil, core.ToolCallRef{
		ID: "c1", Name: "run_subagent", Arguments: `{"task":"one"}`,
	})
	client.EnqueueText("sub one done")
	client.EnqueueToolCalls(nil, core.ToolCallRef{
		ID: "c2", Name: "run_subagent", Arguments: `{"task":"two"}`,
	})
	client.EnqueueText("wrap up")

	r := New(client, newRegistry(t, tool.NewSubagentTool()), func(o *Options) {
		cfg := DefaultConfig
		cfg.MaxSubagents = 1
		o.Config = cfg
	})

	res, err := r.Analyze(context.Background(), "go")
	require.NoError(t, err)

	require.Len(t, res.ToolCalls, 2)
	assert.True(t, res.ToolCalls[0].Success)
	assert.False(t, res.ToolCalls[1].Success)

	reqs := client.Requests()
	last := reqs[len(reqs)-1].Messages
	rejection := last[len(last)-1]
	assert.Equal(t, core.RoleTool, rejection.Role)
	assert.Contains(t, rejection.Text(), "subagent limit exceeded")
}

func TestAnalyzePlanToolWritesSessionSlot(t *testing.T) {
	client := model.NewMockClient(100000)
	client.EnqueueToolCalls(nil, core.ToolCallRef{
		ID: "call-1", Name: "update_plan", Arguments: `{"plan":"1. read diff\n2. verdict"}`,
	})
	client.EnqueueText("done")

	sessions := session.NewRegistry()
	r := New(client, newRegistry(t, tool.NewUpdatePlanTool()), func(o *Options) {
		o.Sessions = sessions
	})

	res, err := r.Analyze(context.Background(), "go")
	require.NoError(t, err)
	assert.True(t, res.Completed)

	plan, ok := sessions.Scope(session.DefaultKey).Plan()
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(plan, "1. read diff"))
}

func TestAnalyzeProgressEvents(t *testing.T) {
	client := model.NewMockClient(100000)
	client.EnqueueToolCalls(nil, core.ToolCallRef{
		ID: "call-1", Name: "echo", Arguments: `{"text":"x"}`,
	})
	client.EnqueueText("done")

	r := New(client, newRegistry(t, echoTool()))

	var events []core.ProgressEvent
	_, err := r.Analyze(context.Background(), "go", func(o *AnalyzeOptions) {
		o.Progress = func(ev core.ProgressEvent) { events = append(events, ev) }
	})
	require.NoError(t, err)

	require.Len(t, events, 3)
	assert.Equal(t, core.ProgressIteration, events[0].Kind)
	assert.Equal(t, 1, events[0].Iteration)
	assert.Equal(t, core.ProgressToolCall, events[1].Kind)
	assert.Equal(t, "echo", events[1].Tool)
	assert.True(t, events[1].Success)
	assert.Equal(t, core.ProgressIteration, events[2].Kind)
	assert.Equal(t, 2, events[2].Iteration)
}

func TestAnalyzeBudgetRequestsFinalAnswer(t *testing.T) {
	// A tiny window forces request_final_answer on the first validation.
	client := model.NewMockClient(10)
	client.EnqueueText("forced conclusion")

	r := New(client, newRegistry(t))

	res, err := r.Analyze(context.Background(), strings.Repeat("long input ", 50))
	require.NoError(t, err)

	assert.True(t, res.Completed)
	assert.Equal(t, "forced conclusion", res.Analysis)

	reqs := client.Requests()
	require.Len(t, reqs, 1)
	msgs := reqs[0].Messages
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].Text(), "final analysis now")
}

func TestAnalyzeToolDefinitionsSorted(t *testing.T) {
	client := model.NewMockClient(100000)
	client.EnqueueText("done")

	r := New(client, newRegistry(t, echoTool(), tool.NewSubmitAnalysisTool(), tool.NewSubagentTool()))

	_, err := r.Analyze(context.Background(), "go")
	require.NoError(t, err)

	reqs := client.Requests()
	require.Len(t, reqs, 1)
	names := make([]string, len(reqs[0].Tools))
	for i, def := range reqs[0].Tools {
		names[i] = def.Name
	}
	assert.Equal(t, []string{"echo", "run_subagent", "submit_analysis"}, names)
}
