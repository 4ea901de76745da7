package diffscope

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diffscope/diffscope/core"
	"github.com/diffscope/diffscope/model"
	"github.com/diffscope/diffscope/tool"
)

func TestNewDefaultRegistry(t *testing.T) {
	d, err := New(model.NewMockClient(0))
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"update_plan", "submit_analysis", "run_subagent"}, d.Tools())
}

func TestNewWithWorkspaceTools(t *testing.T) {
	d, err := New(model.NewMockClient(0), func(o *Options) {
		o.WorkspaceRoot = t.TempDir()
	})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		"update_plan", "submit_analysis", "run_subagent",
		"search_text", "list_files", "find_symbol",
	}, d.Tools())
}

func TestRegisterTool(t *testing.T) {
	d, err := New(model.NewMockClient(0))
	require.NoError(t, err)

	custom := tool.NewFunctionTool("custom", "test tool",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(_ *core.ExecutionContext, _ map[string]any) (any, error) { return "ok", nil })

	require.NoError(t, d.RegisterTool(custom))
	assert.Contains(t, d.Tools(), "custom")

	err = d.RegisterTool(custom)
	require.Error(t, err)
}

func TestAnalyzeEndToEnd(t *testing.T) {
	client := model.NewMockClient(0)
	client.EnqueueText("looks like a safe refactor")

	d, err := New(client, func(o *Options) {
		o.SystemPrompt = "You analyze diffs."
	})
	require.NoError(t, err)

	res, err := d.Analyze(context.Background(), "diff --git a/x b/x")
	require.NoError(t, err)

	assert.True(t, res.Completed)
	assert.Equal(t, "looks like a safe refactor", res.Analysis)

	reqs := client.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "You analyze diffs.", reqs[0].SystemPrompt)
	assert.Len(t, reqs[0].Tools, 3)
}
