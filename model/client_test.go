package model

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diffscope/diffscope/core"
)

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 2, EstimateTokens("abcd"))
	assert.Equal(t, 26, EstimateTokens(strings.Repeat("a", 100)))
}

func TestMockClientScriptedTurns(t *testing.T) {
	m := NewMockClient(1000)
	m.EnqueueText("first").
		EnqueueToolCalls(nil, core.ToolCallRef{ID: "c1", Name: "echo", Arguments: "{}"}).
		EnqueueError(errors.New("transport down"))

	resp, err := m.SendRequest(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "first", *resp.Content)

	resp, err = m.SendRequest(context.Background(), Request{})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "echo", resp.ToolCalls[0].Name)

	_, err = m.SendRequest(context.Background(), Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transport down")

	// Exhausted scripts fall back to a plain completion.
	resp, err = m.SendRequest(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "Mock analysis complete.", *resp.Content)
}

func TestMockClientRecordsRequests(t *testing.T) {
	m := NewMockClient(1000)

	_, err := m.SendRequest(context.Background(), Request{SystemPrompt: "sp"})
	require.NoError(t, err)

	reqs := m.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "sp", reqs[0].SystemPrompt)
}

func TestMockClientHonorsCancellation(t *testing.T) {
	m := NewMockClient(1000)
	m.EnqueueText("never seen")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.SendRequest(ctx, Request{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, m.Requests())
}

func TestMockClientCountError(t *testing.T) {
	m := NewMockClient(1000)

	n, err := m.CountTokens("hello world")
	require.NoError(t, err)
	assert.Equal(t, EstimateTokens("hello world"), n)

	m.SetCountError(errors.New("counting offline"))
	_, err = m.CountTokens("hello world")
	require.Error(t, err)
}

func TestMockClientInfo(t *testing.T) {
	m := NewMockClient(0)
	assert.Equal(t, 100000, m.MaxInputTokens())
	assert.True(t, m.Info().SupportsTools)
}
