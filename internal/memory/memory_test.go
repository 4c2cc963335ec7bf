package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/oversight/internal/memory"
	"github.com/kadirpekel/oversight/internal/message"
)

func TestAgentMemory_AddUserTask(t *testing.T) {
	m := memory.New()
	m.AddUserTask("do the thing")

	ctx := m.GetContext()
	require.Len(t, ctx, 1)
	assert.Equal(t, message.RoleUser, ctx[0].Role)
	assert.Equal(t, "do the thing", ctx[0].Content)

	trace := m.Trace()
	require.Len(t, trace, 1)
	assert.Equal(t, message.StepUserTask, trace[0].Kind)
}

func TestAgentMemory_Clear(t *testing.T) {
	m := memory.New()
	m.AddUserTask("task")
	require.NoError(t, m.AddAssistantMessage(context.Background(), message.Message{
		Role:      message.RoleAssistant,
		ToolCalls: []message.ToolCall{{ID: "1", Name: "search"}},
	}))
	require.NoError(t, m.AddObservation(context.Background(), message.Observation{ToolCallID: "1", Content: "ok", Success: true}))

	m.Clear()

	assert.Empty(t, m.Trace())
	assert.Empty(t, m.GetContext())
	stats := m.Stats(0)
	assert.Zero(t, stats.TraceSteps)
	assert.Zero(t, stats.ConversationMessages)
}

func TestAgentMemory_Stats_CountsActionsAndObservations(t *testing.T) {
	m := memory.New()
	m.AddUserTask("task")
	require.NoError(t, m.AddAssistantMessage(context.Background(), message.Message{
		Role:      message.RoleAssistant,
		ToolCalls: []message.ToolCall{{ID: "1", Name: "search"}},
	}))
	require.NoError(t, m.AddObservation(context.Background(), message.Observation{ToolCallID: "1", Content: "ok", Success: true}))

	stats := m.Stats(0)
	assert.Equal(t, 1, stats.UserTasks)
	assert.Equal(t, 1, stats.Actions)
	assert.Equal(t, 1, stats.Observations)
	assert.Equal(t, 1, stats.SuccessfulObservations)
	assert.Zero(t, stats.FailedObservations)
}

func TestAgentMemory_Stats_CountsFailedObservationsAndErrors(t *testing.T) {
	m := memory.New()
	m.AddUserTask("task")
	require.NoError(t, m.AddObservation(context.Background(), message.Observation{ToolCallID: "1", Content: "denied", Success: false}))
	m.AddErrorStep(message.LLMErrorStep(0, "rate limited"))

	stats := m.Stats(0)
	assert.Equal(t, 1, stats.FailedObservations)
	assert.Equal(t, 1, stats.Errors)
}

func TestAgentMemory_SlidingWindowEvictsOldest(t *testing.T) {
	m := memory.New(
		memory.WithPolicy(&memory.SlidingWindowPolicy{MaxMessages: 2}),
		memory.WithPreserveStrategy(memory.PreserveStrategy{PreserveInitialTask: true}),
	)
	m.AddUserTask("initial task")
	for i := 0; i < 5; i++ {
		require.NoError(t, m.AddAssistantMessage(context.Background(), message.Message{
			Role:    message.RoleAssistant,
			Content: "reply",
		}))
	}

	ctx := m.GetContext()
	require.Len(t, ctx, 2)
	assert.Equal(t, "initial task", ctx[0].Content, "preserved initial task survives eviction")
	assert.Equal(t, "reply", ctx[1].Content)

	trace := m.Trace()
	assert.Len(t, trace, 6, "trace is never evicted")
}

func TestAgentMemory_Utilization(t *testing.T) {
	m := memory.New()
	m.AddUserTask("task")
	require.NoError(t, m.AddAssistantMessage(context.Background(), message.Message{Role: message.RoleAssistant, Content: "reply"}))

	stats := m.Stats(4)
	assert.InDelta(t, 50.0, stats.UtilizationPercentage, 0.01)
}

func TestFIFOPolicy_PreservesErrorsOverLimit(t *testing.T) {
	p := &memory.FIFOPolicy{Config: memory.FIFOConfig{
		MaxMessages:    3,
		PreserveErrors: true,
		MinRecentCount: 1,
	}}
	view := []message.Message{
		{Role: message.RoleTool, Content: "tool failed: timeout"},
		{Role: message.RoleTool, Content: "ok"},
		{Role: message.RoleTool, Content: "ok"},
		{Role: message.RoleTool, Content: "ok"},
		{Role: message.RoleAssistant, Content: "final"},
	}

	out, err := p.Apply(context.Background(), view, memory.PreserveStrategy{}, nil)
	require.NoError(t, err)

	var sawFailure bool
	for _, m := range out {
		if m.Content == "tool failed: timeout" {
			sawFailure = true
		}
	}
	assert.True(t, sawFailure, "error-carrying message should survive eviction")
}

type stubSummarizer struct{ summary string }

func (s stubSummarizer) Summarize(context.Context, []message.Message) (string, error) {
	return s.summary, nil
}

func TestSummarizePolicy_CollapsesOldest(t *testing.T) {
	p := &memory.SummarizePolicy{MaxMessages: 4}
	view := []message.Message{
		{Role: message.RoleAssistant, Content: "1"},
		{Role: message.RoleAssistant, Content: "2"},
		{Role: message.RoleAssistant, Content: "3"},
		{Role: message.RoleAssistant, Content: "4"},
		{Role: message.RoleAssistant, Content: "5"},
	}

	out, err := p.Apply(context.Background(), view, memory.PreserveStrategy{}, stubSummarizer{summary: "recap"})
	require.NoError(t, err)

	require.NotEmpty(t, out)
	assert.Equal(t, message.RoleSystem, out[0].Role)
	assert.Equal(t, "recap", out[0].Content)
}
