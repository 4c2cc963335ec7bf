package llm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/oversight/internal/llm"
	"github.com/kadirpekel/oversight/internal/message"
)

func TestRepair_InsertsSyntheticResponseForOrphanedToolCall(t *testing.T) {
	in := []message.Message{
		{Role: message.RoleUser, Content: "go"},
		{Role: message.RoleAssistant, ToolCalls: []message.ToolCall{{ID: "call_1", Name: "search"}}},
		{Role: message.RoleUser, Content: "nevermind"},
	}

	out := llm.Repair(in)

	require.Len(t, out, 4)
	assert.Equal(t, message.RoleTool, out[2].Role)
	assert.Equal(t, "call_1", out[2].ToolCallID)
	assert.Equal(t, message.RoleUser, out[3].Role)
}

func TestRepair_ConvertsOrphanedToolResponseToSystem(t *testing.T) {
	in := []message.Message{
		{Role: message.RoleUser, Content: "go"},
		{Role: message.RoleTool, ToolCallID: "call_unknown", Content: "result body"},
	}

	out := llm.Repair(in)

	require.Len(t, out, 2)
	assert.Equal(t, message.RoleSystem, out[1].Role)
	assert.Equal(t, "Previous tool result: result body", out[1].Content)
}

func TestRepair_TruncatesLongOrphanBody(t *testing.T) {
	body := make([]byte, 3000)
	for i := range body {
		body[i] = 'x'
	}
	in := []message.Message{{Role: message.RoleTool, ToolCallID: "missing", Content: string(body)}}

	out := llm.Repair(in)

	require.Len(t, out, 1)
	assert.True(t, len(out[0].Content) < 2100)
	assert.Contains(t, out[0].Content, "...")
}

func TestRepair_WellFormedSequenceUnchanged(t *testing.T) {
	in := []message.Message{
		{Role: message.RoleUser, Content: "go"},
		{Role: message.RoleAssistant, ToolCalls: []message.ToolCall{{ID: "call_1", Name: "search"}}},
		{Role: message.RoleTool, ToolCallID: "call_1", Content: "ok"},
		{Role: message.RoleAssistant, Content: "done"},
	}

	out := llm.Repair(in)
	assert.Equal(t, in, out)
}

func TestRepair_FlushesPendingOnAssistantMessage(t *testing.T) {
	in := []message.Message{
		{Role: message.RoleUser, Content: "go"},
		{Role: message.RoleAssistant, ToolCalls: []message.ToolCall{{ID: "a", Name: "search"}}},
		{Role: message.RoleAssistant, ToolCalls: []message.ToolCall{{ID: "b", Name: "search"}}},
		{Role: message.RoleAssistant, ToolCalls: []message.ToolCall{{ID: "c", Name: "search"}}},
		{Role: message.RoleTool, ToolCallID: "b", Content: "ok"},
	}

	out := llm.Repair(in)

	require.Len(t, out, 8)
	assert.Equal(t, message.RoleTool, out[2].Role)
	assert.Equal(t, "a", out[2].ToolCallID)
	assert.Equal(t, "Previous tool result: ok", out[6].Content)
}

func TestRepair_IsIdempotent(t *testing.T) {
	in := []message.Message{
		{Role: message.RoleUser, Content: "go"},
		{Role: message.RoleAssistant, ToolCalls: []message.ToolCall{{ID: "call_1", Name: "search"}}},
		{Role: message.RoleUser, Content: "nevermind"},
	}

	once := llm.Repair(in)
	twice := llm.Repair(once)
	assert.Equal(t, once, twice)
}
