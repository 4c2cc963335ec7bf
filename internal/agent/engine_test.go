package agent_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/oversight/internal/agent"
	"github.com/kadirpekel/oversight/internal/authz"
	"github.com/kadirpekel/oversight/internal/llm"
	"github.com/kadirpekel/oversight/internal/loopdetect"
	"github.com/kadirpekel/oversight/internal/memory"
	"github.com/kadirpekel/oversight/internal/message"
	"github.com/kadirpekel/oversight/internal/runtimeerr"
	"github.com/kadirpekel/oversight/internal/tool"
)

type scriptedLLM struct {
	responses []llm.Response
	errs      []error
	i         int
}

func (s *scriptedLLM) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	idx := s.i
	s.i++
	var err error
	if idx < len(s.errs) {
		err = s.errs[idx]
	}
	var resp llm.Response
	if idx < len(s.responses) {
		resp = s.responses[idx]
	}
	return resp, err
}

type echoTool struct{ calls int }

func (t *echoTool) Metadata() tool.Metadata { return tool.Metadata{Name: "echo"} }
func (t *echoTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	t.calls++
	return "echoed", nil
}

func newTestEngine(t *testing.T, gen llm.Generator, registerTools func(*tool.Registry)) *agent.Engine {
	t.Helper()
	coord := authz.New(authz.WithMode(authz.ModeAlwaysAllow))
	registry := tool.NewRegistry(coord, 2)
	if registerTools != nil {
		registerTools(registry)
	}
	mem := memory.New()
	detector := loopdetect.New(loopdetect.DefaultConfig())
	return agent.New(agent.Config{MaxSteps: 5}, gen, registry, nil, mem, detector, coord)
}

func TestEngine_PlainTextResponseTerminatesStep(t *testing.T) {
	gen := &scriptedLLM{responses: []llm.Response{
		{Message: message.Message{Role: message.RoleAssistant, Content: "Final Answer: 42"}},
	}}
	e := newTestEngine(t, gen, nil)
	e.AddUserTaskToMemory("what is the answer")

	final, rec, err := e.RunStep(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "42", final)
	assert.Equal(t, agent.StateTerminated, e.State())
	assert.Empty(t, rec.ToolCalls)
}

func TestEngine_PlainContentWithoutMarkerIsFullText(t *testing.T) {
	gen := &scriptedLLM{responses: []llm.Response{
		{Message: message.Message{Role: message.RoleAssistant, Content: "just an answer"}},
	}}
	e := newTestEngine(t, gen, nil)
	e.AddUserTaskToMemory("task")

	final, _, err := e.RunStep(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "just an answer", final)
}

func TestEngine_DispatchesToolCallsSequentially(t *testing.T) {
	et := &echoTool{}
	gen := &scriptedLLM{responses: []llm.Response{
		{Message: message.Message{Role: message.RoleAssistant, ToolCalls: []message.ToolCall{
			{Name: "echo", Arguments: map[string]any{"x": 1}},
		}}},
	}}
	e := newTestEngine(t, gen, func(r *tool.Registry) { r.Register(et) })
	e.AddUserTaskToMemory("do it")

	final, rec, err := e.RunStep(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, final, "tool dispatch without assistant_done should not terminate")
	assert.Equal(t, 1, et.calls)
	require.Len(t, rec.Observations, 1)
	assert.True(t, rec.Observations[0].Success)
	assert.Equal(t, "echoed", rec.Observations[0].Content)
}

func TestEngine_AssistantDoneTerminatesWithSummary(t *testing.T) {
	gen := &scriptedLLM{responses: []llm.Response{
		{Message: message.Message{Role: message.RoleAssistant, ToolCalls: []message.ToolCall{
			{Name: tool.ToolAssistantDone, Arguments: map[string]any{"summary": "all done"}},
		}}},
	}}
	e := newTestEngine(t, gen, nil)
	e.AddUserTaskToMemory("task")

	final, rec, err := e.RunStep(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "all done", final)
	assert.Equal(t, agent.StateTerminated, e.State())
	assert.False(t, rec.ProgressWait)
}

func TestEngine_ReportProgressAwaitingInputTerminatesAsWaiting(t *testing.T) {
	gen := &scriptedLLM{responses: []llm.Response{
		{Message: message.Message{Role: message.RoleAssistant, ToolCalls: []message.ToolCall{
			{Name: tool.ToolReportProgress, Arguments: map[string]any{"reason": "awaiting_input", "context": "need more"}},
		}}},
	}}
	e := newTestEngine(t, gen, nil)
	e.AddUserTaskToMemory("task")

	final, rec, err := e.RunStep(context.Background(), 1)
	require.NoError(t, err)
	assert.NotEmpty(t, final)
	assert.True(t, rec.ProgressWait)
	assert.Equal(t, "awaiting_input", rec.ProgressReason)
}

func TestEngine_ReportProgressNonWaitingReasonContinuesRun(t *testing.T) {
	gen := &scriptedLLM{responses: []llm.Response{
		{Message: message.Message{Role: message.RoleAssistant, ToolCalls: []message.ToolCall{
			{Name: tool.ToolReportProgress, Arguments: map[string]any{"reason": "working", "context": "still going"}},
		}}},
	}}
	e := newTestEngine(t, gen, nil)
	e.AddUserTaskToMemory("task")

	final, rec, err := e.RunStep(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, final)
	assert.False(t, rec.ProgressWait)
}

func TestEngine_NeitherContentNorToolCallsIsLLMError(t *testing.T) {
	gen := &scriptedLLM{responses: []llm.Response{{Message: message.Message{Role: message.RoleAssistant}}}}
	e := newTestEngine(t, gen, nil)
	e.AddUserTaskToMemory("task")

	_, _, err := e.RunStep(context.Background(), 1)
	require.Error(t, err)
	var re *runtimeerr.RunError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, runtimeerr.KindLLM, re.Kind)
	assert.Equal(t, agent.StateFailed, e.State())
}

func TestEngine_MaxStepsExhausted(t *testing.T) {
	gen := &scriptedLLM{}
	e := newTestEngine(t, gen, nil)
	agentCfg := agent.Config{MaxSteps: 1}
	e.SetConfig(agentCfg)
	e.AddUserTaskToMemory("task")

	_, _, err := e.RunStep(context.Background(), 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, runtimeerr.ErrMaxStepsReached)
	assert.Equal(t, agent.StateMaxStepsExhausted, e.State())
}

func TestEngine_LoopDetectionFailsStepWithoutObservation(t *testing.T) {
	et := &echoTool{}
	call := message.ToolCall{Name: "echo", Arguments: map[string]any{"x": 1}}
	gen := &scriptedLLM{responses: []llm.Response{
		{Message: message.Message{Role: message.RoleAssistant, ToolCalls: []message.ToolCall{call}}},
		{Message: message.Message{Role: message.RoleAssistant, ToolCalls: []message.ToolCall{call}}},
		{Message: message.Message{Role: message.RoleAssistant, ToolCalls: []message.ToolCall{call}}},
	}}
	e := newTestEngine(t, gen, func(r *tool.Registry) { r.Register(et) })
	e.AddUserTaskToMemory("task")

	_, _, err := e.RunStep(context.Background(), 1)
	require.NoError(t, err)
	_, _, err = e.RunStep(context.Background(), 2)
	require.NoError(t, err)
	_, _, err = e.RunStep(context.Background(), 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, runtimeerr.ErrLoopDetection)
	assert.Equal(t, 2, et.calls, "third identical call should not dispatch")
}

func TestEngine_ClearMemoryResetsState(t *testing.T) {
	gen := &scriptedLLM{responses: []llm.Response{
		{Message: message.Message{Role: message.RoleAssistant, Content: "Final Answer: done"}},
	}}
	e := newTestEngine(t, gen, nil)
	e.AddUserTaskToMemory("task")
	_, _, err := e.RunStep(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, agent.StateTerminated, e.State())

	e.ClearMemory()
	assert.Equal(t, agent.StateIdle, e.State())
}
