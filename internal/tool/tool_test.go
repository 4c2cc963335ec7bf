package tool_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/oversight/internal/authz"
	"github.com/kadirpekel/oversight/internal/tool"
)

type fakeTool struct {
	name    string
	calls   int
	failN   int // fail the first failN calls, then succeed
	lastErr error
}

func (f *fakeTool) Metadata() tool.Metadata {
	return tool.Metadata{Name: f.name, Description: "fake"}
}

func (f *fakeTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	f.calls++
	if f.calls <= f.failN {
		return "", assertAnError
	}
	return "ok", nil
}

var assertAnError = &testError{"boom"}

type testError struct{ s string }

func (e *testError) Error() string { return e.s }

func TestRegistry_DispatchesRegisteredTool(t *testing.T) {
	coord := authz.New(authz.WithMode(authz.ModeAlwaysAllow))
	reg := tool.NewRegistry(coord, 2)
	ft := &fakeTool{name: "echo"}
	reg.Register(ft)

	d, err := reg.Dispatch(context.Background(), "call-1", "echo", map[string]any{}, 1)
	require.NoError(t, err)
	assert.True(t, d.Success)
	assert.Equal(t, "ok", d.Content)
}

func TestRegistry_UnknownToolErrors(t *testing.T) {
	coord := authz.New(authz.WithMode(authz.ModeAlwaysAllow))
	reg := tool.NewRegistry(coord, 2)

	_, err := reg.Dispatch(context.Background(), "call-1", "nope", map[string]any{}, 1)
	assert.Error(t, err)
}

func TestRegistry_DeniedAuthorizationProducesFailureObservation(t *testing.T) {
	coord := authz.New(authz.WithMode(authz.ModeAlwaysDeny))
	reg := tool.NewRegistry(coord, 2)
	reg.Register(&fakeTool{name: "echo"})

	d, err := reg.Dispatch(context.Background(), "call-1", "echo", map[string]any{}, 1)
	require.NoError(t, err)
	assert.False(t, d.Success)
	assert.Contains(t, d.Content, "denied")
}

func TestRegistry_SuppressesAfterConsecutiveFailures(t *testing.T) {
	coord := authz.New(authz.WithMode(authz.ModeAlwaysAllow))
	reg := tool.NewRegistry(coord, 2)
	ft := &fakeTool{name: "flaky", failN: 10}
	reg.Register(ft)

	d1, err := reg.Dispatch(context.Background(), "c1", "flaky", map[string]any{}, 1)
	require.NoError(t, err)
	assert.False(t, d1.Success)

	d2, err := reg.Dispatch(context.Background(), "c2", "flaky", map[string]any{}, 2)
	require.NoError(t, err)
	assert.False(t, d2.Success)

	// Third call should be suppressed without dispatch (calls counter frozen).
	d3, err := reg.Dispatch(context.Background(), "c3", "flaky", map[string]any{}, 3)
	require.NoError(t, err)
	assert.False(t, d3.Success)
	assert.Contains(t, d3.Content, "suppressed")
	assert.Equal(t, 2, ft.calls)
}

func TestRegistry_SuccessResetsFailureCounter(t *testing.T) {
	coord := authz.New(authz.WithMode(authz.ModeAlwaysAllow))
	reg := tool.NewRegistry(coord, 2)
	ft := &fakeTool{name: "recovering", failN: 1}
	reg.Register(ft)

	d1, _ := reg.Dispatch(context.Background(), "c1", "recovering", map[string]any{}, 1)
	assert.False(t, d1.Success)

	d2, _ := reg.Dispatch(context.Background(), "c2", "recovering", map[string]any{}, 2)
	assert.True(t, d2.Success)

	d3, _ := reg.Dispatch(context.Background(), "c3", "recovering", map[string]any{}, 3)
	assert.True(t, d3.Success)
}

func TestRegistry_AssistantDoneBypassesAuthorizationAndTerminatesStep(t *testing.T) {
	coord := authz.New(authz.WithMode(authz.ModeAlwaysDeny))
	reg := tool.NewRegistry(coord, 2)

	d, err := reg.Dispatch(context.Background(), "c1", tool.ToolAssistantDone, map[string]any{"summary": "done"}, 1)
	require.NoError(t, err)
	assert.True(t, d.IsControlPlane)
	assert.True(t, d.TerminatesStep)
	assert.Equal(t, "done", d.FinalAnswer)
}

func TestRegistry_ReportProgressTerminatesOnlyForWaitingReasons(t *testing.T) {
	coord := authz.New(authz.WithMode(authz.ModeAlwaysAllow))
	reg := tool.NewRegistry(coord, 2)

	waiting, err := reg.Dispatch(context.Background(), "c1", tool.ToolReportProgress,
		map[string]any{"reason": "awaiting_input", "context": "need more info"}, 1)
	require.NoError(t, err)
	assert.True(t, waiting.TerminatesStep)
	assert.True(t, waiting.ProgressIsWaiting)

	notWaiting, err := reg.Dispatch(context.Background(), "c2", tool.ToolReportProgress,
		map[string]any{"reason": "working", "context": "still going"}, 2)
	require.NoError(t, err)
	assert.False(t, notWaiting.TerminatesStep)
	assert.False(t, notWaiting.ProgressIsWaiting)
}

func TestRegistry_RegisterPanicsOnControlPlaneNameCollision(t *testing.T) {
	coord := authz.New(authz.WithMode(authz.ModeAlwaysAllow))
	reg := tool.NewRegistry(coord, 2)

	assert.Panics(t, func() {
		reg.Register(&fakeTool{name: tool.ToolAssistantDone})
	})
}

func TestRegistry_ListExcludesControlPlaneTools(t *testing.T) {
	coord := authz.New(authz.WithMode(authz.ModeAlwaysAllow))
	reg := tool.NewRegistry(coord, 2)
	reg.Register(&fakeTool{name: "echo"})

	list := reg.List()
	require.Len(t, list, 1)
	assert.Equal(t, "echo", list[0].Name)
}
