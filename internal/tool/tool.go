// Package tool implements the uniform tool invocation contract and the
// dispatcher that sits between the agent engine and every concrete tool
// category (spec §4.7). Grounded on the teacher's tool.Tool interface
// (pkg/tool) for the execute/metadata shape, and on v2/tool/approvaltool
// for the authorization-gated dispatch pattern.
package tool

import (
	"context"
	"fmt"
	"sync"

	"github.com/kadirpekel/oversight/internal/authz"
	"github.com/kadirpekel/oversight/internal/runtimeerr"
)

// Metadata describes a tool's name, description, and JSON-schema input
// shape, as handed to the LLM pipeline and the /tools endpoint.
type Metadata struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// Tool is the uniform invocation contract every category implements.
type Tool interface {
	Metadata() Metadata
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// ToolAssistantDone and ToolReportProgress are the reserved names of the
// dispatcher-owned control-plane tools; registering a regular tool under
// one of these names is rejected.
const (
	ToolAssistantDone  = "assistant_done"
	ToolReportProgress = "report_progress"
)

// ProgressStopReasons are report_progress reasons that hand control back
// to the client (spec §4.1).
var ProgressStopReasons = map[string]bool{
	"awaiting_input":     true,
	"pending_choice":     true,
	"need_clarification": true,
}

// Dispatch is the result of one tool invocation attempt, regardless of
// category, including the control-plane sentinel cases the engine must
// special-case.
type Dispatch struct {
	Content           string
	Success           bool
	IsControlPlane    bool
	TerminatesStep    bool
	FinalAnswer       string
	ProgressReason    string
	ProgressIsWaiting bool
}

// Registry holds every registered non-control-plane tool plus the
// authorization coordinator and per-tool failure-suppression counters.
type Registry struct {
	mu    sync.Mutex
	tools map[string]Tool
	authz *authz.Coordinator

	failureThreshold int
	consecutiveFails map[string]int
}

// NewRegistry builds an empty Registry. failureThreshold is the per-tool
// consecutive-failure count after which further calls are suppressed
// without dispatch (spec default 2).
func NewRegistry(coordinator *authz.Coordinator, failureThreshold int) *Registry {
	if failureThreshold <= 0 {
		failureThreshold = 2
	}
	return &Registry{
		tools:            make(map[string]Tool),
		authz:            coordinator,
		failureThreshold: failureThreshold,
		consecutiveFails: make(map[string]int),
	}
}

// SetAuthorizationCoordinator swaps the coordinator consulted by Dispatch,
// letting the engine's set_authorization_handler contract (spec §4.1) take
// effect without rebuilding the registry.
func (r *Registry) SetAuthorizationCoordinator(coordinator *authz.Coordinator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.authz = coordinator
}

// Register adds a non-control-plane tool. It panics on a name collision
// with the control-plane namespace, which is a programming error.
func (r *Registry) Register(t Tool) {
	name := t.Metadata().Name
	if name == ToolAssistantDone || name == ToolReportProgress {
		panic(fmt.Sprintf("tool name %q is reserved for the control plane", name))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = t
}

// List returns metadata for every registered tool, excluding control-plane
// tools (the /tools endpoint only surfaces user-dispatchable tools).
func (r *Registry) List() []Metadata {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Metadata, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.Metadata())
	}
	return out
}

// Dispatch executes one tool call: control-plane tools are handled inline
// and bypass authorization; everything else consults the per-tool
// failure-suppression counter, then the authorization coordinator, before
// invoking the underlying Tool.
func (r *Registry) Dispatch(ctx context.Context, toolCallID, name string, args map[string]any, step int) (Dispatch, error) {
	switch name {
	case ToolAssistantDone:
		summary, _ := args["summary"].(string)
		return Dispatch{Content: summary, Success: true, IsControlPlane: true, TerminatesStep: true, FinalAnswer: summary}, nil
	case ToolReportProgress:
		reason, _ := args["reason"].(string)
		progressCtx, _ := args["context"].(string)
		waiting := ProgressStopReasons[reason]
		return Dispatch{
			Content: progressCtx, Success: true, IsControlPlane: true,
			TerminatesStep: waiting, ProgressReason: reason, ProgressIsWaiting: waiting,
			FinalAnswer: progressCtx,
		}, nil
	}

	r.mu.Lock()
	t, ok := r.tools[name]
	suppressed := r.consecutiveFails[name] >= r.failureThreshold
	r.mu.Unlock()

	if !ok {
		return Dispatch{}, runtimeerr.New(runtimeerr.KindTool, fmt.Sprintf("unknown tool %q", name))
	}

	if suppressed {
		return Dispatch{
			Content: fmt.Sprintf("tool %q suppressed after %d consecutive failures", name, r.failureThreshold),
			Success: false,
		}, nil
	}

	if r.authz != nil {
		meta := t.Metadata()
		decision, err := r.authz.RequestAuthorization(ctx, authz.RequestContext{
			ToolCallID: toolCallID, ToolName: name, Description: meta.Description, Arguments: args, Step: step,
		})
		if err != nil {
			return Dispatch{}, runtimeerr.Wrap(runtimeerr.KindAuthFailed, "authorization request failed", err)
		}
		if decision == authz.DecisionNo {
			r.recordFailure(name)
			return Dispatch{Content: fmt.Sprintf("tool %q was denied authorization", name), Success: false}, nil
		}
	}

	content, err := t.Execute(ctx, args)
	if err != nil {
		r.recordFailure(name)
		return Dispatch{Content: err.Error(), Success: false}, nil
	}

	r.recordSuccess(name)
	return Dispatch{Content: content, Success: true}, nil
}

func (r *Registry) recordFailure(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consecutiveFails[name]++
}

func (r *Registry) recordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consecutiveFails[name] = 0
}
