// Package agent implements the step-by-step Reason/Act/Observe execution
// engine (spec §4.1). Grounded on the teacher's
// pkg/reasoning/chain_of_thought_strategy.go for the iterate-until-stop
// shape and pkg/agent/execution_state.go for the phase/state-machine
// naming idiom, generalized from the teacher's A2A task lifecycle into the
// spec's simpler Idle/Running/Terminated/Failed/MaxStepsExhausted engine.
package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/kadirpekel/oversight/internal/authz"
	"github.com/kadirpekel/oversight/internal/llm"
	"github.com/kadirpekel/oversight/internal/loopdetect"
	"github.com/kadirpekel/oversight/internal/memory"
	"github.com/kadirpekel/oversight/internal/message"
	"github.com/kadirpekel/oversight/internal/runtimeerr"
	"github.com/kadirpekel/oversight/internal/tool"
)

// State is the engine's coarse lifecycle state (spec §4.1 state machine).
type State string

const (
	StateIdle              State = "idle"
	StateRunning           State = "running"
	StateTerminated        State = "terminated"
	StateFailed            State = "failed"
	StateMaxStepsExhausted State = "max_steps_exhausted"
)

// finalAnswerMarker is the prompt-author contract of spec §4.1 step 5: when
// present, everything after it (trimmed) is the final answer, not the raw
// content.
const finalAnswerMarker = "Final Answer:"

// waitingSentinel is the final answer substituted when a report_progress
// call terminates the step to hand control back to the client.
const waitingSentinel = "[waiting for input]"

// TraceHandler observes every HistoryStep as it is appended, independent
// of memory's own trace storage; used by the streaming bridge to mirror
// steps into events without re-reading memory after each step.
type TraceHandler func(step message.HistoryStep)

// StepRecord is the per-step outcome the bridge and callers inspect
// alongside the terminal (optional) final answer.
type StepRecord struct {
	StepNumber     int
	AssistantText  string
	ToolCalls      []message.ToolCall
	Observations   []message.Observation
	ProgressWait   bool
	ProgressReason string
}

// Config tunes one engine instance.
type Config struct {
	SystemPrompt string
	MaxSteps     int
}

// Engine drives the Reason/Act/Observe loop for a single agent/run.
// Grounded on pkg/agent/agent.go's single-owner-mutex pattern: spec §5
// requires the entire engine instance be guarded by one mutex held across
// a step's suspension points (LLM call, tool dispatch, authorization
// await), so HTTP handlers that need the engine simply queue on Run/RunStep.
type Engine struct {
	mu sync.Mutex

	cfg         Config
	llmPipeline llm.Generator
	tools       *tool.Registry
	toolSpecs   []llm.ToolSpec
	memory      *memory.AgentMemory
	detector    *loopdetect.Detector
	authz       *authz.Coordinator

	state        State
	failedKind   runtimeerr.Kind
	traceHandler TraceHandler
}

// New builds an Engine wired to its collaborators. Either of detector/authz
// may be nil; a nil detector disables loop detection. The coordinator is
// only stored on the engine: tool calls are authorized by the coordinator
// the registry holds, and a registry with a nil coordinator dispatches
// every call without asking.
func New(cfg Config, pipeline llm.Generator, tools *tool.Registry, toolSpecs []llm.ToolSpec, mem *memory.AgentMemory, detector *loopdetect.Detector, coordinator *authz.Coordinator) *Engine {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 25
	}
	return &Engine{
		cfg:         cfg,
		llmPipeline: pipeline,
		tools:       tools,
		toolSpecs:   toolSpecs,
		memory:      mem,
		detector:    detector,
		authz:       coordinator,
		state:       StateIdle,
	}
}

// SetTraceHandler installs the handler invoked for every appended
// HistoryStep during subsequent steps.
func (e *Engine) SetTraceHandler(h TraceHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.traceHandler = h
}

// SetAuthorizationHandler swaps the authorization coordinator consulted by
// the tool dispatcher (spec §4.1: set_authorization_handler).
func (e *Engine) SetAuthorizationHandler(coordinator *authz.Coordinator) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.authz = coordinator
	e.tools.SetAuthorizationCoordinator(coordinator)
}

// FailedKind reports the runtimeerr.Kind of the most recent failure, valid
// only when State() == StateFailed.
func (e *Engine) FailedKind() runtimeerr.Kind {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failedKind
}

// SetConfig replaces the engine's tunables (system prompt, max steps).
func (e *Engine) SetConfig(cfg Config) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = e.cfg.MaxSteps
	}
	e.cfg = cfg
}

// State reports the engine's current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// AddUserTaskToMemory records the initial task (spec §4.1:
// add_user_task_to_memory). Any RAG decoration is the caller's
// responsibility before this call, since the RAG collaborator is out of
// scope here (spec.md §1).
func (e *Engine) AddUserTaskToMemory(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.memory.AddUserTask(text)
	e.emitTrace(message.UserTaskStep(0, text))
}

// ClearMemory wipes both trace and conversation view and resets the loop
// detector and engine state, ready for the next invocation.
func (e *Engine) ClearMemory() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.memory.Clear()
	if e.detector != nil {
		e.detector.Clear()
	}
	e.state = StateIdle
}

// ResetLoopDetector clears only the loop detector window, used by the
// streaming bridge's LoopDetection recovery policy (spec §4.2) without
// discarding memory.
func (e *Engine) ResetLoopDetector() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.detector != nil {
		e.detector.Clear()
	}
}

// InjectSystemMessage appends a System message directly into the
// conversation view, used by the bridge's loop-recovery notice.
func (e *Engine) InjectSystemMessage(ctx context.Context, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.memory.AddAssistantMessage(ctx, message.Message{Role: message.RoleSystem, Content: text})
}

func (e *Engine) emitTrace(step message.HistoryStep) {
	if e.traceHandler != nil {
		e.traceHandler(step)
	}
}

// RunStep executes exactly one iteration of the per-step algorithm (spec
// §4.1). It returns the final answer (non-empty) once the step terminates,
// along with the StepRecord describing what happened; a nil error with an
// empty final answer means the run should continue with another step.
func (e *Engine) RunStep(ctx context.Context, stepNumber int) (string, StepRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cfg.MaxSteps > 0 && stepNumber > e.cfg.MaxSteps {
		e.state = StateMaxStepsExhausted
		return "", StepRecord{}, runtimeerr.Wrap(runtimeerr.KindMaxSteps, fmt.Sprintf("exceeded max steps (%d)", e.cfg.MaxSteps), runtimeerr.ErrMaxStepsReached)
	}
	e.state = StateRunning

	rec := StepRecord{StepNumber: stepNumber}

	// Step 1: build the message list.
	messages := e.memory.GetContext()
	if e.cfg.SystemPrompt != "" {
		messages = append([]message.Message{{Role: message.RoleSystem, Content: e.cfg.SystemPrompt}}, messages...)
	}

	// Step 2: compute the tool set (control-plane tools are advertised as
	// regular tool specs so the model can call them; dispatch still routes
	// them through the registry's control-plane branch).
	specs := append([]llm.ToolSpec(nil), e.toolSpecs...)
	specs = append(specs, controlPlaneSpecs()...)

	// Step 3: invoke the LLM pipeline.
	resp, err := e.llmPipeline.Generate(ctx, llm.Request{Messages: messages, Tools: specs})
	if err != nil {
		e.state = StateFailed
		e.failedKind = runtimeerr.KindLLM
		errStep := message.LLMErrorStep(stepNumber, err.Error())
		e.memory.AddErrorStep(errStep)
		e.emitTrace(errStep)
		return "", rec, runtimeerr.Wrap(runtimeerr.KindLLM, "llm pipeline failed", err)
	}

	// Step 4: record content as a Thought/Assistant turn. Synthetic ids are
	// assigned before the message is recorded so the Action trace step,
	// the emitted event, and the eventual Observation all share one id.
	for i, tc := range resp.Message.ToolCalls {
		if tc.ID == "" {
			resp.Message.ToolCalls[i].ID = uuid.NewString()
		}
	}
	if resp.Message.Content != "" {
		rec.AssistantText = resp.Message.Content
	}
	if err := e.memory.AddAssistantMessage(ctx, resp.Message); err != nil {
		e.state = StateFailed
		e.failedKind = runtimeerr.KindInternal
		return "", rec, runtimeerr.Wrap(runtimeerr.KindInternal, "failed to record assistant message", err)
	}
	if resp.Message.Content != "" && len(resp.Message.ToolCalls) == 0 {
		e.emitTrace(message.ThoughtStep(stepNumber, resp.Message.Content))
	}

	// Step 5: plain-text-only response terminates the step.
	if resp.Message.Content != "" && len(resp.Message.ToolCalls) == 0 {
		final := resp.Message.Content
		if idx := strings.Index(final, finalAnswerMarker); idx >= 0 {
			final = strings.TrimSpace(final[idx+len(finalAnswerMarker):])
		}
		e.state = StateTerminated
		return final, rec, nil
	}

	// Step 7: neither content nor tool-calls is an LLMError.
	if resp.Message.Content == "" && len(resp.Message.ToolCalls) == 0 {
		e.state = StateFailed
		e.failedKind = runtimeerr.KindLLM
		errStep := message.LLMErrorStep(stepNumber, "model returned neither content nor tool calls")
		e.memory.AddErrorStep(errStep)
		e.emitTrace(errStep)
		return "", rec, runtimeerr.New(runtimeerr.KindLLM, "model returned neither content nor tool calls")
	}

	// Step 6: dispatch each tool call sequentially. AddAssistantMessage
	// above already appended one Action trace step per declared call, in
	// order, ahead of any dispatch; this loop only needs to emit them to
	// the trace handler and then dispatch/observe.
	rec.ToolCalls = resp.Message.ToolCalls
	for _, tc := range resp.Message.ToolCalls {
		e.emitTrace(message.ActionStep(stepNumber, tc))

		if e.detector != nil {
			class := e.detector.AddToolCall(tc.Name, tc.Arguments, stepNumber)
			if class.Problematic {
				e.state = StateFailed
				e.failedKind = runtimeerr.KindLoopDetection
				return "", rec, runtimeerr.Wrap(runtimeerr.KindLoopDetection,
					fmt.Sprintf("tool %q called %d times consecutively (%s)", tc.Name, class.Consecutive, class.Kind),
					runtimeerr.ErrLoopDetection)
			}
		}

		dispatch, err := e.tools.Dispatch(ctx, tc.ID, tc.Name, tc.Arguments, stepNumber)
		if err != nil {
			e.state = StateFailed
			e.failedKind = runtimeerr.KindTool
			errStep := message.ToolErrorStep(stepNumber, err.Error())
			e.memory.AddErrorStep(errStep)
			e.emitTrace(errStep)
			return "", rec, err
		}

		obs := message.Observation{ToolCallID: tc.ID, Content: dispatch.Content, Success: dispatch.Success}
		if err := e.memory.AddObservation(ctx, obs); err != nil {
			e.state = StateFailed
			e.failedKind = runtimeerr.KindInternal
			return "", rec, runtimeerr.Wrap(runtimeerr.KindInternal, "failed to record observation", err)
		}
		e.emitTrace(message.ObservationStep(stepNumber, obs))
		rec.Observations = append(rec.Observations, obs)

		if dispatch.IsControlPlane && dispatch.TerminatesStep {
			e.state = StateTerminated
			rec.ProgressWait = dispatch.ProgressIsWaiting
			rec.ProgressReason = dispatch.ProgressReason
			final := dispatch.FinalAnswer
			if dispatch.ProgressIsWaiting && final == "" {
				final = waitingSentinel
			}
			return final, rec, nil
		}
	}

	return "", rec, nil
}

func controlPlaneSpecs() []llm.ToolSpec {
	return []llm.ToolSpec{
		{
			Name:        tool.ToolAssistantDone,
			Description: "Signal that the task is complete and provide the final summary.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"summary": map[string]any{"type": "string"}},
				"required":   []string{"summary"},
			},
		},
		{
			Name:        tool.ToolReportProgress,
			Description: "Report progress and optionally hand control back to the client (e.g. awaiting_input, pending_choice, need_clarification).",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"reason":  map[string]any{"type": "string"},
					"context": map[string]any{"type": "string"},
				},
				"required": []string{"reason"},
			},
		},
	}
}
