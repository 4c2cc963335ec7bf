package memory

import (
	"context"
	"sync"

	"github.com/kadirpekel/oversight/internal/message"
)

// Stats reports the derived counters spec §4.6 requires, computed from the
// trace (never the conversation view).
type Stats struct {
	TraceSteps             int
	ConversationMessages   int
	UserTasks              int
	Thoughts               int
	Actions                int
	Observations           int
	SuccessfulObservations int
	FailedObservations     int
	Errors                 int
	UtilizationPercentage  float64
}

// AgentMemory owns the two representations spec §4.6 describes: an
// append-only trace (the full history, never evicted) and a conversation
// view (what the LLM pipeline actually sees, subject to a Policy).
// Grounded on pkg/memory/memory.go's MemoryService, which guards both
// representations with a single mutex rather than separate locks per field.
type AgentMemory struct {
	mu sync.RWMutex

	trace []message.HistoryStep
	view  []message.Message

	policy     Policy
	preserve   PreserveStrategy
	summarizer Summarizer

	nextStep int
}

// Option configures an AgentMemory at construction time.
type Option func(*AgentMemory)

// WithPolicy sets the eviction Policy applied after every AddMessage.
func WithPolicy(p Policy) Option { return func(m *AgentMemory) { m.policy = p } }

// WithPreserveStrategy sets invariants the Policy must honor.
func WithPreserveStrategy(p PreserveStrategy) Option {
	return func(m *AgentMemory) { m.preserve = p }
}

// WithSummarizer wires the collaborator Summarize/ConversationSummary
// policies call into.
func WithSummarizer(s Summarizer) Option { return func(m *AgentMemory) { m.summarizer = s } }

// New constructs an empty AgentMemory. Default policy is an unbounded
// sliding window (no eviction) so callers that don't care about memory
// pressure get a no-op instead of a nil-pointer dereference.
func New(opts ...Option) *AgentMemory {
	m := &AgentMemory{
		policy: &SlidingWindowPolicy{MaxMessages: 1 << 30},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WithPersistentSummaryCache wraps the memory's summarizer (if any) so
// every produced summary is mirrored to cache under sessionID, and
// preloads an existing summary from the cache as the first conversation
// message so a restarted process resumes from it rather than starting
// empty. Intended to be combined with WithSummarizer: call WithSummarizer
// first, then this option, so Next is non-nil.
func WithPersistentSummaryCache(ctx context.Context, cache *SQLiteSummaryCache, sessionID string) Option {
	return func(m *AgentMemory) {
		if m.summarizer != nil {
			m.summarizer = &PersistingSummarizer{Next: m.summarizer, Cache: cache, SessionID: sessionID}
		}
		if existing, ok, err := cache.Load(ctx, sessionID); err == nil && ok && existing != "" {
			m.view = append(m.view, message.Message{Role: message.RoleSystem, Content: existing})
		}
	}
}

// AddUserTask records the initial task both as a trace step and as the
// first message of the conversation view.
func (m *AgentMemory) AddUserTask(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trace = append(m.trace, message.UserTaskStep(m.nextStep, text))
	m.nextStep++
	m.view = append(m.view, message.Message{Role: message.RoleUser, Content: text})
}

// AddThought records a Thought step without touching the conversation view;
// thoughts are trace-only narration of the engine's reasoning.
func (m *AgentMemory) AddThought(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trace = append(m.trace, message.ThoughtStep(m.nextStep, text))
	m.nextStep++
}

// AddAssistantMessage records an Assistant turn: an Action step per
// declared tool call (or one Thought step, for a non-empty plain text
// reply) plus one conversation-view message, then applies the eviction
// policy.
func (m *AgentMemory) AddAssistantMessage(ctx context.Context, msg message.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(msg.ToolCalls) == 0 {
		if msg.Content != "" {
			m.trace = append(m.trace, message.ThoughtStep(m.nextStep, msg.Content))
			m.nextStep++
		}
	} else {
		for _, tc := range msg.ToolCalls {
			m.trace = append(m.trace, message.ActionStep(m.nextStep, tc))
			m.nextStep++
		}
	}
	m.view = append(m.view, msg.Clone())
	return m.applyPolicyLocked(ctx)
}

// AddObservation records a tool's result: an Observation step plus a Tool
// Message in the conversation view, then applies the eviction policy.
func (m *AgentMemory) AddObservation(ctx context.Context, obs message.Observation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.trace = append(m.trace, message.ObservationStep(m.nextStep, obs))
	m.nextStep++
	m.view = append(m.view, message.Message{
		Role:       message.RoleTool,
		Content:    obs.Content,
		ToolCallID: obs.ToolCallID,
	})
	return m.applyPolicyLocked(ctx)
}

// AddErrorStep records an LLM, executor, or tool error step. Error steps
// are trace-only: they narrate what happened but are not replayed to the
// LLM as a conversation-view message, since the pipeline already injects
// its own recovery message where needed.
func (m *AgentMemory) AddErrorStep(step message.HistoryStep) {
	m.mu.Lock()
	defer m.mu.Unlock()
	step.StepNumber = m.nextStep
	m.nextStep++
	m.trace = append(m.trace, step)
}

func (m *AgentMemory) applyPolicyLocked(ctx context.Context) error {
	if m.policy == nil {
		return nil
	}
	next, err := m.policy.Apply(ctx, m.view, m.preserve, m.summarizer)
	if err != nil {
		return err
	}
	m.view = next
	return nil
}

// GetContext returns a copy of the current conversation view, safe for the
// caller to mutate or hand to an LLM request.
func (m *AgentMemory) GetContext() []message.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]message.Message, len(m.view))
	for i, msg := range m.view {
		out[i] = msg.Clone()
	}
	return out
}

// Trace returns a copy of the full append-only history.
func (m *AgentMemory) Trace() []message.HistoryStep {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]message.HistoryStep, len(m.trace))
	copy(out, m.trace)
	return out
}

// Clear empties both representations and resets the step counter. Per spec
// invariant 5, after Clear both the trace and the conversation view report
// zero length.
func (m *AgentMemory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trace = nil
	m.view = nil
	m.nextStep = 0
}

// Stats reports the current counters and history-window utilization.
// maxHistorySteps is the denominator for UtilizationPercentage (spec §4.6:
// utilization_percentage = total_steps / max_history_steps); zero means
// utilization is always reported as 0.
func (m *AgentMemory) Stats(maxHistorySteps int) Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Stats{TraceSteps: len(m.trace), ConversationMessages: len(m.view)}
	for _, step := range m.trace {
		switch step.Kind {
		case message.StepUserTask:
			s.UserTasks++
		case message.StepThought:
			s.Thoughts++
		case message.StepAction:
			s.Actions++
		case message.StepObservation:
			s.Observations++
			if step.Observation != nil && step.Observation.Success {
				s.SuccessfulObservations++
			} else {
				s.FailedObservations++
			}
		case message.StepLLMError, message.StepExecutorError, message.StepToolError:
			s.Errors++
		}
	}
	if maxHistorySteps > 0 {
		s.UtilizationPercentage = 100 * float64(len(m.trace)) / float64(maxHistorySteps)
	}
	return s
}
