package message

// StepKind tags a HistoryStep variant (spec §3).
type StepKind string

const (
	StepUserTask      StepKind = "user_task"
	StepThought       StepKind = "thought"
	StepAction        StepKind = "action"
	StepObservation   StepKind = "observation"
	StepLLMError      StepKind = "llm_error"
	StepExecutorError StepKind = "executor_error"
	StepToolError     StepKind = "tool_error"
)

// Observation is what the tool dispatcher hands back to the engine; it is
// also what gets appended to the trace and surfaced as a Tool Message.
type Observation struct {
	ToolCallID string
	Content    string
	Success    bool
}

// HistoryStep is an append-only entry in the agent's trace. Exactly one of
// the payload fields is populated, selected by Kind.
type HistoryStep struct {
	Kind        StepKind
	StepNumber  int
	Text        string       // UserTask, Thought, LLMError, ExecutorError, ToolError
	Action      *ToolCall    // Action
	Observation *Observation // Observation
}

func UserTaskStep(step int, text string) HistoryStep {
	return HistoryStep{Kind: StepUserTask, StepNumber: step, Text: text}
}

func ThoughtStep(step int, text string) HistoryStep {
	return HistoryStep{Kind: StepThought, StepNumber: step, Text: text}
}

func ActionStep(step int, call ToolCall) HistoryStep {
	return HistoryStep{Kind: StepAction, StepNumber: step, Action: &call}
}

func ObservationStep(step int, obs Observation) HistoryStep {
	return HistoryStep{Kind: StepObservation, StepNumber: step, Observation: &obs}
}

func LLMErrorStep(step int, text string) HistoryStep {
	return HistoryStep{Kind: StepLLMError, StepNumber: step, Text: text}
}

func ExecutorErrorStep(step int, text string) HistoryStep {
	return HistoryStep{Kind: StepExecutorError, StepNumber: step, Text: text}
}

func ToolErrorStep(step int, text string) HistoryStep {
	return HistoryStep{Kind: StepToolError, StepNumber: step, Text: text}
}
