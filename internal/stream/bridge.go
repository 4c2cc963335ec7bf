// Package stream implements the event streaming bridge (spec §4.2):
// transforming the engine's synchronous per-step outcomes into a
// cancellable, ordered sequence of wire events. Grounded on the teacher's
// pkg/agui stream-adapter idiom (pkg/agui/stream_adapter.go) for the
// "engine outcome to wire event" translation shape, generalized from a
// gRPC stream sink to a Go channel and from AG-UI's protobuf schema to
// the plain event.Event JSON shape the HTTP layer encodes over SSE.
package stream

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/oversight/internal/agent"
	"github.com/kadirpekel/oversight/internal/event"
	"github.com/kadirpekel/oversight/internal/message"
	"github.com/kadirpekel/oversight/internal/runtimeerr"
)

// iceBreakerSentinel is the special initial-task string that skips the
// engine entirely (spec §4.2 "Special inputs").
const iceBreakerSentinel = "gola-connect-HACK"

const fallbackGreeting = "Hey there! What can I do for you?"

// continuationHints absorbs a common LLM behavior of narrating an
// intention before acting; a final answer containing one of these,
// lower-cased, does not terminate the run.
var continuationHints = []string{
	"please hold", "hold on", "one moment", "just a moment", "let me",
	"i'll search", "i'll find", "i'll update", "i'll proceed",
	"i'll determine", "i'll now", "now i'll", "let me summarize",
}

const loopRecoveryNotice = "A repetitive tool-call pattern was detected and aborted. Try a different approach to make progress on the task."

// RunInput is the client-supplied invocation (spec §3 RunInput), trimmed
// to what the bridge needs: advertised tools and forwarded state are the
// caller's concern before construction.
type RunInput struct {
	ThreadID string
	RunID    string
	Messages []message.Message
}

// initialTask returns the final User message with non-empty content, per
// spec §3's RunInput contract.
func (r RunInput) initialTask() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == message.RoleUser && r.Messages[i].Content != "" {
			return r.Messages[i].Content
		}
	}
	return ""
}

// Bridge exposes an Engine as a lazy, ordered event.Event sequence (spec
// §4.2).
type Bridge struct {
	engine            *agent.Engine
	iceBreakerPrompt  string
	keepAliveInterval time.Duration
}

// NewBridge builds a Bridge over engine. An empty iceBreakerPrompt falls
// back to fallbackGreeting. keepAliveInterval <= 0 defaults to 30s.
func NewBridge(engine *agent.Engine, iceBreakerPrompt string, keepAliveInterval time.Duration) *Bridge {
	if keepAliveInterval <= 0 {
		keepAliveInterval = 30 * time.Second
	}
	return &Bridge{engine: engine, iceBreakerPrompt: iceBreakerPrompt, keepAliveInterval: keepAliveInterval}
}

// Run drives the engine for one RunInput, returning a channel of Events
// closed when the run terminates (after exactly one RUN_FINISHED or
// RUN_ERROR), and a keep-alive tick channel the HTTP layer may select on
// to emit SSE comment frames; both channels close together. Cancelling ctx
// aborts the run at its next suspension point and closes the channels
// without a RUN_FINISHED or RUN_ERROR event.
func (b *Bridge) Run(ctx context.Context, input RunInput) (<-chan event.Event, <-chan struct{}) {
	events := make(chan event.Event, 16)
	keepAlive := make(chan struct{})

	go func() {
		defer close(events)
		defer close(keepAlive)

		g, gctx := errgroup.WithContext(ctx)
		done := make(chan struct{})

		g.Go(func() error {
			ticker := time.NewTicker(b.keepAliveInterval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-done:
					return nil
				case <-ticker.C:
					select {
					case keepAlive <- struct{}{}:
					case <-gctx.Done():
						return nil
					case <-done:
						return nil
					}
				}
			}
		})

		g.Go(func() error {
			defer close(done)
			b.driveRun(gctx, input, events)
			return nil
		})

		_ = g.Wait()
	}()

	return events, keepAlive
}

func (b *Bridge) driveRun(ctx context.Context, input RunInput, events chan<- event.Event) {
	events <- event.RunStarted(input.ThreadID, input.RunID)

	task := input.initialTask()
	if task == iceBreakerSentinel {
		b.emitIceBreaker(events)
		events <- event.RunFinished(input.ThreadID, input.RunID)
		return
	}

	b.engine.AddUserTaskToMemory(task)

	step := 1
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		final, rec, err := b.engine.RunStep(ctx, step)
		if err != nil {
			if rerr, ok := asRunError(err); ok && rerr.Kind == runtimeerr.KindLoopDetection {
				b.engine.ResetLoopDetector()
				_ = b.engine.InjectSystemMessage(ctx, loopRecoveryNotice)
				step++
				continue
			}
			events <- event.RunErrorEvent(err.Error())
			return
		}

		b.emitStepMessages(events, rec)

		if final == "" {
			step++
			continue
		}

		if b.shouldContinue(rec, final) {
			step++
			continue
		}

		events <- event.RunFinished(input.ThreadID, input.RunID)
		return
	}
}

// shouldContinue implements the auto-continuation heuristic (spec §4.2).
func (b *Bridge) shouldContinue(rec agent.StepRecord, final string) bool {
	if rec.ProgressWait {
		return false
	}
	lower := strings.ToLower(final)
	for _, hint := range continuationHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

// emitStepMessages emits the TEXT_MESSAGE_* triple for assistant content
// and the TOOL_CALL_* triples for each dispatched call in the step, in
// that order, plus a separate TEXT_MESSAGE_* triple for a control-plane
// progress observation if present.
func (b *Bridge) emitStepMessages(events chan<- event.Event, rec agent.StepRecord) {
	if rec.AssistantText != "" {
		emitTextMessage(events, rec.AssistantText)
	}

	for _, tc := range rec.ToolCalls {
		events <- event.ToolCallStart(tc.ID, tc.Name, "")
		events <- event.ToolCallArgs(tc.ID, argsDelta(tc.Arguments))
		events <- event.ToolCallEnd(tc.ID)
	}

	// A control-plane report_progress observation is shown to the user as
	// its own TEXT_MESSAGE_* triple, separate from the main response.
	if rec.ProgressReason != "" && len(rec.Observations) > 0 {
		emitTextMessage(events, rec.Observations[len(rec.Observations)-1].Content)
	}
}

func emitTextMessage(events chan<- event.Event, content string) {
	id := uuid.NewString()
	events <- event.TextMessageStart(id)
	events <- event.TextMessageContent(id, content)
	events <- event.TextMessageEnd(id)
}

func argsDelta(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	b, err := json.Marshal(args)
	if err != nil {
		return ""
	}
	return string(b)
}

func (b *Bridge) emitIceBreaker(events chan<- event.Event) {
	text := b.iceBreakerPrompt
	if text == "" {
		text = fallbackGreeting
	}
	emitTextMessage(events, text)
}

func asRunError(err error) (*runtimeerr.RunError, bool) {
	re, ok := err.(*runtimeerr.RunError)
	return re, ok
}
