// Package memory implements the agent's trace and conversation-view store
// (spec §4.6), generalizing the teacher's pluggable WorkingMemoryStrategy
// interface (pkg/memory/working.go) from session-scoped event filtering to
// the spec's two-representation (trace + conversation view) model.
package memory

import (
	"context"

	"github.com/kadirpekel/oversight/internal/message"
)

// PreserveStrategy controls invariants every eviction Policy must honor.
type PreserveStrategy struct {
	PreserveInitialTask bool
}

// Policy evicts entries from the conversation view. The trace is never
// passed to a Policy: eviction only ever affects what the LLM sees.
type Policy interface {
	Name() string
	// Apply returns the conversation view to keep, given the full
	// Summarizer for policies that compress rather than drop.
	Apply(ctx context.Context, view []message.Message, preserve PreserveStrategy, summarizer Summarizer) ([]message.Message, error)
}

// Summarizer produces a single-message summary of a message run, used by
// the Summarize and ConversationSummary policies. It is implemented by
// llm.ContextTruncator, which sends the request through its inner provider
// client, so policies stay independent of any single provider wire format.
type Summarizer interface {
	Summarize(ctx context.Context, messages []message.Message) (string, error)
}
