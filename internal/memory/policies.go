package memory

import (
	"context"

	"github.com/kadirpekel/oversight/internal/message"
)

// splitInitialTask pulls the first UserTask-shaped Message (a User message
// with non-empty content, by convention the first in the view) out of view
// when preserve.PreserveInitialTask is set, so policies can evict freely
// from the remainder and the caller re-attaches it.
func splitInitialTask(view []message.Message, preserve PreserveStrategy) (head *message.Message, rest []message.Message) {
	if !preserve.PreserveInitialTask || len(view) == 0 {
		return nil, view
	}
	for i, m := range view {
		if m.Role == message.RoleUser {
			h := view[i].Clone()
			rest = make([]message.Message, 0, len(view)-1)
			rest = append(rest, view[:i]...)
			rest = append(rest, view[i+1:]...)
			return &h, rest
		}
	}
	return nil, view
}

func reattach(head *message.Message, rest []message.Message) []message.Message {
	if head == nil {
		return rest
	}
	out := make([]message.Message, 0, len(rest)+1)
	out = append(out, *head)
	out = append(out, rest...)
	return out
}

// SlidingWindowPolicy keeps at most K most recent messages.
type SlidingWindowPolicy struct {
	MaxMessages int
}

func (p *SlidingWindowPolicy) Name() string { return "sliding_window" }

func (p *SlidingWindowPolicy) Apply(_ context.Context, view []message.Message, preserve PreserveStrategy, _ Summarizer) ([]message.Message, error) {
	head, rest := splitInitialTask(view, preserve)
	budget := p.MaxMessages
	if head != nil {
		budget--
	}
	if budget < 0 {
		budget = 0
	}
	if len(rest) > budget {
		rest = rest[len(rest)-budget:]
	}
	return reattach(head, rest), nil
}

// FIFOConfig drives the FIFO/intelligent/chunk-based family: recent-first
// retention with optional preservation of errors and successful
// observations, and a floor on how many of the most recent messages always
// survive.
type FIFOConfig struct {
	MaxMessages          int
	PreserveErrors       bool
	PreserveSuccessful   bool
	MinRecentCount       int
}

// FIFOPolicy implements the "FIFO / Intelligent / Chunk-based" family of
// spec §4.6: recent-first retention with a config-driven exception list.
type FIFOPolicy struct {
	Config FIFOConfig
}

func (p *FIFOPolicy) Name() string { return "fifo" }

func (p *FIFOPolicy) Apply(_ context.Context, view []message.Message, preserve PreserveStrategy, _ Summarizer) ([]message.Message, error) {
	head, rest := splitInitialTask(view, preserve)
	if len(rest) <= p.Config.MaxMessages {
		return reattach(head, rest), nil
	}

	minRecent := p.Config.MinRecentCount
	if minRecent > len(rest) {
		minRecent = len(rest)
	}
	cut := len(rest) - minRecent
	candidates, keep := rest[:cut], rest[cut:]

	kept := make([]message.Message, 0, p.Config.MaxMessages)
	for _, m := range candidates {
		if len(kept)+len(keep) >= p.Config.MaxMessages {
			break
		}
		if p.Config.PreserveErrors && m.Role == message.RoleTool && looksLikeFailure(m.Content) {
			kept = append(kept, m)
			continue
		}
		if p.Config.PreserveSuccessful && m.Role == message.RoleTool && !looksLikeFailure(m.Content) {
			kept = append(kept, m)
		}
	}

	out := append(kept, keep...)
	if over := len(out) - p.Config.MaxMessages; over > 0 {
		out = out[over:]
	}
	return reattach(head, out), nil
}

func looksLikeFailure(content string) bool {
	for _, marker := range []string{"error", "failed", "denied"} {
		if containsFold(content, marker) {
			return true
		}
	}
	return false
}

// SummarizePolicy collapses the oldest portion of the view into a single
// System summary message once the window exceeds K.
type SummarizePolicy struct {
	MaxMessages int
}

func (p *SummarizePolicy) Name() string { return "summarize" }

func (p *SummarizePolicy) Apply(ctx context.Context, view []message.Message, preserve PreserveStrategy, summarizer Summarizer) ([]message.Message, error) {
	head, rest := splitInitialTask(view, preserve)
	if len(rest) <= p.MaxMessages || summarizer == nil {
		return reattach(head, rest), nil
	}

	keepCount := p.MaxMessages / 2
	if keepCount < 1 {
		keepCount = 1
	}
	oldest, recent := rest[:len(rest)-keepCount], rest[len(rest)-keepCount:]

	summary, err := summarizer.Summarize(ctx, oldest)
	if err != nil {
		return nil, err
	}

	out := make([]message.Message, 0, len(recent)+1)
	out = append(out, message.Message{Role: message.RoleSystem, Content: summary})
	out = append(out, recent...)
	return reattach(head, out), nil
}

// ConversationSummaryPolicy maintains a running summary message at the head
// of the view, refreshed on every Apply call in which the view (after any
// preserved initial task) holds more than RecentWindow messages.
type ConversationSummaryPolicy struct {
	RecentWindow int
}

func (p *ConversationSummaryPolicy) Name() string { return "conversation_summary" }

func (p *ConversationSummaryPolicy) Apply(ctx context.Context, view []message.Message, preserve PreserveStrategy, summarizer Summarizer) ([]message.Message, error) {
	head, rest := splitInitialTask(view, preserve)
	if len(rest) <= p.RecentWindow || summarizer == nil {
		return reattach(head, rest), nil
	}

	older := rest[:len(rest)-p.RecentWindow]
	recent := rest[len(rest)-p.RecentWindow:]
	summary, err := summarizer.Summarize(ctx, older)
	if err != nil {
		return nil, err
	}

	out := make([]message.Message, 0, len(recent)+1)
	out = append(out, message.Message{Role: message.RoleSystem, Content: "Conversation summary: " + summary})
	out = append(out, recent...)
	return reattach(head, out), nil
}

func containsFold(s, substr string) bool {
	return len(s) >= len(substr) && indexFold(s, substr) >= 0
}

func indexFold(s, substr string) int {
	sl, bl := len(s), len(substr)
	if bl == 0 {
		return 0
	}
	for i := 0; i+bl <= sl; i++ {
		if equalFold(s[i:i+bl], substr) {
			return i
		}
	}
	return -1
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
