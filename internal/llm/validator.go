package llm

import (
	"context"

	"github.com/kadirpekel/oversight/internal/message"
)

const interruptedToolNotice = "[Tool execution was interrupted or failed - continuing conversation]"

// Validator repairs message-sequence violations (spec §4.4.1) before
// delegating to the next layer. Repair is idempotent: running it twice
// produces the same output as running it once.
type Validator struct {
	Next Generator
}

func (v *Validator) Generate(ctx context.Context, req Request) (Response, error) {
	req.Messages = Repair(req.Messages)
	return v.Next.Generate(ctx, req)
}

// Repair detects and fixes orphaned tool-calls (an Assistant message's
// tool-call ids left unanswered when the next User/Assistant message
// arrives, or when the sequence ends) and orphaned tool responses (a Tool
// message whose id answers no pending tool call), without altering any
// well-formed subsequence.
func Repair(messages []message.Message) []message.Message {
	out := make([]message.Message, 0, len(messages))
	var pending []string

	flushPending := func() {
		for _, id := range pending {
			out = append(out, message.Message{
				Role:       message.RoleTool,
				Content:    interruptedToolNotice,
				ToolCallID: id,
			})
		}
		pending = nil
	}

	for _, m := range messages {
		switch m.Role {
		case message.RoleAssistant:
			flushPending()
			out = append(out, m)
			if m.HasToolCalls() {
				pending = append(pending, m.ToolCallIDs()...)
			}
		case message.RoleUser:
			flushPending()
			out = append(out, m)
		case message.RoleTool:
			if idx := indexOf(pending, m.ToolCallID); idx >= 0 {
				pending = append(pending[:idx], pending[idx+1:]...)
				out = append(out, m)
			} else {
				out = append(out, message.Message{
					Role:    message.RoleSystem,
					Content: "Previous tool result: " + truncate(m.Content, 2000),
				})
			}
		default:
			out = append(out, m)
		}
	}
	flushPending()
	return out
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

// truncate cuts s to at most n runes, appending an ellipsis on overflow. The
// cut always lands on a rune boundary.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
