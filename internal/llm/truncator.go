package llm

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/kadirpekel/oversight/internal/message"
	"github.com/kadirpekel/oversight/internal/runtimeerr"
)

var contextErrorMarkers = []string{
	"429", "413", "rate limit", "too many requests", "payload too large",
	"context length", "token limit", "maximum context", "context window",
}

// ContextTruncator is the last wrapper before the provider client; it
// detects context-window-exceeded and rate-limit errors and shrinks the
// request until it fits or a floor is reached (spec §4.4.3).
type ContextTruncator struct {
	Next Generator

	SummaryThreshold int           // chars; default 500
	DropRatio        float64       // default 0.5
	MinMessages      int           // default 1
	MaxAttempts      int           // default 5
	baseBackoff      time.Duration // default 1s
	maxBackoff       time.Duration // default 30s

	sleep func(time.Duration)
}

// NewContextTruncator wraps next with spec-default thresholds.
func NewContextTruncator(next Generator) *ContextTruncator {
	return &ContextTruncator{
		Next:             next,
		SummaryThreshold: 500,
		DropRatio:        0.5,
		MinMessages:      1,
		MaxAttempts:      5,
		baseBackoff:      time.Second,
		maxBackoff:       30 * time.Second,
		sleep:            time.Sleep,
	}
}

// SetSleepForTest overrides the backoff sleep function; production code
// never calls this.
func (c *ContextTruncator) SetSleepForTest(f func(time.Duration)) {
	c.sleep = f
}

func (c *ContextTruncator) Generate(ctx context.Context, req Request) (Response, error) {
	messages := req.Messages
	ratio := c.DropRatio

	for attempt := 0; ; attempt++ {
		resp, err := c.Next.Generate(ctx, Request{Messages: messages, Tools: req.Tools})
		if err == nil {
			return resp, nil
		}
		if !isContextError(err) {
			return Response{}, err
		}
		if attempt >= c.MaxAttempts {
			return Response{}, runtimeerr.Wrap(runtimeerr.KindLLM, "context truncation exhausted retry budget", err)
		}

		messages = c.summarizeLargeToolMessages(ctx, messages)

		var dropped bool
		messages, dropped = dropOlderMessages(messages, ratio, c.MinMessages)
		if !dropped && len(messages) <= c.MinMessages {
			return Response{}, runtimeerr.Wrap(runtimeerr.KindLLM, "message count at floor, cannot truncate further", err)
		}

		if ratio < 0.8 {
			ratio += 0.1
			if ratio > 0.8 {
				ratio = 0.8
			}
		}

		delay := c.baseBackoff << uint(attempt)
		if delay > c.maxBackoff {
			delay = c.maxBackoff
		}
		if c.sleep != nil {
			c.sleep(delay)
		}
	}
}

func isContextError(err error) bool {
	perr, ok := asProviderError(err)
	if !ok {
		return false
	}
	lower := strings.ToLower(perr.Body)
	for _, marker := range contextErrorMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// summarizeLargeToolMessages replaces any Tool message body over
// SummaryThreshold with a provider-produced summary, keeping the original
// if the summary is not actually shorter.
func (c *ContextTruncator) summarizeLargeToolMessages(ctx context.Context, messages []message.Message) []message.Message {
	out := make([]message.Message, len(messages))
	copy(out, messages)

	for i, m := range out {
		if m.Role != message.RoleTool || len(m.Content) <= c.SummaryThreshold {
			continue
		}
		summary, err := c.summarizeOne(ctx, m.Content)
		if err == nil && len(summary) < len(m.Content) {
			out[i].Content = summary
		}
	}
	return out
}

func (c *ContextTruncator) summarizeOne(ctx context.Context, body string) (string, error) {
	resp, err := c.Next.Generate(ctx, Request{Messages: []message.Message{
		{Role: message.RoleSystem, Content: "Summarize the following tool output concisely, preserving any facts a later step might need."},
		{Role: message.RoleUser, Content: body},
	}})
	if err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}

// Summarize implements memory.Summarizer so the ContextTruncator's inner
// provider can double as the summarization collaborator for memory
// eviction policies.
func (c *ContextTruncator) Summarize(ctx context.Context, messages []message.Message) (string, error) {
	resp, err := c.Next.Generate(ctx, Request{Messages: append([]message.Message{
		{Role: message.RoleSystem, Content: "Summarize the following conversation excerpt concisely."},
	}, messages...)})
	if err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}

// dropOlderMessages removes the oldest remove_count messages (after any
// index-0 System preamble, which is always preserved) and, if anything was
// actually removed, inserts a synthetic notice describing the drop.
func dropOlderMessages(messages []message.Message, ratio float64, minMessages int) ([]message.Message, bool) {
	preambleLen := 0
	if len(messages) > 0 && messages[0].Role == message.RoleSystem {
		preambleLen = 1
	}

	remaining := len(messages) - preambleLen
	if remaining <= 0 {
		return messages, false
	}

	removeCount := int(math.Ceil(float64(remaining) * ratio))
	if removeCount <= 0 {
		return messages, false
	}
	keepFromRemaining := remaining - removeCount
	if keepFromRemaining < 0 {
		keepFromRemaining = 0
	}

	preamble := messages[:preambleLen]
	kept := messages[len(messages)-keepFromRemaining:]

	out := make([]message.Message, 0, preambleLen+1+len(kept))
	out = append(out, preamble...)
	out = append(out, message.Message{
		Role:    message.RoleSystem,
		Content: fmt.Sprintf("[Context truncated: %d messages removed to fit within limits]", removeCount),
	})
	out = append(out, kept...)

	if len(out) < minMessages {
		return messages, false
	}
	return out, true
}
