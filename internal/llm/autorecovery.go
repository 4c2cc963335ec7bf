package llm

import (
	"context"
	"regexp"
	"strings"

	"github.com/kadirpekel/oversight/internal/message"
	"github.com/kadirpekel/oversight/internal/runtimeerr"
)

// ProviderError is the shape a ProviderClient returns on an HTTP-level
// failure, carrying enough of the response for AutoRecovery to classify it.
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string { return e.Body }

var (
	missingIDsRe = regexp.MustCompile(`tool_call_ids did not have response messages:\s*(call_[A-Za-z0-9]+(?:\s*,\s*call_[A-Za-z0-9]+)*)`)
	anyCallIDRe  = regexp.MustCompile(`call_[A-Za-z0-9]+`)
)

// AutoRecovery classifies provider failures and retries with progressively
// more conservative request shapes (spec §4.4.2).
type AutoRecovery struct {
	Next       Generator
	MaxRetries int
}

// NewAutoRecovery wraps next with the default retry budget of 3.
func NewAutoRecovery(next Generator) *AutoRecovery {
	return &AutoRecovery{Next: next, MaxRetries: 3}
}

func (a *AutoRecovery) Generate(ctx context.Context, req Request) (Response, error) {
	maxRetries := a.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	messages := req.Messages
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		resp, err := a.Next.Generate(ctx, Request{Messages: messages, Tools: req.Tools})
		if err == nil {
			return resp, nil
		}
		lastErr = err

		perr, ok := asProviderError(err)
		if !ok {
			return Response{}, err
		}

		switch classify(perr) {
		case classToolCallValidation:
			messages = insertMissingToolResponses(messages, extractMissingIDs(perr.Body))
		case classGenericRecoverable:
			messages = Repair(messages)
		default:
			return Response{}, err
		}

		if attempt == maxRetries {
			break
		}
	}

	return a.fallback(ctx, req, lastErr)
}

type errClass int

const (
	classUnknown errClass = iota
	classToolCallValidation
	classGenericRecoverable
)

func classify(perr *ProviderError) errClass {
	lower := strings.ToLower(perr.Body)
	if perr.StatusCode == 400 && containsAny(lower, "tool_calls", "must be followed by tool messages", "tool_call_id") {
		return classToolCallValidation
	}
	if perr.StatusCode >= 400 && perr.StatusCode < 500 {
		return classGenericRecoverable
	}
	return classUnknown
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func extractMissingIDs(body string) []string {
	if m := missingIDsRe.FindStringSubmatch(body); m != nil {
		parts := strings.Split(m[1], ",")
		ids := make([]string, 0, len(parts))
		for _, p := range parts {
			ids = append(ids, strings.TrimSpace(p))
		}
		return ids
	}
	return anyCallIDRe.FindAllString(body, -1)
}

// insertMissingToolResponses inserts a synthetic Tool response for each
// missing id right after the Assistant message that declared it, skipping
// over any Tool messages already present.
func insertMissingToolResponses(messages []message.Message, missing []string) []message.Message {
	if len(missing) == 0 {
		return messages
	}
	need := make(map[string]bool, len(missing))
	for _, id := range missing {
		need[id] = true
	}

	out := make([]message.Message, 0, len(messages)+len(missing))
	for _, m := range messages {
		out = append(out, m)
		if m.Role != message.RoleAssistant {
			continue
		}
		for _, id := range m.ToolCallIDs() {
			if need[id] {
				out = append(out, message.Message{
					Role:       message.RoleTool,
					Content:    interruptedToolNotice,
					ToolCallID: id,
				})
				delete(need, id)
			}
		}
	}
	return out
}

// fallback applies the progressive degradation ladder of spec §4.4.2 once
// retries are exhausted on a recoverable error.
func (a *AutoRecovery) fallback(ctx context.Context, req Request, lastErr error) (Response, error) {
	stages := []func([]message.Message) []message.Message{
		stripToolCalls,
		keepUserAndAssistantOnly,
		keepMostRecentUserOnly,
	}

	messages := req.Messages
	for _, stage := range stages {
		messages = stage(messages)
		resp, err := a.Next.Generate(ctx, Request{Messages: messages})
		if err == nil {
			return resp, nil
		}
		if _, ok := asProviderError(err); !ok {
			return Response{}, err
		}
		lastErr = err
	}

	return Response{}, runtimeerr.Wrap(runtimeerr.KindLLM, "llm request failed after all recovery fallbacks", lastErr)
}

func stripToolCalls(messages []message.Message) []message.Message {
	out := make([]message.Message, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case message.RoleTool:
			out = append(out, message.Message{Role: message.RoleSystem, Content: "Previous result: " + m.Content})
		case message.RoleAssistant:
			c := m.Clone()
			c.ToolCalls = nil
			out = append(out, c)
		default:
			out = append(out, m)
		}
	}
	return out
}

func keepUserAndAssistantOnly(messages []message.Message) []message.Message {
	out := make([]message.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == message.RoleUser || m.Role == message.RoleAssistant {
			c := m.Clone()
			c.ToolCalls = nil
			out = append(out, c)
		}
	}
	return out
}

func keepMostRecentUserOnly(messages []message.Message) []message.Message {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == message.RoleUser {
			return []message.Message{{Role: message.RoleUser, Content: messages[i].Content}}
		}
	}
	return []message.Message{{Role: message.RoleUser, Content: "Please continue our conversation."}}
}

func asProviderError(err error) (*ProviderError, bool) {
	perr, ok := err.(*ProviderError)
	return perr, ok
}
