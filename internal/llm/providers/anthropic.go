package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/kadirpekel/oversight/internal/httpclient"
	"github.com/kadirpekel/oversight/internal/llm"
	"github.com/kadirpekel/oversight/internal/message"
)

const anthropicDefaultHost = "https://api.anthropic.com/v1"

// Anthropic implements llm.Generator against the Messages API.
type Anthropic struct {
	APIKey    string
	Model     string
	Host      string
	MaxTokens int

	client *httpclient.Client
}

// NewAnthropic builds an Anthropic client with spec-default retry/backoff.
func NewAnthropic(apiKey, model string) *Anthropic {
	return &Anthropic{
		APIKey:    apiKey,
		Model:     model,
		Host:      anthropicDefaultHost,
		MaxTokens: 4096,
		client:    httpclient.New(httpclient.WithHeaderParser(httpclient.ParseAnthropicRateLimitHeaders)),
	}
}

type anthropicContentBlock struct {
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
	Content   string         `json:"content,omitempty"`
}

type anthropicMessage struct {
	Role    string                  `json:"role"`
	Content []anthropicContentBlock `json:"content"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	MaxTokens int                `json:"max_tokens"`
	Tools     []anthropicTool    `json:"tools,omitempty"`
}

type anthropicResponse struct {
	StopReason string                  `json:"stop_reason"`
	Content    []anthropicContentBlock `json:"content"`
}

func (p *Anthropic) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	var system string
	var messages []anthropicMessage
	for _, m := range req.Messages {
		switch m.Role {
		case message.RoleSystem:
			if system != "" {
				system += "\n"
			}
			system += m.Content
		case message.RoleUser:
			messages = append(messages, anthropicMessage{Role: "user", Content: []anthropicContentBlock{{Type: "text", Text: m.Content}}})
		case message.RoleAssistant:
			blocks := []anthropicContentBlock{}
			if m.Content != "" {
				blocks = append(blocks, anthropicContentBlock{Type: "text", Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropicContentBlock{Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: tc.Arguments})
			}
			messages = append(messages, anthropicMessage{Role: "assistant", Content: blocks})
		case message.RoleTool:
			messages = append(messages, anthropicMessage{Role: "user", Content: []anthropicContentBlock{
				{Type: "tool_result", ToolUseID: m.ToolCallID, Content: m.Content},
			}})
		}
	}

	body := anthropicRequest{Model: p.Model, System: system, Messages: messages, MaxTokens: p.MaxTokens}
	for _, t := range req.Tools {
		body.Tools = append(body.Tools, anthropicTool{Name: t.Name, Description: t.Description, InputSchema: t.Parameters})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return llm.Response{}, fmt.Errorf("marshal anthropic request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Host+"/messages", bytes.NewReader(payload))
	if err != nil {
		return llm.Response{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := p.client.Do(httpReq)
	if err != nil && resp == nil {
		return llm.Response{}, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return llm.Response{}, &llm.ProviderError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return llm.Response{}, fmt.Errorf("unmarshal anthropic response: %w", err)
	}

	out := message.Message{Role: message.RoleAssistant}
	for _, block := range parsed.Content {
		switch block.Type {
		case "text":
			out.Content += block.Text
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, message.ToolCall{ID: block.ID, Name: block.Name, Arguments: block.Input})
		}
	}

	return llm.Response{Message: out, FinishReason: parsed.StopReason}, nil
}
