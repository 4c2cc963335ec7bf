// Package providers implements llm.Generator against concrete vendor wire
// formats. Grounded on the teacher's pkg/llms provider files (request/
// response shaping, httpclient.Client as transport) but trimmed to
// non-streaming chat completions: the agent-facing event stream (internal
// /stream) is what clients consume in near-real time, not the provider's
// own SSE, so a single request/response round trip per step is sufficient.
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

const openAIDefaultHost = "https://api.openai.com/v1"

// OpenAI implements llm.Generator against the Chat Completions API.
type OpenAI struct {
	APIKey string
	Model  string
	Host   string

	client *httpclient.Client
}

// NewOpenAI builds an OpenAI client with spec-default retry/backoff.
func NewOpenAI(apiKey, model string) *OpenAI {
	return &OpenAI{
		APIKey: apiKey,
		Model:  model,
		Host:   openAIDefaultHost,
		client: httpclient.New(httpclient.WithHeaderParser(httpclient.ParseOpenAIRateLimitHeaders)),
	}
}

type openAIMessage struct {
	Role       string          `json:"role"`
	Content    string          `json:"content,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolCalls  []openAIToolRef `json:"tool_calls,omitempty"`
}

type openAIToolRef struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function openAIFunctionCall `json:"function"`
}

type openAIFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openAITool struct {
	Type     string             `json:"type"`
	Function openAIFunctionSpec `json:"function"`
}

type openAIFunctionSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type openAIRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
	Tools    []openAITool    `json:"tools,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		FinishReason string `json:"finish_reason"`
		Message      struct {
			Content   string          `json:"content"`
			ToolCalls []openAIToolRef `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

func (p *OpenAI) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	body := openAIRequest{Model: p.Model, Messages: toOpenAIMessages(req.Messages)}
	for _, t := range req.Tools {
		body.Tools = append(body.Tools, openAITool{Type: "function", Function: openAIFunctionSpec{
			Name: t.Name, Description: t.Description, Parameters: t.Parameters,
		}})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return llm.Response{}, fmt.Errorf("marshal openai request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Host+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return llm.Response{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil && resp == nil {
		return llm.Response{}, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return llm.Response{}, &llm.ProviderError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var parsed openAIResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return llm.Response{}, fmt.Errorf("unmarshal openai response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return llm.Response{}, fmt.Errorf("openai response had no choices")
	}

	choice := parsed.Choices[0]
	out := message.Message{Role: message.RoleAssistant, Content: choice.Message.Content}
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		out.ToolCalls = append(out.ToolCalls, message.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}

	return llm.Response{Message: out, FinishReason: choice.FinishReason}, nil
}

func toOpenAIMessages(messages []message.Message) []openAIMessage {
	out := make([]openAIMessage, 0, len(messages))
	for _, m := range messages {
		om := openAIMessage{Role: string(m.Role), Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			args, _ := json.Marshal(tc.Arguments)
			om.ToolCalls = append(om.ToolCalls, openAIToolRef{
				ID: tc.ID, Type: "function",
				Function: openAIFunctionCall{Name: tc.Name, Arguments: string(args)},
			})
		}
		out = append(out, om)
	}
	return out
}
