package providers

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/kadirpekel/oversight/internal/llm"
	"github.com/kadirpekel/oversight/internal/message"
)

// Gemini implements llm.Generator against the Google Generative Language
// API via the official genai SDK, unlike the teacher's hand-rolled HTTP
// Gemini client: the SDK is already a real dependency of the example pack
// and gives streaming/function-calling wire handling for free.
type Gemini struct {
	Model  string
	client *genai.Client
}

// NewGemini constructs a Gemini client for apiKey/model.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{Model: model, client: client}, nil
}

func (p *Gemini) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	contents, systemInstruction := toGeminiContents(req.Messages)

	cfg := &genai.GenerateContentConfig{}
	if systemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemInstruction, genai.RoleUser)
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
			})
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	result, err := p.client.Models.GenerateContent(ctx, p.Model, contents, cfg)
	if err != nil {
		return llm.Response{}, &llm.ProviderError{StatusCode: 0, Body: err.Error()}
	}
	if len(result.Candidates) == 0 {
		return llm.Response{}, fmt.Errorf("gemini response had no candidates")
	}

	out := message.Message{Role: message.RoleAssistant}
	cand := result.Candidates[0]
	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			if part.Text != "" {
				out.Content += part.Text
			}
			if part.FunctionCall != nil {
				out.ToolCalls = append(out.ToolCalls, message.ToolCall{
					Name:      part.FunctionCall.Name,
					Arguments: part.FunctionCall.Args,
				})
			}
		}
	}

	return llm.Response{Message: out, FinishReason: string(cand.FinishReason)}, nil
}

func toGeminiContents(messages []message.Message) ([]*genai.Content, string) {
	var system string
	var contents []*genai.Content
	for _, m := range messages {
		switch m.Role {
		case message.RoleSystem:
			if system != "" {
				system += "\n"
			}
			system += m.Content
		case message.RoleUser, message.RoleTool:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		case message.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		}
	}
	return contents, system
}
