// Package llm implements the single generate(messages, tools) interface the
// engine drives (spec §4.4), composed as a fixed chain of wrappers:
// Validator ⇒ AutoRecovery ⇒ ContextTruncator ⇒ ProviderClient. Grounded on
// the teacher's pkg/llms provider implementations for wire-format handling,
// generalized into an interface the wrappers share so each layer is
// provider-agnostic.
package llm

import (
	"context"

	"github.com/kadirpekel/oversight/internal/message"
)

// ToolSpec is a tool's JSON-schema-described signature as given to a
// provider, independent of how the tool is actually dispatched.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Request is the pipeline's input.
type Request struct {
	Messages []message.Message
	Tools    []ToolSpec
}

// Response is the pipeline's output: the model's next turn.
type Response struct {
	Message      message.Message
	FinishReason string
}

// Generator is implemented by every pipeline layer and by each concrete
// provider client at the bottom of the chain.
type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// GeneratorFunc adapts a function to a Generator.
type GeneratorFunc func(ctx context.Context, req Request) (Response, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}
