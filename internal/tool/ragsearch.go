package tool

import (
	"context"
	"fmt"
)

// RAGCollaborator is the contracted interface spec.md §1 carves out of
// scope as a feature (no vector store, embedder, or retrieval ranking is
// implemented here) while still requiring the tool category to exist in
// the dispatcher per §4.7 ("RAG search: delegates to the RAG
// collaborator"). A real deployment supplies an implementation backed by
// one of the vector stores named in SPEC_FULL's dropped-dependency list
// (qdrant/pinecone/chromem-go); none of those are wired in because the
// collaborator itself is out of scope, not because no store was available.
type RAGCollaborator interface {
	Search(ctx context.Context, query string, limit int) ([]RAGResult, error)
}

// RAGResult is one retrieved passage with its source attribution.
type RAGResult struct {
	Source  string
	Content string
	Score   float64
}

// RAGSearchTool adapts a RAGCollaborator to the uniform Tool contract.
// Grounded on the teacher's searchtool.SearchTool (pkg/tool/searchtool),
// trimmed from its multi-store scoping to a single collaborator since the
// collaborator's own store routing is outside this spec's scope.
type RAGSearchTool struct {
	Collaborator RAGCollaborator
	DefaultLimit int
}

func (t *RAGSearchTool) Metadata() Metadata {
	return Metadata{
		Name:        "rag_search",
		Description: "Searches the configured document store for passages relevant to a query.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string"},
				"limit": map[string]any{"type": "integer"},
			},
			"required": []string{"query"},
		},
	}
}

func (t *RAGSearchTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	if t.Collaborator == nil {
		return "", fmt.Errorf("rag_search: no RAG collaborator configured")
	}
	query, _ := args["query"].(string)
	if query == "" {
		return "", fmt.Errorf("rag_search: missing query")
	}
	limit := t.DefaultLimit
	if limit <= 0 {
		limit = 10
	}
	if l, ok := args["limit"].(float64); ok && l > 0 {
		limit = int(l)
	}

	results, err := t.Collaborator.Search(ctx, query, limit)
	if err != nil {
		return "", fmt.Errorf("rag_search: %w", err)
	}

	out := ""
	for i, r := range results {
		if i > 0 {
			out += "\n\n"
		}
		out += fmt.Sprintf("[%s] (score %.3f)\n%s", r.Source, r.Score, r.Content)
	}
	return out, nil
}
