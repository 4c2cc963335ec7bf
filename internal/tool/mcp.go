package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/pkoukk/tiktoken-go"
)

// MCPServerConfig configures one subprocess-hosted MCP server (spec §6's
// "subprocess tool protocol"). Grounded on the teacher's
// pkg/tool/mcptoolset stdio connection path, trimmed to stdio-only: the
// spec's external interface only describes a line-delimited stdio
// protocol, not the teacher's additional SSE/streamable-HTTP transports.
type MCPServerConfig struct {
	Name    string
	Command string
	Args    []string
	Env     map[string]string
	Filter  []string

	// MaxResponseTokens bounds a tool-call response; zero disables
	// truncation. Measured in cl100k_base tokens.
	MaxResponseTokens int
}

// ConnectMCPServer starts the subprocess, performs the initialize/tools-list
// handshake (30s hard cap per spec §5), and returns one Tool per exposed
// MCP tool, already wired for tools/call dispatch.
func ConnectMCPServer(ctx context.Context, cfg MCPServerConfig) ([]Tool, func() error, error) {
	mcpClient, err := client.NewStdioMCPClient(cfg.Command, envSlice(cfg.Env), cfg.Args...)
	if err != nil {
		return nil, nil, fmt.Errorf("create mcp client for %s: %w", cfg.Name, err)
	}
	if err := mcpClient.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("start mcp client for %s: %w", cfg.Name, err)
	}

	handshakeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "oversightd", Version: "0.1.0"}
	initReq.Params.ProtocolVersion = "2024-11-05"
	if _, err := mcpClient.Initialize(handshakeCtx, initReq); err != nil {
		mcpClient.Close()
		return nil, nil, fmt.Errorf("initialize mcp server %s: %w", cfg.Name, err)
	}

	listResp, err := mcpClient.ListTools(handshakeCtx, mcp.ListToolsRequest{})
	if err != nil {
		mcpClient.Close()
		return nil, nil, fmt.Errorf("list tools on mcp server %s: %w", cfg.Name, err)
	}

	var filter map[string]bool
	if len(cfg.Filter) > 0 {
		filter = make(map[string]bool, len(cfg.Filter))
		for _, n := range cfg.Filter {
			filter[n] = true
		}
	}

	var tools []Tool
	for _, mt := range listResp.Tools {
		if filter != nil && !filter[mt.Name] {
			continue
		}
		tools = append(tools, &mcpTool{
			client:      mcpClient,
			name:        mt.Name,
			description: mt.Description,
			schema:      schemaToMap(mt.InputSchema),
			maxTokens:   cfg.MaxResponseTokens,
		})
	}

	return tools, mcpClient.Close, nil
}

func envSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

func schemaToMap(schema mcp.ToolInputSchema) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": schema.Properties,
		"required":   schema.Required,
	}
}

type mcpTool struct {
	client      *client.Client
	name        string
	description string
	schema      map[string]any
	maxTokens   int
}

func (t *mcpTool) Metadata() Metadata {
	return Metadata{Name: t.name, Description: t.description, InputSchema: t.schema}
}

// Execute calls tools/call and concatenates returned text content blocks,
// truncating to MaxResponseTokens with a trailing marker if configured.
func (t *mcpTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = t.name
	req.Params.Arguments = args

	resp, err := t.client.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("mcp tool %s call failed: %w", t.name, err)
	}

	var out string
	for _, content := range resp.Content {
		if tc, ok := content.(mcp.TextContent); ok {
			out += tc.Text
		}
	}

	if t.maxTokens > 0 {
		out = truncateToTokenBudget(out, t.maxTokens)
	}
	return out, nil
}

const truncationMarker = " [truncated]"

// truncateToTokenBudget encodes with the cl100k_base tokenizer and, when
// the text is over budget, keeps the first budget tokens minus the
// marker's own token count, decodes them, and appends the marker.
func truncateToTokenBudget(text string, budget int) string {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		if len(text) > budget*4 {
			return text[:budget*4] + truncationMarker
		}
		return text
	}

	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= budget {
		return text
	}

	markerTokens := len(enc.Encode(truncationMarker, nil, nil))
	keep := budget - markerTokens
	if keep < 0 {
		keep = 0
	}
	return enc.Decode(tokens[:keep]) + truncationMarker
}
