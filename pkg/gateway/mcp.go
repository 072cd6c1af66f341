package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/telos-ai/telos/pkg/capability"
	"github.com/telos-ai/telos/pkg/core"
)

// MCPCaller abstracts MCP tool execution for adapters.
type MCPCaller interface {
	CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error)
}

// MCPTool wraps an MCP tool definition and caller to satisfy core.Tool, so
// tools exported by an MCP server dispatch through the gateway like any
// other capability.
type MCPTool struct {
	tool   mcp.Tool
	caller MCPCaller
}

// NewMCPTool builds a core.Tool backed by an MCP tool definition and caller.
func NewMCPTool(tool mcp.Tool, caller MCPCaller) (*MCPTool, error) {
	if tool.Name == "" {
		return nil, errors.New("mcp tool name is required")
	}
	if caller == nil {
		return nil, errors.New("mcp caller is required")
	}
	return &MCPTool{tool: tool, caller: caller}, nil
}

// Name returns the MCP tool name.
func (t *MCPTool) Name() string { return t.tool.Name }

// Call invokes the MCP tool and flattens the result to text.
func (t *MCPTool) Call(ctx context.Context, args map[string]any) (string, error) {
	if err := validateRequiredArgs(t.tool, args); err != nil {
		return "", err
	}
	result, err := t.caller.CallTool(ctx, t.tool.Name, args)
	if err != nil {
		return "", err
	}
	return toolResultToOutput(result)
}

// ManifestEntry derives a capability manifest entry from the MCP schema.
// Freshly discovered tools start at moderate confidence.
func (t *MCPTool) ManifestEntry() capability.ManifestEntry {
	schema := map[string]any{"type": t.tool.InputSchema.Type}
	if len(t.tool.InputSchema.Required) > 0 {
		required := make([]any, len(t.tool.InputSchema.Required))
		for i, key := range t.tool.InputSchema.Required {
			required[i] = key
		}
		schema["required"] = required
	}
	return capability.ManifestEntry{
		ToolName:         t.tool.Name,
		Description:      t.tool.Description,
		InvocationSchema: schema,
		Confidence:       0.5,
	}
}

// RegisterMCPTools binds and registers every tool exported by an MCP caller.
func RegisterMCPTools(g *Gateway, tools []mcp.Tool, caller MCPCaller) error {
	for _, tool := range tools {
		adapter, err := NewMCPTool(tool, caller)
		if err != nil {
			return fmt.Errorf("mcp tool %q: %w", tool.Name, err)
		}
		g.Register(adapter, adapter.ManifestEntry())
	}
	return nil
}

func validateRequiredArgs(tool mcp.Tool, args map[string]any) error {
	schema := tool.InputSchema
	if schema.Type != "" && schema.Type != "object" {
		return nil
	}
	for _, key := range schema.Required {
		if _, ok := args[key]; !ok {
			return fmt.Errorf("mcp tool args: missing required field %q", key)
		}
	}
	return nil
}

func toolResultToOutput(result *mcp.CallToolResult) (string, error) {
	if result == nil {
		return "", errors.New("mcp tool result is nil")
	}
	if result.IsError {
		return "", fmt.Errorf("mcp tool returned error: %s", extractTextContent(result.Content))
	}
	if text := extractTextContent(result.Content); text != "" {
		return text, nil
	}
	return "", nil
}

func extractTextContent(items []mcp.Content) string {
	if len(items) == 0 {
		return ""
	}
	var parts []string
	for _, item := range items {
		switch content := item.(type) {
		case mcp.TextContent:
			parts = append(parts, content.Text)
		case *mcp.TextContent:
			parts = append(parts, content.Text)
		}
	}
	return strings.Join(parts, "\n")
}

var _ core.Tool = (*MCPTool)(nil)
