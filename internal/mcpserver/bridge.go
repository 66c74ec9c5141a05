package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/datacue-labs/decopilot/internal/registry"
	"github.com/mark3labs/mcp-go/mcp"
)

// BridgedTool exposes one registry capability as an MCP tool named
// "<category>_<name>", with its parameter schema translated from the
// capability's declaration.
type BridgedTool struct {
	capability registry.Capability
}

// NewBridgedTool wraps a capability for MCP registration.
func NewBridgedTool(capability registry.Capability) *BridgedTool {
	return &BridgedTool{capability: capability}
}

// Definition returns the MCP tool definition for registration.
func (t *BridgedTool) Definition() mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(t.capability.Description)}
	for _, p := range t.capability.Params {
		opts = append(opts, paramOption(p))
	}
	return mcp.NewTool(t.capability.Category+"_"+t.capability.Name, opts...)
}

func paramOption(p registry.Param) mcp.ToolOption {
	var propOpts []mcp.PropertyOption
	if p.Required {
		propOpts = append(propOpts, mcp.Required())
	}
	propOpts = append(propOpts, mcp.Description(p.Description))

	switch p.Type {
	case registry.TypeBool:
		return mcp.WithBoolean(p.Name, propOpts...)
	case registry.TypeInt:
		return mcp.WithNumber(p.Name, propOpts...)
	case registry.TypeStringSlice:
		propOpts = append(propOpts, mcp.Items(map[string]any{"type": "string"}))
		return mcp.WithArray(p.Name, propOpts...)
	default:
		return mcp.WithString(p.Name, propOpts...)
	}
}

// Handle runs the capability with the request's arguments. Capability
// failures become tool-result errors so the client sees them inline;
// only encoding problems are surfaced as protocol errors.
func (t *BridgedTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	payload, err := t.capability.Run(ctx, req.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding %s_%s result: %w", t.capability.Category, t.capability.Name, err)
	}
	return mcp.NewToolResultText(string(encoded)), nil
}
