package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterMCP exposes the admin surface as MCP tools so an operator's
// agent can trigger and inspect syncs over stdio.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerSyncTrigger(srv)
	s.registerSyncStatus(srv)
	s.registerSyncListEvents(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// registerTool wires a handler returning a JSON-marshallable result.
// Handler errors become tool errors, not protocol errors.
func registerTool(srv *mcp.Server, tool *mcp.Tool, handler func(ctx context.Context, args json.RawMessage) (any, error)) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		resp, err := handler(ctx, req.Params.Arguments)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(err)
			return &res, nil
		}
		data, err := json.Marshal(resp)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("marshal result: %w", err))
			return &res, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

func (s *Service) registerSyncTrigger(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "sync_trigger",
		Description: "Trigger a carnival sync run; rejects when one is already in flight",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	registerTool(srv, tool, func(ctx context.Context, _ json.RawMessage) (any, error) {
		return s.TriggerManual(ctx), nil
	})
}

func (s *Service) registerSyncStatus(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "sync_status",
		Description: "Report run state and imported-event counts",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	registerTool(srv, tool, func(ctx context.Context, _ json.RawMessage) (any, error) {
		return s.Status(ctx)
	})
}

func (s *Service) registerSyncListEvents(srv *mcp.Server) {
	type req struct {
		Limit int `json:"limit"`
	}

	tool := &mcp.Tool{
		Name:        "sync_list_events",
		Description: "List the most recently created active carnival events",
		InputSchema: inputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Maximum events to return (default 50)"},
		}, nil),
	}
	registerTool(srv, tool, func(ctx context.Context, args json.RawMessage) (any, error) {
		var p req
		if len(args) > 0 {
			if err := json.Unmarshal(args, &p); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}
		}
		if p.Limit <= 0 {
			p.Limit = 50
		}
		return s.store.List(ctx, p.Limit)
	})
}
