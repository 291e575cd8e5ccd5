package affiche

import (
	"context"
	"encoding/json"

	"github.com/hazyhaar/affiche/kit"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterMCP registers all affiche tools on an MCP server.
func (svc *Service) RegisterMCP(srv *mcp.Server) {
	svc.registerRunPipeline(srv)
	svc.registerRunStatus(srv)
	svc.registerSearchEvents(srv)
	svc.registerIngestDocument(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func (svc *Service) registerRunPipeline(srv *mcp.Server) {
	type req struct{}

	tool := &mcp.Tool{
		Name:        "affiche_run_pipeline",
		Description: "Run one catalog batch: normalize pending raw records and load them into the events catalog",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		return svc.RunOnce(ctx)
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if len(r.Params.Arguments) > 0 {
			if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
				return nil, err
			}
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

func (svc *Service) registerRunStatus(srv *mcp.Server) {
	type req struct {
		History int `json:"history"`
	}

	tool := &mcp.Tool{
		Name:        "affiche_run_status",
		Description: "Report the latest run, the intake backlog and catalog counts per source",
		InputSchema: inputSchema(map[string]any{
			"history": map[string]any{"type": "integer", "description": "Also return up to this many recent runs"},
		}, nil),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		st, err := svc.Status(ctx)
		if err != nil {
			return nil, err
		}
		resp := struct {
			*Status
			Runs []*Run `json:"runs,omitempty"`
		}{Status: st}
		if p.History > 0 {
			resp.Runs, err = svc.Runs(ctx, p.History)
			if err != nil {
				return nil, err
			}
		}
		return resp, nil
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if len(r.Params.Arguments) > 0 {
			if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
				return nil, err
			}
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

func (svc *Service) registerSearchEvents(srv *mcp.Server) {
	type req struct {
		Query    string `json:"q"`
		Source   string `json:"source"`
		Category string `json:"category"`
		Limit    int    `json:"limit"`
		Offset   int    `json:"offset"`
	}

	tool := &mcp.Tool{
		Name:        "affiche_search_events",
		Description: "Search the events catalog with FTS5 and exact source/category filters",
		InputSchema: inputSchema(map[string]any{
			"q":        map[string]any{"type": "string", "description": "FTS5 match expression; empty lists newest first"},
			"source":   map[string]any{"type": "string", "description": "Exact source label filter"},
			"category": map[string]any{"type": "string", "description": "Exact category filter"},
			"limit":    map[string]any{"type": "integer", "description": "Page size (default 25, max 100)"},
			"offset":   map[string]any{"type": "integer", "description": "Rows to skip"},
		}, nil),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		events, err := svc.Search(ctx, SearchQuery{
			Text:     p.Query,
			Source:   p.Source,
			Category: p.Category,
			Limit:    p.Limit,
			Offset:   p.Offset,
		})
		if err != nil {
			return nil, err
		}
		if events == nil {
			events = []*Event{}
		}
		return events, nil
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if len(r.Params.Arguments) > 0 {
			if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
				return nil, err
			}
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

func (svc *Service) registerIngestDocument(srv *mcp.Server) {
	type req struct {
		Path string `json:"path"`
	}

	tool := &mcp.Tool{
		Name:        "affiche_ingest_document",
		Description: "Read an uploaded document (pdf, docx, xlsx, csv, html, txt, md) and store its content as raw records for the next batch",
		InputSchema: inputSchema(map[string]any{
			"path": map[string]any{"type": "string", "description": "Document path relative to the ingest directory"},
		}, []string{"path"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		stored, err := svc.IngestDocument(ctx, p.Path)
		if err != nil {
			return nil, err
		}
		return map[string]int{"stored": stored}, nil
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
