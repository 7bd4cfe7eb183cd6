package finder

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/deekay/kit"
)

// RegisterMCP registers the deekay tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerResolveTool(srv)
	s.registerCandidatesTool(srv)
	s.registerDigestTool(srv)
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

func urlSchema() map[string]any {
	return inputSchema(map[string]any{
		"url": map[string]any{"type": "string", "description": "Absolute page URL"},
	}, []string{"url"})
}

type urlReq struct {
	URL string `json:"url"`
}

func decodeURL(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var r urlReq
	if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
		return nil, err
	}
	return &kit.MCPDecodeResult{Request: &r}, nil
}

// toolEndpoint wraps a tool handler with logging and panic recovery.
func (s *Service) toolEndpoint(name string, ep kit.Endpoint) kit.Endpoint {
	return kit.Chain(
		kit.WithLogging(s.logger, name),
		kit.WithRecover(),
	)(ep)
}

// --- resolve ---

func (s *Service) registerResolveTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "deekay_resolve",
		Description: "Find an archived copy of a missing magic.wizards.com article. Returns the Wayback Machine link when the index knows one.",
		InputSchema: urlSchema(),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		return s.Resolve(ctx, req.(*urlReq).URL)
	}
	kit.RegisterMCPTool(srv, tool, s.toolEndpoint(tool.Name, endpoint), decodeURL)
}

// --- candidates ---

func (s *Service) registerCandidatesTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "deekay_candidates",
		Description: "List the URLs, in lookup order, that would be checked against the index for a page.",
		InputSchema: urlSchema(),
	}
	endpoint := func(_ context.Context, req any) (any, error) {
		list, err := s.Candidates(req.(*urlReq).URL)
		if err != nil {
			return nil, err
		}
		return map[string]any{"candidates": list}, nil
	}
	kit.RegisterMCPTool(srv, tool, s.toolEndpoint(tool.Name, endpoint), decodeURL)
}

// --- digest ---

func (s *Service) registerDigestTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "deekay_digest",
		Description: "Show the SHA-1 digest of a URL and the index shard it belongs to.",
		InputSchema: urlSchema(),
	}
	endpoint := func(_ context.Context, req any) (any, error) {
		return Digest(req.(*urlReq).URL), nil
	}
	kit.RegisterMCPTool(srv, tool, s.toolEndpoint(tool.Name, endpoint), decodeURL)
}
