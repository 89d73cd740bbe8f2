package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type healthResult struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	GraphStore string `json:"graph_store,omitempty"`
}

// RegisterHealthTool adds a health tool reporting the server version and the
// graph store circuit breaker state. breakerState may be nil.
func RegisterHealthTool(s *server.MCPServer, version string, breakerState func() string) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns server health status, version and graph store availability"),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result := healthResult{Status: "ok", Version: version}
		if breakerState != nil {
			result.GraphStore = breakerState()
			if result.GraphStore == "open" {
				result.Status = "degraded"
			}
		}
		return jsonResult(result)
	})
}
