package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Pinger reports whether a backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type healthResult struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Graph   string `json:"graph"`
}

// RegisterHealthTool adds the health tool. It reports the server version and
// whether the graph store answers.
func RegisterHealthTool(s *server.MCPServer, version string, graph Pinger) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns server health status and version"),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result := healthResult{Status: "ok", Version: version, Graph: "ok"}
		if graph != nil {
			if err := graph.Ping(ctx); err != nil {
				result.Status = "degraded"
				result.Graph = err.Error()
			}
		}
		out, err := jsonResult(result)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal health result: %w", err)
		}
		return out, nil
	})
}
