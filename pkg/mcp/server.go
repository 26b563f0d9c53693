// Package mcp exposes the schema graph to MCP clients over streamable HTTP.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

// Instructions is sent to clients on initialize.
const Instructions = "Answers questions about tables, views, datasets and their fields " +
	"using the schema knowledge graph. Use find_schema_object for exact physical names, " +
	"ask_schema for natural-language questions and token_usage for model spend."

// Server owns the MCP tool registry. The streamable HTTP transport is
// stateless: each POST carries a full JSON-RPC exchange.
type Server struct {
	mcp    *server.MCPServer
	logger *zap.Logger
}

func NewServer(name, version string, logger *zap.Logger) *Server {
	return &Server{
		mcp: server.NewMCPServer(name, version,
			server.WithToolCapabilities(true),
			server.WithInstructions(Instructions),
			server.WithRecovery(),
		),
		logger: logger.Named("mcp"),
	}
}

// MCP returns the mcp-go server the tools package registers on.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// NewStreamableHTTPServer builds the transport mounted at /mcp.
func (s *Server) NewStreamableHTTPServer() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(s.mcp, server.WithStateLess(true))
}

func (s *Server) RegisterTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.logger.Debug("Registering MCP tool", zap.String("tool", tool.Name))
	s.mcp.AddTool(tool, handler)
}
