package handlers

import (
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/schema-graph/pkg/mcp"
	mcpauth "github.com/ekaya-inc/schema-graph/pkg/mcp/auth"
	"github.com/ekaya-inc/schema-graph/pkg/middleware"
)

// MCPHandler mounts the MCP transport on the API mux.
type MCPHandler struct {
	transport *server.StreamableHTTPServer
	logger    *zap.Logger
}

func NewMCPHandler(mcpServer *mcp.Server, logger *zap.Logger) *MCPHandler {
	return &MCPHandler{
		transport: mcpServer.NewStreamableHTTPServer(),
		logger:    logger.Named("mcp-handler"),
	}
}

// RegisterRoutes mounts /mcp. The method check runs before authentication
// so a GET never reaches token validation; JSON-RPC logging sees only
// authenticated calls.
func (h *MCPHandler) RegisterRoutes(mux *http.ServeMux, mcpAuth *mcpauth.Middleware) {
	logged := middleware.MCPRequestLogger(h.logger)(h.transport)
	mux.Handle("/mcp", allowMethods(mcpAuth.RequireAuth(logged), http.MethodPost))
}

// allowMethods answers 405 with an Allow header for any other method.
func allowMethods(next http.Handler, methods ...string) http.Handler {
	allow := strings.Join(methods, ", ")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, m := range methods {
			if r.Method == m {
				next.ServeHTTP(w, r)
				return
			}
		}
		w.Header().Set("Allow", allow)
		w.WriteHeader(http.StatusMethodNotAllowed)
	})
}
