// Package mcp serves the dependency and impact tools over the Model Context
// Protocol. Each project has its own endpoint, /mcp/{pid}.
package mcp

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ontology-impact/pkg/mcp/tools"
)

// Server wraps the mcp-go MCPServer.
type Server struct {
	mcp    *server.MCPServer
	logger *zap.Logger
}

// NewServer creates a new MCP server instance. Pass the AuditLogger's hooks
// to record tool calls; hooks may be nil.
func NewServer(name, version string, logger *zap.Logger, hooks *server.Hooks) *Server {
	opts := []server.ServerOption{server.WithToolCapabilities(true)}
	if hooks != nil {
		opts = append(opts, server.WithHooks(hooks))
	}

	return &Server{
		mcp:    server.NewMCPServer(name, version, opts...),
		logger: logger,
	}
}

// MCP returns the underlying MCPServer for tool registration.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// RegisterTool is a convenience wrapper for registering a tool.
func (s *Server) RegisterTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.mcp.AddTool(tool, handler)
}

// NewStreamableHTTPServer creates a stateless HTTP transport for this server.
// The mux handles routing, so no endpoint path is configured here.
func (s *Server) NewStreamableHTTPServer() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(
		s.mcp,
		server.WithStateLess(true),
	)
}

// ProjectHandler serves the transport for routes with a {pid} path value.
// The project ID is placed on the request context for the tools.
func (s *Server) ProjectHandler() http.Handler {
	transport := s.NewStreamableHTTPServer()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		projectID, err := uuid.Parse(r.PathValue("pid"))
		if err != nil {
			s.logger.Debug("Rejected MCP request with invalid project ID",
				zap.String("pid", r.PathValue("pid")))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_project_id","message":"Invalid project ID format"}`))
			return
		}
		transport.ServeHTTP(w, r.WithContext(tools.WithProjectID(r.Context(), projectID)))
	})
}
