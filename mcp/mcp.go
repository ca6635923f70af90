// Package mcp implements a Model Context Protocol server over the Kiku SDK.
//
// It exposes the question-answering surface as MCP tools and the data source
// catalog as MCP resources, so MCP-compatible AI agents can query connected
// data without speaking the NDJSON protocol themselves.
package mcp

import (
	"log/slog"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	kiku "github.com/kiku-ai/kiku-go"
)

// Server wraps the MCP server with a Kiku SDK client.
type Server struct {
	mcpServer *mcpserver.MCPServer
	client    *kiku.Client
	logger    *slog.Logger

	// askTimeout bounds one kiku_ask invocation; MCP tool calls are
	// synchronous, so the stream is folded to its terminal state here.
	askTimeout time.Duration
}

// New creates and configures an MCP server with all resources and tools.
func New(client *kiku.Client, logger *slog.Logger) *Server {
	s := &Server{
		client:     client,
		logger:     logger,
		askTimeout: 2 * time.Minute,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"kiku",
		"0.3.0",
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
	)

	s.registerResources()
	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}
