// Package mcp exposes the chat engine over the Model Context Protocol.
//
// The server registers a single tool, ask_iecho, that runs a non-streaming
// chat turn and returns the answer with its source citations. MCP-capable
// clients (IDE assistants, agent frameworks) connect over stdio and call the
// tool like any other:
//
//	MCP Client
//	     |  (JSON-RPC over stdio)
//	     v
//	Server (MCP SDK)
//	     |  ask_iecho
//	     v
//	engine.Query -> router -> specialist -> answer + citations
//
// Session state carries across calls when the client passes the sessionId
// returned by an earlier answer, so follow-up questions keep their context.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/iecho-project/iecho/internal/engine"
	"github.com/iecho-project/iecho/internal/log"
)

// Config holds MCP server configuration.
type Config struct {
	Name    string
	Version string
	Engine  *engine.Engine
	Logger  log.Logger
}

// Server wraps the MCP SDK server around the chat engine.
type Server struct {
	mcpServer *mcp.Server
	engine    *engine.Engine
	logger    log.Logger
	name      string
	version   string
}

// NewServer creates an MCP server with the ask tool registered.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("server name is required")
	}
	if cfg.Version == "" {
		return nil, fmt.Errorf("server version is required")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	s := &Server{
		mcpServer: mcpServer,
		engine:    cfg.Engine,
		logger:    logger,
		name:      cfg.Name,
		version:   cfg.Version,
	}

	if err := s.registerAsk(); err != nil {
		return nil, fmt.Errorf("registering ask tool: %w", err)
	}

	return s, nil
}

// Run serves the MCP protocol on the given transport. Blocks until the
// client disconnects or ctx is canceled.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.mcpServer.Run(ctx, transport)
}
