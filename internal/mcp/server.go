package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/craftlist/internal/broadcast"
	"github.com/btouchard/craftlist/internal/snapshot"
	"github.com/btouchard/craftlist/internal/store"
)

// Deps holds shared dependencies injected into MCP handlers.
type Deps struct {
	Store       store.Store
	Broadcaster *broadcast.Broadcaster
	Cache       *snapshot.Cache
	Version     string
}

// NewServer creates and configures the MCP server with all tools registered.
func NewServer(deps *Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"craftlist",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithLogging(),
	)

	registerTools(s, deps)

	return s
}
