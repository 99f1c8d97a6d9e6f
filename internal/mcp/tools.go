package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/craftlist/internal/mcp/handlers"
)

func registerTools(s *server.MCPServer, deps *Deps) {
	// list_servers — Browse the server listing
	s.AddTool(
		mcp.NewTool("list_servers",
			mcp.WithDescription("List game servers with address, supported versions and categories."),
			mcp.WithNumber("user_id",
				mcp.Description("Only servers owned by this user"),
			),
			mcp.WithString("category",
				mcp.Description("Only servers in this category"),
			),
		),
		handlers.ListServers(deps.Store),
	)

	// get_server — Describe one server
	s.AddTool(
		mcp.NewTool("get_server",
			mcp.WithDescription("Show the details of one listed server."),
			mcp.WithNumber("server_id",
				mcp.Required(),
				mcp.Description("The server ID"),
			),
		),
		handlers.GetServer(deps.Store),
	)

	// list_players_graph — Recent player counts
	s.AddTool(
		mcp.NewTool("list_players_graph",
			mcp.WithDescription("List the most recent player-count samples."),
			mcp.WithNumber("server_id",
				mcp.Description("Only samples of this server"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of samples to return (default: 20)"),
			),
		),
		handlers.ListPlayersGraph(deps.Store),
	)

	// live_status — Live-update pipeline state
	s.AddTool(
		mcp.NewTool("live_status",
			mcp.WithDescription("Report connected event-stream subscribers and the seeded live snapshots."),
		),
		handlers.LiveStatus(deps.Broadcaster, deps.Cache),
	)
}
