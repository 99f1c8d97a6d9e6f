package handlers

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/craftlist/internal/store"
)

// ServerReader is the part of the store the server tools read.
type ServerReader interface {
	ListServers(ctx context.Context) ([]store.Server, error)
	GetServer(ctx context.Context, id int64) (*store.Server, error)
}

// ListServers returns a handler that lists servers, optionally filtered by
// owner and category.
func ListServers(src ServerReader) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()

		servers, err := src.ListServers(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to list servers: %s", err)), nil
		}

		if uid, ok := args["user_id"].(float64); ok && uid > 0 {
			servers = slices.DeleteFunc(servers, func(s store.Server) bool { return s.UserID != int64(uid) })
		}
		if cat, ok := args["category"].(string); ok && cat != "" {
			servers = slices.DeleteFunc(servers, func(s store.Server) bool { return !slices.Contains(s.Categories, cat) })
		}

		if len(servers) == 0 {
			return mcp.NewToolResultText("No servers found matching the given filters."), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Servers (%d found)\n\n", len(servers))
		for _, s := range servers {
			writeServer(&sb, s)
			sb.WriteString("\n")
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

// GetServer returns a handler that describes one server.
func GetServer(src ServerReader) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, ok := req.GetArguments()["server_id"].(float64)
		if !ok || id < 1 {
			return mcp.NewToolResultError("server_id is required"), nil
		}

		s, err := src.GetServer(ctx, int64(id))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Server not found: %s", err)), nil
		}

		var sb strings.Builder
		writeServer(&sb, *s)
		if s.Description != "" {
			fmt.Fprintf(&sb, "  Description: %s\n", s.Description)
		}
		fmt.Fprintf(&sb, "  Listed: %s\n", s.CreatedAt.Format("2006-01-02 15:04"))
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func writeServer(sb *strings.Builder, s store.Server) {
	premium := ""
	if s.IsPremium {
		premium = " (premium)"
	}
	fmt.Fprintf(sb, "#%d **%s**%s\n", s.ID, s.Name, premium)
	fmt.Fprintf(sb, "  Address: %s | Versions: %s - %s\n", s.Address, s.MinVersion, s.MaxVersion)
	if len(s.Categories) > 0 {
		fmt.Fprintf(sb, "  Categories: %s\n", strings.Join(s.Categories, ", "))
	}
}
