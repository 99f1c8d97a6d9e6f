package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/craftlist/internal/notify"
	"github.com/btouchard/craftlist/internal/store"
)

// GraphReader is the part of the store the players graph tool reads.
type GraphReader interface {
	ListPlayersGraph(ctx context.Context) ([]store.PlayersSample, error)
}

// SubscriberCounter reports how many event-stream subscribers are registered.
type SubscriberCounter interface {
	Count() int
}

// SnapshotReader exposes the live snapshot cache.
type SnapshotReader interface {
	Keys() []notify.Event
	Get(key notify.Event) (json.RawMessage, bool)
}

const defaultSampleLimit = 20

// ListPlayersGraph returns a handler that shows the latest player samples.
func ListPlayersGraph(src GraphReader) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()

		samples, err := src.ListPlayersGraph(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to read players graph: %s", err)), nil
		}

		if sid, ok := args["server_id"].(float64); ok && sid > 0 {
			samples = slices.DeleteFunc(samples, func(p store.PlayersSample) bool { return p.ServerID != int64(sid) })
		}

		limit := defaultSampleLimit
		if l, ok := args["limit"].(float64); ok && l > 0 {
			limit = int(l)
		}
		if len(samples) > limit {
			samples = samples[len(samples)-limit:]
		}

		if len(samples) == 0 {
			return mcp.NewToolResultText("No player samples recorded yet."), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Player samples (%d shown)\n\n", len(samples))
		for _, p := range samples {
			fmt.Fprintf(&sb, "- server #%d: %d online at %s\n",
				p.ServerID, p.PlayersOnline, p.Date.Format("2006-01-02 15:04:05"))
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

// LiveStatus returns a handler that reports the live-update pipeline state.
func LiveStatus(subs SubscriberCounter, cache SnapshotReader) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var sb strings.Builder
		fmt.Fprintf(&sb, "Subscribers: %d\n", subs.Count())

		keys := cache.Keys()
		if len(keys) == 0 {
			sb.WriteString("Snapshots: none seeded yet\n")
			return mcp.NewToolResultText(sb.String()), nil
		}

		sb.WriteString("Snapshots:\n")
		for _, k := range keys {
			raw, _ := cache.Get(k)
			fmt.Fprintf(&sb, "- %s: %d bytes\n", k, len(raw))
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}
