package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// MCPSender abstracts the mcp-go server notification method.
// Defined consumer-side per Go convention.
type MCPSender interface {
	SendNotificationToAllClients(method string, params map[string]any)
}

// MCPNotifier mirrors envelopes to connected MCP clients as log messages.
type MCPNotifier struct {
	sender   MCPSender
	debounce time.Duration
	clock    clockwork.Clock

	mu       sync.Mutex
	lastSent map[Event]time.Time
}

// NewMCPNotifier creates an MCPNotifier. Collection updates are debounced per
// event tag; error envelopes are always sent immediately.
func NewMCPNotifier(sender MCPSender, debounce time.Duration, clock clockwork.Clock) *MCPNotifier {
	if debounce <= 0 {
		debounce = 3 * time.Second
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MCPNotifier{
		sender:   sender,
		debounce: debounce,
		clock:    clock,
		lastSent: make(map[Event]time.Time),
	}
}

// Notify sends an MCP notifications/message for the envelope.
func (n *MCPNotifier) Notify(ctx context.Context, env Envelope) {
	level := "info"
	if env.Event == EventError {
		level = "error"
	} else if !n.allow(env.Event) {
		slog.DebugContext(ctx, "mcp notifier: debounced", "event", string(env.Event))
		return
	}

	params := map[string]any{
		"level":  level,
		"logger": "craftlist",
		"data": map[string]any{
			"event":   string(env.Event),
			"code":    env.Code,
			"message": env.Message,
			"data":    env.Data,
		},
	}
	n.sender.SendNotificationToAllClients("notifications/message", params)
}

func (n *MCPNotifier) allow(event Event) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.clock.Now()
	if last, ok := n.lastSent[event]; ok && now.Sub(last) < n.debounce {
		return false
	}
	n.lastSent[event] = now
	return true
}
