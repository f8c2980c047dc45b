package mcp

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/nodeflow/internal/streaming"
)

// Notifier forwards editor stream events to all connected MCP clients as
// notifications. Best-effort: a client with no session simply misses the
// event.
type Notifier struct {
	mcpServer *server.MCPServer
	hub       streaming.EventHub
	logger    *slog.Logger
}

// NewNotifier creates a notifier bound to the server's client sessions.
func NewNotifier(mcpServer *server.MCPServer, hub streaming.EventHub, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{mcpServer: mcpServer, hub: hub, logger: logger}
}

// Run subscribes to the event hub and forwards events until ctx is
// cancelled or the hub closes the subscription.
func (n *Notifier) Run(ctx context.Context) error {
	events, unsubscribe, err := n.hub.Subscribe(ctx, streaming.EventFilter{})
	if err != nil {
		return err
	}
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			n.mcpServer.SendNotificationToAllClients("notifications/message", map[string]any{
				"event_type": ev.EventType,
				"node_id":    ev.NodeID,
				"payload":    ev.Payload,
			})
		}
	}
}
