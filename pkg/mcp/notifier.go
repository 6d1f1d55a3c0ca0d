package mcp

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/server"
)

// notificationMethod is the MCP method used for workflow change messages.
const notificationMethod = "notifications/message"

// ChangeNotifier tells editors that a workflow they have open changed.
type ChangeNotifier interface {
	NotifyChanged(ctx context.Context, workflowID, originSession string, payload map[string]any) error
}

// MCPNotifier implements ChangeNotifier by pushing to the sessions recorded
// in a SessionRegistry.
type MCPNotifier struct {
	mcpServer *server.MCPServer
	sessions  *SessionRegistry
}

// NewMCPNotifier creates a notifier that pushes via MCP.
func NewMCPNotifier(mcpServer *server.MCPServer, sessions *SessionRegistry) *MCPNotifier {
	return &MCPNotifier{mcpServer: mcpServer, sessions: sessions}
}

// NotifyChanged sends payload to every watcher of workflowID except
// originSession. Best-effort: sessions that went away are dropped silently.
func (n *MCPNotifier) NotifyChanged(_ context.Context, workflowID, originSession string, payload map[string]any) error {
	var errs []error
	for _, sid := range n.sessions.Watchers(workflowID) {
		if sid == originSession {
			continue
		}
		err := n.mcpServer.SendNotificationToSpecificClient(sid, notificationMethod, payload)
		if errors.Is(err, server.ErrSessionNotFound) {
			n.sessions.Remove(sid)
			continue
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
