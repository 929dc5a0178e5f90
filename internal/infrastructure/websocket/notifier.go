package websocket

import (
	"context"

	"auction-engine/internal/domain"
)

// WebSocketNotifier exposes the connection manager as the context-aware
// notifier and broadcaster interfaces used by the services layer.
type WebSocketNotifier struct {
	connManager domain.ConnectionManager
}

func NewWebSocketNotifier(connManager domain.ConnectionManager) *WebSocketNotifier {
	return &WebSocketNotifier{connManager: connManager}
}

func (n *WebSocketNotifier) NotifyUser(ctx context.Context, userID string, message interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return n.connManager.NotifyUser(userID, message)
}

func (n *WebSocketNotifier) BroadcastToAuction(ctx context.Context, auctionID string, message interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return n.connManager.BroadcastToAuction(auctionID, message)
}
