package websocket

import (
	"sync"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
)

// ConnectionManager tracks live sockets on this instance. A user holds at
// most one socket per auction; a newer one replaces the older.
type ConnectionManager struct {
	connections map[string]map[string]domain.WebSocketConnection // auctionID -> userID -> connection
	userConns   map[string][]domain.WebSocketConnection          // userID -> connections
	mutex       sync.RWMutex
	log         logger.Logger
}

func NewConnectionManager(log logger.Logger) *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]map[string]domain.WebSocketConnection),
		userConns:   make(map[string][]domain.WebSocketConnection),
		log:         log,
	}
}

func (cm *ConnectionManager) RegisterConnection(userID, auctionID string, conn domain.WebSocketConnection) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if cm.connections[auctionID] == nil {
		cm.connections[auctionID] = make(map[string]domain.WebSocketConnection)
	}
	if old, ok := cm.connections[auctionID][userID]; ok && old != conn {
		_ = old.Close()
		cm.dropUserConn(userID, auctionID)
	}
	cm.connections[auctionID][userID] = conn
	cm.userConns[userID] = append(cm.userConns[userID], conn)

	cm.log.Info("Connection registered", "user_id", userID, "auction_id", auctionID)
	return nil
}

func (cm *ConnectionManager) UnregisterConnection(userID, auctionID string) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	cm.unregisterLocked(userID, auctionID)
	return nil
}

// ReleaseConnection unregisters conn only while it is still the registered
// socket, so a replaced connection cannot drop its successor.
func (cm *ConnectionManager) ReleaseConnection(conn domain.WebSocketConnection) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	current, ok := cm.connections[conn.AuctionID()][conn.UserID()]
	if ok && current == conn {
		cm.unregisterLocked(conn.UserID(), conn.AuctionID())
	}
	return nil
}

func (cm *ConnectionManager) unregisterLocked(userID, auctionID string) {
	if auctionConns, exists := cm.connections[auctionID]; exists {
		delete(auctionConns, userID)
		if len(auctionConns) == 0 {
			delete(cm.connections, auctionID)
		}
	}
	cm.dropUserConn(userID, auctionID)

	cm.log.Info("Connection unregistered", "user_id", userID, "auction_id", auctionID)
}

func (cm *ConnectionManager) CloseAndUnregisterConnections(auctionID string) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	auctionConns, exists := cm.connections[auctionID]
	if !exists {
		return nil
	}
	for userID, conn := range auctionConns {
		if err := conn.Close(); err != nil {
			cm.log.Error("Failed to close connection", "user_id", userID,
				"auction_id", auctionID, "error", err)
		}
		cm.dropUserConn(userID, auctionID)
	}
	delete(cm.connections, auctionID)

	cm.log.Info("Connections closed for auction", "auction_id", auctionID, "count", len(auctionConns))
	return nil
}

// dropUserConn expects cm.mutex to be held.
func (cm *ConnectionManager) dropUserConn(userID, auctionID string) {
	userConnections, exists := cm.userConns[userID]
	if !exists {
		return
	}
	var kept []domain.WebSocketConnection
	for _, existingConn := range userConnections {
		if existingConn.AuctionID() != auctionID {
			kept = append(kept, existingConn)
		}
	}
	if len(kept) == 0 {
		delete(cm.userConns, userID)
	} else {
		cm.userConns[userID] = kept
	}
}

func (cm *ConnectionManager) GetConnectionsForAuction(auctionID string) []domain.WebSocketConnection {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	var connections []domain.WebSocketConnection
	for _, conn := range cm.connections[auctionID] {
		connections = append(connections, conn)
	}
	return connections
}

func (cm *ConnectionManager) GetConnectionsForUser(userID string) []domain.WebSocketConnection {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	return append([]domain.WebSocketConnection(nil), cm.userConns[userID]...)
}

// BroadcastToAuction sends to every socket of the auction. A failed send is
// logged and does not stop the others.
func (cm *ConnectionManager) BroadcastToAuction(auctionID string, message interface{}) error {
	connections := cm.GetConnectionsForAuction(auctionID)
	cm.log.Debug("Broadcasting to auction", "auction_id", auctionID, "connections", len(connections))

	for _, conn := range connections {
		if err := conn.Send(message); err != nil {
			cm.log.Error("Failed to send message", "user_id", conn.UserID(),
				"auction_id", auctionID, "error", err)
		}
	}
	return nil
}

func (cm *ConnectionManager) NotifyUser(userID string, message interface{}) error {
	for _, conn := range cm.GetConnectionsForUser(userID) {
		if err := conn.Send(message); err != nil {
			cm.log.Error("Failed to send message", "user_id", userID, "error", err)
		}
	}
	return nil
}
