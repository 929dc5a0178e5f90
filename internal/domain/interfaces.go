package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Repository interfaces
type AuctionRepository interface {
	GetAuction(ctx context.Context, auctionID string) (*Auction, error)
	GetExpiredActiveAuctions(ctx context.Context, now time.Time) ([]*Auction, error)
	ReadPrice(ctx context.Context, auctionID string) (PriceSnapshot, error)
	// TrySetPrice stores newAmount only if the auction is still active and its
	// stored price equals expected (an invalid expected means "no price yet").
	TrySetPrice(ctx context.Context, auctionID string, newAmount decimal.Decimal, expected decimal.NullDecimal) (bool, error)
	// TryFinalize moves an active auction to finalized. False means another
	// caller already did.
	TryFinalize(ctx context.Context, auctionID string) (bool, error)
	RecordWinner(ctx context.Context, auctionID string, winner *Bid) error
}

type BidRepository interface {
	SaveBid(ctx context.Context, bid *Bid) error
	// GetBidHistory returns all bids of the auction ordered by timestamp.
	GetBidHistory(ctx context.Context, auctionID string) ([]*Bid, error)
}

type NotificationSink interface {
	AppendNotification(ctx context.Context, n *Notification) error
}

type NotificationRepository interface {
	NotificationSink
	ListNotifications(ctx context.Context, filter NotificationFilter) ([]*Notification, error)
	MarkRead(ctx context.Context, notificationID string) error
}

// Repositories groups the repositories bound to one unit of work.
type Repositories struct {
	Auctions      AuctionRepository
	Bids          BidRepository
	Notifications NotificationSink
}

// UnitOfWork runs fn in a single transaction. Returning an error rolls back
// every write made through repos.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

// External collaborators
type UserDirectory interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
	IsEligible(ctx context.Context, userID string) (bool, error)
	HasCredential(ctx context.Context, userID string) (bool, error)
	ContactEmail(ctx context.Context, userID string) (string, error)
}

type ItemCatalog interface {
	ItemTitle(ctx context.Context, itemRef string) (string, error)
}

type EmailDispatcher interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Event interfaces
type EventPublisher interface {
	PublishAuctionEvent(ctx context.Context, event *AuctionEvent) error
}

type EventSubscriber interface {
	SubscribeToAuctionEvents(ctx context.Context, handler EventHandler) error
}

type EventHandler func(event *AuctionEvent) error

// Cache interfaces
type SnapshotCache interface {
	SetSnapshot(ctx context.Context, snapshot PriceSnapshot) error
	GetSnapshot(ctx context.Context, auctionID string) (*PriceSnapshot, error)
	DeleteSnapshot(ctx context.Context, auctionID string) error
}

// Notification interfaces
type UserNotifier interface {
	NotifyUser(ctx context.Context, userID string, message interface{}) error
}

type AuctionBroadcaster interface {
	BroadcastToAuction(ctx context.Context, auctionID string, message interface{}) error
}

// OperatorAlerter surfaces conditions that need a human.
type OperatorAlerter interface {
	Alert(ctx context.Context, auctionID, message string, cause error)
}

// Leader election interface
type LeaderElection interface {
	BecomeLeader(ctx context.Context, instanceID string) (bool, error)
	IsLeader(ctx context.Context, instanceID string) (bool, error)
	ReleaseLeadership(ctx context.Context, instanceID string) error
}

// WebSocket interfaces
type WebSocketConnection interface {
	Send(message interface{}) error
	Close() error
	UserID() string
	AuctionID() string
}

type ConnectionManager interface {
	RegisterConnection(userID, auctionID string, conn WebSocketConnection) error
	UnregisterConnection(userID, auctionID string) error
	ReleaseConnection(conn WebSocketConnection) error
	GetConnectionsForAuction(auctionID string) []WebSocketConnection
	GetConnectionsForUser(userID string) []WebSocketConnection
	BroadcastToAuction(auctionID string, message interface{}) error
	NotifyUser(userID string, message interface{}) error
	CloseAndUnregisterConnections(auctionID string) error
}
