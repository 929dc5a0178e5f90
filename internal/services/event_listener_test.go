package services

import (
	"context"
	"sync"
	"testing"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type mapCache struct {
	mu    sync.Mutex
	snaps map[string]domain.PriceSnapshot
}

func newMapCache() *mapCache {
	return &mapCache{snaps: make(map[string]domain.PriceSnapshot)}
}

func (c *mapCache) SetSnapshot(_ context.Context, snap domain.PriceSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snaps[snap.AuctionID] = snap
	return nil
}

func (c *mapCache) GetSnapshot(_ context.Context, auctionID string) (*domain.PriceSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.snaps[auctionID]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (c *mapCache) DeleteSnapshot(_ context.Context, auctionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.snaps, auctionID)
	return nil
}

type fakeSockets struct {
	broadcasts []map[string]interface{}
	direct     map[string][]interface{}
	closed     []string
}

func newFakeSockets() *fakeSockets {
	return &fakeSockets{direct: make(map[string][]interface{})}
}

func (s *fakeSockets) BroadcastToAuction(_ context.Context, _ string, message interface{}) error {
	s.broadcasts = append(s.broadcasts, message.(map[string]interface{}))
	return nil
}

func (s *fakeSockets) NotifyUser(_ context.Context, userID string, message interface{}) error {
	s.direct[userID] = append(s.direct[userID], message)
	return nil
}

func (s *fakeSockets) RegisterConnection(string, string, domain.WebSocketConnection) error { return nil }
func (s *fakeSockets) UnregisterConnection(string, string) error                          { return nil }
func (s *fakeSockets) ReleaseConnection(domain.WebSocketConnection) error                 { return nil }
func (s *fakeSockets) GetConnectionsForAuction(string) []domain.WebSocketConnection       { return nil }
func (s *fakeSockets) GetConnectionsForUser(string) []domain.WebSocketConnection          { return nil }
func (s *fakeSockets) CloseAndUnregisterConnections(auctionID string) error {
	s.closed = append(s.closed, auctionID)
	return nil
}

type connManagerSockets struct{ *fakeSockets }

func (c connManagerSockets) BroadcastToAuction(auctionID string, message interface{}) error {
	return c.fakeSockets.BroadcastToAuction(context.Background(), auctionID, message)
}

func (c connManagerSockets) NotifyUser(userID string, message interface{}) error {
	return c.fakeSockets.NotifyUser(context.Background(), userID, message)
}

func newListener(cache domain.SnapshotCache, sockets *fakeSockets) *EventListener {
	return NewEventListener(cache, connManagerSockets{sockets}, sockets, sockets, logger.NewNop())
}

func TestEventListener_BidAccepted(t *testing.T) {
	ctx := context.Background()
	cache := newMapCache()
	require.NoError(t, cache.SetSnapshot(ctx, domain.PriceSnapshot{
		AuctionID:    "a1",
		CurrentPrice: decimal.NewNullDecimal(decimal.NewFromInt(200)),
		LeaderID:     "alice",
	}))
	sockets := newFakeSockets()
	el := newListener(cache, sockets)

	bid := &domain.Bid{ID: "b2", AuctionID: "a1", BidderID: "bob", Amount: decimal.NewFromInt(250), Timestamp: start}
	require.NoError(t, el.HandleEvent(ctx, domain.BidAcceptedEvent("a1", bid, []string{"alice"}, start)))

	snap, err := cache.GetSnapshot(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, "bob", snap.LeaderID)
	require.Equal(t, "250", snap.CurrentPrice.Decimal.String())

	require.Len(t, sockets.broadcasts, 1)
	require.Equal(t, "bid_update", sockets.broadcasts[0]["type"])
	require.Equal(t, "250", sockets.broadcasts[0]["current_bid"])

	// a late, lower event does not move the cached price back
	stale := &domain.Bid{ID: "b1", AuctionID: "a1", BidderID: "carol", Amount: decimal.NewFromInt(220), Timestamp: start}
	require.NoError(t, el.HandleEvent(ctx, domain.BidAcceptedEvent("a1", stale, nil, start)))
	snap, err = cache.GetSnapshot(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, "bob", snap.LeaderID)
}

func TestEventListener_AuctionFinalized(t *testing.T) {
	ctx := context.Background()
	cache := newMapCache()
	require.NoError(t, cache.SetSnapshot(ctx, domain.PriceSnapshot{AuctionID: "a1"}))
	sockets := newFakeSockets()
	el := newListener(cache, sockets)

	winner := &domain.Bid{ID: "b2", AuctionID: "a1", BidderID: "bob", Amount: decimal.NewFromInt(250)}
	require.NoError(t, el.HandleEvent(ctx, domain.AuctionFinalizedEvent("a1", winner, []string{"alice", "bob"}, start)))

	snap, err := cache.GetSnapshot(ctx, "a1")
	require.NoError(t, err)
	require.Nil(t, snap)
	require.Equal(t, "auction_ended", sockets.broadcasts[0]["type"])
	require.Equal(t, "bob", sockets.broadcasts[0]["winner_id"])
	require.Equal(t, []string{"a1"}, sockets.closed)
}

func TestEventListener_Notification(t *testing.T) {
	ctx := context.Background()
	sockets := newFakeSockets()
	el := newListener(nil, sockets)

	require.NoError(t, el.HandleEvent(ctx, domain.NotificationEvent(&domain.Notification{
		ID: "n1", RecipientKind: domain.RecipientBidder, RecipientID: "alice", AuctionID: "a1", Type: domain.NotificationOutbid,
	})))
	require.NoError(t, el.HandleEvent(ctx, domain.NotificationEvent(&domain.Notification{
		ID: "n2", RecipientKind: domain.RecipientAdmin, AuctionID: "a1", Type: domain.NotificationBidAudit,
	})))

	require.Len(t, sockets.direct["alice"], 1)
	require.Len(t, sockets.direct, 1)

	require.Error(t, el.HandleEvent(ctx, &domain.AuctionEvent{Type: "bogus", AuctionID: "a1"}))
}
