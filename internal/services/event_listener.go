package services

import (
	"context"
	"fmt"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
)

// EventListener relays published auction events to the websocket clients
// connected to this instance and keeps the snapshot cache current.
type EventListener struct {
	cache             domain.SnapshotCache
	broadcaster       domain.AuctionBroadcaster
	notifier          domain.UserNotifier
	connectionManager domain.ConnectionManager
	log               logger.Logger
}

func NewEventListener(cache domain.SnapshotCache, connectionManager domain.ConnectionManager,
	broadcaster domain.AuctionBroadcaster, notifier domain.UserNotifier, log logger.Logger) *EventListener {
	return &EventListener{
		cache:             cache,
		broadcaster:       broadcaster,
		notifier:          notifier,
		connectionManager: connectionManager,
		log:               log,
	}
}

// Start blocks until ctx is cancelled or the subscription fails.
func (el *EventListener) Start(ctx context.Context, subscriber domain.EventSubscriber) error {
	el.log.Info("Starting event listener")
	return subscriber.SubscribeToAuctionEvents(ctx, func(event *domain.AuctionEvent) error {
		return el.HandleEvent(ctx, event)
	})
}

func (el *EventListener) HandleEvent(ctx context.Context, event *domain.AuctionEvent) error {
	el.log.Debug("Handling auction event", "type", event.Type, "auction_id", event.AuctionID)

	switch event.Type {
	case domain.EventBidAccepted:
		return el.handleBidAccepted(ctx, event)
	case domain.EventAuctionFinalized:
		return el.handleAuctionFinalized(ctx, event)
	case domain.EventNotification:
		return el.handleNotification(ctx, event)
	}

	return fmt.Errorf("unknown event type %q", event.Type)
}

func (el *EventListener) handleBidAccepted(ctx context.Context, event *domain.AuctionEvent) error {
	if event.Bid == nil {
		return fmt.Errorf("bid_accepted event for %s without bid", event.AuctionID)
	}

	if el.cache != nil {
		el.refreshSnapshot(ctx, event.Bid)
	}

	return el.broadcaster.BroadcastToAuction(ctx, event.AuctionID, map[string]interface{}{
		"type":           "bid_update",
		"auction_id":     event.AuctionID,
		"current_bid":    event.Bid.Amount.String(),
		"current_winner": event.Bid.BidderID,
		"timestamp":      event.Timestamp,
	})
}

// refreshSnapshot only moves the cached price up; events may arrive out of
// order across instances.
func (el *EventListener) refreshSnapshot(ctx context.Context, bid *domain.Bid) {
	snap, err := el.cache.GetSnapshot(ctx, bid.AuctionID)
	if err != nil {
		el.log.Warn("Failed to read cached snapshot", "auction_id", bid.AuctionID, "error", err)
		return
	}
	if snap == nil {
		return
	}
	if snap.CurrentPrice.Valid && !bid.Amount.GreaterThan(snap.CurrentPrice.Decimal) {
		return
	}

	snap.CurrentPrice.Decimal = bid.Amount
	snap.CurrentPrice.Valid = true
	snap.LeaderID = bid.BidderID
	if err := el.cache.SetSnapshot(ctx, *snap); err != nil {
		el.log.Warn("Failed to update cached snapshot", "auction_id", bid.AuctionID, "error", err)
	}
}

func (el *EventListener) handleAuctionFinalized(ctx context.Context, event *domain.AuctionEvent) error {
	if el.cache != nil {
		if err := el.cache.DeleteSnapshot(ctx, event.AuctionID); err != nil {
			el.log.Warn("Failed to drop cached snapshot", "auction_id", event.AuctionID, "error", err)
		}
	}

	msg := map[string]interface{}{
		"type":       "auction_ended",
		"auction_id": event.AuctionID,
		"timestamp":  event.Timestamp,
	}
	if event.Winner != nil {
		msg["winner_id"] = event.Winner.BidderID
		msg["winning_bid"] = event.Winner.Amount.String()
	}

	if err := el.broadcaster.BroadcastToAuction(ctx, event.AuctionID, msg); err != nil {
		el.log.Error("Failed to broadcast auction ended event", "error", err)
		return err
	}

	if err := el.connectionManager.CloseAndUnregisterConnections(event.AuctionID); err != nil {
		el.log.Error("Failed to finalize connections for auction", "auction_id",
			event.AuctionID, "error", err)
		return err
	}
	return nil
}

func (el *EventListener) handleNotification(ctx context.Context, event *domain.AuctionEvent) error {
	n := event.Notification
	if n == nil {
		return fmt.Errorf("notification event for %s without payload", event.AuctionID)
	}
	// Admin notifications have no socket audience.
	if n.RecipientKind != domain.RecipientBidder || n.RecipientID == "" {
		return nil
	}

	return el.notifier.NotifyUser(ctx, n.RecipientID, map[string]interface{}{
		"type":         "notification",
		"notification": n,
	})
}
