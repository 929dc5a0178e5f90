package domain

import "time"

type AuctionEventType string

const (
	EventBidAccepted      AuctionEventType = "bid_accepted"
	EventAuctionFinalized AuctionEventType = "auction_finalized"
	EventNotification     AuctionEventType = "notification"
)

// AuctionEvent is the envelope published for subscribers such as the
// real-time push layer. Fields are populated according to Type.
type AuctionEvent struct {
	Type         AuctionEventType `json:"type"`
	AuctionID    string           `json:"auction_id"`
	Bid          *Bid             `json:"bid,omitempty"`
	Winner       *Bid             `json:"winner,omitempty"`
	Bidders      []string         `json:"bidders,omitempty"`
	Notification *Notification    `json:"notification,omitempty"`
	Timestamp    time.Time        `json:"timestamp"`
}

// BidAcceptedEvent carries the bidders who had bid before newBid, excluding
// the new bidder.
func BidAcceptedEvent(auctionID string, bid *Bid, previousBidders []string, at time.Time) *AuctionEvent {
	return &AuctionEvent{
		Type:      EventBidAccepted,
		AuctionID: auctionID,
		Bid:       bid,
		Bidders:   previousBidders,
		Timestamp: at,
	}
}

func AuctionFinalizedEvent(auctionID string, winner *Bid, bidders []string, at time.Time) *AuctionEvent {
	return &AuctionEvent{
		Type:      EventAuctionFinalized,
		AuctionID: auctionID,
		Winner:    winner,
		Bidders:   bidders,
		Timestamp: at,
	}
}

func NotificationEvent(n *Notification) *AuctionEvent {
	return &AuctionEvent{
		Type:         EventNotification,
		AuctionID:    n.AuctionID,
		Notification: n,
		Timestamp:    n.CreatedAt,
	}
}
