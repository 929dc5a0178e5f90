package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Auction struct {
	ID            string
	ItemRef       string
	StartTime     time.Time
	EndTime       time.Time
	StartingPrice decimal.Decimal
	MinIncrement  decimal.Decimal
	CurrentPrice  decimal.NullDecimal
	WinnerBidID   string
	Status        AuctionStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsOpenAt reports whether bids may be placed at t. Both ends are inclusive.
func (a *Auction) IsOpenAt(t time.Time) bool {
	return a.Status == AuctionActive && !t.Before(a.StartTime) && !t.After(a.EndTime)
}

// IsExpiredAt reports whether an active auction is due for finalization.
func (a *Auction) IsExpiredAt(t time.Time) bool {
	return a.Status == AuctionActive && !a.EndTime.After(t)
}

// Snapshot returns the ledger view of the auction.
func (a *Auction) Snapshot() PriceSnapshot {
	return PriceSnapshot{
		AuctionID:     a.ID,
		StartingPrice: a.StartingPrice,
		MinIncrement:  a.MinIncrement,
		CurrentPrice:  a.CurrentPrice,
		Status:        a.Status,
		EndTime:       a.EndTime,
	}
}

type AuctionStatus int

const (
	AuctionActive AuctionStatus = iota + 1
	AuctionFinalized
)

func (s AuctionStatus) String() string {
	switch s {
	case AuctionActive:
		return "active"
	case AuctionFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

func (s AuctionStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *AuctionStatus) UnmarshalText(text []byte) error {
	status, err := ParseAuctionStatus(string(text))
	if err != nil {
		return err
	}
	*s = status
	return nil
}

func ParseAuctionStatus(v string) (AuctionStatus, error) {
	switch v {
	case "active":
		return AuctionActive, nil
	case "finalized":
		return AuctionFinalized, nil
	}
	return 0, fmt.Errorf("unknown auction status %q", v)
}

// PriceSnapshot is the read side of the auction price ledger.
type PriceSnapshot struct {
	AuctionID     string              `json:"auction_id"`
	StartingPrice decimal.Decimal     `json:"starting_price"`
	MinIncrement  decimal.Decimal     `json:"min_increment"`
	CurrentPrice  decimal.NullDecimal `json:"current_price"`
	LeaderID      string              `json:"leader_id,omitempty"`
	Status        AuctionStatus       `json:"status"`
	EndTime       time.Time           `json:"end_time"`
}

type Bid struct {
	ID        string          `json:"id"`
	AuctionID string          `json:"auction_id"`
	BidderID  string          `json:"bidder_id"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
}

type RecipientKind string

const (
	RecipientBidder RecipientKind = "bidder"
	RecipientAdmin  RecipientKind = "admin"
)

type NotificationType string

const (
	NotificationBidConfirmed   NotificationType = "bid_confirmed"
	NotificationOutbid         NotificationType = "outbid"
	NotificationBidAudit       NotificationType = "bid_audit"
	NotificationAuctionWon     NotificationType = "auction_won"
	NotificationAuctionLost    NotificationType = "auction_lost"
	NotificationAuctionSummary NotificationType = "auction_summary"
)

type Notification struct {
	ID            string           `json:"id"`
	RecipientKind RecipientKind    `json:"recipient_kind"`
	RecipientID   string           `json:"recipient_id,omitempty"` // empty for admin broadcast
	AuctionID     string           `json:"auction_id"`
	Type          NotificationType `json:"type"`
	Message       string           `json:"message"`
	CreatedAt     time.Time        `json:"created_at"`
	Read          bool             `json:"read"`
}

// NotificationFilter selects notifications for a reader.
type NotificationFilter struct {
	RecipientKind RecipientKind
	RecipientID   string
	UnreadOnly    bool
	Limit         int
}
