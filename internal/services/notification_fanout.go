package services

import (
	"context"
	"fmt"
	"time"

	"auction-engine/internal/clock"
	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
	"auction-engine/pkg/utils"
)

// NotificationFanout turns auction events into notification rows. It has no
// side effects; callers persist the rows inside their own transaction.
type NotificationFanout struct {
	clock clock.Clock
	newID func() string
}

func NewNotificationFanout(clk clock.Clock) *NotificationFanout {
	return &NotificationFanout{
		clock: clk,
		newID: func() string { return utils.GenerateID("ntf") },
	}
}

// BidAccepted builds one confirmation for the bidder, one outbid notice per
// distinct earlier bidder and one admin audit entry.
func (f *NotificationFanout) BidAccepted(auction *domain.Auction, itemTitle string, bid *domain.Bid, previousBidders []string) []*domain.Notification {
	now := f.clock.Now()
	amount := domain.FormatAmount(bid.Amount)

	notes := []*domain.Notification{
		f.build(domain.RecipientBidder, bid.BidderID, auction.ID, domain.NotificationBidConfirmed, now,
			fmt.Sprintf("Your bid of %s on %q was accepted.", amount, itemTitle)),
	}

	for _, bidder := range uniqueExcept(previousBidders, bid.BidderID) {
		notes = append(notes, f.build(domain.RecipientBidder, bidder, auction.ID, domain.NotificationOutbid, now,
			fmt.Sprintf("A bid of %s was placed on %q. You are no longer the highest bidder.", amount, itemTitle)))
	}

	notes = append(notes, f.build(domain.RecipientAdmin, "", auction.ID, domain.NotificationBidAudit, now,
		fmt.Sprintf("Bidder %s bid %s on %q (auction %s).", bid.BidderID, amount, itemTitle, auction.ID)))

	return notes
}

// AuctionFinalized builds the won/lost notices and the admin summary. With no
// winner only the summary is produced.
func (f *NotificationFanout) AuctionFinalized(auction *domain.Auction, itemTitle string, winner *domain.Bid, bidders []string) []*domain.Notification {
	now := f.clock.Now()

	if winner == nil {
		return []*domain.Notification{
			f.build(domain.RecipientAdmin, "", auction.ID, domain.NotificationAuctionSummary, now,
				fmt.Sprintf("Auction %s for %q closed with no bids.", auction.ID, itemTitle)),
		}
	}

	amount := domain.FormatAmount(winner.Amount)
	notes := []*domain.Notification{
		f.build(domain.RecipientBidder, winner.BidderID, auction.ID, domain.NotificationAuctionWon, now,
			fmt.Sprintf("You won %q with a bid of %s.", itemTitle, amount)),
	}

	losers := uniqueExcept(bidders, winner.BidderID)
	for _, bidder := range losers {
		notes = append(notes, f.build(domain.RecipientBidder, bidder, auction.ID, domain.NotificationAuctionLost, now,
			fmt.Sprintf("The auction for %q has closed. The winning bid was %s.", itemTitle, amount)))
	}

	notes = append(notes, f.build(domain.RecipientAdmin, "", auction.ID, domain.NotificationAuctionSummary, now,
		fmt.Sprintf("Auction %s for %q closed. Winner %s at %s, %d bidders in total.",
			auction.ID, itemTitle, winner.BidderID, amount, len(losers)+1)))

	return notes
}

func (f *NotificationFanout) build(kind domain.RecipientKind, recipientID, auctionID string,
	typ domain.NotificationType, now time.Time, message string) *domain.Notification {
	return &domain.Notification{
		ID:            f.newID(),
		RecipientKind: kind,
		RecipientID:   recipientID,
		AuctionID:     auctionID,
		Type:          typ,
		Message:       message,
		CreatedAt:     now,
	}
}

func uniqueExcept(ids []string, exclude string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || id == exclude || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// resolveItemTitle looks up display text for notifications. Catalog failures
// fall back to the raw reference and never fail the caller.
func resolveItemTitle(ctx context.Context, catalog domain.ItemCatalog, itemRef string, log logger.Logger) string {
	if catalog == nil {
		return itemRef
	}
	title, err := catalog.ItemTitle(ctx, itemRef)
	if err != nil || title == "" {
		log.Warn("Item title unavailable, using reference", "item_ref", itemRef, "error", err)
		return itemRef
	}
	return title
}
