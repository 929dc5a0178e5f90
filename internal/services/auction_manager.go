package services

import (
	"context"
	"errors"
	"fmt"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
)

// AuctionManager owns the Active -> Finalized transition. Both the explicit
// command and the sweeper go through FinalizeAuction; the state
// compare-and-set decides which caller fires the notifications.
type AuctionManager struct {
	auctionRepo domain.AuctionRepository
	bidRepo     domain.BidRepository
	uow         domain.UnitOfWork
	catalog     domain.ItemCatalog
	fanout      *NotificationFanout
	deliverer   Deliverer
	log         logger.Logger
}

func NewAuctionManager(
	auctionRepo domain.AuctionRepository,
	bidRepo domain.BidRepository,
	uow domain.UnitOfWork,
	catalog domain.ItemCatalog,
	fanout *NotificationFanout,
	deliverer Deliverer,
	log logger.Logger,
) *AuctionManager {
	if deliverer == nil {
		deliverer = noopDeliverer{}
	}
	return &AuctionManager{
		auctionRepo: auctionRepo,
		bidRepo:     bidRepo,
		uow:         uow,
		catalog:     catalog,
		fanout:      fanout,
		deliverer:   deliverer,
		log:         log,
	}
}

// FinalizeAuction closes the auction and fixes its winner. Finalizing an
// already finalized auction succeeds with AlreadyFinalized.
func (am *AuctionManager) FinalizeAuction(ctx context.Context, auctionID string) (domain.FinalizeResult, error) {
	auction, err := am.auctionRepo.GetAuction(ctx, auctionID)
	if errors.Is(err, domain.ErrAuctionNotFound) {
		return domain.FinalizeResult{Outcome: domain.FinalizeNotFound}, nil
	}
	if err != nil {
		return domain.FinalizeResult{}, fmt.Errorf("load auction %s: %w", auctionID, err)
	}

	if auction.Status == domain.AuctionFinalized {
		return am.alreadyFinalized(ctx, auctionID)
	}

	am.log.Info("Ending auction", "auction_id", auctionID)
	itemTitle := resolveItemTitle(ctx, am.catalog, auction.ItemRef, am.log)

	var (
		winner  *domain.Bid
		bidders []string
		notes   []*domain.Notification
	)

	err = am.uow.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		ok, err := repos.Auctions.TryFinalize(ctx, auctionID)
		if err != nil {
			return fmt.Errorf("finalize state: %w", err)
		}
		if !ok {
			return domain.ErrAlreadyFinalized
		}

		// Read after the state change so no bid can slip in unseen.
		history, err := repos.Bids.GetBidHistory(ctx, auctionID)
		if err != nil {
			return fmt.Errorf("load bid history: %w", err)
		}
		winner = domain.ResolveWinner(history)
		bidders = domain.DistinctBidders(history, "")

		if err := repos.Auctions.RecordWinner(ctx, auctionID, winner); err != nil {
			return fmt.Errorf("record winner: %w", err)
		}

		notes = am.fanout.AuctionFinalized(auction, itemTitle, winner, bidders)
		for _, n := range notes {
			if err := repos.Notifications.AppendNotification(ctx, n); err != nil {
				return fmt.Errorf("append notification: %w", err)
			}
		}
		return nil
	})
	if errors.Is(err, domain.ErrAlreadyFinalized) {
		am.log.Info("Auction finalized concurrently", "auction_id", auctionID)
		return am.alreadyFinalized(ctx, auctionID)
	}
	if err != nil {
		am.log.Error("Failed to finalize auction", "auction_id", auctionID, "error", err)
		return domain.FinalizeResult{}, err
	}

	fields := []interface{}{"auction_id", auctionID, "bidders", len(bidders)}
	if winner != nil {
		fields = append(fields, "winner_id", winner.BidderID, "amount", winner.Amount.String())
	}
	am.log.Info("Auction finalized", fields...)

	at := auction.EndTime
	if len(notes) > 0 {
		at = notes[0].CreatedAt
	}
	am.deliverer.Deliver(context.WithoutCancel(ctx), Delivery{
		Event:         domain.AuctionFinalizedEvent(auctionID, winner, bidders, at),
		Notifications: notes,
	})

	return domain.FinalizeResult{Outcome: domain.FinalizedNow, Winner: winner}, nil
}

func (am *AuctionManager) alreadyFinalized(ctx context.Context, auctionID string) (domain.FinalizeResult, error) {
	history, err := am.bidRepo.GetBidHistory(ctx, auctionID)
	if err != nil {
		return domain.FinalizeResult{}, fmt.Errorf("load bid history: %w", err)
	}
	return domain.FinalizeResult{Outcome: domain.AlreadyFinalized, Winner: domain.ResolveWinner(history)}, nil
}
