package services

import (
	"context"
	"errors"
	"fmt"

	"auction-engine/internal/clock"
	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
	"auction-engine/pkg/utils"

	"github.com/shopspring/decimal"
)

const defaultMaxAttempts = 5

// BidService admits bids. The price update is a compare-and-set against the
// price read at the start of the attempt, so concurrent bids on one auction
// cannot overwrite each other.
type BidService struct {
	auctionRepo domain.AuctionRepository
	uow         domain.UnitOfWork
	users       domain.UserDirectory
	catalog     domain.ItemCatalog
	fanout      *NotificationFanout
	deliverer   Deliverer
	clock       clock.Clock
	maxAttempts int
	log         logger.Logger
}

func NewBidService(
	auctionRepo domain.AuctionRepository,
	uow domain.UnitOfWork,
	users domain.UserDirectory,
	catalog domain.ItemCatalog,
	fanout *NotificationFanout,
	deliverer Deliverer,
	clk clock.Clock,
	maxAttempts int,
	log logger.Logger,
) *BidService {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if deliverer == nil {
		deliverer = noopDeliverer{}
	}
	return &BidService{
		auctionRepo: auctionRepo,
		uow:         uow,
		users:       users,
		catalog:     catalog,
		fanout:      fanout,
		deliverer:   deliverer,
		clock:       clk,
		maxAttempts: maxAttempts,
		log:         log,
	}
}

// SubmitBid validates and records one bid. Rejections are reported through
// the BidResult; the error is reserved for malformed amounts, infrastructure
// failures and ErrPriceContention.
func (s *BidService) SubmitBid(ctx context.Context, auctionID, bidderID string, amount decimal.Decimal) (domain.BidResult, error) {
	s.log.Info("Placing bid", "auction_id", auctionID, "user_id", bidderID, "amount", amount.String())

	if !domain.ValidAmount(amount) {
		s.log.Info("Bid rejected", "auction_id", auctionID, "user_id", bidderID, "reason", "invalid_amount")
		return domain.BidResult{}, domain.ErrInvalidAmount
	}

	bidderChecked := false
	itemTitle := ""

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		now := s.clock.Now()

		auction, err := s.auctionRepo.GetAuction(ctx, auctionID)
		if errors.Is(err, domain.ErrAuctionNotFound) {
			return s.reject(auctionID, bidderID, domain.BidResult{Outcome: domain.BidAuctionNotActive}), nil
		}
		if err != nil {
			return domain.BidResult{}, fmt.Errorf("load auction %s: %w", auctionID, err)
		}
		if !auction.IsOpenAt(now) {
			return s.reject(auctionID, bidderID, domain.BidResult{Outcome: domain.BidAuctionNotActive}), nil
		}

		if !bidderChecked {
			result, err := s.checkBidder(ctx, bidderID)
			if err != nil {
				return domain.BidResult{}, err
			}
			if result != nil {
				return s.reject(auctionID, bidderID, *result), nil
			}
			bidderChecked = true
			itemTitle = resolveItemTitle(ctx, s.catalog, auction.ItemRef, s.log)
		}

		if !domain.MeetsFloor(auction, amount) {
			return s.reject(auctionID, bidderID, domain.BidResult{
				Outcome:         domain.BidTooLow,
				RequiredMinimum: domain.RequiredMinimum(auction),
			}), nil
		}

		bid := &domain.Bid{
			ID:        utils.GenerateID("bid"),
			AuctionID: auction.ID,
			BidderID:  bidderID,
			Amount:    amount,
			Timestamp: now,
		}

		delivery, err := s.record(ctx, auction, itemTitle, bid)
		if errors.Is(err, domain.ErrPriceConflict) {
			s.log.Debug("Price moved during admission, retrying",
				"auction_id", auctionID, "user_id", bidderID, "attempt", attempt)
			continue
		}
		if err != nil {
			s.log.Error("Failed to record bid", "auction_id", auctionID, "user_id", bidderID, "error", err)
			return domain.BidResult{}, err
		}

		s.log.Info("Bid accepted", "auction_id", auctionID, "user_id", bidderID,
			"bid_id", bid.ID, "amount", amount.String())
		s.deliverer.Deliver(context.WithoutCancel(ctx), delivery)

		return domain.BidResult{Outcome: domain.BidAccepted, Bid: bid}, nil
	}

	s.log.Warn("Gave up on bid after repeated price conflicts",
		"auction_id", auctionID, "user_id", bidderID, "attempts", s.maxAttempts)
	return domain.BidResult{}, domain.ErrPriceContention
}

// CurrentPrice reads the auction price ledger.
func (s *BidService) CurrentPrice(ctx context.Context, auctionID string) (domain.PriceSnapshot, error) {
	return s.auctionRepo.ReadPrice(ctx, auctionID)
}

// record persists the price change, the bid and its notifications in one
// transaction.
func (s *BidService) record(ctx context.Context, auction *domain.Auction, itemTitle string, bid *domain.Bid) (Delivery, error) {
	var (
		previous []string
		notes    []*domain.Notification
	)

	err := s.uow.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		ok, err := repos.Auctions.TrySetPrice(ctx, auction.ID, bid.Amount, auction.CurrentPrice)
		if err != nil {
			return fmt.Errorf("set price: %w", err)
		}
		if !ok {
			return domain.ErrPriceConflict
		}

		history, err := repos.Bids.GetBidHistory(ctx, auction.ID)
		if err != nil {
			return fmt.Errorf("load bid history: %w", err)
		}
		previous = domain.DistinctBidders(history, bid.BidderID)

		if err := repos.Bids.SaveBid(ctx, bid); err != nil {
			return fmt.Errorf("save bid: %w", err)
		}

		notes = s.fanout.BidAccepted(auction, itemTitle, bid, previous)
		for _, n := range notes {
			if err := repos.Notifications.AppendNotification(ctx, n); err != nil {
				return fmt.Errorf("append notification: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return Delivery{}, err
	}

	return Delivery{
		Event:         domain.BidAcceptedEvent(auction.ID, bid, previous, bid.Timestamp),
		Notifications: notes,
	}, nil
}

// checkBidder returns a rejection, or nil when the bidder may bid.
func (s *BidService) checkBidder(ctx context.Context, bidderID string) (*domain.BidResult, error) {
	isAdmin, err := s.users.IsAdmin(ctx, bidderID)
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		return nil, fmt.Errorf("check admin role for %s: %w", bidderID, err)
	}
	if isAdmin {
		return &domain.BidResult{Outcome: domain.BidBidderUnauthorized}, nil
	}

	eligible, err := s.users.IsEligible(ctx, bidderID)
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		return nil, fmt.Errorf("check eligibility for %s: %w", bidderID, err)
	}
	if !eligible {
		return &domain.BidResult{Outcome: domain.BidBidderIneligible, Reason: domain.ReasonNotValidated}, nil
	}

	hasCredential, err := s.users.HasCredential(ctx, bidderID)
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		return nil, fmt.Errorf("check credential for %s: %w", bidderID, err)
	}
	if !hasCredential {
		return &domain.BidResult{Outcome: domain.BidBidderIneligible, Reason: domain.ReasonMissingCredential}, nil
	}

	return nil, nil
}

func (s *BidService) reject(auctionID, bidderID string, result domain.BidResult) domain.BidResult {
	fields := []interface{}{"auction_id", auctionID, "user_id", bidderID, "reason", result.Outcome.String()}
	if result.Outcome == domain.BidTooLow {
		fields = append(fields, "required_minimum", result.RequiredMinimum.String())
	}
	if result.Reason != "" {
		fields = append(fields, "detail", string(result.Reason))
	}
	s.log.Info("Bid rejected", fields...)
	return result
}
