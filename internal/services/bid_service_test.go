package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/internal/infrastructure/memory"
	"auction-engine/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitBid_IncrementFloor(t *testing.T) {
	f := newFixture(t)

	result := f.bid(t, "alice", 10000)
	require.Equal(t, domain.BidAccepted, result.Outcome)
	require.NotNil(t, result.Bid)

	result = f.bid(t, "bob", 10300)
	require.Equal(t, domain.BidTooLow, result.Outcome)
	require.Equal(t, "10500", result.RequiredMinimum.String())

	result = f.bid(t, "bob", 10500)
	require.Equal(t, domain.BidAccepted, result.Outcome)

	snap, err := f.bids.CurrentPrice(context.Background(), "a1")
	require.NoError(t, err)
	require.Equal(t, "10500", snap.CurrentPrice.Decimal.String())
	require.Equal(t, "bob", snap.LeaderID)
}

func TestSubmitBid_BelowStartingPrice(t *testing.T) {
	f := newFixture(t)

	result := f.bid(t, "alice", 9999)
	require.Equal(t, domain.BidTooLow, result.Outcome)
	require.Equal(t, "10000", result.RequiredMinimum.String())
	require.Empty(t, f.store.PriceHistory("a1"))
}

func TestSubmitBid_BidderChecks(t *testing.T) {
	tests := []struct {
		name    string
		bidder  string
		outcome domain.BidOutcome
		reason  domain.IneligibleReason
	}{
		{"admin", "root", domain.BidBidderUnauthorized, ""},
		{"not validated", "novice", domain.BidBidderIneligible, domain.ReasonNotValidated},
		{"no credential", "nocard", domain.BidBidderIneligible, domain.ReasonMissingCredential},
		{"unknown user", "ghost", domain.BidBidderIneligible, domain.ReasonNotValidated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			result := f.bid(t, tt.bidder, 20000)
			require.Equal(t, tt.outcome, result.Outcome)
			require.Equal(t, tt.reason, result.Reason)
			require.Nil(t, result.Bid)
			require.Empty(t, f.store.Notifications())
			require.Empty(t, f.delivered.all())
		})
	}
}

func TestSubmitBid_AuctionWindow(t *testing.T) {
	f := newFixture(t)

	f.clock.Set(start.Add(-time.Second))
	require.Equal(t, domain.BidAuctionNotActive, f.bid(t, "alice", 10000).Outcome)

	// end time is inclusive
	f.clock.Set(start.Add(time.Hour))
	require.Equal(t, domain.BidAccepted, f.bid(t, "alice", 10000).Outcome)

	f.clock.Set(start.Add(time.Hour + time.Nanosecond))
	require.Equal(t, domain.BidAuctionNotActive, f.bid(t, "bob", 20000).Outcome)

	result, err := f.bids.SubmitBid(context.Background(), "missing", "alice", decimal.NewFromInt(1))
	require.NoError(t, err)
	require.Equal(t, domain.BidAuctionNotActive, result.Outcome)
}

func TestSubmitBid_FinalizedAuction(t *testing.T) {
	f := newFixture(t)
	_, err := f.manager.FinalizeAuction(context.Background(), "a1")
	require.NoError(t, err)

	require.Equal(t, domain.BidAuctionNotActive, f.bid(t, "alice", 50000).Outcome)
}

func TestSubmitBid_Notifications(t *testing.T) {
	f := newFixture(t)

	f.bid(t, "alice", 10000)
	f.bid(t, "bob", 10500)
	f.bid(t, "alice", 11000)
	f.bid(t, "carol", 12000)

	notes := f.store.Notifications()
	require.Equal(t, 4, countType(notes, domain.NotificationBidConfirmed))
	require.Equal(t, 4, countType(notes, domain.NotificationBidAudit))
	// bob: alice; alice: bob; carol: alice, bob
	require.Equal(t, []string{"alice", "bob", "alice", "bob"}, recipients(notes, domain.NotificationOutbid))

	for _, n := range notes {
		if n.Type == domain.NotificationBidAudit {
			require.Equal(t, domain.RecipientAdmin, n.RecipientKind)
			require.Contains(t, n.Message, "Vintage clock")
		}
	}

	deliveries := f.delivered.all()
	require.Len(t, deliveries, 4)
	require.Equal(t, domain.EventBidAccepted, deliveries[3].Event.Type)
	require.Equal(t, []string{"alice", "bob"}, deliveries[3].Event.Bidders)
	require.Len(t, deliveries[3].Notifications, 4)
}

func TestSubmitBid_SameBidderIsNotOutbid(t *testing.T) {
	f := newFixture(t)

	f.bid(t, "alice", 10000)
	f.bid(t, "alice", 10500)

	require.Zero(t, countType(f.store.Notifications(), domain.NotificationOutbid))
}

func TestSubmitBid_RollsBackWhenNotificationFails(t *testing.T) {
	f := newFixture(t)
	f.store.SetAppendHook(func(n *domain.Notification) error {
		if n.Type == domain.NotificationBidAudit {
			return errors.New("notification store down")
		}
		return nil
	})

	_, err := f.bids.SubmitBid(context.Background(), "a1", "alice", decimal.NewFromInt(10000))
	require.Error(t, err)

	a, err := f.store.GetAuction(context.Background(), "a1")
	require.NoError(t, err)
	require.False(t, a.CurrentPrice.Valid)
	history, err := f.store.GetBidHistory(context.Background(), "a1")
	require.NoError(t, err)
	require.Empty(t, history)
	require.Empty(t, f.store.Notifications())
	require.Empty(t, f.delivered.all())
}

func TestSubmitBid_ConcurrentBidsKeepPriceMonotonic(t *testing.T) {
	f := newFixture(t)
	const bidders = 40

	for i := 0; i < bidders; i++ {
		f.users.Put(memory.User{ID: fmt.Sprintf("u%02d", i), Validated: true, HasCredential: true})
	}
	svc := NewBidService(f.store, f.store, f.users, nil, f.bids.fanout, f.delivered, f.clock, 1000, logger.NewNop())

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted []decimal.Decimal
	)
	for i := 0; i < bidders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			amount := decimal.NewFromInt(10000 + int64(i)*500)
			result, err := svc.SubmitBid(context.Background(), "a1", fmt.Sprintf("u%02d", i), amount)
			if errors.Is(err, domain.ErrPriceContention) {
				return
			}
			if !assert.NoError(t, err) {
				return
			}
			if result.Accepted() {
				mu.Lock()
				accepted = append(accepted, amount)
				mu.Unlock()
			} else {
				assert.Equal(t, domain.BidTooLow, result.Outcome)
			}
		}(i)
	}
	wg.Wait()

	prices := f.store.PriceHistory("a1")
	require.NotEmpty(t, prices)
	require.Len(t, prices, len(accepted))
	for i := 1; i < len(prices); i++ {
		require.True(t, prices[i].GreaterThanOrEqual(prices[i-1].Add(decimal.NewFromInt(500))),
			"price went from %s to %s", prices[i-1], prices[i])
	}

	history, err := f.store.GetBidHistory(context.Background(), "a1")
	require.NoError(t, err)
	require.Len(t, history, len(accepted))

	snap, err := f.store.ReadPrice(context.Background(), "a1")
	require.NoError(t, err)
	require.True(t, snap.CurrentPrice.Decimal.Equal(prices[len(prices)-1]))
	require.True(t, domain.ResolveWinner(history).Amount.Equal(snap.CurrentPrice.Decimal))
	require.Equal(t, len(accepted), countType(f.store.Notifications(), domain.NotificationBidConfirmed))
}

type conflictingRepo struct {
	domain.AuctionRepository
}

func (conflictingRepo) TrySetPrice(context.Context, string, decimal.Decimal, decimal.NullDecimal) (bool, error) {
	return false, nil
}

type conflictingUoW struct {
	store *memory.Store
}

func (u conflictingUoW) WithinTx(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	return u.store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		repos.Auctions = conflictingRepo{repos.Auctions}
		return fn(ctx, repos)
	})
}

func TestSubmitBid_GivesUpAfterRepeatedConflicts(t *testing.T) {
	f := newFixture(t)
	svc := NewBidService(f.store, conflictingUoW{f.store}, f.users, nil, f.bids.fanout, f.delivered, f.clock, 3, logger.NewNop())

	_, err := svc.SubmitBid(context.Background(), "a1", "alice", decimal.NewFromInt(10000))
	require.ErrorIs(t, err, domain.ErrPriceContention)
	require.Empty(t, f.store.Notifications())
}

func TestSubmitBid_RejectsAmountsTheLedgerWouldRound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.AddAuction(&domain.Auction{
		ID:            "flat",
		ItemRef:       "item-1",
		StartTime:     start,
		EndTime:       start.Add(time.Hour),
		StartingPrice: decimal.NewFromInt(10000),
		MinIncrement:  decimal.Zero,
		Status:        domain.AuctionActive,
	})

	result, err := f.bids.SubmitBid(ctx, "flat", "alice", decimal.NewFromInt(10000))
	require.NoError(t, err)
	require.Equal(t, domain.BidAccepted, result.Outcome)

	_, err = f.bids.SubmitBid(ctx, "flat", "bob", decimal.RequireFromString("10000.00001"))
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.bids.SubmitBid(ctx, "flat", "bob", decimal.Zero)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	result, err = f.bids.SubmitBid(ctx, "flat", "bob", decimal.RequireFromString("10000.0001"))
	require.NoError(t, err)
	require.Equal(t, domain.BidAccepted, result.Outcome)

	history, err := f.store.GetBidHistory(ctx, "flat")
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "bob", domain.ResolveWinner(history).BidderID)
	require.Equal(t, []string{"10000", "10000.0001"}, []string{
		f.store.PriceHistory("flat")[0].String(),
		f.store.PriceHistory("flat")[1].String(),
	})
}

// finalizingUoW finalizes the auction right before the first bid transaction,
// after the bid service has already read it as active.
type finalizingUoW struct {
	store   *memory.Store
	manager *AuctionManager
	once    sync.Once
	result  domain.FinalizeResult
	err     error
}

func (u *finalizingUoW) WithinTx(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	u.once.Do(func() {
		u.result, u.err = u.manager.FinalizeAuction(ctx, "a1")
	})
	return u.store.WithinTx(ctx, fn)
}

func TestSubmitBid_LosesToConcurrentFinalize(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.Equal(t, domain.BidAccepted, f.bid(t, "alice", 10000).Outcome)
	before := len(f.store.Notifications())

	uow := &finalizingUoW{store: f.store, manager: f.manager}
	svc := NewBidService(f.store, uow, f.users, nil, f.bids.fanout, f.delivered, f.clock, 0, logger.NewNop())

	result, err := svc.SubmitBid(ctx, "a1", "bob", decimal.NewFromInt(10500))
	require.NoError(t, err)
	require.Equal(t, domain.BidAuctionNotActive, result.Outcome)
	require.Nil(t, result.Bid)

	require.NoError(t, uow.err)
	require.Equal(t, domain.FinalizedNow, uow.result.Outcome)
	require.Equal(t, "alice", uow.result.Winner.BidderID)

	history, err := f.store.GetBidHistory(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, "alice", history[0].BidderID)

	notes := f.store.Notifications()[before:]
	require.Zero(t, countType(notes, domain.NotificationBidConfirmed))
	require.Zero(t, countType(notes, domain.NotificationOutbid))
	require.Equal(t, 1, countType(notes, domain.NotificationAuctionWon))
	for _, n := range notes {
		require.NotEqual(t, "bob", n.RecipientID)
	}

	a, err := f.store.GetAuction(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, domain.AuctionFinalized, a.Status)
	require.Equal(t, "10000", a.CurrentPrice.Decimal.String())
}
