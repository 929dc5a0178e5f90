package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"auction-engine/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFinalizeAuction_PicksHighestBid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bid(t, "alice", 10000)
	f.bid(t, "bob", 10500)
	f.bid(t, "carol", 12000)
	f.bid(t, "alice", 13000)
	before := len(f.store.Notifications())

	result, err := f.manager.FinalizeAuction(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, domain.FinalizedNow, result.Outcome)
	require.Equal(t, "alice", result.Winner.BidderID)
	require.Equal(t, "13000", result.Winner.Amount.String())

	a, err := f.store.GetAuction(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, domain.AuctionFinalized, a.Status)
	require.Equal(t, result.Winner.ID, a.WinnerBidID)

	notes := f.store.Notifications()[before:]
	require.Equal(t, []string{"alice"}, recipients(notes, domain.NotificationAuctionWon))
	require.Equal(t, []string{"bob", "carol"}, recipients(notes, domain.NotificationAuctionLost))
	require.Equal(t, 1, countType(notes, domain.NotificationAuctionSummary))
	require.Len(t, notes, 4)

	deliveries := f.delivered.all()
	last := deliveries[len(deliveries)-1]
	require.Equal(t, domain.EventAuctionFinalized, last.Event.Type)
	require.Equal(t, result.Winner.ID, last.Event.Winner.ID)
	require.Len(t, last.Notifications, 4)
}

func TestFinalizeAuction_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.bid(t, "alice", 10000)

	first, err := f.manager.FinalizeAuction(ctx, "a1")
	require.NoError(t, err)
	count := len(f.store.Notifications())
	deliveries := len(f.delivered.all())

	second, err := f.manager.FinalizeAuction(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, domain.AlreadyFinalized, second.Outcome)
	require.Equal(t, first.Winner.ID, second.Winner.ID)
	require.Len(t, f.store.Notifications(), count)
	require.Len(t, f.delivered.all(), deliveries)
}

func TestFinalizeAuction_TieGoesToEarliestBid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	amount := decimal.NewFromInt(15000)

	require.NoError(t, f.store.SaveBid(ctx, &domain.Bid{ID: "bid_b", AuctionID: "a1", BidderID: "bob", Amount: amount, Timestamp: start.Add(2 * time.Minute)}))
	require.NoError(t, f.store.SaveBid(ctx, &domain.Bid{ID: "bid_a", AuctionID: "a1", BidderID: "alice", Amount: amount, Timestamp: start.Add(time.Minute)}))

	result, err := f.manager.FinalizeAuction(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, "alice", result.Winner.BidderID)
	require.Equal(t, "bid_a", result.Winner.ID)
}

func TestFinalizeAuction_NoBids(t *testing.T) {
	f := newFixture(t)

	result, err := f.manager.FinalizeAuction(context.Background(), "a1")
	require.NoError(t, err)
	require.Equal(t, domain.FinalizedNow, result.Outcome)
	require.Nil(t, result.Winner)

	notes := f.store.Notifications()
	require.Len(t, notes, 1)
	require.Equal(t, domain.NotificationAuctionSummary, notes[0].Type)
	require.Equal(t, domain.RecipientAdmin, notes[0].RecipientKind)
}

func TestFinalizeAuction_NotFound(t *testing.T) {
	f := newFixture(t)

	result, err := f.manager.FinalizeAuction(context.Background(), "missing")
	require.NoError(t, err)
	require.Equal(t, domain.FinalizeNotFound, result.Outcome)
}

func TestFinalizeAuction_RollsBackOnNotificationFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.bid(t, "alice", 10000)

	f.store.SetAppendHook(func(n *domain.Notification) error {
		if n.Type == domain.NotificationAuctionSummary {
			return errors.New("notification store down")
		}
		return nil
	})
	_, err := f.manager.FinalizeAuction(ctx, "a1")
	require.Error(t, err)

	a, err := f.store.GetAuction(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, domain.AuctionActive, a.Status)
	require.Empty(t, a.WinnerBidID)

	f.store.SetAppendHook(nil)
	result, err := f.manager.FinalizeAuction(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, domain.FinalizedNow, result.Outcome)
}

func TestFinalizeAuction_ConcurrentCallersFinalizeOnce(t *testing.T) {
	f := newFixture(t)
	f.bid(t, "alice", 10000)
	f.bid(t, "bob", 10500)

	const callers = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = map[domain.FinalizeOutcome]int{}
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := f.manager.FinalizeAuction(context.Background(), "a1")
			if !assert.NoError(t, err) || !assert.NotNil(t, result.Winner) {
				return
			}
			assert.Equal(t, "bob", result.Winner.BidderID)
			mu.Lock()
			outcomes[result.Outcome]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Equal(t, 1, outcomes[domain.FinalizedNow])
	require.Equal(t, callers-1, outcomes[domain.AlreadyFinalized])

	notes := f.store.Notifications()
	require.Equal(t, 1, countType(notes, domain.NotificationAuctionSummary))
	require.Equal(t, 1, countType(notes, domain.NotificationAuctionWon))
	require.Equal(t, 1, countType(notes, domain.NotificationAuctionLost))
}
