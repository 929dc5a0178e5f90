package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"auction-engine/internal/clock"
	"auction-engine/internal/domain"
	"auction-engine/internal/infrastructure/memory"
	"auction-engine/pkg/logger"

	"github.com/shopspring/decimal"
)

var start = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

type recordingDeliverer struct {
	mu         sync.Mutex
	deliveries []Delivery
}

func (r *recordingDeliverer) Deliver(_ context.Context, d Delivery) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = append(r.deliveries, d)
}

func (r *recordingDeliverer) all() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Delivery(nil), r.deliveries...)
}

type fixture struct {
	store     *memory.Store
	users     *memory.UserDirectory
	clock     *clock.Fake
	delivered *recordingDeliverer
	bids      *BidService
	manager   *AuctionManager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	store.AddAuction(&domain.Auction{
		ID:            "a1",
		ItemRef:       "item-1",
		StartTime:     start,
		EndTime:       start.Add(time.Hour),
		StartingPrice: decimal.NewFromInt(10000),
		MinIncrement:  decimal.NewFromInt(500),
		Status:        domain.AuctionActive,
	})

	users := memory.NewUserDirectory(
		memory.User{ID: "alice", Email: "alice@example.com", Validated: true, HasCredential: true},
		memory.User{ID: "bob", Email: "bob@example.com", Validated: true, HasCredential: true},
		memory.User{ID: "carol", Email: "carol@example.com", Validated: true, HasCredential: true},
		memory.User{ID: "root", Email: "root@example.com", Admin: true, Validated: true, HasCredential: true},
		memory.User{ID: "novice", Email: "novice@example.com", HasCredential: true},
		memory.User{ID: "nocard", Email: "nocard@example.com", Validated: true},
	)
	catalog := memory.NewItemCatalog(map[string]string{"item-1": "Vintage clock"})

	clk := clock.NewFake(start.Add(10 * time.Minute))
	fanout := NewNotificationFanout(clk)
	delivered := &recordingDeliverer{}
	log := logger.NewNop()

	return &fixture{
		store:     store,
		users:     users,
		clock:     clk,
		delivered: delivered,
		bids:      NewBidService(store, store, users, catalog, fanout, delivered, clk, 0, log),
		manager:   NewAuctionManager(store, store, store, catalog, fanout, delivered, log),
	}
}

func (f *fixture) bid(t *testing.T, bidder string, amount int64) domain.BidResult {
	t.Helper()
	result, err := f.bids.SubmitBid(context.Background(), "a1", bidder, decimal.NewFromInt(amount))
	if err != nil {
		t.Fatalf("submit bid: %v", err)
	}
	return result
}

func countType(notes []*domain.Notification, typ domain.NotificationType) int {
	n := 0
	for _, note := range notes {
		if note.Type == typ {
			n++
		}
	}
	return n
}

func recipients(notes []*domain.Notification, typ domain.NotificationType) []string {
	var out []string
	for _, note := range notes {
		if note.Type == typ {
			out = append(out, note.RecipientID)
		}
	}
	return out
}
