package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"auction-engine/internal/domain"

	"github.com/shopspring/decimal"
)

// Store is a concurrency-safe in-memory implementation of the auction, bid and
// notification repositories plus UnitOfWork. Transactions are serialized and
// buffer their writes until fn returns nil.
type Store struct {
	mu            sync.RWMutex
	auctions      map[string]*domain.Auction
	bids          map[string][]*domain.Bid
	notifications []*domain.Notification
	priceLog      map[string][]decimal.Decimal
	appendHook    func(n *domain.Notification) error
}

func NewStore() *Store {
	return &Store{
		auctions: make(map[string]*domain.Auction),
		bids:     make(map[string][]*domain.Bid),
		priceLog: make(map[string][]decimal.Decimal),
	}
}

// AddAuction seeds an auction, standing in for the item catalog.
func (s *Store) AddAuction(a *domain.Auction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auctions[a.ID] = cloneAuction(a)
}

// SetAppendHook installs a function called before every notification append.
// A non-nil error fails the append. Intended for tests only.
func (s *Store) SetAppendHook(hook func(n *domain.Notification) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendHook = hook
}

// PriceHistory returns every committed price for the auction in order.
func (s *Store) PriceHistory(auctionID string) []decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]decimal.Decimal(nil), s.priceLog[auctionID]...)
}

// Notifications returns a copy of every committed notification in append order.
func (s *Store) Notifications() []*domain.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		c := *n
		out = append(out, &c)
	}
	return out
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &txView{s: s, auctions: make(map[string]*domain.Auction)}
	repos := domain.Repositories{
		Auctions:      txAuctions{tx},
		Bids:          txBids{tx},
		Notifications: txNotifications{tx},
	}
	if err := fn(ctx, repos); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// AuctionRepository

func (s *Store) GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.auctions[auctionID]
	if !ok {
		return nil, domain.ErrAuctionNotFound
	}
	return cloneAuction(a), nil
}

func (s *Store) GetExpiredActiveAuctions(ctx context.Context, now time.Time) ([]*domain.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var expired []*domain.Auction
	for _, a := range s.auctions {
		if a.IsExpiredAt(now) {
			expired = append(expired, cloneAuction(a))
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		if !expired[i].EndTime.Equal(expired[j].EndTime) {
			return expired[i].EndTime.Before(expired[j].EndTime)
		}
		return expired[i].ID < expired[j].ID
	})
	return expired, nil
}

func (s *Store) ReadPrice(ctx context.Context, auctionID string) (domain.PriceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.auctions[auctionID]
	if !ok {
		return domain.PriceSnapshot{}, domain.ErrAuctionNotFound
	}
	snap := a.Snapshot()
	if a.CurrentPrice.Valid {
		for _, b := range s.bids[auctionID] {
			if b.Amount.Equal(a.CurrentPrice.Decimal) {
				snap.LeaderID = b.BidderID
				break
			}
		}
	}
	return snap, nil
}

func (s *Store) TrySetPrice(ctx context.Context, auctionID string, newAmount decimal.Decimal, expected decimal.NullDecimal) (bool, error) {
	var ok bool
	err := s.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		ok, err = repos.Auctions.TrySetPrice(ctx, auctionID, newAmount, expected)
		return err
	})
	return ok, err
}

func (s *Store) TryFinalize(ctx context.Context, auctionID string) (bool, error) {
	var ok bool
	err := s.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		ok, err = repos.Auctions.TryFinalize(ctx, auctionID)
		return err
	})
	return ok, err
}

func (s *Store) RecordWinner(ctx context.Context, auctionID string, winner *domain.Bid) error {
	return s.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		return repos.Auctions.RecordWinner(ctx, auctionID, winner)
	})
}

// BidRepository

func (s *Store) SaveBid(ctx context.Context, bid *domain.Bid) error {
	return s.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		return repos.Bids.SaveBid(ctx, bid)
	})
}

func (s *Store) GetBidHistory(ctx context.Context, auctionID string) ([]*domain.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedBids(s.bids[auctionID], nil, auctionID), nil
}

// NotificationRepository

func (s *Store) AppendNotification(ctx context.Context, n *domain.Notification) error {
	return s.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		return repos.Notifications.AppendNotification(ctx, n)
	})
}

func (s *Store) ListNotifications(ctx context.Context, filter domain.NotificationFilter) ([]*domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Notification
	for _, n := range s.notifications {
		if filter.RecipientKind != "" && n.RecipientKind != filter.RecipientKind {
			continue
		}
		if filter.RecipientKind != domain.RecipientAdmin && filter.RecipientID != "" && n.RecipientID != filter.RecipientID {
			continue
		}
		if filter.UnreadOnly && n.Read {
			continue
		}
		c := *n
		out = append(out, &c)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *Store) MarkRead(ctx context.Context, notificationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.notifications {
		if n.ID == notificationID {
			n.Read = true
			return nil
		}
	}
	return domain.ErrNotificationNotFound
}

// txView overlays staged writes on the committed state. The store lock is
// held for its whole lifetime.
type txView struct {
	s             *Store
	auctions      map[string]*domain.Auction
	bids          []*domain.Bid
	notifications []*domain.Notification
	prices        []pricedAuction
}

type pricedAuction struct {
	auctionID string
	price     decimal.Decimal
}

func (tx *txView) auction(id string) (*domain.Auction, bool) {
	if a, ok := tx.auctions[id]; ok {
		return a, true
	}
	a, ok := tx.s.auctions[id]
	return a, ok
}

func (tx *txView) stage(id string) (*domain.Auction, bool) {
	if a, ok := tx.auctions[id]; ok {
		return a, true
	}
	a, ok := tx.s.auctions[id]
	if !ok {
		return nil, false
	}
	c := cloneAuction(a)
	tx.auctions[id] = c
	return c, true
}

func (tx *txView) commit() {
	for id, a := range tx.auctions {
		tx.s.auctions[id] = a
	}
	for _, b := range tx.bids {
		tx.s.bids[b.AuctionID] = append(tx.s.bids[b.AuctionID], b)
	}
	tx.s.notifications = append(tx.s.notifications, tx.notifications...)
	for _, p := range tx.prices {
		tx.s.priceLog[p.auctionID] = append(tx.s.priceLog[p.auctionID], p.price)
	}
}

type txAuctions struct{ tx *txView }

func (r txAuctions) GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	a, ok := r.tx.auction(auctionID)
	if !ok {
		return nil, domain.ErrAuctionNotFound
	}
	return cloneAuction(a), nil
}

func (r txAuctions) GetExpiredActiveAuctions(ctx context.Context, now time.Time) ([]*domain.Auction, error) {
	var expired []*domain.Auction
	for id := range r.tx.s.auctions {
		a, _ := r.tx.auction(id)
		if a.IsExpiredAt(now) {
			expired = append(expired, cloneAuction(a))
		}
	}
	return expired, nil
}

func (r txAuctions) ReadPrice(ctx context.Context, auctionID string) (domain.PriceSnapshot, error) {
	a, ok := r.tx.auction(auctionID)
	if !ok {
		return domain.PriceSnapshot{}, domain.ErrAuctionNotFound
	}
	return a.Snapshot(), nil
}

func (r txAuctions) TrySetPrice(ctx context.Context, auctionID string, newAmount decimal.Decimal, expected decimal.NullDecimal) (bool, error) {
	a, ok := r.tx.stage(auctionID)
	if !ok {
		return false, domain.ErrAuctionNotFound
	}
	if a.Status != domain.AuctionActive || !samePrice(a.CurrentPrice, expected) {
		return false, nil
	}
	a.CurrentPrice = decimal.NewNullDecimal(newAmount)
	r.tx.prices = append(r.tx.prices, pricedAuction{auctionID: auctionID, price: newAmount})
	return true, nil
}

func (r txAuctions) TryFinalize(ctx context.Context, auctionID string) (bool, error) {
	a, ok := r.tx.stage(auctionID)
	if !ok {
		return false, domain.ErrAuctionNotFound
	}
	if a.Status != domain.AuctionActive {
		return false, nil
	}
	a.Status = domain.AuctionFinalized
	return true, nil
}

func (r txAuctions) RecordWinner(ctx context.Context, auctionID string, winner *domain.Bid) error {
	a, ok := r.tx.stage(auctionID)
	if !ok {
		return domain.ErrAuctionNotFound
	}
	if winner == nil {
		return nil
	}
	a.WinnerBidID = winner.ID
	if !a.CurrentPrice.Valid || !a.CurrentPrice.Decimal.Equal(winner.Amount) {
		a.CurrentPrice = decimal.NewNullDecimal(winner.Amount)
		r.tx.prices = append(r.tx.prices, pricedAuction{auctionID: auctionID, price: winner.Amount})
	}
	return nil
}

type txBids struct{ tx *txView }

func (r txBids) SaveBid(ctx context.Context, bid *domain.Bid) error {
	if _, ok := r.tx.auction(bid.AuctionID); !ok {
		return domain.ErrAuctionNotFound
	}
	c := *bid
	r.tx.bids = append(r.tx.bids, &c)
	return nil
}

func (r txBids) GetBidHistory(ctx context.Context, auctionID string) ([]*domain.Bid, error) {
	return sortedBids(r.tx.s.bids[auctionID], r.tx.bids, auctionID), nil
}

type txNotifications struct{ tx *txView }

func (r txNotifications) AppendNotification(ctx context.Context, n *domain.Notification) error {
	if hook := r.tx.s.appendHook; hook != nil {
		if err := hook(n); err != nil {
			return err
		}
	}
	c := *n
	r.tx.notifications = append(r.tx.notifications, &c)
	return nil
}

func samePrice(stored, expected decimal.NullDecimal) bool {
	if stored.Valid != expected.Valid {
		return false
	}
	return !stored.Valid || stored.Decimal.Equal(expected.Decimal)
}

func sortedBids(committed, staged []*domain.Bid, auctionID string) []*domain.Bid {
	out := make([]*domain.Bid, 0, len(committed)+len(staged))
	for _, b := range committed {
		c := *b
		out = append(out, &c)
	}
	for _, b := range staged {
		if b.AuctionID == auctionID {
			c := *b
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

func cloneAuction(a *domain.Auction) *domain.Auction {
	c := *a
	return &c
}
