package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"auction-engine/internal/domain"

	"github.com/shopspring/decimal"
)

const auctionColumns = `id, item_ref, start_time, end_time, starting_price, min_increment,
        current_price, COALESCE(winner_bid_id, ''), status, created_at, updated_at`

type MySQLAuctionRepository struct {
	db querier
}

func NewMySQLAuctionRepository(db *sql.DB) *MySQLAuctionRepository {
	return &MySQLAuctionRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAuction(row rowScanner) (*domain.Auction, error) {
	var auction domain.Auction
	var status int

	err := row.Scan(&auction.ID, &auction.ItemRef, &auction.StartTime, &auction.EndTime,
		&auction.StartingPrice, &auction.MinIncrement, &auction.CurrentPrice,
		&auction.WinnerBidID, &status, &auction.CreatedAt, &auction.UpdatedAt)
	if err != nil {
		return nil, err
	}

	auction.Status = domain.AuctionStatus(status)
	return &auction, nil
}

func (r *MySQLAuctionRepository) GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = ?`

	auction, err := scanAuction(r.db.QueryRowContext(ctx, query, auctionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAuctionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get auction: %w", err)
	}
	return auction, nil
}

func (r *MySQLAuctionRepository) GetExpiredActiveAuctions(ctx context.Context, now time.Time) ([]*domain.Auction, error) {
	query := `SELECT ` + auctionColumns + `
        FROM auctions WHERE status = ? AND end_time <= ?
        ORDER BY end_time, id`

	rows, err := r.db.QueryContext(ctx, query, int(domain.AuctionActive), now)
	if err != nil {
		return nil, fmt.Errorf("list expired auctions: %w", err)
	}
	defer rows.Close()

	var auctions []*domain.Auction
	for rows.Next() {
		auction, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		auctions = append(auctions, auction)
	}
	return auctions, rows.Err()
}

func (r *MySQLAuctionRepository) ReadPrice(ctx context.Context, auctionID string) (domain.PriceSnapshot, error) {
	auction, err := r.GetAuction(ctx, auctionID)
	if err != nil {
		return domain.PriceSnapshot{}, err
	}
	snap := auction.Snapshot()
	if !auction.CurrentPrice.Valid {
		return snap, nil
	}

	query := `
        SELECT bidder_id FROM bids
        WHERE auction_id = ? AND amount = ?
        ORDER BY placed_at, id LIMIT 1
    `
	err = r.db.QueryRowContext(ctx, query, auctionID, auction.CurrentPrice.Decimal).Scan(&snap.LeaderID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return domain.PriceSnapshot{}, fmt.Errorf("read price leader: %w", err)
	}
	return snap, nil
}

// TrySetPrice relies on the row lock taken by the UPDATE; the <=> operator
// matches a NULL expectation against a NULL price.
func (r *MySQLAuctionRepository) TrySetPrice(ctx context.Context, auctionID string, newAmount decimal.Decimal, expected decimal.NullDecimal) (bool, error) {
	query := `
        UPDATE auctions SET current_price = ?, updated_at = ?
        WHERE id = ? AND status = ? AND current_price <=> ?
    `
	res, err := r.db.ExecContext(ctx, query, newAmount, time.Now().UTC(), auctionID, int(domain.AuctionActive), expected)
	if err != nil {
		return false, fmt.Errorf("set price: %w", err)
	}
	return r.applied(ctx, res, auctionID)
}

func (r *MySQLAuctionRepository) TryFinalize(ctx context.Context, auctionID string) (bool, error) {
	query := `UPDATE auctions SET status = ?, updated_at = ? WHERE id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, query, int(domain.AuctionFinalized), time.Now().UTC(), auctionID, int(domain.AuctionActive))
	if err != nil {
		return false, fmt.Errorf("finalize auction: %w", err)
	}
	return r.applied(ctx, res, auctionID)
}

func (r *MySQLAuctionRepository) RecordWinner(ctx context.Context, auctionID string, winner *domain.Bid) error {
	if winner == nil {
		return nil
	}
	query := `UPDATE auctions SET winner_bid_id = ?, current_price = ?, updated_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, winner.ID, winner.Amount, time.Now().UTC(), auctionID)
	if err != nil {
		return fmt.Errorf("record winner: %w", err)
	}
	return nil
}

// applied tells a lost compare-and-set apart from a missing auction.
func (r *MySQLAuctionRepository) applied(ctx context.Context, res sql.Result, auctionID string) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}

	var one int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM auctions WHERE id = ?`, auctionID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, domain.ErrAuctionNotFound
	}
	if err != nil {
		return false, err
	}
	return false, nil
}
