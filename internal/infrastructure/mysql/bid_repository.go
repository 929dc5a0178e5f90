package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"auction-engine/internal/domain"
)

type MySQLBidRepository struct {
	db querier
}

func NewMySQLBidRepository(db *sql.DB) *MySQLBidRepository {
	return &MySQLBidRepository{db: db}
}

func (r *MySQLBidRepository) SaveBid(ctx context.Context, bid *domain.Bid) error {
	query := `
        INSERT INTO bids (id, auction_id, bidder_id, amount, placed_at)
        VALUES (?, ?, ?, ?, ?)
    `
	_, err := r.db.ExecContext(ctx, query, bid.ID, bid.AuctionID, bid.BidderID, bid.Amount, bid.Timestamp)
	if err != nil {
		return fmt.Errorf("save bid: %w", err)
	}
	return nil
}

func (r *MySQLBidRepository) GetBidHistory(ctx context.Context, auctionID string) ([]*domain.Bid, error) {
	query := `
        SELECT id, auction_id, bidder_id, amount, placed_at
        FROM bids
        WHERE auction_id = ?
        ORDER BY placed_at ASC, id ASC
    `

	rows, err := r.db.QueryContext(ctx, query, auctionID)
	if err != nil {
		return nil, fmt.Errorf("bid history: %w", err)
	}
	defer rows.Close()

	var bids []*domain.Bid
	for rows.Next() {
		var bid domain.Bid
		if err := rows.Scan(&bid.ID, &bid.AuctionID, &bid.BidderID, &bid.Amount, &bid.Timestamp); err != nil {
			return nil, err
		}
		bids = append(bids, &bid)
	}
	return bids, rows.Err()
}
