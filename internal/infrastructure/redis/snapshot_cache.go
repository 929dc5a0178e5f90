package redis

import (
	"context"
	"fmt"
	"time"

	"auction-engine/internal/domain"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
)

// RedisSnapshotCache keeps a read-through copy of auction price snapshots in
// a hash per auction. The store stays authoritative.
type RedisSnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSnapshotCache(client *redis.Client, ttl time.Duration) *RedisSnapshotCache {
	return &RedisSnapshotCache{client: client, ttl: ttl}
}

func snapshotKey(auctionID string) string {
	return fmt.Sprintf("auction:%s:snapshot", auctionID)
}

func (r *RedisSnapshotCache) SetSnapshot(ctx context.Context, snap domain.PriceSnapshot) error {
	key := snapshotKey(snap.AuctionID)
	current := ""
	if snap.CurrentPrice.Valid {
		current = snap.CurrentPrice.Decimal.String()
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"starting_price", snap.StartingPrice.String(),
			"min_increment", snap.MinIncrement.String(),
			"current_price", current,
			"leader_id", snap.LeaderID,
			"status", snap.Status.String(),
			"end_time", snap.EndTime.UTC().Format(time.RFC3339Nano),
		)
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	return err
}

// GetSnapshot returns nil without error on a cache miss.
func (r *RedisSnapshotCache) GetSnapshot(ctx context.Context, auctionID string) (*domain.PriceSnapshot, error) {
	fields, err := r.client.HGetAll(ctx, snapshotKey(auctionID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}

	snap := &domain.PriceSnapshot{AuctionID: auctionID, LeaderID: fields["leader_id"]}
	if snap.StartingPrice, err = decimal.NewFromString(fields["starting_price"]); err != nil {
		return nil, fmt.Errorf("cached starting_price: %w", err)
	}
	if snap.MinIncrement, err = decimal.NewFromString(fields["min_increment"]); err != nil {
		return nil, fmt.Errorf("cached min_increment: %w", err)
	}
	if v := fields["current_price"]; v != "" {
		price, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("cached current_price: %w", err)
		}
		snap.CurrentPrice = decimal.NewNullDecimal(price)
	}
	if snap.Status, err = domain.ParseAuctionStatus(fields["status"]); err != nil {
		return nil, err
	}
	if snap.EndTime, err = time.Parse(time.RFC3339Nano, fields["end_time"]); err != nil {
		return nil, fmt.Errorf("cached end_time: %w", err)
	}
	return snap, nil
}

func (r *RedisSnapshotCache) DeleteSnapshot(ctx context.Context, auctionID string) error {
	return r.client.Del(ctx, snapshotKey(auctionID)).Err()
}
