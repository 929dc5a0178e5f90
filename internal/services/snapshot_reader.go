package services

import (
	"context"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
)

type PriceSource interface {
	ReadPrice(ctx context.Context, auctionID string) (domain.PriceSnapshot, error)
}

// SnapshotReader serves price snapshots from the cache and falls back to the
// store on a miss. Cache errors only degrade to the store read.
type SnapshotReader struct {
	source PriceSource
	cache  domain.SnapshotCache
	log    logger.Logger
}

func NewSnapshotReader(source PriceSource, cache domain.SnapshotCache, log logger.Logger) *SnapshotReader {
	return &SnapshotReader{source: source, cache: cache, log: log}
}

func (r *SnapshotReader) CurrentPrice(ctx context.Context, auctionID string) (domain.PriceSnapshot, error) {
	if r.cache != nil {
		snap, err := r.cache.GetSnapshot(ctx, auctionID)
		if err != nil {
			r.log.Warn("Snapshot cache read failed", "auction_id", auctionID, "error", err)
		} else if snap != nil {
			return *snap, nil
		}
	}

	snap, err := r.source.ReadPrice(ctx, auctionID)
	if err != nil {
		return domain.PriceSnapshot{}, err
	}

	if r.cache != nil && snap.Status == domain.AuctionActive {
		if err := r.cache.SetSnapshot(ctx, snap); err != nil {
			r.log.Warn("Snapshot cache write failed", "auction_id", auctionID, "error", err)
		}
	}
	return snap, nil
}
