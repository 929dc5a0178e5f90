package services

import (
	"context"
	"testing"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestSnapshotReader_FillsCacheOnMiss(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cache := newMapCache()
	reader := NewSnapshotReader(f.store, cache, logger.NewNop())

	snap, err := reader.CurrentPrice(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, domain.AuctionActive, snap.Status)
	require.False(t, snap.CurrentPrice.Valid)

	cached, err := cache.GetSnapshot(ctx, "a1")
	require.NoError(t, err)
	require.NotNil(t, cached)
	require.True(t, cached.StartingPrice.Equal(decimal.NewFromInt(10000)))
}

func TestSnapshotReader_ServesCachedSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cache := newMapCache()
	require.NoError(t, cache.SetSnapshot(ctx, domain.PriceSnapshot{
		AuctionID:    "a1",
		CurrentPrice: decimal.NewNullDecimal(decimal.NewFromInt(12345)),
		LeaderID:     "bob",
		Status:       domain.AuctionActive,
	}))
	reader := NewSnapshotReader(f.store, cache, logger.NewNop())

	snap, err := reader.CurrentPrice(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, "bob", snap.LeaderID)
	require.Equal(t, "12345", snap.CurrentPrice.Decimal.String())
}

func TestSnapshotReader_SkipsCacheForFinalized(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.manager.FinalizeAuction(ctx, "a1")
	require.NoError(t, err)

	cache := newMapCache()
	reader := NewSnapshotReader(f.store, cache, logger.NewNop())

	snap, err := reader.CurrentPrice(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, domain.AuctionFinalized, snap.Status)

	cached, err := cache.GetSnapshot(ctx, "a1")
	require.NoError(t, err)
	require.Nil(t, cached)
}

func TestSnapshotReader_UnknownAuction(t *testing.T) {
	f := newFixture(t)
	reader := NewSnapshotReader(f.store, nil, logger.NewNop())

	_, err := reader.CurrentPrice(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrAuctionNotFound)
}
