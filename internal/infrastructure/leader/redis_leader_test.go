package leader

import (
	"context"
	"testing"
	"time"

	"auction-engine/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

func newElection(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *RedisLeaderElection) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisLeaderElection(client, "", ttl, logger.NewNop())
}

func TestLeaderElection_SingleLeader(t *testing.T) {
	_, election := newElection(t, 30*time.Second)
	ctx := context.Background()

	ok, err := election.BecomeLeader(ctx, "node-a")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = election.BecomeLeader(ctx, "node-b")
	require.NoError(t, err)
	require.False(t, ok)

	leader, err := election.IsLeader(ctx, "node-a")
	require.NoError(t, err)
	require.True(t, leader)

	leader, err = election.IsLeader(ctx, "node-b")
	require.NoError(t, err)
	require.False(t, leader)

	// only the holder can release
	require.NoError(t, election.ReleaseLeadership(ctx, "node-b"))
	leader, err = election.IsLeader(ctx, "node-a")
	require.NoError(t, err)
	require.True(t, leader)

	require.NoError(t, election.ReleaseLeadership(ctx, "node-a"))
	ok, err = election.BecomeLeader(ctx, "node-b")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, election.ReleaseLeadership(ctx, "node-b"))
}

func TestLeaderElection_LeaseExpires(t *testing.T) {
	mr, election := newElection(t, 30*time.Second)
	ctx := context.Background()

	ok, err := election.BecomeLeader(ctx, "node-a")
	require.NoError(t, err)
	require.True(t, ok)
	election.stopHeartbeat("node-a")

	mr.FastForward(31 * time.Second)

	leader, err := election.IsLeader(ctx, "node-a")
	require.NoError(t, err)
	require.False(t, leader)

	ok, err = election.BecomeLeader(ctx, "node-b")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, election.ReleaseLeadership(ctx, "node-b"))
}
