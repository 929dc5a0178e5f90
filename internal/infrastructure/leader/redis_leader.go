package leader

import (
	"context"
	"errors"
	"sync"
	"time"

	"auction-engine/pkg/logger"

	"github.com/go-redis/redis/v8"
)

const DefaultKey = "auction_sweeper_leader"

var (
	releaseScript = redis.NewScript(`
        if redis.call("GET", KEYS[1]) == ARGV[1] then
            return redis.call("DEL", KEYS[1])
        else
            return 0
        end
    `)
	extendScript = redis.NewScript(`
        if redis.call("GET", KEYS[1]) == ARGV[1] then
            return redis.call("PEXPIRE", KEYS[1], ARGV[2])
        else
            return 0
        end
    `)
)

// RedisLeaderElection elects a single sweeper instance with a SET NX lease.
// The holder refreshes the lease at a third of its TTL until it is released
// or lost.
type RedisLeaderElection struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	log    logger.Logger

	mu   sync.Mutex
	stop map[string]context.CancelFunc
}

func NewRedisLeaderElection(client *redis.Client, key string, ttl time.Duration, log logger.Logger) *RedisLeaderElection {
	if key == "" {
		key = DefaultKey
	}
	return &RedisLeaderElection{
		client: client,
		key:    key,
		ttl:    ttl,
		log:    log,
		stop:   make(map[string]context.CancelFunc),
	}
}

func (r *RedisLeaderElection) BecomeLeader(ctx context.Context, instanceID string) (bool, error) {
	result, err := r.client.SetNX(ctx, r.key, instanceID, r.ttl).Result()
	if err != nil {
		return false, err
	}

	if result {
		r.startHeartbeat(instanceID)
		r.log.Info("Acquired leadership", "instance_id", instanceID, "key", r.key)
	}

	return result, nil
}

func (r *RedisLeaderElection) IsLeader(ctx context.Context, instanceID string) (bool, error) {
	currentLeader, err := r.client.Get(ctx, r.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}

	return currentLeader == instanceID, nil
}

func (r *RedisLeaderElection) ReleaseLeadership(ctx context.Context, instanceID string) error {
	r.stopHeartbeat(instanceID)
	return releaseScript.Run(ctx, r.client, []string{r.key}, instanceID).Err()
}

func (r *RedisLeaderElection) startHeartbeat(instanceID string) {
	ctx, cancel := context.WithCancel(context.Background())

	r.mu.Lock()
	if prev, ok := r.stop[instanceID]; ok {
		prev()
	}
	r.stop[instanceID] = cancel
	r.mu.Unlock()

	go r.maintainLeadership(ctx, instanceID)
}

func (r *RedisLeaderElection) stopHeartbeat(instanceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cancel, ok := r.stop[instanceID]; ok {
		cancel()
		delete(r.stop, instanceID)
	}
}

func (r *RedisLeaderElection) maintainLeadership(ctx context.Context, instanceID string) {
	interval := r.ttl / 3
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		callCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		extended, err := extendScript.Run(callCtx, r.client, []string{r.key},
			instanceID, r.ttl.Milliseconds()).Int64()
		cancel()

		if ctx.Err() != nil {
			return
		}
		if err != nil || extended == 0 {
			r.log.Warn("Lost leadership", "instance_id", instanceID, "error", err)
			r.stopHeartbeat(instanceID)
			return
		}
	}
}
