package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"

	"github.com/go-redis/redis/v8"
)

type RedisEventSubscriber struct {
	client  *redis.Client
	channel string
	log     logger.Logger
}

func NewRedisEventSubscriber(client *redis.Client, channel string, log logger.Logger) *RedisEventSubscriber {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisEventSubscriber{
		client:  client,
		channel: channel,
		log:     log,
	}
}

// SubscribeToAuctionEvents blocks until ctx is done. Undecodable payloads and
// handler errors are logged and skipped.
func (r *RedisEventSubscriber) SubscribeToAuctionEvents(ctx context.Context, handler domain.EventHandler) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed before reading.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}

	ch := pubsub.Channel()
	r.log.Info("Subscribed to auction events", "channel", r.channel)

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			event, err := decodeEvent(msg.Payload)
			if err != nil {
				r.log.Error("Failed to parse event", "payload", msg.Payload, "error", err)
				continue
			}

			if err := handler(event); err != nil {
				r.log.Error("Failed to handle event", "type", event.Type, "auction_id", event.AuctionID, "error", err)
			}

		case <-ctx.Done():
			r.log.Info("Event subscriber stopped")
			return ctx.Err()
		}
	}
}

func decodeEvent(payload string) (*domain.AuctionEvent, error) {
	var event domain.AuctionEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return nil, err
	}
	if event.Type == "" || event.AuctionID == "" {
		return nil, fmt.Errorf("invalid event: %s", payload)
	}
	return &event, nil
}
