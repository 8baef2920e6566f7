package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vietddude/opwatcher/internal/core/domain"
)

// Channel is the Redis pub/sub channel deposits are published to.
const Channel = "new_optimism_deposits"

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// RedisBroadcaster publishes deposit batches to a Redis pub/sub channel.
type RedisBroadcaster struct {
	rdb *redis.Client
}

// NewRedisBroadcaster connects to Redis and verifies the connection.
func NewRedisBroadcaster(cfg Config) (*RedisBroadcaster, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisBroadcaster{rdb: rdb}, nil
}

// Broadcast publishes one envelope for the whole batch.
func (b *RedisBroadcaster) Broadcast(ctx context.Context, deposits []*domain.Deposit) error {
	if len(deposits) == 0 {
		return nil
	}

	payload, err := json.Marshal(Event{
		ID:        uuid.NewString(),
		Type:      EventTypeNewDeposits,
		Deposits:  deposits,
		EmittedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal broadcast event: %w", err)
	}

	if err := b.rdb.Publish(ctx, Channel, payload).Err(); err != nil {
		return fmt.Errorf("publish deposits: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (b *RedisBroadcaster) Close() error {
	return b.rdb.Close()
}
