package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBuffer implements EventBuffer using Redis lists, so buffered
// notifications survive process restarts. Each user's events live under one
// key, trimmed to the bound on every append.
type RedisBuffer struct {
	client *redis.Client
	prefix string
}

// NewRedisBuffer creates a Redis event buffer from a Redis client and a key
// prefix. prefix typically ends with a colon.
func NewRedisBuffer(client *redis.Client, keyPrefix string) (*RedisBuffer, error) {
	return &RedisBuffer{
		client: client,
		prefix: keyPrefix,
	}, nil
}

// RedisConfig contains configuration options for Redis.
type RedisConfig struct {
	// Addr is the Redis server address (e.g., "localhost:6379")
	Addr string

	// Password is the Redis password (empty for no auth)
	Password string

	// DB is the Redis database number (0-15)
	DB int

	// KeyPrefix is prepended to all keys (default: "vigil:events:")
	// typically ends with a colon.
	KeyPrefix string
}

// NewRedisBufferFromConfig creates a new Redis event buffer.
func NewRedisBufferFromConfig(cfg RedisConfig) (*RedisBuffer, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis: failed to connect: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "vigil:events:"
	}

	return &RedisBuffer{
		client: client,
		prefix: prefix,
	}, nil
}

// Append pushes the event onto the user's list and trims it to the bound.
func (b *RedisBuffer) Append(userID string, ev Event, limit int) error {
	ctx := context.Background()
	key := b.prefix + userID

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("redis: failed to encode event: %w", err)
	}

	pipe := b.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	if limit > 0 {
		pipe.LTrim(ctx, key, int64(-limit), -1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: failed to append event: %w", err)
	}
	return nil
}

// Drain returns and clears the user's buffered events in emission order.
func (b *RedisBuffer) Drain(userID string) ([]Event, error) {
	ctx := context.Background()
	key := b.prefix + userID

	pipe := b.client.TxPipeline()
	rangeCmd := pipe.LRange(ctx, key, 0, -1)
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis: failed to drain events: %w", err)
	}

	raw := rangeCmd.Val()
	events := make([]Event, 0, len(raw))
	for _, item := range raw {
		var ev Event
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			return nil, fmt.Errorf("redis: failed to decode event: %w", err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// Close closes the Redis connection.
func (b *RedisBuffer) Close() error {
	return b.client.Close()
}
