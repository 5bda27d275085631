package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "pact:balance:"

// Redis is the shared cache backend. TTL enforcement is delegated to Redis
// key expiry so multiple processes see the same window.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

type redisEntry struct {
	Amount    float64   `json:"amount"`
	FetchedAt time.Time `json:"fetched_at"`
}

func (r *Redis) Get(ctx context.Context, identity string) (Balance, bool, error) {
	raw, err := r.client.Get(ctx, keyPrefix+identity).Bytes()
	if err == redis.Nil {
		return Balance{}, false, nil
	}
	if err != nil {
		return Balance{}, false, fmt.Errorf("cache get: %w", err)
	}
	var entry redisEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Balance{}, false, fmt.Errorf("cache decode: %w", err)
	}
	return Balance{Identity: identity, Amount: entry.Amount, FetchedAt: entry.FetchedAt}, true, nil
}

func (r *Redis) Set(ctx context.Context, b Balance) error {
	raw, err := json.Marshal(redisEntry{Amount: b.Amount, FetchedAt: b.FetchedAt})
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := r.client.Set(ctx, keyPrefix+b.Identity, raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

func (r *Redis) Clear(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("cache clear: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache clear scan: %w", err)
	}
	return nil
}
