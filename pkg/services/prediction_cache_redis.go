package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPredictionCache implements PredictionCache on Redis so several
// server instances share predictions.
type RedisPredictionCache struct {
	redis  *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisPredictionCache creates a new Redis-based prediction cache
func NewRedisPredictionCache(client *redis.Client, ttl time.Duration) *RedisPredictionCache {
	return &RedisPredictionCache{
		redis:  client,
		ttl:    ttl,
		prefix: "inventory_prediction:",
	}
}

func (c *RedisPredictionCache) Get(ctx context.Context, key string) (*CachedPrediction, error) {
	data, err := c.redis.Get(ctx, c.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	var entry CachedPrediction
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return nil, fmt.Errorf("decode cached prediction %s: %w", key, err)
	}
	return &entry, nil
}

func (c *RedisPredictionCache) Set(ctx context.Context, key string, entry CachedPrediction) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode prediction %s: %w", key, err)
	}
	if err := c.redis.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (c *RedisPredictionCache) Evict(ctx context.Context, key string) error {
	if err := c.redis.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Clear removes every prediction under the cache prefix.
func (c *RedisPredictionCache) Clear(ctx context.Context) error {
	var keys []string
	iter := c.redis.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("error scanning cache keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("error clearing cache: %w", err)
	}
	return nil
}
