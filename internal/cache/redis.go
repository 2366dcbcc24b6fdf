package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opensegment/magpie/internal/domain"
)

// RedisCache implements caching using Redis.
// Used standalone or as L2 in two-phase caching.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis cache client.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisCache{client: client}, nil
}

// Get retrieves a value from Redis.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, makeKey(key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return data, nil
}

// Set stores a value in Redis with TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, makeKey(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Delete removes a value from Redis.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, makeKey(key)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// GetFeatures retrieves a cached feature vector.
func (c *RedisCache) GetFeatures(ctx context.Context, customerID string) (*domain.FeatureVector, error) {
	data, err := c.Get(ctx, featuresKey(customerID))
	if err != nil || data == nil {
		return nil, err
	}

	var fv domain.FeatureVector
	if err := json.Unmarshal(data, &fv); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached features: %w", err)
	}
	return &fv, nil
}

// SetFeatures caches a feature vector.
func (c *RedisCache) SetFeatures(ctx context.Context, customerID string, fv *domain.FeatureVector, ttl time.Duration) error {
	bytes, err := json.Marshal(fv)
	if err != nil {
		return fmt.Errorf("failed to marshal features: %w", err)
	}
	return c.Set(ctx, featuresKey(customerID), bytes, ttl)
}

// GetSimulation retrieves a cached simulation result.
func (c *RedisCache) GetSimulation(ctx context.Context, fingerprint string) (*domain.SimulationResult, error) {
	data, err := c.Get(ctx, fingerprint)
	if err != nil || data == nil {
		return nil, err
	}

	var res domain.SimulationResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached simulation: %w", err)
	}
	return &res, nil
}

// SetSimulation caches a simulation result under its fingerprint.
func (c *RedisCache) SetSimulation(ctx context.Context, fingerprint string, res *domain.SimulationResult, ttl time.Duration) error {
	bytes, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to marshal simulation: %w", err)
	}
	return c.Set(ctx, fingerprint, bytes, ttl)
}

// Flush removes every key in the application namespace. Other keys
// sharing the Redis instance are left alone.
func (c *RedisCache) Flush(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()

	batch := make([]string, 0, 100)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 100 {
			if err := c.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("redis flush failed: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan failed: %w", err)
	}
	if len(batch) > 0 {
		if err := c.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("redis flush failed: %w", err)
		}
	}
	return nil
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
