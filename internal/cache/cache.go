package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/opensegment/magpie/internal/domain"
)

// New creates a new cache based on configuration.
// Standalone profile: returns LRU cache.
// Distributed profile with two-phase: returns TwoPhaseCache wrapping LRU + Redis.
// Distributed profile without two-phase: returns Redis cache.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory":
		return NewLRUCache(cfg.LocalMaxSize), nil

	case "redis":
		if cfg.EnableTwoPhase {
			return NewTwoPhaseCache(cfg)
		}
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// TwoPhaseCache implements the two-phase caching strategy.
// L1: Local LRU cache for fast reads
// L2: Redis for distributed caching and persistence
type TwoPhaseCache struct {
	local  *LRUCache
	remote *RedisCache
	l1TTL  time.Duration
}

// NewTwoPhaseCache creates a two-phase cache with LRU + Redis.
func NewTwoPhaseCache(cfg domain.CacheConfig) (*TwoPhaseCache, error) {
	local := NewLRUCache(cfg.LocalMaxSize)

	remote, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis cache: %w", err)
	}

	l1TTL := cfg.LocalTTL
	if l1TTL == 0 {
		l1TTL = time.Minute
	}

	return &TwoPhaseCache{
		local:  local,
		remote: remote,
		l1TTL:  l1TTL,
	}, nil
}

// Get retrieves from L1 first, then L2. Populates L1 on L2 hit.
func (c *TwoPhaseCache) Get(ctx context.Context, key string) ([]byte, error) {
	// Check L1 first
	val, err := c.local.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		return val, nil
	}

	// Check L2
	val, err = c.remote.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		// Populate L1 for future reads
		_ = c.local.Set(ctx, key, val, c.l1TTL)
	}

	return val, nil
}

// Set writes to both L1 and L2.
func (c *TwoPhaseCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	// Write to L1 with shorter TTL
	l1TTL := c.l1TTL
	if ttl < l1TTL {
		l1TTL = ttl
	}
	if err := c.local.Set(ctx, key, value, l1TTL); err != nil {
		return err
	}

	// Write to L2 with full TTL
	return c.remote.Set(ctx, key, value, ttl)
}

// Delete removes from both L1 and L2.
func (c *TwoPhaseCache) Delete(ctx context.Context, key string) error {
	if err := c.local.Delete(ctx, key); err != nil {
		return err
	}
	return c.remote.Delete(ctx, key)
}

// GetFeatures retrieves a cached feature vector.
func (c *TwoPhaseCache) GetFeatures(ctx context.Context, customerID string) (*domain.FeatureVector, error) {
	// Check L1 first
	fv, err := c.local.GetFeatures(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if fv != nil {
		return fv, nil
	}

	// Check L2
	fv, err = c.remote.GetFeatures(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if fv != nil {
		// Populate L1
		_ = c.local.SetFeatures(ctx, customerID, fv, c.l1TTL)
	}

	return fv, nil
}

// SetFeatures caches a feature vector in both L1 and L2.
func (c *TwoPhaseCache) SetFeatures(ctx context.Context, customerID string, fv *domain.FeatureVector, ttl time.Duration) error {
	l1TTL := c.l1TTL
	if ttl < l1TTL {
		l1TTL = ttl
	}
	if err := c.local.SetFeatures(ctx, customerID, fv, l1TTL); err != nil {
		return err
	}
	return c.remote.SetFeatures(ctx, customerID, fv, ttl)
}

// GetSimulation retrieves a cached simulation result.
func (c *TwoPhaseCache) GetSimulation(ctx context.Context, fingerprint string) (*domain.SimulationResult, error) {
	res, err := c.local.GetSimulation(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	if res != nil {
		return res, nil
	}

	res, err = c.remote.GetSimulation(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	if res != nil {
		_ = c.local.SetSimulation(ctx, fingerprint, res, c.l1TTL)
	}

	return res, nil
}

// SetSimulation caches a simulation result in both L1 and L2.
func (c *TwoPhaseCache) SetSimulation(ctx context.Context, fingerprint string, res *domain.SimulationResult, ttl time.Duration) error {
	l1TTL := c.l1TTL
	if ttl < l1TTL {
		l1TTL = ttl
	}
	if err := c.local.SetSimulation(ctx, fingerprint, res, l1TTL); err != nil {
		return err
	}
	return c.remote.SetSimulation(ctx, fingerprint, res, ttl)
}

// Flush drops cached entries from both L1 and L2.
func (c *TwoPhaseCache) Flush(ctx context.Context) error {
	if err := c.local.Flush(ctx); err != nil {
		return err
	}
	return c.remote.Flush(ctx)
}

// Ping checks both L1 and L2 health.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.local.Ping(ctx); err != nil {
		return fmt.Errorf("L1 ping failed: %w", err)
	}
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("L2 ping failed: %w", err)
	}
	return nil
}

// Close closes both L1 and L2.
func (c *TwoPhaseCache) Close() error {
	_ = c.local.Close()
	return c.remote.Close()
}

// Stats returns L1 cache statistics.
func (c *TwoPhaseCache) Stats() (size int, capacity int) {
	return c.local.Stats()
}
