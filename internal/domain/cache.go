package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU (standalone) + Redis (distributed).
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// GetFeatures retrieves a cached feature vector.
	GetFeatures(ctx context.Context, customerID string) (*FeatureVector, error)

	// SetFeatures caches a feature vector for read endpoints.
	SetFeatures(ctx context.Context, customerID string, fv *FeatureVector, ttl time.Duration) error

	// GetSimulation retrieves a cached simulation result by scenario fingerprint.
	GetSimulation(ctx context.Context, fingerprint string) (*SimulationResult, error)

	// SetSimulation caches a simulation result under its scenario fingerprint.
	SetSimulation(ctx context.Context, fingerprint string, res *SimulationResult, ttl time.Duration) error

	// Flush drops every cached entry. Called after a segmentation refresh
	// so stale features and simulations cannot be served.
	Flush(ctx context.Context) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string `env:"MAGPIE_CACHE_TYPE"`

	// Local LRU cache settings (standalone profile)
	LocalMaxSize int           `env:"MAGPIE_CACHE_LOCAL_MAX_SIZE"`
	LocalTTL     time.Duration `env:"MAGPIE_CACHE_LOCAL_TTL"`

	// Redis settings (distributed profile)
	RedisAddr     string `env:"MAGPIE_REDIS_ADDR"`
	RedisPassword string `env:"MAGPIE_REDIS_PASSWORD"`
	RedisDB       int    `env:"MAGPIE_REDIS_DB"`

	// Two-phase settings
	EnableTwoPhase bool `env:"MAGPIE_CACHE_TWO_PHASE"` // If true, check local first, then Redis
}
