// Package cache provides caching implementations for Magpie.
package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/opensegment/magpie/internal/domain"
)

// LRUCache is a thread-safe LRU cache with TTL support.
// Used as the standalone cache and as L1 in two-phase caching.
type LRUCache struct {
	mu      sync.RWMutex
	maxSize int
	items   map[string]*list.Element
	order   *list.List
}

type cacheEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// NewLRUCache creates a new LRU cache with the specified max size.
func NewLRUCache(maxSize int) *LRUCache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &LRUCache{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Get retrieves a value from cache.
func (c *LRUCache) Get(ctx context.Context, key string) ([]byte, error) {
	fullKey := makeKey(key)

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[fullKey]
	if !ok {
		return nil, nil
	}

	entry := elem.Value.(*cacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.removeElement(elem)
		return nil, nil
	}

	// Move to front (most recently used)
	c.order.MoveToFront(elem)
	return entry.value, nil
}

// Set stores a value in cache with TTL.
func (c *LRUCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	fullKey := makeKey(key)

	c.mu.Lock()
	defer c.mu.Unlock()

	// Update existing entry
	if elem, ok := c.items[fullKey]; ok {
		c.order.MoveToFront(elem)
		entry := elem.Value.(*cacheEntry)
		entry.value = value
		entry.expiresAt = time.Now().Add(ttl)
		return nil
	}

	// Add new entry
	entry := &cacheEntry{
		key:       fullKey,
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	elem := c.order.PushFront(entry)
	c.items[fullKey] = elem

	// Evict if over capacity
	for c.order.Len() > c.maxSize {
		c.removeOldest()
	}

	return nil
}

// Delete removes a value from cache.
func (c *LRUCache) Delete(ctx context.Context, key string) error {
	fullKey := makeKey(key)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[fullKey]; ok {
		c.removeElement(elem)
	}
	return nil
}

// GetFeatures retrieves a cached feature vector.
func (c *LRUCache) GetFeatures(ctx context.Context, customerID string) (*domain.FeatureVector, error) {
	data, err := c.Get(ctx, featuresKey(customerID))
	if err != nil || data == nil {
		return nil, err
	}

	var fv domain.FeatureVector
	if err := json.Unmarshal(data, &fv); err != nil {
		return nil, err
	}
	return &fv, nil
}

// SetFeatures caches a feature vector.
func (c *LRUCache) SetFeatures(ctx context.Context, customerID string, fv *domain.FeatureVector, ttl time.Duration) error {
	bytes, err := json.Marshal(fv)
	if err != nil {
		return err
	}
	return c.Set(ctx, featuresKey(customerID), bytes, ttl)
}

// GetSimulation retrieves a cached simulation result.
func (c *LRUCache) GetSimulation(ctx context.Context, fingerprint string) (*domain.SimulationResult, error) {
	data, err := c.Get(ctx, fingerprint)
	if err != nil || data == nil {
		return nil, err
	}

	var res domain.SimulationResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SetSimulation caches a simulation result under its fingerprint.
func (c *LRUCache) SetSimulation(ctx context.Context, fingerprint string, res *domain.SimulationResult, ttl time.Duration) error {
	bytes, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return c.Set(ctx, fingerprint, bytes, ttl)
}

// Flush drops every cached entry.
func (c *LRUCache) Flush(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order = list.New()
	return nil
}

// Ping checks cache health.
func (c *LRUCache) Ping(ctx context.Context) error {
	return nil
}

// Close cleans up the cache.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order = list.New()
	return nil
}

// Stats returns cache statistics.
func (c *LRUCache) Stats() (size int, capacity int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order.Len(), c.maxSize
}

func (c *LRUCache) removeElement(elem *list.Element) {
	c.order.Remove(elem)
	entry := elem.Value.(*cacheEntry)
	delete(c.items, entry.key)
}

func (c *LRUCache) removeOldest() {
	elem := c.order.Back()
	if elem != nil {
		c.removeElement(elem)
	}
}

// keyPrefix namespaces every cache entry so shared backends can be
// flushed without touching other applications' keys.
const keyPrefix = "magpie:"

func makeKey(key string) string {
	return keyPrefix + key
}

func featuresKey(customerID string) string {
	return "features:" + customerID
}
