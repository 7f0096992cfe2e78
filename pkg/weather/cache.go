package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores lookups keyed by normalized location.
type Cache interface {
	// Get returns the cached conditions, or (nil, false, nil) on a miss.
	Get(ctx context.Context, key string) (*Conditions, bool, error)

	// Set stores conditions under key.
	Set(ctx context.Context, key string, c *Conditions) error
}

// CacheKey normalizes a location into a cache key.
func CacheKey(location string) string {
	return strings.ToLower(strings.Join(strings.Fields(location), " "))
}

type memoryEntry struct {
	conditions Conditions
	expires    time.Time
}

// MemoryCache is an in-process TTL cache.
type MemoryCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewMemoryCache returns an empty MemoryCache whose entries live for ttl.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
}

func (m *MemoryCache) Get(_ context.Context, key string) (*Conditions, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if m.now().After(e.expires) {
		delete(m.entries, key)
		return nil, false, nil
	}

	c := e.conditions
	return &c, true, nil
}

func (m *MemoryCache) Set(_ context.Context, key string, c *Conditions) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = memoryEntry{conditions: *c, expires: m.now().Add(m.ttl)}
	return nil
}

// Len returns the number of entries, expired ones included.
func (m *MemoryCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// RedisCache shares lookups between skycast instances through Redis.
type RedisCache struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
}

// NewRedisCache returns a cache backed by rdb. Keys are namespaced under
// "skycast:weather:".
func NewRedisCache(rdb redis.Cmdable, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl, prefix: "skycast:weather:"}
}

func (r *RedisCache) Get(ctx context.Context, key string) (*Conditions, bool, error) {
	raw, err := r.rdb.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %q: %w", key, err)
	}

	var c Conditions
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, false, fmt.Errorf("decoding cached conditions: %w", err)
	}
	return &c, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, c *Conditions) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if err := r.rdb.Set(ctx, r.prefix+key, raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}
