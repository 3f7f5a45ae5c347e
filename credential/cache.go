package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// FetchFunc loads a record from the backing store on a cache miss.
type FetchFunc func(ctx context.Context) (Record, error)

// Cache holds credential records for a bounded time. Implementations collapse
// concurrent misses for the same key into a single fetch.
type Cache interface {
	// GetOrFetch returns the cached record for key, or calls fetchFn and caches
	// its result for ttl. Fetch errors are returned and never cached.
	GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetchFn FetchFunc) (Record, error)

	// Delete drops key from the cache.
	Delete(ctx context.Context, key string) error

	// Clear drops every cached record.
	Clear(ctx context.Context) error
}

// MemoryCache is a process-local Cache backed by go-cache.
type MemoryCache struct {
	cache *cache.Cache
	group singleflight.Group
}

// NewMemoryCache creates a MemoryCache that purges expired records every
// cleanupInterval.
func NewMemoryCache(cleanupInterval time.Duration) *MemoryCache {
	return &MemoryCache{cache: cache.New(cache.NoExpiration, cleanupInterval)}
}

// GetOrFetch implements Cache.
func (c *MemoryCache) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetchFn FetchFunc) (Record, error) {
	if v, found := c.cache.Get(key); found {
		if rec, ok := v.(Record); ok {
			return rec, nil
		}
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Another caller may have filled the entry while we waited.
		if v, found := c.cache.Get(key); found {
			if rec, ok := v.(Record); ok {
				return rec, nil
			}
		}

		rec, err := fetchFn(ctx)
		if err != nil {
			return Record{}, err
		}

		c.cache.Set(key, rec, ttl)
		return rec, nil
	})
	if err != nil {
		return Record{}, err
	}

	return v.(Record), nil
}

// Delete implements Cache.
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.cache.Delete(key)
	return nil
}

// Clear implements Cache.
func (c *MemoryCache) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.cache.Flush()
	return nil
}

// ItemCount returns the number of cached records, expired ones included until
// the next cleanup.
func (c *MemoryCache) ItemCount() int {
	return c.cache.ItemCount()
}

// RedisCache is a Cache shared through Redis. Records are stored as JSON
// under Prefix+key.
type RedisCache struct {
	client *redis.Client
	prefix string
	group  singleflight.Group
}

// NewRedisCache wraps client. All keys written by the cache start with prefix,
// which lets Clear remove them without touching unrelated data.
//
// Example:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	c := NewRedisCache(client, "roomchat:cred:")
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

// GetOrFetch implements Cache.
func (c *RedisCache) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetchFn FetchFunc) (Record, error) {
	fullKey := c.prefix + key

	rec, found, err := c.get(ctx, fullKey)
	if err != nil {
		return Record{}, err
	}

	if found {
		return rec, nil
	}

	v, err, _ := c.group.Do(fullKey, func() (interface{}, error) {
		rec, err := fetchFn(ctx)
		if err != nil {
			return Record{}, err
		}

		data, err := json.Marshal(rec)
		if err != nil {
			return Record{}, fmt.Errorf("marshal record: %w", err)
		}

		if err := c.client.Set(ctx, fullKey, data, ttl).Err(); err != nil {
			return Record{}, fmt.Errorf("redis set %s: %w", fullKey, err)
		}

		return rec, nil
	})
	if err != nil {
		return Record{}, err
	}

	return v.(Record), nil
}

func (c *RedisCache) get(ctx context.Context, fullKey string) (Record, bool, error) {
	val, err := c.client.Get(ctx, fullKey).Result()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}

	if err != nil {
		return Record{}, false, fmt.Errorf("redis get %s: %w", fullKey, err)
	}

	var rec Record
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return Record{}, false, fmt.Errorf("unmarshal cached record: %w", err)
	}

	return rec, true, nil
}

// Close closes the Redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Delete implements Cache.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.prefix+key).Err()
}

// Clear implements Cache. It scans for the cache prefix and deletes matching
// keys in batches.
func (c *RedisCache) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.prefix+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}

		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis del: %w", err)
			}
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// CachedStore puts a Cache in front of another Store.
type CachedStore struct {
	store Store
	cache Cache
	ttl   time.Duration
}

// NewCachedStore returns a Store that serves lookups from c and falls back to
// store on a miss. Records stay cached for ttl.
func NewCachedStore(store Store, c Cache, ttl time.Duration) *CachedStore {
	return &CachedStore{store: store, cache: c, ttl: ttl}
}

// Lookup implements Store.
func (s *CachedStore) Lookup(ctx context.Context, id string) (Record, error) {
	return s.cache.GetOrFetch(ctx, id, s.ttl, func(ctx context.Context) (Record, error) {
		return s.store.Lookup(ctx, id)
	})
}

// Invalidate forgets the cached record of id.
func (s *CachedStore) Invalidate(ctx context.Context, id string) error {
	return s.cache.Delete(ctx, id)
}

// Close implements Store. It closes the wrapped store, and the cache too
// when the cache holds a connection.
func (s *CachedStore) Close() error {
	err := s.store.Close()
	if closer, ok := s.cache.(io.Closer); ok {
		err = errors.Join(err, closer.Close())
	}

	return err
}
