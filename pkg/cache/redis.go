package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisScanBatch is the COUNT hint for SCAN-based sweeps.
const redisScanBatch = 250

// RedisTier implements DurableTier on a Redis backend. Entries are stored
// as JSON under a shared key prefix, with a Redis-level TTL matching the
// entry expiry so the store reclaims stale data on its own.
type RedisTier struct {
	redis  *redis.Client
	prefix string
}

// NewRedisTier creates a durable tier on redisClient. Keys are namespaced
// under prefix (default "datacore:" if empty).
func NewRedisTier(redisClient *redis.Client, prefix string) (*RedisTier, error) {
	if redisClient == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if prefix == "" {
		prefix = "datacore:"
	}
	return &RedisTier{
		redis:  redisClient,
		prefix: prefix,
	}, nil
}

// Get retrieves the entry for key.
// Returns ErrCacheMiss if the key doesn't exist or the entry is expired.
func (t *RedisTier) Get(ctx context.Context, key string) (*Entry, error) {
	data, err := t.redis.Get(ctx, t.prefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			CacheMisses.WithLabelValues("durable").Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	// Redis expiry and entry expiry normally coincide; the entry check
	// covers clock skew between writer and store.
	if entry.IsExpired() {
		_, _ = t.Delete(ctx, key)
		CacheMisses.WithLabelValues("durable").Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues("durable").Inc()
	return &entry, nil
}

// Set stores entry with a Redis TTL taken from the entry's remaining life.
// Already-expired entries are not written.
func (t *RedisTier) Set(ctx context.Context, key string, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	ttl := entry.TTL()
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := t.redis.Set(ctx, t.prefix+key, data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	CacheSizeBytes.WithLabelValues("durable").Add(float64(len(data)))
	return nil
}

// Delete removes key. Returns true if an entry was present.
func (t *RedisTier) Delete(ctx context.Context, key string) (bool, error) {
	n, err := t.redis.Del(ctx, t.prefix+key).Result()
	if err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return false, fmt.Errorf("redis del: %w", err)
	}
	return n > 0, nil
}

// Clear removes all entries under the tier's prefix.
func (t *RedisTier) Clear(ctx context.Context) error {
	iter := t.redis.Scan(ctx, 0, t.prefix+"*", redisScanBatch).Iterator()
	for iter.Next(ctx) {
		if err := t.redis.Del(ctx, iter.Val()).Err(); err != nil {
			CacheErrors.WithLabelValues("delete").Inc()
			return fmt.Errorf("redis del %q: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	CacheSizeBytes.WithLabelValues("durable").Set(0)
	return nil
}

// ClearExpired sweeps entries whose stored expiry has passed but that Redis
// has not yet reclaimed. Returns the number removed.
func (t *RedisTier) ClearExpired(ctx context.Context) (int, error) {
	removed := 0
	iter := t.redis.Scan(ctx, 0, t.prefix+"*", redisScanBatch).Iterator()
	for iter.Next(ctx) {
		data, err := t.redis.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if err == redis.Nil {
				continue // Expired between SCAN and GET.
			}
			CacheErrors.WithLabelValues("sweep").Inc()
			return removed, fmt.Errorf("redis get %q: %w", iter.Val(), err)
		}

		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			// Corrupted entry: remove it rather than serve it forever.
			if err := t.redis.Del(ctx, iter.Val()).Err(); err == nil {
				removed++
			}
			continue
		}

		if entry.IsExpired() {
			if err := t.redis.Del(ctx, iter.Val()).Err(); err != nil {
				CacheErrors.WithLabelValues("sweep").Inc()
				return removed, fmt.Errorf("redis del %q: %w", iter.Val(), err)
			}
			removed++
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("redis scan: %w", err)
	}
	return removed, nil
}

// EntryCount returns the number of keys under the tier's prefix.
func (t *RedisTier) EntryCount(ctx context.Context) (int, error) {
	count := 0
	iter := t.redis.Scan(ctx, 0, t.prefix+"*", redisScanBatch).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis scan: %w", err)
	}
	return count, nil
}

// UpdateTTL rewrites an existing entry with a new expiry time.
func (t *RedisTier) UpdateTTL(ctx context.Context, key string, newExpires time.Time) error {
	entry, err := t.Get(ctx, key)
	if err != nil {
		return err
	}
	entry.ExpiresAt = newExpires
	return t.Set(ctx, key, entry)
}
