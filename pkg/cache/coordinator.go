package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Coordinator composes the memory and durable tiers into a single
// read/write path, resolving TTLs per data source.
//
// Reads check the memory tier first; on a miss, the durable tier is
// consulted and a durable hit is promoted into the memory tier
// (write-through) before being returned. Writes go to both tiers;
// durable-side failures are logged and never fail the call, since the
// cache is best-effort by design.
type Coordinator struct {
	memory  *MemoryTier
	durable DurableTier
	policy  *TTLPolicy
	logger  zerolog.Logger

	hits   atomic.Uint64
	misses atomic.Uint64
}

// CoordinatorStats is a snapshot of coordinator-level counters.
type CoordinatorStats struct {
	MemoryEntries  int
	DurableEntries int
	TotalEntries   int
	Hits           uint64
	Misses         uint64
	HitRate        float64
}

type getOptions struct {
	bypass bool
}

// GetOption customizes a Coordinator.Get call.
type GetOption func(*getOptions)

// WithBypass makes Get report absent without consulting or mutating either
// tier. Forced-refresh callers use it to skip the cache while leaving any
// existing entry untouched.
func WithBypass() GetOption {
	return func(o *getOptions) {
		o.bypass = true
	}
}

// NewCoordinator creates a coordinator over the given tiers and TTL policy.
func NewCoordinator(memory *MemoryTier, durable DurableTier, policy *TTLPolicy, logger zerolog.Logger) (*Coordinator, error) {
	if memory == nil {
		return nil, fmt.Errorf("memory tier is required")
	}
	if durable == nil {
		return nil, fmt.Errorf("durable tier is required")
	}
	if policy == nil {
		return nil, fmt.Errorf("ttl policy is required")
	}
	return &Coordinator{
		memory:  memory,
		durable: durable,
		policy:  policy,
		logger:  logger,
	}, nil
}

// Get returns the cached value for key from the fastest tier holding it.
// A durable hit is promoted into the memory tier with its remaining TTL.
// Durable-tier read failures are treated as absent.
func (c *Coordinator) Get(ctx context.Context, key string, opts ...GetOption) ([]byte, bool) {
	var o getOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.bypass {
		return nil, false
	}

	if value, ok := c.memory.Get(key); ok {
		c.hits.Add(1)
		return value, true
	}

	entry, err := c.durable.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("key", key).Msg("Durable tier read failed, treating as absent")
		}
		c.misses.Add(1)
		return nil, false
	}

	// Promote with the remaining lifetime, not a fresh TTL.
	if ttl := entry.TTL(); ttl > 0 {
		if err := c.memory.Set(key, entry.Value, ttl); err != nil {
			c.logger.Debug().Err(err).Str("key", key).Msg("Promotion to memory tier skipped")
		}
	}

	c.hits.Add(1)
	return entry.Value, true
}

// Set caches value for sourceName's resolved TTL in both tiers.
// A durable-side failure is logged and does not fail the call. A value too
// large for the memory tier is still written durably; ErrOversizedValue is
// returned so the caller knows the hot tier skipped it.
func (c *Coordinator) Set(ctx context.Context, key string, value []byte, sourceName string) error {
	ttl := c.policy.Resolve(sourceName)

	memErr := c.memory.Set(key, value, ttl)
	if memErr != nil && !errors.Is(memErr, ErrOversizedValue) {
		return memErr
	}

	if err := c.durable.Set(ctx, key, NewEntry(value, ttl)); err != nil {
		c.logger.Warn().
			Err(err).
			Str("key", key).
			Str("source", sourceName).
			Msg("Durable tier write failed, value held in memory only")
	}

	return memErr
}

// Delete removes key from both tiers. Returns true if either tier held it.
func (c *Coordinator) Delete(ctx context.Context, key string) bool {
	memDeleted := c.memory.Delete(key)

	durDeleted, err := c.durable.Delete(ctx, key)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Durable tier delete failed")
	}

	return memDeleted || durDeleted
}

// Clear empties both tiers.
func (c *Coordinator) Clear(ctx context.Context) {
	c.memory.Clear()
	if err := c.durable.Clear(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("Durable tier clear failed")
	}
}

// ClearExpired sweeps expired entries from both tiers and returns the
// aggregate count removed.
func (c *Coordinator) ClearExpired(ctx context.Context) int {
	removed := c.memory.ClearExpired()

	durRemoved, err := c.durable.ClearExpired(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Durable tier expiry sweep failed")
	}

	return removed + durRemoved
}

// Statistics returns entry counts per tier and coordinator-level hit rates.
// A hit is a read served by either tier.
func (c *Coordinator) Statistics(ctx context.Context) CoordinatorStats {
	memEntries := c.memory.Stats().EntryCount

	durEntries, err := c.durable.EntryCount(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Durable tier count failed")
		durEntries = 0
	}

	hits := c.hits.Load()
	misses := c.misses.Load()
	stats := CoordinatorStats{
		MemoryEntries:  memEntries,
		DurableEntries: durEntries,
		TotalEntries:   memEntries + durEntries,
		Hits:           hits,
		Misses:         misses,
	}
	if total := hits + misses; total > 0 {
		stats.HitRate = float64(hits) / float64(total)
	}
	return stats
}

// ResolveTTL exposes the coordinator's TTL resolution for callers that
// need to report cache lifetimes (e.g. connector logging).
func (c *Coordinator) ResolveTTL(sourceName string) time.Duration {
	return c.policy.Resolve(sourceName)
}
