// Package cache implements the multi-tier response cache used by the
// data-source connectors.
//
// Two tiers compose into a single read/write path:
//
//   - MemoryTier: in-process LRU with a byte budget and lazy TTL expiry.
//     Fast, bounded, lost on restart.
//   - DurableTier: a persistent key/value contract (RedisTier is the
//     provided implementation). Slower, survives restarts, holds a much
//     larger working set.
//
// The Coordinator checks memory first and promotes durable hits into the
// memory tier (write-through), so hot keys stay fast after the first
// durable read. Per-source cache lifetimes come from a TTLPolicy table;
// unknown sources fall back to a configured default.
//
// # Basic Usage
//
//	memory, err := cache.NewMemoryTier(64<<20, logger)
//	if err != nil {
//		return err
//	}
//
//	durable, err := cache.NewRedisTier(redisClient, "datacore:")
//	if err != nil {
//		return err
//	}
//
//	policy := cache.NewTTLPolicy(cache.DefaultTTL, map[string]time.Duration{
//		"census_acs": 365 * 24 * time.Hour,
//		"noaa_storm": time.Hour,
//	})
//
//	coord, err := cache.NewCoordinator(memory, durable, policy, logger)
//	if err != nil {
//		return err
//	}
//
//	key := cache.Key{
//		Source:   "census_acs",
//		Endpoint: "acs/acs5",
//		Params:   map[string]string{"state": "06", "year": "2023"},
//	}
//
//	if err := coord.Set(ctx, key.String(), payload, "census_acs"); err != nil {
//		// ErrOversizedValue: value skipped the memory tier, still durable
//	}
//
//	if value, ok := coord.Get(ctx, key.String()); ok {
//		// cache hit
//	}
//
// # Forced Refresh
//
//	// Report absent without touching either tier; the caller refetches
//	// and overwrites via Set.
//	_, _ = coord.Get(ctx, key.String(), cache.WithBypass())
//
// # Metrics
//
// The package exports Prometheus metrics:
//
//   - datacore_cache_hits_total{tier} - Cache hits by tier
//   - datacore_cache_misses_total{tier} - Cache misses by tier
//   - datacore_cache_evictions_total{reason} - Evictions (capacity, expired)
//   - datacore_cache_size_bytes{tier} - Cache size by tier
//   - datacore_cache_errors_total{operation} - Cache operation errors
//
// # Failure Policy
//
// The cache is advisory: durable-tier write failures are logged and never
// fail a Set, durable read failures fall through to a miss, and a value
// too large for the memory budget (ErrOversizedValue) is skipped by the
// hot tier while the fetched data still reaches the caller.
package cache
