package cache

import (
	"time"
)

// DefaultTTL is the fallback duration for sources without a configured policy.
const DefaultTTL = 14 * 24 * time.Hour

// TTLPolicy maps data-source names to cache durations. Unknown sources
// resolve to the default, so Resolve is total. The table is built once
// at startup and never mutated afterwards.
type TTLPolicy struct {
	defaultTTL time.Duration
	bySource   map[string]time.Duration
}

// NewTTLPolicy creates a policy with the given per-source table and default.
// A non-positive defaultTTL falls back to DefaultTTL.
func NewTTLPolicy(defaultTTL time.Duration, bySource map[string]time.Duration) *TTLPolicy {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	table := make(map[string]time.Duration, len(bySource))
	for source, ttl := range bySource {
		table[source] = ttl
	}
	return &TTLPolicy{
		defaultTTL: defaultTTL,
		bySource:   table,
	}
}

// Resolve returns the configured duration for sourceName, or the default
// if the source has no explicit policy.
func (p *TTLPolicy) Resolve(sourceName string) time.Duration {
	if ttl, ok := p.bySource[sourceName]; ok {
		return ttl
	}
	return p.defaultTTL
}

// Default returns the policy's fallback duration.
func (p *TTLPolicy) Default() time.Duration {
	return p.defaultTTL
}
