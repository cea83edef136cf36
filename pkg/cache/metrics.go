package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by tier (memory, durable).
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datacore_cache_hits_total",
			Help: "Total number of cache hits by tier",
		},
		[]string{"tier"},
	)

	// CacheMisses tracks cache misses by tier.
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datacore_cache_misses_total",
			Help: "Total number of cache misses by tier",
		},
		[]string{"tier"},
	)

	// CacheEvictions tracks evictions by reason (capacity, expired).
	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datacore_cache_evictions_total",
			Help: "Total number of cache evictions by reason",
		},
		[]string{"reason"},
	)

	// CacheSizeBytes tracks current cache size in bytes by tier.
	CacheSizeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "datacore_cache_size_bytes",
			Help: "Current cache size in bytes by tier",
		},
		[]string{"tier"},
	)

	// CacheErrors tracks cache operation errors.
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datacore_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "sweep"
	)
)
