package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/parcelworth/datacore/pkg/cache"
	"github.com/parcelworth/datacore/pkg/ratelimit"
	"github.com/parcelworth/datacore/pkg/retry"
)

// Prometheus metrics for connector fetches.
var (
	fetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datacore_fetches_total",
		Help: "Total connector fetches by source and outcome",
	}, []string{"source", "status"})

	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "datacore_fetch_duration_seconds",
		Help:    "Connector fetch duration in seconds by source",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"source"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datacore_retries_total",
		Help: "Total retry attempts by source",
	}, []string{"source"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "datacore_retry_backoff_seconds",
		Help:    "Backoff duration for retries by source",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"source"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datacore_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by source",
	}, []string{"source"})
)

// DefaultMaxRateWait bounds how long a fetch will sleep on a full
// rate-limit window before giving up.
const DefaultMaxRateWait = 2 * time.Minute

// Connector composes the resilience core around one DataSource:
// RateLimiter before every request, RetryPolicy around it, and the
// CacheCoordinator on either side. Connectors never touch the tiers
// directly.
type Connector struct {
	source  DataSource
	cache   *cache.Coordinator
	limiter *ratelimit.Limiter
	retry   retry.Policy
	maxWait time.Duration
	group   singleflight.Group
	logger  zerolog.Logger
}

// Config holds connector construction parameters. The limiter is passed
// by reference so all connectors sharing it enforce one global quota per
// source; tests construct a fresh limiter instead of resetting a shared
// one.
type Config struct {
	Source  DataSource
	Cache   *cache.Coordinator
	Limiter *ratelimit.Limiter

	// Retry is the backoff policy; zero value selects retry.DefaultPolicy.
	Retry retry.Policy

	// MaxRateWait bounds WaitIfNeeded; zero selects DefaultMaxRateWait.
	MaxRateWait time.Duration

	Logger zerolog.Logger
}

// FetchOption customizes one Fetch call.
type FetchOption func(*fetchOptions)

type fetchOptions struct {
	refresh bool
}

// WithRefresh bypasses the cache read so the source is always consulted.
// The fresh response still overwrites the cached entry.
func WithRefresh() FetchOption {
	return func(o *fetchOptions) {
		o.refresh = true
	}
}

// NewConnector creates a connector from cfg.
func NewConnector(cfg Config) (*Connector, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("data source is required")
	}
	if cfg.Cache == nil {
		return nil, fmt.Errorf("cache coordinator is required")
	}
	if cfg.Limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry = retry.DefaultPolicy()
	}
	if cfg.MaxRateWait == 0 {
		cfg.MaxRateWait = DefaultMaxRateWait
	}
	return &Connector{
		source:  cfg.Source,
		cache:   cfg.Cache,
		limiter: cfg.Limiter,
		retry:   cfg.Retry,
		maxWait: cfg.MaxRateWait,
		logger:  cfg.Logger,
	}, nil
}

// Fetch returns the payload for req, serving from cache when possible.
// On a miss it waits for a rate-limit slot, executes the source fetch
// under the retry policy, and caches the result. Concurrent fetches of
// the same key are collapsed into one upstream request.
//
// Rate-limit and retry exhaustion errors always surface to the caller;
// cache failures never do.
func (c *Connector) Fetch(ctx context.Context, req Request, opts ...FetchOption) ([]byte, error) {
	var o fetchOptions
	for _, opt := range opts {
		opt(&o)
	}

	requestID := uuid.NewString()
	key := cache.Key{Source: req.Source, Endpoint: req.Endpoint, Params: req.Params}.String()
	logger := c.logger.With().
		Str("request_id", requestID).
		Str("source", req.Source).
		Str("endpoint", req.Endpoint).
		Logger()

	start := time.Now()
	defer func() {
		fetchDuration.WithLabelValues(req.Source).Observe(time.Since(start).Seconds())
	}()

	var cacheOpts []cache.GetOption
	if o.refresh {
		cacheOpts = append(cacheOpts, cache.WithBypass())
	}
	if value, ok := c.cache.Get(ctx, key, cacheOpts...); ok {
		logger.Debug().Msg("Cache hit")
		fetchesTotal.WithLabelValues(req.Source, "cache_hit").Inc()
		return value, nil
	}

	value, err, shared := c.group.Do(key, func() (any, error) {
		return c.fetchUpstream(ctx, req, key, logger)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		logger.Debug().Msg("Fetch coalesced with concurrent request")
	}
	return value.([]byte), nil
}

// fetchUpstream runs the rate-limited, retried source fetch and caches
// the result.
func (c *Connector) fetchUpstream(ctx context.Context, req Request, key string, logger zerolog.Logger) ([]byte, error) {
	waited, err := c.limiter.WaitIfNeeded(ctx, req.Source, c.maxWait)
	if err != nil {
		logger.Warn().Err(err).Dur("waited", waited).Msg("Rate limit wait failed")
		fetchesTotal.WithLabelValues(req.Source, "rate_limited").Inc()
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	if waited > 0 {
		logger.Debug().Dur("waited", waited).Msg("Waited for rate limit slot")
	}

	var resp *Response
	attempts := 0
	result, err := c.retry.Execute(ctx, func(ctx context.Context) error {
		attempts++
		// WaitIfNeeded already recorded the first attempt against the
		// window; each retry is its own request against the quota.
		if attempts > 1 {
			c.limiter.RecordRequest(req.Source)
		}
		r, fetchErr := c.source.Fetch(ctx, req)
		if fetchErr != nil {
			return fetchErr
		}
		resp = r
		return nil
	})

	// The policy returns attempt metadata instead of logging; report it here.
	for _, attempt := range result.Attempts {
		if attempt.Delay > 0 {
			retriesTotal.WithLabelValues(req.Source).Inc()
			retryBackoffSeconds.WithLabelValues(req.Source).Observe(attempt.Delay.Seconds())
			logger.Warn().
				Int("attempt", attempt.Number).
				Dur("backoff", attempt.Delay).
				Err(attempt.Err).
				Msg("Fetch attempt failed, retrying after backoff")
		}
	}

	if err != nil {
		if errors.Is(err, retry.ErrRetriesExhausted) {
			retryExhaustedTotal.WithLabelValues(req.Source).Inc()
		}
		logger.Error().
			Err(err).
			Int("attempts", len(result.Attempts)).
			Dur("elapsed", result.Elapsed).
			Msg("Fetch failed")
		fetchesTotal.WithLabelValues(req.Source, "error").Inc()
		return nil, err
	}

	if len(result.Attempts) > 1 {
		logger.Info().
			Int("attempts", len(result.Attempts)).
			Dur("elapsed", result.Elapsed).
			Msg("Fetch succeeded after retry")
	}

	if cacheErr := c.cache.Set(ctx, key, resp.Body, req.Source); cacheErr != nil {
		// Cache is advisory: an oversized value skips the hot tier but
		// the fetched data still reaches the caller.
		logger.Warn().Err(cacheErr).Msg("Caching fetched value failed")
	} else {
		logger.Debug().
			Dur("ttl", c.cache.ResolveTTL(req.Source)).
			Msg("Cached fetched value")
	}

	fetchesTotal.WithLabelValues(req.Source, "fetched").Inc()
	return resp.Body, nil
}
