package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limiting.
var (
	rateLimitDenialsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datacore_rate_limit_denials_total",
		Help: "Total number of requests denied by the sliding window, by source",
	}, []string{"source"})

	rateLimitWaitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datacore_rate_limit_waits_total",
		Help: "Total number of requests that slept waiting for a window slot, by source",
	}, []string{"source"})

	rateLimitUsageRatio = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "datacore_rate_limit_usage_ratio",
		Help: "Current window usage as a fraction of the registered ceiling, by source",
	}, []string{"source"})

	rateLimitUnregisteredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "datacore_rate_limit_unregistered_total",
		Help: "Total number of permit checks for sources with no registered quota",
	})
)

var (
	// ErrInvalidThreshold is returned by Register when the warn threshold
	// lies outside (0.0, 1.0].
	ErrInvalidThreshold = errors.New("warn threshold must be in (0.0, 1.0]")

	// ErrWaitExceeded is returned by WaitIfNeeded when the required wait
	// would exceed the caller's bound.
	ErrWaitExceeded = errors.New("rate limit wait exceeds maximum")

	// ErrUnknownSource is returned by Usage for sources never registered.
	// Permit deliberately fails open instead; introspection must be precise.
	ErrUnknownSource = errors.New("unknown rate limit source")
)

// Limiter tracks per-source request timestamps in a trailing window.
//
// Construct one Limiter and hand it to every connector; the shared
// windows are the mechanism that enforces third-party quotas globally.
type Limiter struct {
	mu      sync.RWMutex
	sources map[string]*window
	logger  zerolog.Logger
	now     func() time.Time
}

// New creates an empty limiter.
func New(logger zerolog.Logger) *Limiter {
	return &Limiter{
		sources: make(map[string]*window),
		logger:  logger,
		now:     time.Now,
	}
}

// Register configures source's quota: at most maxRequests requests within
// any trailing windowSeconds interval. warnThreshold is the usage fraction
// that triggers warning logs; zero selects DefaultWarnThreshold, anything
// outside (0.0, 1.0] fails with ErrInvalidThreshold. Re-registering a
// source replaces its quota and clears its window.
func (l *Limiter) Register(source string, maxRequests, windowSeconds int, warnThreshold float64) error {
	if source == "" {
		return fmt.Errorf("source name is required")
	}
	if maxRequests <= 0 {
		return fmt.Errorf("max requests must be positive (got %d)", maxRequests)
	}
	if windowSeconds <= 0 {
		return fmt.Errorf("window seconds must be positive (got %d)", windowSeconds)
	}
	if warnThreshold == 0 {
		warnThreshold = DefaultWarnThreshold
	}
	if warnThreshold <= 0 || warnThreshold > 1 {
		return fmt.Errorf("%w (got %g)", ErrInvalidThreshold, warnThreshold)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sources[source] = &window{
		maxRequests:   maxRequests,
		length:        time.Duration(windowSeconds) * time.Second,
		warnThreshold: warnThreshold,
	}

	l.logger.Debug().
		Str("source", source).
		Int("max_requests", maxRequests).
		Int("window_seconds", windowSeconds).
		Float64("warn_threshold", warnThreshold).
		Msg("Registered rate limit")
	return nil
}

// Permit reports whether source may issue a request right now. Stale
// timestamps are pruned first. Unregistered sources fail open: an
// unconfigured source must not block callers, but operators are alerted.
func (l *Limiter) Permit(source string) bool {
	w := l.lookup(source)
	if w == nil {
		l.logger.Warn().
			Str("source", source).
			Msg("Permit check for unregistered source, allowing (fail-open)")
		rateLimitUnregisteredTotal.Inc()
		return true
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	now := l.now()
	w.prune(now)
	allowed := len(w.timestamps) < w.maxRequests
	if !allowed {
		rateLimitDenialsTotal.WithLabelValues(source).Inc()
	}
	return allowed
}

// RecordRequest appends the current timestamp to source's window, pruning
// stale entries first. It is decoupled from Permit so callers can
// check-then-act or act-then-record. Recording against an unregistered
// source is a no-op beyond a warning.
func (l *Limiter) RecordRequest(source string) {
	w := l.lookup(source)
	if w == nil {
		l.logger.Warn().
			Str("source", source).
			Msg("Request recorded for unregistered source, ignoring")
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	now := l.now()
	w.prune(now)
	w.timestamps = append(w.timestamps, now)
	l.observeUsage(source, w, now)
}

// WaitIfNeeded blocks until source has a free window slot, then records
// the request. The wait is the time until the oldest in-window timestamp
// leaves the window; if that exceeds maxWait the call fails with
// ErrWaitExceeded instead of sleeping. The sleep suspends only the
// calling goroutine and honors ctx cancellation.
func (l *Limiter) WaitIfNeeded(ctx context.Context, source string, maxWait time.Duration) (time.Duration, error) {
	w := l.lookup(source)
	if w == nil {
		l.logger.Warn().
			Str("source", source).
			Msg("Wait requested for unregistered source, allowing (fail-open)")
		rateLimitUnregisteredTotal.Inc()
		return 0, nil
	}

	var waited time.Duration
	for {
		w.mu.Lock()
		now := l.now()
		w.prune(now)

		wait := w.waitLocked(now)
		if wait == 0 {
			w.timestamps = append(w.timestamps, now)
			l.observeUsage(source, w, now)
			w.mu.Unlock()
			return waited, nil
		}

		if waited+wait > maxWait {
			w.mu.Unlock()
			rateLimitDenialsTotal.WithLabelValues(source).Inc()
			return waited, fmt.Errorf("%w: need %s, max %s (source %s)",
				ErrWaitExceeded, waited+wait, maxWait, source)
		}
		w.mu.Unlock()

		l.logger.Debug().
			Str("source", source).
			Dur("wait", wait).
			Msg("Rate limit window full, waiting for slot")
		rateLimitWaitsTotal.WithLabelValues(source).Inc()

		select {
		case <-ctx.Done():
			return waited, fmt.Errorf("rate limit wait cancelled: %w", ctx.Err())
		case <-time.After(wait):
			waited += wait
		}
	}
}

// Usage returns source's current window snapshot.
// Fails with ErrUnknownSource if the source was never registered.
func (l *Limiter) Usage(source string) (Usage, error) {
	w := l.lookup(source)
	if w == nil {
		return Usage{}, fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	now := l.now()
	w.prune(now)
	return w.usageLocked(now), nil
}

// Reset clears the named sources' windows, or every window if none given.
// Registrations are preserved.
func (l *Limiter) Reset(sources ...string) {
	if len(sources) == 0 {
		l.mu.RLock()
		for name := range l.sources {
			sources = append(sources, name)
		}
		l.mu.RUnlock()
	}

	for _, name := range sources {
		if w := l.lookup(name); w != nil {
			w.mu.Lock()
			w.timestamps = w.timestamps[:0]
			w.mu.Unlock()
			rateLimitUsageRatio.WithLabelValues(name).Set(0)
		}
	}
}

// lookup returns source's window or nil.
func (l *Limiter) lookup(source string) *window {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sources[source]
}

// observeUsage updates the usage gauge and warns once usage crosses the
// source's warn threshold. Caller must hold w.mu.
func (l *Limiter) observeUsage(source string, w *window, now time.Time) {
	ratio := float64(len(w.timestamps)) / float64(w.maxRequests)
	rateLimitUsageRatio.WithLabelValues(source).Set(ratio)

	if ratio >= w.warnThreshold {
		u := w.usageLocked(now)
		l.logger.Warn().
			Str("source", source).
			Int("current", u.Current).
			Int("max", u.Max).
			Float64("usage_pct", u.UsagePercentage).
			Float64("seconds_until_reset", u.SecondsUntilReset).
			Msg("Rate limit usage above warn threshold")
	}
}
