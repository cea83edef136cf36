// Package ratelimit implements per-source sliding-window rate limiting.
// Every external data source registers its quota once; all connectors
// then share the same window per source name, which is how global API
// quotas are enforced across concurrent workers.
package ratelimit

import (
	"sync"
	"time"
)

// DefaultWarnThreshold is the usage fraction at which a source's window
// starts logging warnings, when registration passes zero.
const DefaultWarnThreshold = 0.8

// Usage is a point-in-time view of one source's window.
type Usage struct {
	// Current is the number of requests inside the trailing window.
	Current int

	// Max is the registered request ceiling for the window.
	Max int

	// Window is the trailing interval length.
	Window time.Duration

	// Remaining is Max - Current, floored at zero.
	Remaining int

	// UsagePercentage is Current/Max in percent.
	UsagePercentage float64

	// SecondsUntilReset is the time until the oldest in-window request
	// leaves the window. Zero when the window is empty.
	SecondsUntilReset float64
}

// window holds one source's request timestamps. Each window carries its
// own lock so unrelated sources never serialize each other.
type window struct {
	mu            sync.Mutex
	maxRequests   int
	length        time.Duration
	warnThreshold float64
	timestamps    []time.Time
}

// prune drops timestamps older than the trailing window.
// Caller must hold w.mu.
func (w *window) prune(now time.Time) {
	cutoff := now.Add(-w.length)
	keep := 0
	for _, ts := range w.timestamps {
		if ts.After(cutoff) {
			break
		}
		keep++
	}
	if keep > 0 {
		w.timestamps = append(w.timestamps[:0], w.timestamps[keep:]...)
	}
}

// usageLocked computes the current usage snapshot.
// Caller must hold w.mu and have pruned first.
func (w *window) usageLocked(now time.Time) Usage {
	current := len(w.timestamps)
	remaining := w.maxRequests - current
	if remaining < 0 {
		remaining = 0
	}

	u := Usage{
		Current:   current,
		Max:       w.maxRequests,
		Window:    w.length,
		Remaining: remaining,
	}
	if w.maxRequests > 0 {
		u.UsagePercentage = float64(current) / float64(w.maxRequests) * 100
	}
	if current > 0 {
		reset := w.timestamps[0].Add(w.length).Sub(now)
		if reset > 0 {
			u.SecondsUntilReset = reset.Seconds()
		}
	}
	return u
}

// waitLocked returns how long a caller must wait for one slot to open:
// the time until the oldest in-window timestamp expires. Zero when a
// slot is already free. Caller must hold w.mu and have pruned first.
func (w *window) waitLocked(now time.Time) time.Duration {
	if len(w.timestamps) < w.maxRequests {
		return 0
	}
	wait := w.timestamps[0].Add(w.length).Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}
