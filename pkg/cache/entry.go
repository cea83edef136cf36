package cache

import (
	"time"
)

// Entry represents a cached data-source response.
type Entry struct {
	// Value is the opaque response payload.
	Value []byte `json:"value"`

	// CreatedAt is when the entry was written.
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt is when the entry becomes stale. Always after CreatedAt.
	ExpiresAt time.Time `json:"expires_at"`

	// SizeBytes is the payload footprint used for eviction accounting.
	SizeBytes int64 `json:"size_bytes"`

	// AccessCount is incremented on every successful read.
	AccessCount int64 `json:"access_count"`

	// LastAccessedAt is the time of the most recent successful read.
	LastAccessedAt time.Time `json:"last_accessed_at"`
}

// NewEntry creates an entry for value that expires ttl from now.
func NewEntry(value []byte, ttl time.Duration) *Entry {
	now := time.Now()
	return &Entry{
		Value:          value,
		CreatedAt:      now,
		ExpiresAt:      now.Add(ttl),
		SizeBytes:      int64(len(value)),
		LastAccessedAt: now,
	}
}

// IsExpired returns true if the entry has passed its expiry time.
func (e *Entry) IsExpired() bool {
	return e.isExpiredAt(time.Now())
}

func (e *Entry) isExpiredAt(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.ExpiresAt)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// touch updates access statistics for a successful read.
func (e *Entry) touch(now time.Time) {
	e.AccessCount++
	e.LastAccessedAt = now
}
