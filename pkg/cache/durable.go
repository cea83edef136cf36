package cache

import (
	"context"
	"errors"
)

var (
	// ErrCacheMiss indicates the requested key was not found in the tier.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates a stored entry is invalid or corrupted.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// DurableTier is the contract for the slower persistent key/value store
// backing the memory tier. Any store satisfying it is substitutable.
type DurableTier interface {
	// Get returns the entry for key, or ErrCacheMiss if absent or expired.
	Get(ctx context.Context, key string) (*Entry, error)

	// Set stores entry under key with a store-level TTL derived from
	// the entry's expiry.
	Set(ctx context.Context, key string, entry *Entry) error

	// Delete removes key. Returns true if an entry was present.
	Delete(ctx context.Context, key string) (bool, error)

	// Clear removes all entries owned by this tier.
	Clear(ctx context.Context) error

	// ClearExpired sweeps expired entries and returns the number removed.
	ClearExpired(ctx context.Context) (int, error)

	// EntryCount returns the number of live entries in the tier.
	EntryCount(ctx context.Context) (int, error)
}
