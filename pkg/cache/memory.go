package cache

import (
	"container/list"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrOversizedValue indicates a value larger than the tier's total capacity.
// Such a value can never fit, regardless of eviction.
var ErrOversizedValue = errors.New("value exceeds cache capacity")

// MemoryTier is an in-process LRU cache with a byte budget and TTL expiry.
//
// Eviction is pure LRU by recency of access: a successful Get moves the key
// to the most-recently-used position. Eviction is triggered only by capacity
// pressure on Set; expiry is checked lazily on Get/Contains and may be swept
// explicitly with ClearExpired. All operations share a single tier-wide lock.
type MemoryTier struct {
	mu       sync.Mutex
	capacity int64
	size     int64
	items    map[string]*list.Element
	order    *list.List // front = most recently used

	hits             uint64
	misses           uint64
	evictions        uint64
	expiredEvictions uint64

	logger zerolog.Logger
	now    func() time.Time
}

type memoryItem struct {
	key   string
	entry *Entry
}

// MemoryStats is a snapshot of memory-tier counters.
type MemoryStats struct {
	Hits             uint64
	Misses           uint64
	Evictions        uint64
	ExpiredEvictions uint64
	EntryCount       int
	SizeBytes        int64
	HitRate          float64
}

// NewMemoryTier creates a memory tier bounded by capacityBytes.
func NewMemoryTier(capacityBytes int64, logger zerolog.Logger) (*MemoryTier, error) {
	if capacityBytes <= 0 {
		return nil, fmt.Errorf("memory tier capacity must be positive (got %d)", capacityBytes)
	}
	return &MemoryTier{
		capacity: capacityBytes,
		items:    make(map[string]*list.Element),
		order:    list.New(),
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Get returns the cached value for key if present and not expired.
// A hit moves the key to the most-recently-used position and updates
// its access statistics. An expired entry is evicted as a side effect.
func (t *MemoryTier) Get(key string) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	elem, ok := t.items[key]
	if !ok {
		t.misses++
		CacheMisses.WithLabelValues("memory").Inc()
		return nil, false
	}

	item := elem.Value.(*memoryItem)
	if item.entry.isExpiredAt(t.now()) {
		t.removeElement(elem)
		t.expiredEvictions++
		t.misses++
		CacheMisses.WithLabelValues("memory").Inc()
		CacheEvictions.WithLabelValues("expired").Inc()
		return nil, false
	}

	t.order.MoveToFront(elem)
	item.entry.touch(t.now())
	t.hits++
	CacheHits.WithLabelValues("memory").Inc()
	return item.entry.Value, true
}

// Contains reports whether key holds a live entry, without updating
// recency or access statistics. Expired entries are evicted as a side effect.
func (t *MemoryTier) Contains(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	elem, ok := t.items[key]
	if !ok {
		return false
	}
	if elem.Value.(*memoryItem).entry.isExpiredAt(t.now()) {
		t.removeElement(elem)
		t.expiredEvictions++
		CacheEvictions.WithLabelValues("expired").Inc()
		return false
	}
	return true
}

// Set stores value under key with the given ttl, evicting least-recently-used
// entries until the value fits. Returns ErrOversizedValue if the value exceeds
// the tier's total capacity.
func (t *MemoryTier) Set(key string, value []byte, ttl time.Duration) error {
	size := int64(len(value))
	if size > t.capacity {
		return fmt.Errorf("%w: %d bytes > %d byte capacity", ErrOversizedValue, size, t.capacity)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Replace an existing entry in place so its recency resets.
	if elem, ok := t.items[key]; ok {
		t.removeElement(elem)
	}

	// Evict oldest-accessed entries until the new value fits.
	for t.size+size > t.capacity {
		oldest := t.order.Back()
		if oldest == nil {
			break
		}
		evicted := oldest.Value.(*memoryItem)
		t.removeElement(oldest)
		t.evictions++
		CacheEvictions.WithLabelValues("capacity").Inc()
		t.logger.Debug().
			Str("key", evicted.key).
			Int64("size_bytes", evicted.entry.SizeBytes).
			Msg("Evicted LRU entry under capacity pressure")
	}

	now := t.now()
	entry := &Entry{
		Value:          value,
		CreatedAt:      now,
		ExpiresAt:      now.Add(ttl),
		SizeBytes:      size,
		LastAccessedAt: now,
	}
	elem := t.order.PushFront(&memoryItem{key: key, entry: entry})
	t.items[key] = elem
	t.size += size
	CacheSizeBytes.WithLabelValues("memory").Set(float64(t.size))
	return nil
}

// Delete removes key. Returns true if an entry was present.
func (t *MemoryTier) Delete(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	elem, ok := t.items[key]
	if !ok {
		return false
	}
	t.removeElement(elem)
	return true
}

// Clear removes all entries and resets size accounting.
// Hit/miss/eviction counters are preserved.
func (t *MemoryTier) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.items = make(map[string]*list.Element)
	t.order.Init()
	t.size = 0
	CacheSizeBytes.WithLabelValues("memory").Set(0)
}

// ClearExpired sweeps all expired entries and returns the number removed.
func (t *MemoryTier) ClearExpired() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	removed := 0
	for elem := t.order.Front(); elem != nil; {
		next := elem.Next()
		if elem.Value.(*memoryItem).entry.isExpiredAt(now) {
			t.removeElement(elem)
			t.expiredEvictions++
			CacheEvictions.WithLabelValues("expired").Inc()
			removed++
		}
		elem = next
	}
	return removed
}

// Stats returns a snapshot of the tier's counters.
func (t *MemoryTier) Stats() MemoryStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := MemoryStats{
		Hits:             t.hits,
		Misses:           t.misses,
		Evictions:        t.evictions,
		ExpiredEvictions: t.expiredEvictions,
		EntryCount:       len(t.items),
		SizeBytes:        t.size,
	}
	if total := t.hits + t.misses; total > 0 {
		stats.HitRate = float64(t.hits) / float64(total)
	}
	return stats
}

// removeElement unlinks elem from the order list, the key index,
// and size accounting. Caller must hold t.mu.
func (t *MemoryTier) removeElement(elem *list.Element) {
	item := elem.Value.(*memoryItem)
	t.order.Remove(elem)
	delete(t.items, item.key)
	t.size -= item.entry.SizeBytes
	CacheSizeBytes.WithLabelValues("memory").Set(float64(t.size))
}
