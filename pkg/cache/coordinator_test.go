package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// stubDurable is a map-backed DurableTier for coordinator tests.
// (internal/testutil has a full-featured fake, but importing it here
// would create a cycle through the test binary.)
type stubDurable struct {
	entries map[string]*Entry

	failGets bool
	failSets bool

	getCalls int
	setCalls int
}

var errStub = errors.New("stub durable failure")

func newStubDurable() *stubDurable {
	return &stubDurable{entries: make(map[string]*Entry)}
}

func (s *stubDurable) Get(ctx context.Context, key string) (*Entry, error) {
	s.getCalls++
	if s.failGets {
		return nil, errStub
	}
	entry, ok := s.entries[key]
	if !ok || entry.IsExpired() {
		return nil, ErrCacheMiss
	}
	copied := *entry
	return &copied, nil
}

func (s *stubDurable) Set(ctx context.Context, key string, entry *Entry) error {
	s.setCalls++
	if s.failSets {
		return errStub
	}
	copied := *entry
	s.entries[key] = &copied
	return nil
}

func (s *stubDurable) Delete(ctx context.Context, key string) (bool, error) {
	_, ok := s.entries[key]
	delete(s.entries, key)
	return ok, nil
}

func (s *stubDurable) Clear(ctx context.Context) error {
	s.entries = make(map[string]*Entry)
	return nil
}

func (s *stubDurable) ClearExpired(ctx context.Context) (int, error) {
	removed := 0
	for key, entry := range s.entries {
		if entry.IsExpired() {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

func (s *stubDurable) EntryCount(ctx context.Context) (int, error) {
	return len(s.entries), nil
}

func newTestCoordinator(t *testing.T, capacity int64, durable DurableTier) *Coordinator {
	t.Helper()

	memory, err := NewMemoryTier(capacity, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewMemoryTier: %v", err)
	}
	policy := NewTTLPolicy(time.Hour, map[string]time.Duration{
		"census_acs": 24 * time.Hour,
	})
	coord, err := NewCoordinator(memory, durable, policy, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	return coord
}

func TestNewCoordinator_RequiresTiers(t *testing.T) {
	memory, _ := NewMemoryTier(1024, zerolog.Nop())
	policy := NewTTLPolicy(time.Hour, nil)

	if _, err := NewCoordinator(nil, newStubDurable(), policy, zerolog.Nop()); err == nil {
		t.Error("nil memory tier should fail")
	}
	if _, err := NewCoordinator(memory, nil, policy, zerolog.Nop()); err == nil {
		t.Error("nil durable tier should fail")
	}
	if _, err := NewCoordinator(memory, newStubDurable(), nil, zerolog.Nop()); err == nil {
		t.Error("nil policy should fail")
	}
}

func TestCoordinator_SetWritesBothTiers(t *testing.T) {
	durable := newStubDurable()
	coord := newTestCoordinator(t, 1024, durable)
	ctx := context.Background()

	if err := coord.Set(ctx, "k", []byte("v"), "census_acs"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if !coord.memory.Contains("k") {
		t.Error("value missing from memory tier")
	}
	if durable.setCalls != 1 {
		t.Errorf("durable setCalls = %d, want 1", durable.setCalls)
	}
	entry, err := durable.Get(ctx, "k")
	if err != nil {
		t.Fatalf("durable Get: %v", err)
	}
	// TTL must come from the per-source policy, not the default.
	if ttl := entry.TTL(); ttl <= 23*time.Hour {
		t.Errorf("durable entry TTL = %v, want ~24h", ttl)
	}
}

func TestCoordinator_Get_MemoryFirst(t *testing.T) {
	durable := newStubDurable()
	coord := newTestCoordinator(t, 1024, durable)
	ctx := context.Background()

	coord.Set(ctx, "k", []byte("v"), "noaa_storm")
	durable.getCalls = 0

	value, ok := coord.Get(ctx, "k")
	if !ok || string(value) != "v" {
		t.Fatalf("Get = %q, %v; want v, true", value, ok)
	}
	if durable.getCalls != 0 {
		t.Errorf("durable consulted %d times for a memory hit, want 0", durable.getCalls)
	}
}

func TestCoordinator_Get_PromotesFromDurable(t *testing.T) {
	durable := newStubDurable()
	coord := newTestCoordinator(t, 1024, durable)
	ctx := context.Background()

	// Seed the durable tier only, as after a process restart.
	durable.Set(ctx, "k", NewEntry([]byte("survived"), time.Hour))

	value, ok := coord.Get(ctx, "k")
	if !ok || string(value) != "survived" {
		t.Fatalf("Get = %q, %v; want survived, true", value, ok)
	}
	if !coord.memory.Contains("k") {
		t.Error("durable hit was not promoted into the memory tier")
	}

	// Second read is served hot.
	durable.getCalls = 0
	if _, ok := coord.Get(ctx, "k"); !ok {
		t.Fatal("promoted entry not readable")
	}
	if durable.getCalls != 0 {
		t.Errorf("durable consulted after promotion, getCalls = %d", durable.getCalls)
	}
}

func TestCoordinator_Get_Bypass(t *testing.T) {
	durable := newStubDurable()
	coord := newTestCoordinator(t, 1024, durable)
	ctx := context.Background()

	coord.Set(ctx, "k", []byte("stale"), "census_acs")

	if _, ok := coord.Get(ctx, "k", WithBypass()); ok {
		t.Error("bypass read should report absent")
	}
	// The entry itself must survive the bypass.
	if value, ok := coord.Get(ctx, "k"); !ok || string(value) != "stale" {
		t.Errorf("entry lost after bypass read: %q, %v", value, ok)
	}
}

func TestCoordinator_Get_DurableFailureIsMiss(t *testing.T) {
	durable := newStubDurable()
	durable.failGets = true
	coord := newTestCoordinator(t, 1024, durable)

	if _, ok := coord.Get(context.Background(), "k"); ok {
		t.Error("durable read failure should surface as a miss")
	}
}

func TestCoordinator_Set_DurableFailureDoesNotFail(t *testing.T) {
	durable := newStubDurable()
	durable.failSets = true
	coord := newTestCoordinator(t, 1024, durable)
	ctx := context.Background()

	if err := coord.Set(ctx, "k", []byte("v"), "census_acs"); err != nil {
		t.Fatalf("Set should tolerate a durable write failure, got %v", err)
	}
	if value, ok := coord.Get(ctx, "k"); !ok || string(value) != "v" {
		t.Errorf("memory tier should still serve the value: %q, %v", value, ok)
	}
}

func TestCoordinator_Set_OversizedStillDurable(t *testing.T) {
	durable := newStubDurable()
	coord := newTestCoordinator(t, 10, durable)
	ctx := context.Background()

	err := coord.Set(ctx, "k", make([]byte, 64), "census_acs")
	if !errors.Is(err, ErrOversizedValue) {
		t.Fatalf("Set = %v, want ErrOversizedValue", err)
	}

	// Too big for the hot tier, but the durable tier still has it.
	if _, err := durable.Get(ctx, "k"); err != nil {
		t.Errorf("durable Get after oversized Set: %v", err)
	}
	if value, ok := coord.Get(ctx, "k"); !ok || len(value) != 64 {
		t.Errorf("coordinator read of oversized value failed: %d bytes, %v", len(value), ok)
	}
}

func TestCoordinator_Delete(t *testing.T) {
	durable := newStubDurable()
	coord := newTestCoordinator(t, 1024, durable)
	ctx := context.Background()

	coord.Set(ctx, "k", []byte("v"), "census_acs")

	if !coord.Delete(ctx, "k") {
		t.Error("Delete = false for present key")
	}
	if coord.Delete(ctx, "k") {
		t.Error("Delete = true for absent key")
	}
	if _, ok := coord.Get(ctx, "k"); ok {
		t.Error("key readable after delete")
	}
}

func TestCoordinator_ClearAndStatistics(t *testing.T) {
	durable := newStubDurable()
	coord := newTestCoordinator(t, 1024, durable)
	ctx := context.Background()

	coord.Set(ctx, "a", []byte("1"), "census_acs")
	coord.Set(ctx, "b", []byte("2"), "census_acs")
	coord.Get(ctx, "a")
	coord.Get(ctx, "missing")

	stats := coord.Statistics(ctx)
	if stats.MemoryEntries != 2 {
		t.Errorf("MemoryEntries = %d, want 2", stats.MemoryEntries)
	}
	if stats.DurableEntries != 2 {
		t.Errorf("DurableEntries = %d, want 2", stats.DurableEntries)
	}
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("Hits/Misses = %d/%d, want 1/1", stats.Hits, stats.Misses)
	}
	if stats.HitRate != 0.5 {
		t.Errorf("HitRate = %v, want 0.5", stats.HitRate)
	}

	coord.Clear(ctx)
	stats = coord.Statistics(ctx)
	if stats.TotalEntries != 0 {
		t.Errorf("TotalEntries = %d after Clear, want 0", stats.TotalEntries)
	}
}

func TestCoordinator_ResolveTTL(t *testing.T) {
	coord := newTestCoordinator(t, 1024, newStubDurable())

	if ttl := coord.ResolveTTL("census_acs"); ttl != 24*time.Hour {
		t.Errorf("ResolveTTL(census_acs) = %v, want 24h", ttl)
	}
	if ttl := coord.ResolveTTL("unknown"); ttl != time.Hour {
		t.Errorf("ResolveTTL(unknown) = %v, want default 1h", ttl)
	}
}
