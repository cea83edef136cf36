package integration

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/parcelworth/datacore/internal/testutil"
	"github.com/parcelworth/datacore/pkg/cache"
	"github.com/parcelworth/datacore/pkg/ratelimit"
	"github.com/parcelworth/datacore/pkg/retry"
	"github.com/parcelworth/datacore/pkg/source"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

func newCoordinator(t *testing.T, redisClient *redis.Client, capacityBytes int64) *cache.Coordinator {
	t.Helper()

	memory, err := cache.NewMemoryTier(capacityBytes, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewMemoryTier: %v", err)
	}
	durable, err := cache.NewRedisTier(redisClient, "datacore-it:")
	if err != nil {
		t.Fatalf("NewRedisTier: %v", err)
	}
	policy := cache.NewTTLPolicy(time.Hour, map[string]time.Duration{
		"census_acs": 24 * time.Hour,
	})
	coord, err := cache.NewCoordinator(memory, durable, policy, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	return coord
}

// TestRedisTier_Contract exercises the durable tier against a real Redis.
func TestRedisTier_Contract(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	tier, err := cache.NewRedisTier(redisClient, "datacore-it:")
	if err != nil {
		t.Fatalf("NewRedisTier: %v", err)
	}
	ctx := context.Background()

	entry := cache.NewEntry([]byte(`{"flood_zone": "AE"}`), time.Minute)
	if err := tier.Set(ctx, "fema_nfhl:zones", entry); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := tier.Get(ctx, "fema_nfhl:zones")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got.Value) != string(entry.Value) {
		t.Errorf("Value = %s, want %s", got.Value, entry.Value)
	}

	count, err := tier.EntryCount(ctx)
	if err != nil || count != 1 {
		t.Errorf("EntryCount = %d, %v; want 1, nil", count, err)
	}

	deleted, err := tier.Delete(ctx, "fema_nfhl:zones")
	if err != nil || !deleted {
		t.Errorf("Delete = %v, %v; want true, nil", deleted, err)
	}
}

// TestCoordinator_SurvivesMemoryLoss verifies the durable tier serves
// reads after the memory tier is emptied, and that the hit is promoted
// back into memory.
func TestCoordinator_SurvivesMemoryLoss(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	coord := newCoordinator(t, redisClient, 1<<20)
	ctx := context.Background()

	if err := coord.Set(ctx, "k", []byte("durable value"), "census_acs"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// Simulate a process restart by rebuilding over the same Redis.
	restarted := newCoordinator(t, redisClient, 1<<20)

	value, ok := restarted.Get(ctx, "k")
	if !ok || string(value) != "durable value" {
		t.Fatalf("Get after restart = %q, %v; want durable value, true", value, ok)
	}

	stats := restarted.Statistics(ctx)
	if stats.MemoryEntries != 1 {
		t.Errorf("MemoryEntries = %d after promotion, want 1", stats.MemoryEntries)
	}
}

// TestFullFetchFlow runs rate limit -> cache miss -> upstream fetch ->
// cache store -> cache hit against real Redis and a mock upstream.
func TestFullFetchFlow(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.SetResponse("/acs/acs5", testutil.NewHealthyResponse(`{"B19013_001E": "84210"}`))

	src, err := source.NewHTTPSource(mock.URL(), "datacore-it/1.0")
	if err != nil {
		t.Fatalf("NewHTTPSource: %v", err)
	}

	limiter := ratelimit.New(zerolog.Nop())
	if err := limiter.Register("census_acs", 100, 60, 0.9); err != nil {
		t.Fatalf("Register: %v", err)
	}

	conn, err := source.NewConnector(source.Config{
		Source:  src,
		Cache:   newCoordinator(t, redisClient, 1<<20),
		Limiter: limiter,
		Retry:   retry.DefaultPolicy(),
		Logger:  zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewConnector: %v", err)
	}

	ctx := context.Background()
	req := source.Request{
		Source:   "census_acs",
		Endpoint: "acs/acs5",
		Params:   map[string]string{"get": "B19013_001E"},
	}

	first, err := conn.Fetch(ctx, req)
	if err != nil {
		t.Fatalf("first Fetch: %v", err)
	}
	if string(first) != `{"B19013_001E": "84210"}` {
		t.Errorf("first Fetch = %s", first)
	}
	if mock.GetRequestCount() != 1 {
		t.Errorf("upstream requests = %d, want 1", mock.GetRequestCount())
	}

	second, err := conn.Fetch(ctx, req)
	if err != nil {
		t.Fatalf("second Fetch: %v", err)
	}
	if string(second) != string(first) {
		t.Errorf("cached read differs: %s", second)
	}
	if mock.GetRequestCount() != 1 {
		t.Errorf("upstream requests = %d after cache hit, want 1", mock.GetRequestCount())
	}

	// Quota accounting: exactly one request hit the window.
	usage, err := limiter.Usage("census_acs")
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if usage.Current != 1 {
		t.Errorf("window Current = %d, want 1", usage.Current)
	}
}

// TestRetryAgainstFlakyUpstream verifies transient 5xx responses are
// retried through to success and the result lands in Redis.
func TestRetryAgainstFlakyUpstream(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.SetFlaky("/storm/events", 2, http.StatusServiceUnavailable, `{"events": []}`)

	src, err := source.NewHTTPSource(mock.URL(), "datacore-it/1.0")
	if err != nil {
		t.Fatalf("NewHTTPSource: %v", err)
	}

	limiter := ratelimit.New(zerolog.Nop())
	if err := limiter.Register("noaa_storm", 100, 60, 0.9); err != nil {
		t.Fatalf("Register: %v", err)
	}

	conn, err := source.NewConnector(source.Config{
		Source:  src,
		Cache:   newCoordinator(t, redisClient, 1<<20),
		Limiter: limiter,
		Retry:   retry.Policy{MaxRetries: 3, InitialDelay: 10 * time.Millisecond, Multiplier: 2.0},
		Logger:  zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewConnector: %v", err)
	}

	value, err := conn.Fetch(context.Background(), source.Request{
		Source:   "noaa_storm",
		Endpoint: "storm/events",
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(value) != `{"events": []}` {
		t.Errorf("Fetch = %s", value)
	}
	if mock.GetRequestCount() != 3 {
		t.Errorf("upstream requests = %d, want 3 (two failures, one success)", mock.GetRequestCount())
	}
}
