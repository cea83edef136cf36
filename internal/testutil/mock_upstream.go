// Package testutil provides testing utilities for the resilience core.
package testutil

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/parcelworth/datacore/pkg/cache"
)

// MockResponse defines the behavior for a mock upstream endpoint.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockUpstream is a configurable mock government-data API server.
type MockUpstream struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount    int
	LastRequestPath string
	LastQuery       map[string]string
}

// NewMockUpstream creates a new mock upstream server.
func NewMockUpstream() *MockUpstream {
	mock := &MockUpstream{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestPath = r.URL.Path
		mock.LastQuery = make(map[string]string)
		for name := range r.URL.Query() {
			mock.LastQuery[name] = r.URL.Query().Get(name)
		}
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockUpstream) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockUpstream) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockUpstream) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastRequestPath = ""
	m.LastQuery = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockUpstream) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockUpstream) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetFlaky configures a path that fails with failStatus a given number of
// times before serving body with 200.
func (m *MockUpstream) SetFlaky(path string, failures int, failStatus int, body string) {
	remaining := failures
	var mu sync.Mutex
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		fail := remaining > 0
		if fail {
			remaining--
		}
		mu.Unlock()

		if fail {
			w.WriteHeader(failStatus)
			w.Write([]byte(`{"error": "transient failure"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(body))
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockUpstream) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// defaultHandler provides a generic healthy JSON response.
func (m *MockUpstream) defaultHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status": "ok"}`))
}

// NewHealthyResponse creates a standard 200 OK JSON response.
func NewHealthyResponse(data string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewRateLimitedResponse creates a 429 Too Many Requests response.
func NewRateLimitedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "rate limit exceeded"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// FakeDurable is an in-memory DurableTier for tests that don't need Redis.
type FakeDurable struct {
	mu      sync.Mutex
	entries map[string]*cache.Entry

	// FailSets makes every Set return an error, for failure-policy tests.
	FailSets bool

	// FailGets makes every Get return an error other than a miss.
	FailGets bool

	SetCalls int
	GetCalls int
}

// NewFakeDurable creates an empty fake tier.
func NewFakeDurable() *FakeDurable {
	return &FakeDurable{entries: make(map[string]*cache.Entry)}
}

// Get implements cache.DurableTier.
func (f *FakeDurable) Get(ctx context.Context, key string) (*cache.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.GetCalls++

	if f.FailGets {
		return nil, errFake
	}
	entry, ok := f.entries[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	if entry.IsExpired() {
		delete(f.entries, key)
		return nil, cache.ErrCacheMiss
	}
	copied := *entry
	return &copied, nil
}

// Set implements cache.DurableTier.
func (f *FakeDurable) Set(ctx context.Context, key string, entry *cache.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SetCalls++

	if f.FailSets {
		return errFake
	}
	copied := *entry
	f.entries[key] = &copied
	return nil
}

// Delete implements cache.DurableTier.
func (f *FakeDurable) Delete(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, ok := f.entries[key]
	delete(f.entries, key)
	return ok, nil
}

// Clear implements cache.DurableTier.
func (f *FakeDurable) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.entries = make(map[string]*cache.Entry)
	return nil
}

// ClearExpired implements cache.DurableTier.
func (f *FakeDurable) ClearExpired(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	removed := 0
	for key, entry := range f.entries {
		if entry.IsExpired() {
			delete(f.entries, key)
			removed++
		}
	}
	return removed, nil
}

// EntryCount implements cache.DurableTier.
func (f *FakeDurable) EntryCount(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries), nil
}

type fakeError string

func (e fakeError) Error() string { return string(e) }

const errFake = fakeError("fake durable tier failure")
