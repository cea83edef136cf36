// Package source provides the connector that every external government
// data source is fetched through: rate limiting, retry with backoff, and
// tiered caching composed around a DataSource implementation.
//
// DataSource has two variants selected by construction: HTTPSource talks
// to the live API, StaticSource serves fixed responses for tests. Code
// under test never threads mock parameters through call sites; it is
// simply built with a StaticSource.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Request identifies one data-source call.
type Request struct {
	// Source is the data-source name used for rate limiting and TTL
	// resolution (e.g. "census_acs").
	Source string

	// Endpoint is the path within the source's API.
	Endpoint string

	// Params are the query parameters.
	Params map[string]string
}

// Response is a raw upstream payload.
type Response struct {
	StatusCode int
	Body       []byte
}

// DataSource fetches raw responses from an external source.
type DataSource interface {
	Fetch(ctx context.Context, req Request) (*Response, error)
}

// HTTPSource is the live DataSource implementation.
type HTTPSource struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	smoother   *rate.Limiter
}

// HTTPOption customizes an HTTPSource.
type HTTPOption func(*HTTPSource)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(s *HTTPSource) {
		s.httpClient = client
	}
}

// WithRequestsPerSecond adds a token-bucket smoother in front of the
// transport. This only spaces requests out; the shared sliding-window
// limiter remains the quota authority.
func WithRequestsPerSecond(rps float64, burst int) HTTPOption {
	return func(s *HTTPSource) {
		s.smoother = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewHTTPSource creates a live source rooted at baseURL.
func NewHTTPSource(baseURL, userAgent string, opts ...HTTPOption) (*HTTPSource, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	s := &HTTPSource{
		baseURL:   baseURL,
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Fetch performs the HTTP request and classifies failures.
// Status codes >= 400 return a *FetchError; 4xx are permanent, 5xx/429
// and transport errors are transient.
func (s *HTTPSource) Fetch(ctx context.Context, req Request) (*Response, error) {
	if s.smoother != nil {
		if err := s.smoother.Wait(ctx); err != nil {
			return nil, fmt.Errorf("request smoothing wait: %w", err)
		}
	}

	u, err := url.Parse(s.baseURL + "/" + req.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("build request URL: %w", err)
	}
	q := u.Query()
	for name, value := range req.Params {
		q.Set(name, value)
	}
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if s.userAgent != "" {
		httpReq.Header.Set("User-Agent", s.userAgent)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, &FetchError{
			Class:   ClassNetwork,
			Message: "request failed",
			Err:     err,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{
			StatusCode: resp.StatusCode,
			Class:      ClassNetwork,
			Message:    "read response body",
			Err:        err,
		}
	}

	if resp.StatusCode >= 400 {
		return nil, &FetchError{
			StatusCode: resp.StatusCode,
			Class:      classify(resp.StatusCode, nil),
			Message:    resp.Status,
		}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       body,
	}, nil
}

// StaticSource is the fixed-response DataSource implementation for tests.
// Responses and errors are keyed by endpoint; a per-endpoint queue lets a
// test script failures before a success.
type StaticSource struct {
	mu        sync.Mutex
	sticky    map[string]*Response
	queued    map[string][]queuedResult
	fetchedBy map[string]int
}

type queuedResult struct {
	resp *Response
	err  error
}

// NewStaticSource creates an empty static source.
func NewStaticSource() *StaticSource {
	return &StaticSource{
		sticky:    make(map[string]*Response),
		queued:    make(map[string][]queuedResult),
		fetchedBy: make(map[string]int),
	}
}

// SetResponse installs a sticky response for endpoint, returned on every
// fetch once any queued results are drained.
func (s *StaticSource) SetResponse(endpoint string, statusCode int, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sticky[endpoint] = &Response{StatusCode: statusCode, Body: body}
}

// QueueError enqueues a one-shot error for endpoint, consumed before the
// sticky response.
func (s *StaticSource) QueueError(endpoint string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queued[endpoint] = append(s.queued[endpoint], queuedResult{err: err})
}

// QueueResponse enqueues a one-shot response for endpoint.
func (s *StaticSource) QueueResponse(endpoint string, statusCode int, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queued[endpoint] = append(s.queued[endpoint], queuedResult{
		resp: &Response{StatusCode: statusCode, Body: body},
	})
}

// FetchCount returns how many times endpoint has been fetched.
func (s *StaticSource) FetchCount(endpoint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetchedBy[endpoint]
}

// Fetch serves the queued then sticky result for req.Endpoint.
// An endpoint with nothing configured behaves as a permanent 404.
func (s *StaticSource) Fetch(_ context.Context, req Request) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fetchedBy[req.Endpoint]++

	if queue := s.queued[req.Endpoint]; len(queue) > 0 {
		next := queue[0]
		s.queued[req.Endpoint] = queue[1:]
		if next.err != nil {
			return nil, next.err
		}
		return next.resp, nil
	}

	if resp, ok := s.sticky[req.Endpoint]; ok {
		return resp, nil
	}

	return nil, &FetchError{
		StatusCode: http.StatusNotFound,
		Class:      ClassClient,
		Message:    fmt.Sprintf("no response configured for %q", req.Endpoint),
	}
}
