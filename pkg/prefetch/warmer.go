// Package prefetch provides parallel cache warming across many
// data-source requests. A worker pool pushes each request through the
// connector so warmed keys land in both cache tiers before scoring
// workloads need them.
package prefetch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/parcelworth/datacore/pkg/source"
)

// Config holds warmer configuration.
type Config struct {
	// MaxConcurrency is the maximum number of parallel fetches.
	MaxConcurrency int

	// Timeout bounds each individual fetch.
	Timeout time.Duration
}

// DefaultConfig returns safe defaults for quota-limited upstreams.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 8,
		Timeout:        30 * time.Second,
	}
}

// Failure records one request that could not be warmed.
type Failure struct {
	Request source.Request
	Err     error
}

// Report summarizes a warming run.
type Report struct {
	Warmed   int
	Failed   int
	Failures []Failure
	Duration time.Duration
}

// Warmer pre-populates the cache through a connector.
type Warmer struct {
	connector *source.Connector
	config    Config
}

// NewWarmer creates a warmer over connector.
func NewWarmer(connector *source.Connector, config Config) *Warmer {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 8
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &Warmer{
		connector: connector,
		config:    config,
	}
}

// WarmAll fetches every request through the connector using a worker
// pool, continuing past individual failures. The report lists each
// failed request; partial results are normal when upstream quotas bite.
func (w *Warmer) WarmAll(ctx context.Context, reqs []source.Request) Report {
	start := time.Now()

	log.Info().
		Int("requests", len(reqs)).
		Int("workers", w.config.MaxConcurrency).
		Msg("Starting cache warm")

	queue := make(chan source.Request)
	failures := make(chan Failure, len(reqs))

	go func() {
		defer close(queue)
		for _, req := range reqs {
			select {
			case queue <- req:
			case <-ctx.Done():
				return
			}
		}
	}()

	var warmed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < w.config.MaxConcurrency; i++ {
		wg.Add(1)
		go w.worker(ctx, queue, failures, &warmed, &wg, i)
	}
	wg.Wait()
	close(failures)

	report := Report{
		Warmed:   int(warmed.Load()),
		Duration: time.Since(start),
	}
	for failure := range failures {
		report.Failures = append(report.Failures, failure)
	}
	report.Failed = len(report.Failures)

	log.Info().
		Int("warmed", report.Warmed).
		Int("failed", report.Failed).
		Dur("duration", report.Duration).
		Msg("Cache warm complete")

	return report
}

// worker drains the request queue through the connector.
func (w *Warmer) worker(ctx context.Context, queue <-chan source.Request, failures chan<- Failure, warmed *atomic.Int64, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()

	processed := 0
	for req := range queue {
		select {
		case <-ctx.Done():
			log.Debug().
				Int("worker_id", workerID).
				Int("processed", processed).
				Msg("Warm worker stopping (context cancelled)")
			return
		default:
		}

		fetchCtx, cancel := context.WithTimeout(ctx, w.config.Timeout)
		_, err := w.connector.Fetch(fetchCtx, req)
		cancel()
		processed++

		if err != nil {
			log.Warn().
				Err(err).
				Str("source", req.Source).
				Str("endpoint", req.Endpoint).
				Msg("Warm fetch failed")
			failures <- Failure{Request: req, Err: err}
			continue
		}
		warmed.Add(1)
	}

	if processed > 0 {
		log.Debug().
			Int("worker_id", workerID).
			Int("processed", processed).
			Msg("Warm worker completed")
	}
}
