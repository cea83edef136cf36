// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	var output io.Writer = cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// NewSourceLogger creates a logger scoped to one component and data source.
func NewSourceLogger(component, sourceName string) zerolog.Logger {
	return log.With().
		Str("component", component).
		Str("source", sourceName).
		Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Cache operations (hit/miss, key, TTL, evictions)
//   - Rate limit waits and window state
//   - Retry backoff scheduling
//
// Info: Normal operation events
//   - Successful fetches after retry
//   - Cache warm runs starting/finishing
//   - Rate limit registrations
//
// Warn: Warning conditions that don't prevent operation
//   - Rate limit usage above warn threshold
//   - Fail-open permits for unregistered sources
//   - Durable-tier failures (memory tier still serves)
//   - Retry attempts
//
// Error: Error conditions requiring attention
//   - Fetches failed after exhausting retries
//   - Rate limit waits exceeding their bound
//   - Configuration errors at startup
//
// Context Fields:
//   - component: package emitting the event
//   - source: data-source name (census_acs, bls_laus, ...)
//   - request_id: per-fetch correlation ID
//   - key: cache key
//   - ttl: cache entry TTL
//   - attempt: retry attempt index
//   - backoff: backoff duration before next attempt
//   - waited: time spent waiting for a rate-limit slot
//   - usage_pct: window usage percentage
