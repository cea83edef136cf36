// Package config loads and validates the resilience core's startup
// configuration: memory budget, durable-tier location, TTL policy table,
// and per-source rate limits. Configuration is loaded once at process
// start; hot reload is deliberately unsupported, so a bad document fails
// before any connector runs.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/parcelworth/datacore/pkg/cache"
	"github.com/parcelworth/datacore/pkg/ratelimit"
)

var (
	// ErrInvalidTTLFormat indicates a TTL literal that could not be parsed.
	ErrInvalidTTLFormat = errors.New("invalid TTL format")

	// ErrInvalidConfiguration indicates a structurally invalid document,
	// such as a negative capacity.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// RateLimit is one source's quota registration.
type RateLimit struct {
	MaxRequests   int     `yaml:"max_requests"`
	WindowSeconds int     `yaml:"window_seconds"`
	WarnThreshold float64 `yaml:"warn_threshold"`
}

// Config is the startup configuration document.
type Config struct {
	// MemoryCacheMB is the memory tier's byte budget in megabytes.
	MemoryCacheMB int `yaml:"memory_cache_mb"`

	// RedisAddr locates the durable tier.
	RedisAddr string `yaml:"redis_addr"`

	// DefaultTTL is the fallback TTL literal for unlisted sources.
	// Empty selects the built-in 14-day default.
	DefaultTTL string `yaml:"default_ttl"`

	// Sources maps data-source names to TTL literals
	// (e.g. "365d", "1h", "PT30M").
	Sources map[string]string `yaml:"sources"`

	// RateLimits maps data-source names to their quotas.
	RateLimits map[string]RateLimit `yaml:"rate_limits"`
}

// Load reads and validates the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a configuration document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every field that would otherwise fail at first use.
func (c *Config) Validate() error {
	if c.MemoryCacheMB <= 0 {
		return fmt.Errorf("%w: memory_cache_mb must be positive (got %d)",
			ErrInvalidConfiguration, c.MemoryCacheMB)
	}

	if c.DefaultTTL != "" {
		if _, err := ParseTTL(c.DefaultTTL); err != nil {
			return fmt.Errorf("%w: default_ttl %q: %v", ErrInvalidTTLFormat, c.DefaultTTL, err)
		}
	}

	for sourceName, literal := range c.Sources {
		if _, err := ParseTTL(literal); err != nil {
			return fmt.Errorf("%w: source %q has literal %q: %v",
				ErrInvalidTTLFormat, sourceName, literal, err)
		}
	}

	for sourceName, rl := range c.RateLimits {
		if rl.MaxRequests <= 0 {
			return fmt.Errorf("%w: rate limit for %q: max_requests must be positive (got %d)",
				ErrInvalidConfiguration, sourceName, rl.MaxRequests)
		}
		if rl.WindowSeconds <= 0 {
			return fmt.Errorf("%w: rate limit for %q: window_seconds must be positive (got %d)",
				ErrInvalidConfiguration, sourceName, rl.WindowSeconds)
		}
		if rl.WarnThreshold < 0 || rl.WarnThreshold > 1 {
			return fmt.Errorf("%w: rate limit for %q: warn_threshold must be in (0.0, 1.0] (got %g)",
				ErrInvalidConfiguration, sourceName, rl.WarnThreshold)
		}
	}

	return nil
}

// MemoryCapacityBytes returns the memory tier budget in bytes.
func (c *Config) MemoryCapacityBytes() int64 {
	return int64(c.MemoryCacheMB) << 20
}

// TTLPolicy builds the cache's TTL table from the validated document.
func (c *Config) TTLPolicy() (*cache.TTLPolicy, error) {
	defaultTTL := cache.DefaultTTL
	if c.DefaultTTL != "" {
		parsed, err := ParseTTL(c.DefaultTTL)
		if err != nil {
			return nil, fmt.Errorf("%w: default_ttl %q: %v", ErrInvalidTTLFormat, c.DefaultTTL, err)
		}
		defaultTTL = parsed
	}

	table := make(map[string]time.Duration, len(c.Sources))
	for sourceName, literal := range c.Sources {
		ttl, err := ParseTTL(literal)
		if err != nil {
			return nil, fmt.Errorf("%w: source %q has literal %q: %v",
				ErrInvalidTTLFormat, sourceName, literal, err)
		}
		table[sourceName] = ttl
	}

	return cache.NewTTLPolicy(defaultTTL, table), nil
}

// RegisterLimits registers every configured source quota on limiter.
func (c *Config) RegisterLimits(limiter *ratelimit.Limiter) error {
	for sourceName, rl := range c.RateLimits {
		if err := limiter.Register(sourceName, rl.MaxRequests, rl.WindowSeconds, rl.WarnThreshold); err != nil {
			return fmt.Errorf("register rate limit for %q: %w", sourceName, err)
		}
	}
	return nil
}

// ParseTTL parses a TTL literal. Three grammars are accepted:
//
//   - Go durations: "1h", "30m", "90s"
//   - Day suffix: "365d", "14d"
//   - ISO-8601 durations: "PT30M", "P14D", "P1DT12H"
func ParseTTL(literal string) (time.Duration, error) {
	literal = strings.TrimSpace(literal)
	if literal == "" {
		return 0, fmt.Errorf("empty duration literal")
	}

	if literal[0] == 'P' || literal[0] == 'p' {
		return parseISO8601(literal)
	}

	if strings.HasSuffix(literal, "d") {
		days, err := strconv.ParseFloat(strings.TrimSuffix(literal, "d"), 64)
		if err != nil {
			return 0, fmt.Errorf("bad day count in %q", literal)
		}
		if days <= 0 {
			return 0, fmt.Errorf("duration must be positive: %q", literal)
		}
		return time.Duration(days * 24 * float64(time.Hour)), nil
	}

	d, err := time.ParseDuration(literal)
	if err != nil {
		return 0, fmt.Errorf("bad duration %q", literal)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive: %q", literal)
	}
	return d, nil
}

// parseISO8601 handles the P[nD][T[nH][nM][nS]] subset of ISO-8601
// durations. Year and month designators are rejected: calendar units
// have no fixed length.
func parseISO8601(literal string) (time.Duration, error) {
	rest := literal[1:] // strip P/p
	if rest == "" {
		return 0, fmt.Errorf("bad ISO-8601 duration %q", literal)
	}

	var total time.Duration
	inTime := false
	num := ""

	for _, r := range rest {
		switch {
		case r >= '0' && r <= '9' || r == '.':
			num += string(r)
		case r == 'T' || r == 't':
			if inTime || num != "" {
				return 0, fmt.Errorf("bad ISO-8601 duration %q", literal)
			}
			inTime = true
		default:
			if num == "" {
				return 0, fmt.Errorf("bad ISO-8601 duration %q", literal)
			}
			value, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return 0, fmt.Errorf("bad ISO-8601 duration %q", literal)
			}
			num = ""

			var unit time.Duration
			switch {
			case (r == 'D' || r == 'd') && !inTime:
				unit = 24 * time.Hour
			case (r == 'H' || r == 'h') && inTime:
				unit = time.Hour
			case (r == 'M' || r == 'm') && inTime:
				unit = time.Minute
			case (r == 'S' || r == 's') && inTime:
				unit = time.Second
			default:
				return 0, fmt.Errorf("unsupported designator %q in %q", string(r), literal)
			}
			total += time.Duration(value * float64(unit))
		}
	}

	if num != "" {
		return 0, fmt.Errorf("trailing number in ISO-8601 duration %q", literal)
	}
	if total <= 0 {
		return 0, fmt.Errorf("duration must be positive: %q", literal)
	}
	return total, nil
}
