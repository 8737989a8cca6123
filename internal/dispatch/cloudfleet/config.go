package cloudfleet

import (
	"errors"
	"os"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the production CloudFleet REST endpoint.
	DefaultBaseURL = "https://fleet.cloudfleet.com/api/v1"

	// PageSize is CloudFleet's documented per-page maximum.
	PageSize = 50

	// DefaultRequestDelay keeps us under CloudFleet's 30 req/min limit.
	DefaultRequestDelay = 2 * time.Second

	// MaxDateRange is the longest span CloudFleet accepts on any travel
	// date-pair filter.
	MaxDateRange = 62 * 24 * time.Hour
)

var (
	// ErrMissingConfig is returned on first use when the base URL or token
	// is absent.
	ErrMissingConfig = errors.New("cloudfleet: CLOUDFLEET_API_URL or CLOUDFLEET_API_TOKEN not set")

	// ErrNotFound maps upstream 404s on single-resource fetches.
	ErrNotFound = errors.New("cloudfleet: not found")

	// ErrRateLimited is returned once the 429 retry ceiling is exceeded.
	ErrRateLimited = errors.New("cloudfleet: rate limited")

	// ErrNoFilter rejects travel queries with no filter at all; CloudFleet
	// mandates at least one.
	ErrNoFilter = errors.New("cloudfleet: travels query requires at least one filter")

	// ErrDateSpan rejects travel date ranges longer than MaxDateRange.
	ErrDateSpan = errors.New("cloudfleet: date range exceeds the 62-day maximum")
)

// Config holds connection settings for the CloudFleet API.
type Config struct {
	BaseURL      string
	Token        string
	Timeout      time.Duration
	RequestDelay time.Duration
	MaxRetries   int
	CacheTTL     time.Duration
}

// LoadFromEnv loads CloudFleet configuration from environment variables.
//
// Environment variables:
//   - CLOUDFLEET_API_URL: base URL (default: production endpoint)
//   - CLOUDFLEET_API_TOKEN: bearer token (required)
func LoadFromEnv() Config {
	base := strings.TrimRight(strings.TrimSpace(os.Getenv("CLOUDFLEET_API_URL")), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	return Config{
		BaseURL:      base,
		Token:        strings.TrimSpace(os.Getenv("CLOUDFLEET_API_TOKEN")),
		Timeout:      10 * time.Second,
		RequestDelay: DefaultRequestDelay,
		MaxRetries:   5,
		CacheTTL:     5 * time.Minute,
	}
}

// Validate checks that the client can reach the upstream at all.
func (c Config) Validate() error {
	if c.BaseURL == "" || c.Token == "" {
		return ErrMissingConfig
	}
	return nil
}
