package config

import "errors"

// Configuration validation errors. Package-level sentinels so callers can
// use errors.Is() while still getting readable messages.
var (
	// ErrNoStartURL is returned when neither a start URL nor an input
	// file of URLs was provided.
	ErrNoStartURL = errors.New("no start URL specified: pass --start-urls or --input-file")

	// ErrInvalidDepth is returned when the crawl depth is negative.
	// Depth 0 means scrape only the start page.
	ErrInvalidDepth = errors.New("invalid max depth: must be non-negative")

	// ErrInvalidPageLimit is returned when the per-domain page cap is
	// not positive.
	ErrInvalidPageLimit = errors.New("invalid max pages per domain: must be positive")

	// ErrInvalidTimeout is returned when a timeout is zero or negative.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrUnknownFormat is returned for report formats other than
	// json, markdown, and simple.
	ErrUnknownFormat = errors.New("unknown report format: use json, markdown, or simple")

	// ErrInvalidPort is returned when the listen port is outside 1-65535.
	ErrInvalidPort = errors.New("invalid port: must be between 1 and 65535")

	// ErrInvalidConcurrency is returned when the concurrent-scrape cap
	// is less than one.
	ErrInvalidConcurrency = errors.New("invalid max concurrent scrapes: must be at least 1")

	// ErrInvalidRateLimit is returned when the rate limit is negative.
	// Zero disables rate limiting.
	ErrInvalidRateLimit = errors.New("invalid rate limit: must be non-negative")
)
