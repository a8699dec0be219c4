package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values. Crawl-side defaults mirror the spider's
// throttling profile; serve-side defaults mirror the API's documented
// behavior (five-minute crawl ceiling, one scrape at a time).
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "emailscraper"

	// DefaultHost is the address the HTTP API binds to.
	DefaultHost = "0.0.0.0"

	// DefaultPort is the HTTP API port.
	DefaultPort = 8000

	// DefaultScrapeTimeout is the ceiling for one crawler subprocess run.
	// Crawls still running when it expires are killed and reported as
	// failed.
	DefaultScrapeTimeout = 5 * time.Minute

	// DefaultHealthProbeTimeout bounds the crawler-binary version probe
	// performed by the health endpoint.
	DefaultHealthProbeTimeout = 10 * time.Second

	// DefaultMaxConcurrentScrapes is the number of crawler subprocesses
	// allowed at once. Additional requests wait their turn.
	DefaultMaxConcurrentScrapes = 1

	// DefaultMaxDepth limits link-following distance from the start page.
	// The start page itself is depth 0.
	DefaultMaxDepth = 2

	// DefaultMaxPagesPerDomain stops following links into a hostname once
	// that many of its pages have been parsed. The HTTP API applies its
	// own, lower request default.
	DefaultMaxPagesPerDomain = 200

	// DefaultContactBias schedules likely contact pages before other
	// links, since that is where addresses concentrate.
	DefaultContactBias = true

	// DefaultRequestTimeout is the per-page download timeout.
	DefaultRequestTimeout = 10 * time.Second

	// DefaultParallelism is the number of concurrent page fetches.
	DefaultParallelism = 8

	// DefaultDelay is the base politeness delay between requests to the
	// same domain; DefaultRandomDelay is added on top at random.
	DefaultDelay       = 100 * time.Millisecond
	DefaultRandomDelay = 200 * time.Millisecond

	// DefaultRetryTimes is how often a failed page fetch is retried.
	DefaultRetryTimes = 1

	// DefaultUserAgent is the browser identity sent with requests. Some
	// sites serve contact pages only to browser-looking clients.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// DefaultFormat is the report format for standalone crawls.
	DefaultFormat = "simple"

	// DefaultBatchSize is the number of concurrent crawls when processing
	// a URL list file.
	DefaultBatchSize = 10

	// DefaultVerifyTimeout bounds a single MX lookup during optional
	// email-domain verification.
	DefaultVerifyTimeout = 5 * time.Second
)

// Report formats accepted by --format.
const (
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
	FormatSimple   = "simple"
)

// Config holds all options for both the HTTP service and the crawl CLI.
// A single flat struct keeps flag wiring simple; only the fields relevant
// to the running command are populated.
type Config struct {
	// === HTTP service ===

	// Host and Port form the API listen address.
	Host string
	Port int

	// CrawlerBin is the crawler binary the scrape handler spawns.
	// Empty means the running executable itself (its crawl subcommand).
	CrawlerBin string

	// OutputDir is where per-run crawler output files are written.
	// Empty means the XDG cache directory.
	OutputDir string

	// ScrapeTimeout is the subprocess ceiling per scrape request.
	ScrapeTimeout time.Duration

	// HealthProbeTimeout bounds the health endpoint's crawler probe.
	HealthProbeTimeout time.Duration

	// RateLimit is the allowed scrape requests per second; 0 disables
	// rate limiting.
	RateLimit float64

	// MaxConcurrentScrapes caps simultaneous crawler subprocesses.
	MaxConcurrentScrapes int

	// === Crawl ===

	// StartURLs are the seed URLs.
	StartURLs []string

	// AllowedDomains restricts the crawl to matching hostnames (suffix
	// match). Empty means the start URL hostnames.
	AllowedDomains []string

	// AllowPatterns are regex patterns marking links to prioritize when
	// ContactBias is on.
	AllowPatterns []string

	// MaxDepth limits link-following distance; start page is depth 0.
	MaxDepth int

	// MaxPagesPerDomain caps parsed pages per hostname.
	MaxPagesPerDomain int

	// ContactBias schedules contact-like links first.
	ContactBias bool

	// IncludeSubdomains widens auto-inferred scope from the start URL's
	// hostname to its registrable domain.
	IncludeSubdomains bool

	// UserAgent overrides the request User-Agent. RandomUserAgent picks
	// a fresh browser identity per request instead.
	UserAgent       string
	RandomUserAgent bool

	// ProxyURL routes crawler traffic through an HTTP or SOCKS5 proxy.
	ProxyURL string

	// RequestTimeout is the per-page download timeout.
	RequestTimeout time.Duration

	// OutputFile, when set, makes the crawl write the machine-readable
	// page-record array there instead of printing a report.
	OutputFile string

	// Format selects the report format (json, markdown, simple).
	Format string

	// ReportFile, when set, additionally writes the report to this path.
	ReportFile string

	// InputFile is a file of URLs (one per line) for batch crawling.
	InputFile string

	// BatchSize is the number of concurrent crawls in batch mode.
	BatchSize int

	// Verify enables MX verification of discovered email domains.
	Verify bool

	// VerifyTimeout bounds a single MX lookup.
	VerifyTimeout time.Duration

	// ConfigFilePath points at a site-override file. Empty triggers the
	// .emailscraper search in the working and home directories.
	ConfigFilePath string

	// SiteConfigs holds per-host overrides loaded from the config file.
	SiteConfigs *File

	// === Shared ===

	// DBDir is the directory for the history database. Empty means the
	// XDG data directory.
	DBDir string

	// SaveToDB persists each run to the history database.
	SaveToDB bool

	// Verbose enables slog.LevelDebug output.
	Verbose bool
}

// NewConfig creates a Config with default values; commands override the
// fields their flags cover.
func NewConfig() *Config {
	return &Config{
		Host:                 DefaultHost,
		Port:                 DefaultPort,
		ScrapeTimeout:        DefaultScrapeTimeout,
		HealthProbeTimeout:   DefaultHealthProbeTimeout,
		MaxConcurrentScrapes: DefaultMaxConcurrentScrapes,
		MaxDepth:             DefaultMaxDepth,
		MaxPagesPerDomain:    DefaultMaxPagesPerDomain,
		ContactBias:          DefaultContactBias,
		UserAgent:            DefaultUserAgent,
		RequestTimeout:       DefaultRequestTimeout,
		Format:               DefaultFormat,
		BatchSize:            DefaultBatchSize,
		VerifyTimeout:        DefaultVerifyTimeout,
	}
}

// XDGDataDir returns the XDG data directory for the scraper.
// On Linux: ~/.local/share/emailscraper
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for the scraper.
// On Linux: ~/.config/emailscraper
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for the scraper.
// On Linux: ~/.cache/emailscraper
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// validFormats lists the accepted report formats.
var validFormats = map[string]bool{
	FormatJSON:     true,
	FormatMarkdown: true,
	FormatSimple:   true,
}

// ValidateCrawl checks the crawl-side configuration. It returns the first
// problem found; fixing one error often makes the rest irrelevant.
func (c *Config) ValidateCrawl() error {
	if len(c.StartURLs) == 0 && c.InputFile == "" {
		return ErrNoStartURL
	}
	if c.MaxDepth < 0 {
		return ErrInvalidDepth
	}
	if c.MaxPagesPerDomain <= 0 {
		return ErrInvalidPageLimit
	}
	if c.RequestTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if !validFormats[c.Format] {
		return ErrUnknownFormat
	}
	return nil
}

// ValidateServe checks the HTTP-service configuration.
func (c *Config) ValidateServe() error {
	if c.Port < 1 || c.Port > 65535 {
		return ErrInvalidPort
	}
	if c.ScrapeTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.MaxConcurrentScrapes < 1 {
		return ErrInvalidConcurrency
	}
	if c.RateLimit < 0 {
		return ErrInvalidRateLimit
	}
	return nil
}
