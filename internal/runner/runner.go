package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jlagares/daimatics-n8n/internal/config"
	"github.com/jlagares/daimatics-n8n/internal/model"
)

// maxStderrLen caps how much captured stderr is carried into a failure
// message, so API responses stay bounded even when the crawler is noisy.
const maxStderrLen = 500

// Runner spawns the crawler binary for one scrape request at a time and
// turns its output file into a ScrapeResponse.
type Runner struct {
	crawlerBin   string
	outputDir    string
	timeout      time.Duration
	probeTimeout time.Duration
	saveToDB     bool
	dbDir        string
	logger       *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithOutputDir sets the directory where per-run crawler output files are
// written. Default is the XDG cache directory.
func WithOutputDir(dir string) Option {
	return func(r *Runner) {
		if dir != "" {
			r.outputDir = dir
		}
	}
}

// WithTimeout sets the ceiling for one crawler run. A crawl still running
// when it expires is killed and reported as failed.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithProbeTimeout bounds the version probe used by health checks.
func WithProbeTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.probeTimeout = d
		}
	}
}

// WithSaveToDB makes each spawned crawl persist its run to the history
// database. The flag is passed through to the crawler, which owns the
// database; the service process never opens it.
func WithSaveToDB(enabled bool) Option {
	return func(r *Runner) {
		r.saveToDB = enabled
	}
}

// WithDBDir sets the history database directory passed to the crawler
// when WithSaveToDB is enabled.
func WithDBDir(dir string) Option {
	return func(r *Runner) {
		r.dbDir = dir
	}
}

// WithLogger sets the logger for subprocess lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a Runner that spawns crawlerBin. The binary must implement
// the crawl and version subcommands; normally it is the running
// executable itself.
func New(crawlerBin string, opts ...Option) *Runner {
	r := &Runner{
		crawlerBin:   crawlerBin,
		outputDir:    config.XDGCacheDir(),
		timeout:      config.DefaultScrapeTimeout,
		probeTimeout: config.DefaultHealthProbeTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CrawlerBin returns the path of the crawler binary this runner spawns.
func (r *Runner) CrawlerBin() string {
	return r.crawlerBin
}

// OutputDir returns the directory crawler output files are written to.
func (r *Runner) OutputDir() string {
	return r.outputDir
}

// Timeout returns the per-run subprocess ceiling.
func (r *Runner) Timeout() time.Duration {
	return r.timeout
}

// Run executes one scrape request to completion. It never returns an
// error: crawl failures come back as a response with Success=false, since
// the API reports them with HTTP 200.
//
// The crawler is killed when ctx is cancelled or the configured timeout
// expires, whichever comes first.
func (r *Runner) Run(ctx context.Context, req *model.ScrapeRequest) *model.ScrapeResponse {
	target, err := req.Target()
	if err != nil {
		return model.NewScrapeFailure(req.URL, err.Error())
	}
	req.Normalize()

	if err := os.MkdirAll(r.outputDir, 0750); err != nil {
		return model.NewScrapeFailure(req.URL, fmt.Sprintf("create output directory: %v", err))
	}
	outputPath := r.outputPath()

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, r.crawlerBin, r.buildArgs(req, outputPath)...) //nolint:gosec // Binary path comes from operator configuration
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr
	// A killed crawler can leave a child process holding the stderr pipe
	// open; stop waiting on it shortly after the kill.
	cmd.WaitDelay = 5 * time.Second

	r.logger.Info("starting crawler",
		"url", target.String(),
		"max_depth", *req.MaxDepth,
		"max_pages_per_domain", *req.MaxPagesPerDomain,
		"output", outputPath)

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if ctxErr := runCtx.Err(); ctxErr != nil {
		_ = os.Remove(outputPath)
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			r.logger.Warn("crawler timed out", "url", target.String(), "timeout", r.timeout)
			return model.NewScrapeFailure(req.URL, fmt.Sprintf("scrape timed out after %s", r.timeout))
		}
		return model.NewScrapeFailure(req.URL, "scrape cancelled")
	}
	if runErr != nil {
		_ = os.Remove(outputPath)
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			r.logger.Warn("crawler failed",
				"url", target.String(),
				"exit_code", exitErr.ExitCode(),
				"stderr", stderrTail(stderr.String()))
			return model.NewScrapeFailure(req.URL,
				fmt.Sprintf("crawler exited with code %d: %s", exitErr.ExitCode(), stderrTail(stderr.String())))
		}
		return model.NewScrapeFailure(req.URL, fmt.Sprintf("start crawler: %v", runErr))
	}

	data, err := os.ReadFile(outputPath) //nolint:gosec // Path is runner-generated, not user input
	if err != nil {
		if os.IsNotExist(err) {
			return model.NewScrapeFailure(req.URL, "output file was not created by the crawler")
		}
		return model.NewScrapeFailure(req.URL, fmt.Sprintf("read crawler output: %v", err))
	}
	// Best effort: the contents are already in memory, a leftover file
	// only wastes cache space.
	_ = os.Remove(outputPath)

	var pages []model.PageResult
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &pages); err != nil {
			return model.NewScrapeFailure(req.URL, fmt.Sprintf("parse crawler output: %v", err))
		}
	}

	resp := model.NewScrapeResponse(req.URL, pages)
	r.logger.Info("crawler finished",
		"url", target.String(),
		"pages_scraped", resp.PagesScraped,
		"unique_emails", resp.TotalUniqueEmails,
		"duration", elapsed.Round(time.Millisecond))
	return resp
}

// buildArgs maps a normalized request onto the crawl subcommand's flags.
func (r *Runner) buildArgs(req *model.ScrapeRequest, outputPath string) []string {
	args := []string{
		"crawl",
		"--start-urls", req.URL,
		"--max-depth", strconv.Itoa(*req.MaxDepth),
		"--max-pages-per-domain", strconv.Itoa(*req.MaxPagesPerDomain),
		fmt.Sprintf("--contact-bias=%t", *req.ContactBias),
	}
	if req.AllowedDomains != "" {
		args = append(args, "--allowed-domains", req.AllowedDomains)
	}
	if req.AllowPatterns != "" {
		args = append(args, "--allow", req.AllowPatterns)
	}
	args = append(args, "--output", outputPath, "--log-level", "error")
	if r.saveToDB {
		args = append(args, "--save-to-db")
		if r.dbDir != "" {
			args = append(args, "--db-dir", r.dbDir)
		}
	}
	return args
}

// outputPath returns a fresh per-run output file path. Unique names keep
// concurrent scrapes from clobbering each other's results.
func (r *Runner) outputPath() string {
	id := uuid.New()
	return filepath.Join(r.outputDir, fmt.Sprintf("emails_%x.json", id[:]))
}

// ProbeResult describes whether the crawler binary responds to a version
// probe. Health checks surface it to operators.
type ProbeResult struct {
	// Available is true when the probe ran and exited cleanly.
	Available bool

	// Version is the first line the binary printed, e.g.
	// "emailscraper version 0.2.0".
	Version string

	// TimedOut is true when the probe itself did not finish in time.
	// The binary may still work; health reports this as a warning
	// rather than a failure.
	TimedOut bool

	// Error describes why the probe failed.
	Error string
}

// Probe runs the crawler binary's version subcommand to confirm the
// binary exists and executes.
func (r *Runner) Probe(ctx context.Context) ProbeResult {
	probeCtx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()

	out, err := exec.CommandContext(probeCtx, r.crawlerBin, "version").Output() //nolint:gosec // Binary path comes from operator configuration
	if err != nil {
		if errors.Is(probeCtx.Err(), context.DeadlineExceeded) {
			return ProbeResult{
				TimedOut: true,
				Error:    fmt.Sprintf("version probe timed out after %s", r.probeTimeout),
			}
		}
		return ProbeResult{Error: fmt.Sprintf("crawler binary not available: %v", err)}
	}

	version := strings.TrimSpace(string(out))
	if i := strings.IndexByte(version, '\n'); i >= 0 {
		version = strings.TrimSpace(version[:i])
	}
	return ProbeResult{Available: true, Version: version}
}

// stderrTail returns the trailing portion of captured stderr, trimmed and
// capped at maxStderrLen. The tail is kept rather than the head because
// that is where the actual error usually is.
func stderrTail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderrLen {
		s = "..." + s[len(s)-maxStderrLen:]
	}
	return s
}
