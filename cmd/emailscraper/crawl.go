package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jlagares/daimatics-n8n/internal/config"
	"github.com/jlagares/daimatics-n8n/internal/crawler"
	"github.com/jlagares/daimatics-n8n/internal/database"
	"github.com/jlagares/daimatics-n8n/internal/log"
	"github.com/jlagares/daimatics-n8n/internal/model"
	"github.com/jlagares/daimatics-n8n/internal/pipeline"
	"github.com/jlagares/daimatics-n8n/internal/report"
	"github.com/jlagares/daimatics-n8n/internal/verify"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [start-url]",
		Short: "Crawl websites and collect email addresses",
		Long: `Crawl visits a website, follows its internal links, and collects the
email addresses published on its pages.

Contact-like pages (contact, about, team, impressum) are visited first
because that is where addresses concentrate. Addresses are found in
mailto links, page text, and common obfuscations like "info [at]
example [dot] com".

This command is also what the serve API runs as a subprocess per scrape
request; --output writes the machine-readable page records the service
parses.

Examples:
  # Crawl one site and print a report
  emailscraper crawl https://example.com

  # Crawl two sites as one run, two levels deep
  emailscraper crawl --max-depth 2 https://example.com https://example.org

  # Restrict the crawl and keep only contact-path pages
  emailscraper crawl --allowed-domains example.com --allow /contact,/about https://example.com

  # Crawl a list of sites concurrently and record every run
  emailscraper crawl --input-file sites.txt --batch-size 5 --save-to-db

  # Verify that found addresses have mail servers behind them
  emailscraper crawl --verify https://example.com

  # Machine-readable page records (the serve API's contract)
  emailscraper crawl --start-urls https://example.com --output pages.json --log-level error

Configuration file (.emailscraper) example:
  sites:
    example.com:
      cookie: "session_id=abc123"
      headers:
        Authorization: "Bearer token"
      depth: 1`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	// Scope flags
	cmd.Flags().String("start-urls", "",
		"Comma-separated seed URLs (alternative to positional arguments)")
	cmd.Flags().StringP("input-file", "i", "",
		"File with one URL per line; each becomes an independent run")
	cmd.Flags().String("allowed-domains", "",
		"Comma-separated hostnames the crawl may visit (default: start URL hosts)")
	cmd.Flags().Bool("include-subdomains", false,
		"Widen the default scope from the start URL host to its registrable domain")
	cmd.Flags().String("allow", "",
		"Comma-separated URL patterns; when set, only matching links are followed")

	// Crawl behavior flags
	cmd.Flags().IntP("max-depth", "d", config.DefaultMaxDepth,
		"Maximum link-following depth (start page is 0)")
	cmd.Flags().IntP("max-pages-per-domain", "p", config.DefaultMaxPagesPerDomain,
		"Maximum pages parsed per hostname")
	cmd.Flags().Bool("contact-bias", config.DefaultContactBias,
		"Visit contact-like pages before other links")
	cmd.Flags().DurationP("request-timeout", "t", config.DefaultRequestTimeout,
		"Per-page download timeout")
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent header sent with requests")
	cmd.Flags().Bool("random-user-agent", false,
		"Send a fresh browser identity per request instead of --user-agent")
	cmd.Flags().String("proxy", "",
		"Route requests through this HTTP or SOCKS5 proxy URL")

	// Batch scanning flags
	cmd.Flags().IntP("batch-size", "b", config.DefaultBatchSize,
		"Number of concurrent runs when using --input-file")

	// Verification flags
	cmd.Flags().Bool("verify", false,
		"Check found address domains for MX records")
	cmd.Flags().Duration("verify-timeout", config.DefaultVerifyTimeout,
		"Timeout for a single MX lookup")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .emailscraper in current or home directory)")

	// Output flags
	cmd.Flags().StringP("output", "o", "",
		"Write the JSON page-record array to this file (the serve API's contract)")
	cmd.Flags().StringP("format", "f", config.DefaultFormat,
		"Report format: json, markdown, or simple")
	cmd.Flags().String("report-file", "",
		"Write the report to this file path (creates directories if needed)")

	// Persistence flags
	cmd.Flags().Bool("save-to-db", false,
		"Record the run in the history database")
	cmd.Flags().String("db-dir", "",
		"History database directory (default: XDG data directory)")

	// Logging
	cmd.Flags().String("log-level", "warn",
		"Log level: debug, info, warn, or error")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	// Build config from flags
	cfg, err := buildCrawlConfig(cmd, args)
	if err != nil {
		return err
	}

	// Validate configuration
	if err := cfg.ValidateCrawl(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	// Set up structured logging
	logLevel, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return err
	}
	logger := setupLogger(getVerboseFlag(cmd), logLevel)
	slog.SetDefault(logger)

	// Set up context with signal handling for graceful shutdown
	ctx, cancel := signalContext(logger)
	defer cancel()

	return runCrawl(ctx, cfg, logger)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildCrawlConfig creates a Config from cobra command flags.
func buildCrawlConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()

	// Get flag values
	var err error

	startURLs, err := cmd.Flags().GetString("start-urls")
	if err != nil {
		return nil, err
	}
	cfg.StartURLs = append(splitCSV(startURLs), args...)

	cfg.InputFile, err = cmd.Flags().GetString("input-file")
	if err != nil {
		return nil, err
	}

	allowedDomains, err := cmd.Flags().GetString("allowed-domains")
	if err != nil {
		return nil, err
	}
	cfg.AllowedDomains = splitCSV(allowedDomains)

	cfg.IncludeSubdomains, err = cmd.Flags().GetBool("include-subdomains")
	if err != nil {
		return nil, err
	}

	allowPatterns, err := cmd.Flags().GetString("allow")
	if err != nil {
		return nil, err
	}
	cfg.AllowPatterns = splitCSV(allowPatterns)

	cfg.MaxDepth, err = cmd.Flags().GetInt("max-depth")
	if err != nil {
		return nil, err
	}

	cfg.MaxPagesPerDomain, err = cmd.Flags().GetInt("max-pages-per-domain")
	if err != nil {
		return nil, err
	}

	cfg.ContactBias, err = cmd.Flags().GetBool("contact-bias")
	if err != nil {
		return nil, err
	}

	cfg.RequestTimeout, err = cmd.Flags().GetDuration("request-timeout")
	if err != nil {
		return nil, err
	}

	cfg.UserAgent, err = cmd.Flags().GetString("user-agent")
	if err != nil {
		return nil, err
	}

	cfg.RandomUserAgent, err = cmd.Flags().GetBool("random-user-agent")
	if err != nil {
		return nil, err
	}

	cfg.ProxyURL, err = cmd.Flags().GetString("proxy")
	if err != nil {
		return nil, err
	}

	cfg.BatchSize, err = cmd.Flags().GetInt("batch-size")
	if err != nil {
		return nil, err
	}

	cfg.Verify, err = cmd.Flags().GetBool("verify")
	if err != nil {
		return nil, err
	}

	cfg.VerifyTimeout, err = cmd.Flags().GetDuration("verify-timeout")
	if err != nil {
		return nil, err
	}

	cfg.ConfigFilePath, err = cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	// Load site-specific configurations from config file
	// If user explicitly specified a config file path, error if not found.
	// If no path specified, silently use empty config if no file found.
	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)

	if configPath != "" {
		cfg.SiteConfigs, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	} else if explicitConfigPath {
		// User explicitly specified a config file that doesn't exist
		return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	} else {
		// Use empty config if no file found and user didn't explicitly specify one
		cfg.SiteConfigs = &config.File{
			Sites: make(map[string]config.SiteConfig),
		}
	}

	cfg.OutputFile, err = cmd.Flags().GetString("output")
	if err != nil {
		return nil, err
	}

	cfg.Format, err = cmd.Flags().GetString("format")
	if err != nil {
		return nil, err
	}

	cfg.ReportFile, err = cmd.Flags().GetString("report-file")
	if err != nil {
		return nil, err
	}

	cfg.SaveToDB, err = cmd.Flags().GetBool("save-to-db")
	if err != nil {
		return nil, err
	}

	cfg.DBDir, err = cmd.Flags().GetString("db-dir")
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// setupLogger creates a structured logger writing to stderr.
// The named level can be debug, info, warn, or error; verbose forces debug.
// Addresses in log output are masked.
func setupLogger(verbose bool, level string) *slog.Logger {
	logLevel := parseLogLevel(level)
	if verbose {
		logLevel = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	handler := slog.NewTextHandler(os.Stderr, opts)
	return slog.New(log.NewMaskHandler(handler))
}

// parseLogLevel maps a level name to a slog level, defaulting to warn.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// signalContext returns a context cancelled by SIGINT or SIGTERM.
func signalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Info("received shutdown signal, cancelling...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// splitCSV splits a comma-separated flag value, trimming whitespace and
// dropping empty entries.
func splitCSV(s string) []string {
	if s == "" {
		return nil
	}

	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// runCrawl executes the crawl.
func runCrawl(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// Validate and normalize every start URL up front
	for i, raw := range cfg.StartURLs {
		target, err := model.NewTarget(raw)
		if err != nil {
			return fmt.Errorf("invalid start URL %q: %w", raw, err)
		}
		cfg.StartURLs[i] = target.String()
	}

	logger.Info("starting crawl",
		"startURLs", cfg.StartURLs,
		"maxDepth", cfg.MaxDepth,
		"contactBias", cfg.ContactBias,
		"saveToDB", cfg.SaveToDB,
	)

	// Open database connection if saving is enabled
	var db *database.ScrapeDB
	if cfg.SaveToDB {
		dbDir := cfg.DBDir
		if dbDir == "" {
			dbDir = config.XDGDataDir()
		}
		var err error
		db, err = database.Open(dbDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Info("database opened", "dir", dbDir)
	}

	// A URL list file switches to batch mode: every URL in it (and any
	// start URLs given directly) becomes its own independent run. Without
	// it, all start URLs seed one crawl.
	if cfg.InputFile != "" {
		fileURLs, err := readURLFile(cfg.InputFile)
		if err != nil {
			return err
		}
		for i, raw := range fileURLs {
			target, err := model.NewTarget(raw)
			if err != nil {
				return fmt.Errorf("invalid URL %q in %s: %w", raw, cfg.InputFile, err)
			}
			fileURLs[i] = target.String()
		}

		urls := make([]string, 0, len(cfg.StartURLs)+len(fileURLs))
		urls = append(urls, cfg.StartURLs...)
		urls = append(urls, fileURLs...)
		if len(urls) == 0 {
			return fmt.Errorf("no URLs found in %s", cfg.InputFile)
		}
		return runBatchCrawl(ctx, cfg, urls, db, logger)
	}

	return runSingleCrawl(ctx, cfg, db, logger)
}

// runSingleCrawl runs one crawl seeded with all start URLs.
func runSingleCrawl(ctx context.Context, cfg *config.Config, db *database.ScrapeDB, logger *slog.Logger) error {
	p := buildPipeline(cfg, db, logger)
	crawlReport := model.NewCrawlReport(cfg.StartURLs)

	// Stay quiet on the subprocess path: the serve runner reads the
	// output file, not stdout.
	announce := cfg.OutputFile == ""
	if announce {
		color.Cyan("Crawling %s...", strings.Join(cfg.StartURLs, ", "))
	}
	startTime := time.Now()

	if err := p.Execute(ctx, crawlReport); err != nil {
		logger.Error("crawl failed", "url", crawlReport.StartURL(), "error", err)
		return err
	}
	if crawlReport.FinishedAt.IsZero() {
		crawlReport.Finish()
	}

	elapsed := time.Since(startTime)
	if announce {
		color.Green("Crawl completed in %s: %d pages with addresses, %d unique",
			elapsed.Round(time.Millisecond), len(crawlReport.Pages), len(crawlReport.UniqueEmails))
		fmt.Println()
	}

	return outputReport(cfg, crawlReport)
}

// runBatchCrawl crawls URLs concurrently, one independent run per URL.
func runBatchCrawl(ctx context.Context, cfg *config.Config, urls []string, db *database.ScrapeDB, logger *slog.Logger) error {
	fmt.Printf("Starting batch crawl of %d URLs (concurrency: %d)...\n\n",
		len(urls), cfg.BatchSize)

	startTime := time.Now()

	// Create batch processor with pipeline factory
	bp := pipeline.NewBatchProcessor(
		func() *pipeline.Pipeline {
			return buildPipeline(cfg, db, logger)
		},
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithBatchLogger(logger),
	)

	// Process with callback for streaming output
	var mu sync.Mutex
	err := bp.ProcessBatchWithCallback(ctx, urls, func(crawlReport *model.CrawlReport, index int) {
		mu.Lock()
		defer mu.Unlock()

		if crawlReport.Succeeded() {
			color.Green("[%d/%d] %s: %d addresses",
				index+1, len(urls), crawlReport.StartURL(), len(crawlReport.UniqueEmails))
		} else {
			reason := crawlReport.ErrorMessage
			if reason == "" && crawlReport.TimedOut {
				reason = "timed out"
			}
			color.Red("[%d/%d] %s: %s", index+1, len(urls), crawlReport.StartURL(), reason)
		}

		if err := outputReport(cfg, crawlReport); err != nil {
			logger.Error("report failed", "url", crawlReport.StartURL(), "error", err)
		}
	})

	elapsed := time.Since(startTime)
	fmt.Printf("\nBatch crawl completed in %s\n", elapsed.Round(time.Millisecond))

	return err
}

// buildSpider creates a spider from the crawl configuration.
func buildSpider(cfg *config.Config, logger *slog.Logger) *crawler.Spider {
	opts := []crawler.SpiderOption{
		crawler.WithMaxDepth(cfg.MaxDepth),
		crawler.WithMaxPagesPerDomain(cfg.MaxPagesPerDomain),
		crawler.WithContactBias(cfg.ContactBias),
		crawler.WithIncludeSubdomains(cfg.IncludeSubdomains),
		crawler.WithRequestTimeout(cfg.RequestTimeout),
		crawler.WithLogger(logger),
	}

	if len(cfg.AllowedDomains) > 0 {
		opts = append(opts, crawler.WithAllowedDomains(cfg.AllowedDomains))
	}
	if len(cfg.AllowPatterns) > 0 {
		opts = append(opts, crawler.WithAllowPatterns(cfg.AllowPatterns))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, crawler.WithUserAgent(cfg.UserAgent))
	}
	if cfg.RandomUserAgent {
		opts = append(opts, crawler.WithRandomUserAgent(true))
	}
	if cfg.ProxyURL != "" {
		opts = append(opts, crawler.WithProxies(cfg.ProxyURL))
	}
	if cfg.SiteConfigs != nil {
		opts = append(opts, crawler.WithSiteConfigs(cfg.SiteConfigs))
	}

	return crawler.NewSpider(opts...)
}

// buildPipeline assembles the crawl pipeline with optional verification
// and persistence steps.
func buildPipeline(cfg *config.Config, db *database.ScrapeDB, logger *slog.Logger) *pipeline.Pipeline {
	pipelineOpts := []pipeline.Option{
		pipeline.WithLogger(logger),
	}

	configOpts := []pipeline.DefaultPipelineOption{
		pipeline.WithPipelineStepLogger(logger),
	}

	if cfg.Verify {
		v := verify.NewVerifier(verify.WithTimeout(cfg.VerifyTimeout))
		configOpts = append(configOpts, pipeline.WithPipelineVerifier(v))
	}
	if db != nil {
		configOpts = append(configOpts, pipeline.WithPipelineDB(db))
	}

	return pipeline.DefaultPipeline(buildSpider(cfg, logger), pipelineOpts, configOpts...)
}

// readURLFile reads one URL per line, skipping blanks and # comments.
func readURLFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open URL list: %w", err)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read URL list: %w", err)
	}

	return urls, nil
}

// outputReport writes the crawl results in the requested formats.
//
// The --output file is the contract with the serve runner: a JSON array
// of page records, nothing else. The report goes to --report-file when
// set, otherwise to stdout unless --output already covers the caller.
func outputReport(cfg *config.Config, crawlReport *model.CrawlReport) error {
	// Generate the summary if the aggregation step did not run
	if crawlReport.Summary == nil {
		crawlReport.Summary = model.NewCrawlSummary(crawlReport)
	}

	if cfg.OutputFile != "" {
		if err := writePageRecords(cfg.OutputFile, crawlReport.Pages); err != nil {
			return err
		}
	}

	// Determine report destination
	var output *os.File
	switch {
	case cfg.ReportFile != "":
		// Create directories if they don't exist
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		// Reports contain harvested addresses, keep them owner-only (0600)
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		defer f.Close()
		output = f
	case cfg.OutputFile != "":
		// Page records written, nobody asked for a report
		return nil
	default:
		output = os.Stdout
	}

	switch cfg.Format {
	case config.FormatJSON:
		writer := report.NewFullJSONWriter(output, getVersion(), report.WithPrettyPrint())
		_, err := writer.Write(crawlReport)
		return err
	case config.FormatMarkdown:
		writer := report.NewMarkdownWriter(output)
		_, err := writer.Write(crawlReport)
		return err
	default:
		writer := report.NewSimpleWriter(output)
		_, err := writer.Write(crawlReport)
		return err
	}
}

// writePageRecords writes the page-record array the serve runner parses.
func writePageRecords(path string, pages []model.PageResult) error {
	if pages == nil {
		pages = []model.PageResult{}
	}

	data, err := json.MarshalIndent(pages, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode page records: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}

	return nil
}
