package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jlagares/daimatics-n8n/internal/config"
	"github.com/jlagares/daimatics-n8n/internal/runner"
	"github.com/jlagares/daimatics-n8n/internal/server"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the email scraping HTTP API",
		Long: `Serve starts an HTTP API that collects email addresses on request.

Each POST /scrape request runs the crawler as a subprocess (this binary's
own crawl subcommand unless --crawler-bin points elsewhere), waits for it
to finish, and returns the addresses it found. GET /health reports whether
the crawler binary is runnable.

Endpoints:
  POST /scrape   {"url": "https://example.com", "max_depth": 2, ...}
  GET  /health   service and crawler status
  GET  /         service description

Examples:
  # Listen on the default address (0.0.0.0:8000)
  emailscraper serve

  # Listen on a specific port with three concurrent scrapes
  emailscraper serve --port 9000 --max-concurrent 3

  # Allow longer crawls and persist every run
  emailscraper serve --timeout 15m --save-to-db`,
		Args: cobra.NoArgs,
		RunE: runServeCmd,
	}

	cmd.Flags().String("host", config.DefaultHost,
		"Address to bind the HTTP listener to")
	cmd.Flags().IntP("port", "p", config.DefaultPort,
		"Port to listen on")
	cmd.Flags().String("crawler-bin", "",
		"Crawler binary to spawn per scrape (default: this executable)")
	cmd.Flags().String("output-dir", "",
		"Directory for per-run crawler output files (default: XDG cache directory)")
	cmd.Flags().DurationP("timeout", "t", config.DefaultScrapeTimeout,
		"Ceiling for one crawler subprocess run")
	cmd.Flags().Duration("probe-timeout", config.DefaultHealthProbeTimeout,
		"Timeout for the health endpoint's crawler probe")
	cmd.Flags().Int("max-concurrent", config.DefaultMaxConcurrentScrapes,
		"Maximum simultaneous crawler subprocesses")
	cmd.Flags().Float64("rate-limit", 0,
		"Allowed requests per second (0 disables limiting)")
	cmd.Flags().Bool("save-to-db", false,
		"Persist every scrape run to the history database")
	cmd.Flags().String("db-dir", "",
		"History database directory (default: XDG data directory)")

	return cmd
}

// runServeCmd executes the serve command.
func runServeCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildServeConfig(cmd)
	if err != nil {
		return err
	}

	if err := cfg.ValidateServe(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	// Request logs are emitted at info level, so the service defaults to
	// info rather than the CLI's quieter warn.
	logger := setupLogger(getVerboseFlag(cmd), "info")
	slog.SetDefault(logger)

	ctx, cancel := signalContext(logger)
	defer cancel()

	return runServe(ctx, cfg, logger)
}

// buildServeConfig creates a Config from serve command flags.
func buildServeConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()

	var err error

	cfg.Host, err = cmd.Flags().GetString("host")
	if err != nil {
		return nil, err
	}

	cfg.Port, err = cmd.Flags().GetInt("port")
	if err != nil {
		return nil, err
	}

	cfg.CrawlerBin, err = cmd.Flags().GetString("crawler-bin")
	if err != nil {
		return nil, err
	}

	cfg.OutputDir, err = cmd.Flags().GetString("output-dir")
	if err != nil {
		return nil, err
	}

	cfg.ScrapeTimeout, err = cmd.Flags().GetDuration("timeout")
	if err != nil {
		return nil, err
	}

	cfg.HealthProbeTimeout, err = cmd.Flags().GetDuration("probe-timeout")
	if err != nil {
		return nil, err
	}

	cfg.MaxConcurrentScrapes, err = cmd.Flags().GetInt("max-concurrent")
	if err != nil {
		return nil, err
	}

	cfg.RateLimit, err = cmd.Flags().GetFloat64("rate-limit")
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

// runServe starts the HTTP API and blocks until shutdown.
func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// The crawler defaults to this executable's own crawl subcommand.
	crawlerBin := cfg.CrawlerBin
	if crawlerBin == "" {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to locate the running executable: %w", err)
		}
		crawlerBin = exe
	}

	outputDir := cfg.OutputDir
	if outputDir == "" {
		outputDir = config.XDGCacheDir()
	}
	if err := os.MkdirAll(outputDir, 0750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	runnerOpts := []runner.Option{
		runner.WithOutputDir(outputDir),
		runner.WithTimeout(cfg.ScrapeTimeout),
		runner.WithProbeTimeout(cfg.HealthProbeTimeout),
		runner.WithLogger(logger),
	}
	if cfg.SaveToDB {
		runnerOpts = append(runnerOpts, runner.WithSaveToDB(true))
		if cfg.DBDir != "" {
			runnerOpts = append(runnerOpts, runner.WithDBDir(cfg.DBDir))
		}
	}

	r := runner.New(crawlerBin, runnerOpts...)

	srv := server.New(r,
		server.WithAddr(cfg.Host, cfg.Port),
		server.WithVersion(getVersion()),
		server.WithCrawlerInfo(crawlerBin, outputDir),
		server.WithRateLimit(cfg.RateLimit),
		server.WithMaxConcurrent(int64(cfg.MaxConcurrentScrapes)),
		server.WithLogger(logger),
	)

	logger.Info("starting HTTP API",
		"addr", srv.Addr(),
		"crawlerBin", crawlerBin,
		"outputDir", outputDir,
		"maxConcurrent", cfg.MaxConcurrentScrapes,
	)

	color.Cyan("emailscraper API listening on http://%s", srv.Addr())
	fmt.Println("POST /scrape to collect addresses, GET /health for status. Ctrl+C to stop.")

	if err := srv.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	color.Green("Server stopped.")
	return nil
}
