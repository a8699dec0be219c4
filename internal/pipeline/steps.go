package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jlagares/daimatics-n8n/internal/crawler"
	"github.com/jlagares/daimatics-n8n/internal/database"
	"github.com/jlagares/daimatics-n8n/internal/model"
	"github.com/jlagares/daimatics-n8n/internal/verify"
)

// CrawlStep runs the spider over the report's seed URLs and stores the
// pages and counters it collected. This is the step that does the actual
// network work; everything after it operates on the accumulated report.
type CrawlStep struct {
	// spider is the pre-configured crawler.
	spider *crawler.Spider

	// logger for structured logging.
	logger *slog.Logger
}

// CrawlStepOption configures a CrawlStep.
type CrawlStepOption func(*CrawlStep)

// WithCrawlLogger sets a custom logger for the crawl step.
func WithCrawlLogger(logger *slog.Logger) CrawlStepOption {
	return func(s *CrawlStep) {
		s.logger = logger
	}
}

// NewCrawlStep creates a new crawling step around a configured spider.
func NewCrawlStep(spider *crawler.Spider, opts ...CrawlStepOption) *CrawlStep {
	s := &CrawlStep{
		spider: spider,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *CrawlStep) Name() string {
	return "crawl"
}

// Do executes the crawl step.
// A context expiry mid-crawl is not an error: the spider returns the pages
// collected so far and the report is marked timed out.
func (s *CrawlStep) Do(ctx context.Context, report *model.CrawlReport) error {
	report.Options = s.spider.Options()

	result, err := s.spider.Crawl(ctx, report.StartURLs)
	if err != nil {
		return fmt.Errorf("crawl: %w", err)
	}

	report.Pages = result.Pages
	report.Stats = result.Stats
	if result.TimedOut {
		report.TimedOut = true
	}

	s.logger.Info("crawl completed",
		"pages_visited", result.Stats.PagesVisited,
		"pages_with_addresses", len(result.Pages),
		"timed_out", result.TimedOut,
	)

	return nil
}

// AggregateStep computes the deduplicated address set across all pages
// and generates the condensed summary. It is cheap and always runs after
// the crawl so later steps and writers can rely on both being present.
type AggregateStep struct {
	// logger for structured logging.
	logger *slog.Logger
}

// AggregateStepOption configures an AggregateStep.
type AggregateStepOption func(*AggregateStep)

// WithAggregateLogger sets a custom logger for the aggregation step.
func WithAggregateLogger(logger *slog.Logger) AggregateStepOption {
	return func(s *AggregateStep) {
		s.logger = logger
	}
}

// NewAggregateStep creates a new aggregation step.
func NewAggregateStep(opts ...AggregateStepOption) *AggregateStep {
	s := &AggregateStep{
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *AggregateStep) Name() string {
	return "aggregate"
}

// Do executes the aggregation step.
func (s *AggregateStep) Do(_ context.Context, report *model.CrawlReport) error {
	report.UniqueEmails = model.UniqueEmails(report.Pages)
	report.Summary = model.NewCrawlSummary(report)

	s.logger.Debug("aggregation completed",
		"unique_addresses", len(report.UniqueEmails),
		"pages", len(report.Pages),
	)

	return nil
}

// VerifyStep checks the mail domains of found addresses for MX records.
// It runs after aggregation and annotates the report; lookup failures are
// recorded per domain, never returned as step errors.
type VerifyStep struct {
	// verifier performs the DNS lookups.
	verifier *verify.Verifier

	// logger for structured logging.
	logger *slog.Logger
}

// VerifyStepOption configures a VerifyStep.
type VerifyStepOption func(*VerifyStep)

// WithVerifyLogger sets a custom logger for the verification step.
func WithVerifyLogger(logger *slog.Logger) VerifyStepOption {
	return func(s *VerifyStep) {
		s.logger = logger
	}
}

// NewVerifyStep creates a new domain verification step.
func NewVerifyStep(verifier *verify.Verifier, opts ...VerifyStepOption) *VerifyStep {
	s := &VerifyStep{
		verifier: verifier,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *VerifyStep) Name() string {
	return "verify"
}

// Do executes the verification step.
func (s *VerifyStep) Do(ctx context.Context, report *model.CrawlReport) error {
	if len(report.UniqueEmails) == 0 {
		s.logger.Debug("skipping verification, no addresses found")
		return nil
	}

	report.Verifications = s.verifier.VerifyEmails(ctx, report.UniqueEmails)

	// The summary predates the verification results; refresh it.
	if report.Summary != nil {
		report.Summary = model.NewCrawlSummary(report)
	}

	s.logger.Info("verification completed",
		"domains", len(report.Verifications),
	)

	return nil
}

// PersistStep saves the finished report to the history database.
// It stamps the completion time first so the stored duration is accurate.
type PersistStep struct {
	// db is the history store; nil disables persistence.
	db *database.ScrapeDB

	// logger for structured logging.
	logger *slog.Logger
}

// PersistStepOption configures a PersistStep.
type PersistStepOption func(*PersistStep)

// WithPersistLogger sets a custom logger for the persistence step.
func WithPersistLogger(logger *slog.Logger) PersistStepOption {
	return func(s *PersistStep) {
		s.logger = logger
	}
}

// NewPersistStep creates a new persistence step.
func NewPersistStep(db *database.ScrapeDB, opts ...PersistStepOption) *PersistStep {
	s := &PersistStep{
		db:     db,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *PersistStep) Name() string {
	return "persist"
}

// Do executes the persistence step.
func (s *PersistStep) Do(ctx context.Context, report *model.CrawlReport) error {
	if s.db == nil {
		s.logger.Debug("skipping persistence, no database configured")
		return nil
	}

	if report.FinishedAt.IsZero() {
		report.Finish()
	}
	if report.Summary == nil {
		report.Summary = model.NewCrawlSummary(report)
	}

	if err := s.db.SaveRun(ctx, report); err != nil {
		return fmt.Errorf("save run: %w", err)
	}

	s.logger.Info("run saved",
		"run_id", report.RunID,
		"database", s.db.Path(),
	)

	return nil
}

// DefaultPipelineConfig holds configuration for the default pipeline.
type DefaultPipelineConfig struct {
	// Verifier enables the MX verification step when non-nil.
	Verifier *verify.Verifier

	// DB enables the persistence step when non-nil.
	DB *database.ScrapeDB

	// Logger is passed to every step. Nil keeps each step's default.
	Logger *slog.Logger
}

// DefaultPipelineOption configures a DefaultPipelineConfig.
type DefaultPipelineOption func(*DefaultPipelineConfig)

// WithPipelineVerifier adds an MX verification step to the pipeline.
func WithPipelineVerifier(v *verify.Verifier) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Verifier = v
	}
}

// WithPipelineDB adds a persistence step writing to the given database.
func WithPipelineDB(db *database.ScrapeDB) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.DB = db
	}
}

// WithPipelineStepLogger sets the logger used by every step.
func WithPipelineStepLogger(logger *slog.Logger) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Logger = logger
	}
}

// DefaultPipeline creates a pipeline with the standard steps in order:
// crawl, aggregate, then optionally verify and persist.
//
// The first variadic parameter accepts pipeline options (WithLogger, etc).
// The second accepts config options (WithPipelineVerifier, etc).
func DefaultPipeline(spider *crawler.Spider, pipelineOpts []Option, configOpts ...DefaultPipelineOption) *Pipeline {
	p := New(pipelineOpts...)

	cfg := &DefaultPipelineConfig{}
	for _, opt := range configOpts {
		opt(cfg)
	}

	var crawlOpts []CrawlStepOption
	var aggOpts []AggregateStepOption
	var verifyOpts []VerifyStepOption
	var persistOpts []PersistStepOption
	if cfg.Logger != nil {
		crawlOpts = append(crawlOpts, WithCrawlLogger(cfg.Logger))
		aggOpts = append(aggOpts, WithAggregateLogger(cfg.Logger))
		verifyOpts = append(verifyOpts, WithVerifyLogger(cfg.Logger))
		persistOpts = append(persistOpts, WithPersistLogger(cfg.Logger))
	}

	p.AddSteps(
		NewCrawlStep(spider, crawlOpts...),
		NewAggregateStep(aggOpts...),
	)
	if cfg.Verifier != nil {
		p.AddStep(NewVerifyStep(cfg.Verifier, verifyOpts...))
	}
	if cfg.DB != nil {
		p.AddStep(NewPersistStep(cfg.DB, persistOpts...))
	}

	return p
}
