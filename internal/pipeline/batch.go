package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jlagares/daimatics-n8n/internal/model"
)

// BatchProcessor handles concurrent crawling of multiple start URLs.
// It uses errgroup to manage goroutines and respect concurrency limits.
//
// Batch handling lives outside Pipeline so the pipeline stays focused on
// a single run and batch strategies can evolve independently.
type BatchProcessor struct {
	// pipelineFactory creates a new pipeline for each crawl.
	// We use a factory to ensure each crawl gets a fresh pipeline instance.
	pipelineFactory func() *Pipeline

	// concurrency is the maximum number of concurrent crawls.
	concurrency int

	// logger is used for batch-level logging.
	logger *slog.Logger

	// results stores completed reports.
	// Access is synchronized via mutex.
	results []*model.CrawlReport
	mu      sync.Mutex
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent crawls.
// Default is 10 if not specified.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor.
//
// The pipelineFactory function is called for each crawl to create a fresh
// pipeline instance. This ensures that pipeline state doesn't leak between
// crawls and allows for per-crawl customization if needed.
func NewBatchProcessor(pipelineFactory func() *Pipeline, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		pipelineFactory: pipelineFactory,
		concurrency:     10,
		results:         make([]*model.CrawlReport, 0),
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessBatch crawls multiple start URLs concurrently.
// It respects the configured concurrency limit and context cancellation.
//
// errgroup.SetLimit does the concurrency control: each URL gets its own
// goroutine, but only 'concurrency' goroutines run simultaneously.
//
// Returns all reports collected, even for URLs whose crawl failed.
// The error return indicates if the batch itself was cancelled.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, startURLs []string) ([]*model.CrawlReport, error) {
	bp.logger.Info("starting batch processing",
		"total_urls", len(startURLs),
		"concurrency", bp.concurrency,
	)

	startTime := time.Now()

	// Pre-allocate results slice to maintain order
	bp.results = make([]*model.CrawlReport, len(startURLs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, startURL := range startURLs {
		g.Go(func() error {
			// Check for cancellation before starting
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			bp.logger.Info("crawling",
				"url", startURL,
				"index", i+1,
				"total", len(startURLs),
			)

			// Create report for this URL
			report := model.NewCrawlReport([]string{startURL})

			// Create and execute pipeline
			pipeline := bp.pipelineFactory()
			err := pipeline.Execute(ctx, report)
			if report.FinishedAt.IsZero() {
				report.Finish()
			}

			// Store result regardless of error
			// The report contains error information if the crawl failed
			bp.mu.Lock()
			bp.results[i] = report
			bp.mu.Unlock()

			if err != nil {
				bp.logger.Warn("crawl failed",
					"url", startURL,
					"error", err,
				)
				// Don't return error to errgroup - we want to continue
				// other crawls. The error is recorded in the report.
				return nil
			}

			bp.logger.Info("crawl completed",
				"url", startURL,
			)

			return nil
		})
	}

	// Wait for all crawls to complete
	err := g.Wait()

	elapsed := time.Since(startTime)
	bp.logger.Info("batch processing complete",
		"total_urls", len(startURLs),
		"elapsed", elapsed,
	)

	return bp.results, err
}

// ProcessBatchWithCallback crawls multiple URLs and calls a callback
// for each completed crawl. This is useful for streaming results.
//
// The callback receives the report and the index of the URL in the
// original slice. The callback is called from the goroutine that completed
// the crawl, so it should be thread-safe if it accesses shared state.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	startURLs []string,
	callback func(report *model.CrawlReport, index int),
) error {
	bp.logger.Info("starting batch processing with callback",
		"total_urls", len(startURLs),
		"concurrency", bp.concurrency,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, startURL := range startURLs {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			report := model.NewCrawlReport([]string{startURL})
			pipeline := bp.pipelineFactory()
			_ = pipeline.Execute(ctx, report) //nolint:errcheck // Error is stored in report
			if report.FinishedAt.IsZero() {
				report.Finish()
			}

			// Call the callback with the result
			callback(report, i)

			return nil
		})
	}

	return g.Wait()
}
