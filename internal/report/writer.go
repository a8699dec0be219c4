package report

import (
	"io"

	"github.com/jlagares/daimatics-n8n/internal/model"
)

// Writer defines the interface for report output.
// Implementations write crawl results in various formats.
//
// An interface rather than concrete types lets the crawl command write to
// files, stdout, or both with the same API.
type Writer interface {
	// Write outputs the full report to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(report *model.CrawlReport) (int, error)

	// WriteSummary outputs only the summary portion.
	// This is useful for quick overviews without per-page details.
	WriteSummary(summary *model.CrawlSummary) (int, error)
}

// MultiWriter writes to multiple Writers simultaneously.
// This is useful for outputting to both terminal and file.
//
// It is a separate type rather than io.MultiWriter because our Writer
// interface carries reports, not raw bytes.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all configured Writers.
// Returns the total bytes written across all writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(report *model.CrawlReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteSummary outputs the summary to all configured Writers.
func (m *MultiWriter) WriteSummary(summary *model.CrawlSummary) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteSummary(summary)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// summaryOf returns the report's summary, deriving one when the
// aggregation step has not run yet.
func summaryOf(report *model.CrawlReport) *model.CrawlSummary {
	if report.Summary != nil {
		return report.Summary
	}
	return model.NewCrawlSummary(report)
}
