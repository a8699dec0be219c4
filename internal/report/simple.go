package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/jlagares/daimatics-n8n/internal/model"
)

// SimpleWriter outputs human-readable text reports.
// This format is designed for terminal display with clear section
// formatting.
//
// Plain text with ASCII formatting works in all terminals and pipes
// cleanly to files or other tools; commands that want color add it around
// the report, not inside it.
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether sections with no results are shown.
	showEmpty bool

	// verbose enables per-page detail in the output.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with a per-page breakdown.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
		showEmpty:  false,
		verbose:    false,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the full report in human-readable format. The per-page
// breakdown is only available here, since the summary does not carry
// individual pages.
func (w *SimpleWriter) Write(report *model.CrawlReport) (int, error) {
	summary := summaryOf(report)

	var sb strings.Builder
	w.writeHeader(&sb, summary)
	w.writeMethods(&sb, summary)
	w.writeDomains(&sb, summary)
	if w.verbose {
		w.writePages(&sb, report.Pages)
	}
	w.writeEmails(&sb, summary)
	w.writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

// WriteSummary outputs the summary in human-readable format.
func (w *SimpleWriter) WriteSummary(summary *model.CrawlSummary) (int, error) {
	var sb strings.Builder
	w.writeHeader(&sb, summary)
	w.writeMethods(&sb, summary)
	w.writeDomains(&sb, summary)
	w.writeEmails(&sb, summary)
	w.writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

// writeHeader writes the report header with crawl information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, summary *model.CrawlSummary) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                        EMAIL SCRAPE REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("Start URL:      %s\n", summary.StartURL))
	sb.WriteString(fmt.Sprintf("Scrape Date:    %s\n", summary.DateScraped))
	sb.WriteString(fmt.Sprintf("Pages Visited:  %d\n", summary.PagesVisited))
	sb.WriteString(fmt.Sprintf("Duration:       %s\n", summary.Duration()))

	if summary.TimedOut {
		sb.WriteString("Status:         TIMED OUT (partial results)\n")
	} else if summary.Error != "" {
		sb.WriteString(fmt.Sprintf("Status:         ERROR - %s\n", summary.Error))
	} else {
		sb.WriteString("Status:         Complete\n")
	}

	sb.WriteString("\n")
}

// writeMethods writes the discovery-method summary section.
func (w *SimpleWriter) writeMethods(sb *strings.Builder, summary *model.CrawlSummary) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("DISCOVERY SUMMARY\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("  MAILTO:        %d\n", summary.MailtoCount))
	sb.WriteString(fmt.Sprintf("  TEXT:          %d\n", summary.TextCount))
	sb.WriteString(fmt.Sprintf("  DEOBFUSCATED:  %d\n", summary.DeobfuscatedCount))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("  TOTAL:         %d unique address(es) on %d page(s)\n",
		summary.TotalUniqueEmails, summary.PagesWithEmails))
	sb.WriteString("\n")
}

// writeDomains writes the per-domain address counts.
func (w *SimpleWriter) writeDomains(sb *strings.Builder, summary *model.CrawlSummary) {
	if len(summary.Domains) == 0 && !w.showEmpty {
		return
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("DOMAINS\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	if len(summary.Domains) == 0 {
		sb.WriteString("  No domains yielded addresses\n")
	} else {
		for _, d := range summary.Domains {
			sb.WriteString(fmt.Sprintf("  [+] %s (%d)\n", d.Domain, d.Emails))
		}
	}
	sb.WriteString("\n")
}

// writePages writes the per-page breakdown shown in verbose mode.
func (w *SimpleWriter) writePages(sb *strings.Builder, pages []model.PageResult) {
	if len(pages) == 0 && !w.showEmpty {
		return
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("PAGES\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	if len(pages) == 0 {
		sb.WriteString("  No pages yielded addresses\n")
	}
	for _, p := range pages {
		sb.WriteString(fmt.Sprintf("  * %s (depth %d)\n", p.PageURL, p.Depth))
		sb.WriteString(fmt.Sprintf("    Addresses: %s\n", strings.Join(p.Emails, ", ")))
		sb.WriteString(fmt.Sprintf("    Methods:   mailto=%d text=%d deobfuscated=%d\n",
			p.MailtoCount, p.TextCount, p.DeobfuscatedCount))
	}
	sb.WriteString("\n")
}

// writeEmails writes the deduplicated address list.
func (w *SimpleWriter) writeEmails(sb *strings.Builder, summary *model.CrawlSummary) {
	if !summary.HasEmails() && !w.showEmpty {
		return
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("EMAIL ADDRESSES\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	if !summary.HasEmails() {
		sb.WriteString("  No addresses found\n")
	} else {
		for _, email := range summary.UniqueEmails {
			sb.WriteString(fmt.Sprintf("  * %s\n", email))
		}
	}
	sb.WriteString("\n")
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by emailscraper\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}
