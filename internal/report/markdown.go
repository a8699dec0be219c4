package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/jlagares/daimatics-n8n/internal/model"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
)

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for documentation and sharing, e.g. dropping a
// scrape result into an issue or a lead-research notebook.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the full report in Markdown format.
func (w *MarkdownWriter) Write(report *model.CrawlReport) (int, error) {
	return w.WriteSummary(summaryOf(report))
}

// WriteSummary outputs the summary in Markdown format.
func (w *MarkdownWriter) WriteSummary(summary *model.CrawlSummary) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, summary)
	w.writeMethods(md, summary)
	w.writeDomains(md, summary)
	w.writeEmails(md, summary)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with crawl information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, summary *model.CrawlSummary) {
	md.H1("Email Scrape Report")
	md.PlainText("")

	// Basic info table
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Start URL", "`" + truncateString(summary.StartURL, 80) + "`"},
			{"Scrape Date", summary.DateScraped},
			{"Pages Visited", strconv.Itoa(summary.PagesVisited)},
			{"Pages With Addresses", strconv.Itoa(summary.PagesWithEmails)},
			{"Duration", summary.Duration().String()},
			{"Status", w.getStatusText(summary)},
		},
	})
	md.PlainText("")
}

// getStatusText returns the status text based on summary state.
func (w *MarkdownWriter) getStatusText(summary *model.CrawlSummary) string {
	if summary.TimedOut {
		return "⚠️ Timed Out (partial results)"
	}
	if summary.Error != "" {
		return "❌ Error - " + truncateString(summary.Error, 60)
	}
	return "✅ Complete"
}

// writeMethods writes the discovery-method summary section.
func (w *MarkdownWriter) writeMethods(md *markdown.Markdown, summary *model.CrawlSummary) {
	md.H2("Discovery Methods")
	md.PlainText("")

	// Summary table
	md.Table(markdown.TableSet{
		Header: []string{"Method", "Addresses"},
		Rows: [][]string{
			{"📧 Mailto links", strconv.Itoa(summary.MailtoCount)},
			{"📄 Page text", strconv.Itoa(summary.TextCount)},
			{"🔍 De-obfuscated", strconv.Itoa(summary.DeobfuscatedCount)},
			{"**Unique total**", "**" + strconv.Itoa(summary.TotalUniqueEmails) + "**"},
		},
	})
	md.PlainText("")

	// Add pie chart if anything was found
	if summary.HasEmails() {
		w.writePieChart(md, summary)
	}

	// Add alert based on crawl outcome
	w.writeAlert(md, summary)
}

// writePieChart writes a mermaid pie chart for the method distribution.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, summary *model.CrawlSummary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Discovery Method Distribution"),
		piechart.WithShowData(true),
	)

	if summary.MailtoCount > 0 {
		chart.LabelAndIntValue("Mailto", uint64(summary.MailtoCount))
	}
	if summary.TextCount > 0 {
		chart.LabelAndIntValue("Text", uint64(summary.TextCount))
	}
	if summary.DeobfuscatedCount > 0 {
		chart.LabelAndIntValue("De-obfuscated", uint64(summary.DeobfuscatedCount))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an appropriate alert based on the crawl outcome.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, summary *model.CrawlSummary) {
	switch {
	case summary.Error != "":
		md.Cautionf("The crawl stopped with an error: %s", summary.Error)
	case summary.TimedOut:
		md.Warningf("The crawl timed out after %s; results are partial.", summary.Duration())
	case !summary.HasEmails():
		md.Note("No email addresses were found. Consider increasing the crawl depth or widening the allowed domains.")
	default:
		md.Tip(fmt.Sprintf("Collected %d unique address(es) across %d domain(s).",
			summary.TotalUniqueEmails, len(summary.Domains)))
	}
	md.PlainText("")
}

// writeDomains writes the per-domain address counts.
func (w *MarkdownWriter) writeDomains(md *markdown.Markdown, summary *model.CrawlSummary) {
	md.H2("Domains")
	md.PlainText("")

	if len(summary.Domains) == 0 {
		md.PlainText("No domains yielded addresses.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(summary.Domains))
	for i, d := range summary.Domains {
		rows[i] = []string{"`" + truncateString(d.Domain, 50) + "`", strconv.Itoa(d.Emails)}
	}

	md.Table(markdown.TableSet{
		Header: []string{"Domain", "Unique Addresses"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeEmails writes the deduplicated address list.
func (w *MarkdownWriter) writeEmails(md *markdown.Markdown, summary *model.CrawlSummary) {
	md.H2("Email Addresses")
	md.PlainText("")

	if !summary.HasEmails() {
		md.PlainText("No addresses found.")
		md.PlainText("")
		return
	}

	// Backticks keep renderers from turning addresses into mailto links.
	items := make([]string, len(summary.UniqueEmails))
	for i, email := range summary.UniqueEmails {
		items[i] = "`" + email + "`"
	}
	md.BulletList(items...)
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by emailscraper*")
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
