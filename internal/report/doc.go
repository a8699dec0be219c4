// Package report provides report generation and output functionality.
//
// This package contains writers for different output formats:
//   - SimpleWriter: Human-readable text output for terminal display
//   - MarkdownWriter: Shareable Markdown with tables and a method chart
//   - JSONWriter: Structured JSON output for tool integration
//
// Report writing is separated from the report data structures (which live
// in the model package) so new output formats can be added without
// touching the core types.
//
// Writers implement the Writer interface, allowing them to be used
// interchangeably and composed for multi-format output.
package report
