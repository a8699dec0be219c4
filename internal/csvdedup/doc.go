// Package csvdedup removes duplicate rows from CSV files.
//
// Deduplication is keyed on a single column, the url column by default, and
// keeps either the first or the last occurrence of each value. Analyze reports
// duplicate statistics for a file without rewriting it. Exports from crawl
// runs accumulate repeated URLs across runs; this package is how the dedupe
// command cleans them up.
package csvdedup
