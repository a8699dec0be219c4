// Package database provides SQLite-based storage for crawl history.
//
// This package implements the ScrapeDB, which stores:
//   - One row per crawl run, with the full report as JSON
//   - Aggregated email addresses across runs, per source domain
//
// SQLite (via modernc.org/sqlite) keeps the store a single file with no
// external service, and the CGO-free driver cross-compiles cleanly. WAL
// mode gives good concurrent read performance while the crawler writes.
package database
