// Package model defines the core data structures used throughout the
// email scraper.
//
// This package contains the following main types:
//   - ScrapeRequest / ScrapeResponse: the HTTP API wire contract
//   - PageResult: one crawled page together with the addresses found on it
//   - CrawlReport: the full result of a single crawl run
//   - CrawlSummary: a summarized, human-readable view of a CrawlReport
//   - Target: a validated start URL
//
// Multiple packages (crawler, runner, server, report, database) need these
// types, so centralizing them prevents import cycles. All models serialize
// to JSON for API responses, the crawler output file, and database storage.
package model
