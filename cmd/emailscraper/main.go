// Package main provides the entry point for the emailscraper CLI.
//
// emailscraper collects email addresses published on websites. It ships a
// contact-page-biased crawler and an HTTP API that runs that crawler as a
// subprocess per scrape request.
//
// Usage:
//
//	emailscraper crawl https://example.com
//	emailscraper serve --port 8000
//
// See --help for all available options.
package main

// main is the entry point for emailscraper.
func main() {
	Execute()
}
