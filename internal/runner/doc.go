// Package runner executes the crawler CLI as a subprocess and aggregates
// its output into API responses.
//
// The scrape API deliberately does not crawl in-process: each request
// spawns a fresh crawler with its own lifetime, so a runaway crawl is
// killed when its timeout expires without taking the service down, and
// the crawler can be swapped for any binary honoring the same flags.
//
// A run writes its page records to a uniquely named JSON file in the
// output directory; the runner parses and deletes the file afterwards.
// Every failure mode (timeout, non-zero exit, missing or malformed
// output) is reported through ScrapeResponse.Error rather than an error
// return, because the HTTP handler treats a failed crawl as a handled
// outcome, not a server error.
package runner
