// Package pipeline provides a framework for executing crawl steps in sequence.
//
// A crawl run flows through stages: spidering the site, aggregating the
// deduplicated address set, optionally verifying mail domains, and
// optionally persisting the run to the history database. Each stage is a
// Step that receives the accumulated report and can modify it.
//
// The pipeline checks for cancellation between steps; steps handle their
// own timeouts internally. Batch processing of multiple start URLs with
// concurrency control is provided by BatchProcessor using errgroup.
package pipeline
