// Package server implements the HTTP API in front of the crawl runner.
//
// Three endpoints: GET / (service info), GET /health (crawler binary
// probe plus process facts), and POST /scrape (run one crawl and return
// the aggregated addresses). The server validates requests and rejects
// bad ones before any subprocess is spawned; a crawl that starts and
// fails is still a 200 with success=false, mirroring the runner's
// contract.
//
// Concurrency is capped with a weighted semaphore (default one scrape at
// a time; excess requests queue), and an optional token-bucket rate limit
// guards the whole API. Shutdown drains in-flight requests.
package server
