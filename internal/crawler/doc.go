// Package crawler implements the email-harvesting spider on top of the
// colly crawling framework.
//
// The spider visits a site starting from one or more seed URLs, follows
// same-domain links up to a configured depth, and records every page that
// yields at least one email address. Extraction itself lives in the
// extract package; this package owns scheduling, scope, limits, and
// retries, all of which are delegated to colly's collector:
//
//   - Depth limiting via colly.MaxDepth
//   - Parallel fetching via colly.Async plus a LimitRule
//   - Politeness delays via LimitRule Delay/RandomDelay
//   - Static asset filtering via DisallowedURLFilters
//
// On top of colly the spider adds what the framework does not provide:
// a per-domain page budget enforced at request admission, allowed-domain
// scoping with optional subdomain widening, contact-biased link ordering,
// and bounded retries for transient failures.
//
// # Usage
//
//	s := crawler.NewSpider(
//	    crawler.WithMaxDepth(2),
//	    crawler.WithMaxPagesPerDomain(50),
//	    crawler.WithContactBias(true),
//	)
//	result, err := s.Crawl(ctx, []string{"https://example.com"})
//	if err != nil {
//	    return err
//	}
//	for _, page := range result.Pages {
//	    fmt.Println(page.PageURL, page.Emails)
//	}
//
// Crawl honors context cancellation: when the context expires mid-crawl,
// the spider stops admitting requests and returns the pages collected so
// far with Result.TimedOut set.
package crawler
