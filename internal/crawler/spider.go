package crawler

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/gocolly/colly/v2/extensions"
	"github.com/gocolly/colly/v2/proxy"

	"github.com/jlagares/daimatics-n8n/internal/config"
	"github.com/jlagares/daimatics-n8n/internal/extract"
	"github.com/jlagares/daimatics-n8n/internal/model"
)

// ErrNoSeeds is returned when Crawl is called without start URLs.
var ErrNoSeeds = errors.New("no start URLs to crawl")

// skippedSchemes are link schemes that never lead to a crawlable page.
// mailto links are consumed by extraction instead.
var skippedSchemes = []string{"mailto:", "javascript:", "tel:", "data:"}

// Spider crawls web pages and records every page that yields at least one
// email address. The heavy lifting is delegated to a colly collector; the
// spider configures it and layers on scope, per-domain budgets, contact
// bias, and retries.
type Spider struct {
	// maxDepth limits how deep to follow links from a seed.
	// 0 means only the seed page, 1 adds one level of links, etc.
	maxDepth int

	// maxPagesPerDomain caps admitted requests per host, 0 for no cap.
	maxPagesPerDomain int

	// contactBias schedules contact-like links ahead of their siblings.
	contactBias bool

	// allowedDomains overrides the seed-derived crawl perimeter.
	allowedDomains []string

	// allowPatterns restrict followed links to matching URLs.
	allowPatterns []string

	// denyPatterns name URLs that must never be fetched.
	denyPatterns []string

	// includeSubdomains widens seed-derived scope to the registrable apex.
	includeSubdomains bool

	// userAgent is sent on every request unless randomUserAgent is set.
	userAgent string

	// randomUserAgent rotates browser User-Agent strings per request.
	randomUserAgent bool

	// proxyURLs are rotated round-robin when set.
	proxyURLs []string

	// requestTimeout bounds a single fetch including body read.
	requestTimeout time.Duration

	// parallelism is the number of concurrent fetches.
	parallelism int

	// delay and randomDelay throttle successive requests per domain.
	delay       time.Duration
	randomDelay time.Duration

	// retryTimes is how often a transient failure is refetched.
	retryTimes int

	// sites carries per-hostname cookie, header, and depth overrides.
	sites *config.File

	// logger receives crawl progress. Never nil.
	logger *slog.Logger
}

// SpiderOption configures a Spider.
type SpiderOption func(*Spider)

// WithMaxDepth sets the maximum link distance from a seed.
// 0 = only the seed page, 1 = seed plus directly linked pages, etc.
func WithMaxDepth(depth int) SpiderOption {
	return func(s *Spider) {
		if depth >= 0 {
			s.maxDepth = depth
		}
	}
}

// WithMaxPagesPerDomain caps the number of pages fetched per host.
// 0 disables the cap.
func WithMaxPagesPerDomain(limit int) SpiderOption {
	return func(s *Spider) {
		if limit >= 0 {
			s.maxPagesPerDomain = limit
		}
	}
}

// WithContactBias toggles contact-first link ordering.
func WithContactBias(enabled bool) SpiderOption {
	return func(s *Spider) {
		s.contactBias = enabled
	}
}

// WithAllowedDomains replaces the seed-derived crawl perimeter.
// Entries without a port admit the named host and its subdomains;
// entries with a port must match the URL host exactly.
func WithAllowedDomains(domains []string) SpiderOption {
	return func(s *Spider) {
		s.allowedDomains = domains
	}
}

// WithAllowPatterns restricts followed links to URLs matching at least
// one of the given regular expressions. Seeds are always fetched.
func WithAllowPatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.allowPatterns = patterns
	}
}

// WithDenyPatterns blocks URLs matching any of the given regular
// expressions.
func WithDenyPatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.denyPatterns = patterns
	}
}

// WithIncludeSubdomains widens seed-derived scope from the seed host to
// its registrable domain, admitting sibling subdomains.
func WithIncludeSubdomains(enabled bool) SpiderOption {
	return func(s *Spider) {
		s.includeSubdomains = enabled
	}
}

// WithUserAgent sets a fixed User-Agent header.
func WithUserAgent(ua string) SpiderOption {
	return func(s *Spider) {
		if ua != "" {
			s.userAgent = ua
		}
	}
}

// WithRandomUserAgent rotates browser User-Agent strings per request.
func WithRandomUserAgent(enabled bool) SpiderOption {
	return func(s *Spider) {
		s.randomUserAgent = enabled
	}
}

// WithProxies routes requests through the given proxy URLs round-robin.
func WithProxies(proxyURLs ...string) SpiderOption {
	return func(s *Spider) {
		s.proxyURLs = proxyURLs
	}
}

// WithRequestTimeout bounds a single fetch.
func WithRequestTimeout(d time.Duration) SpiderOption {
	return func(s *Spider) {
		if d > 0 {
			s.requestTimeout = d
		}
	}
}

// WithParallelism sets the number of concurrent fetches.
func WithParallelism(n int) SpiderOption {
	return func(s *Spider) {
		if n > 0 {
			s.parallelism = n
		}
	}
}

// WithDelay sets the fixed politeness delay between requests to the
// same domain.
func WithDelay(d time.Duration) SpiderOption {
	return func(s *Spider) {
		if d >= 0 {
			s.delay = d
		}
	}
}

// WithRandomDelay sets the extra randomized delay added on top of the
// fixed one.
func WithRandomDelay(d time.Duration) SpiderOption {
	return func(s *Spider) {
		if d >= 0 {
			s.randomDelay = d
		}
	}
}

// WithRetryTimes sets how often a transient failure is refetched before
// it counts as an error.
func WithRetryTimes(n int) SpiderOption {
	return func(s *Spider) {
		if n >= 0 {
			s.retryTimes = n
		}
	}
}

// WithSiteConfigs applies per-hostname cookie, header, depth, and
// pattern overrides from a loaded configuration file.
func WithSiteConfigs(sites *config.File) SpiderOption {
	return func(s *Spider) {
		s.sites = sites
	}
}

// WithLogger sets the logger for crawl progress.
func WithLogger(logger *slog.Logger) SpiderOption {
	return func(s *Spider) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSpider creates a new Spider with sensible defaults.
func NewSpider(opts ...SpiderOption) *Spider {
	s := &Spider{
		maxDepth:          config.DefaultMaxDepth,
		maxPagesPerDomain: config.DefaultMaxPagesPerDomain,
		contactBias:       config.DefaultContactBias,
		userAgent:         config.DefaultUserAgent,
		requestTimeout:    config.DefaultRequestTimeout,
		parallelism:       config.DefaultParallelism,
		delay:             config.DefaultDelay,
		randomDelay:       config.DefaultRandomDelay,
		retryTimes:        config.DefaultRetryTimes,
		logger:            slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Options reports the effective crawl options in report form.
func (s *Spider) Options() model.CrawlOptions {
	return model.CrawlOptions{
		MaxDepth:          s.maxDepth,
		MaxPagesPerDomain: s.maxPagesPerDomain,
		ContactBias:       s.contactBias,
		AllowedDomains:    append([]string(nil), s.allowedDomains...),
		AllowPatterns:     append([]string(nil), s.allowPatterns...),
	}
}

// Result is the outcome of a crawl.
type Result struct {
	// Pages holds the records for pages that yielded addresses, in
	// discovery order.
	Pages []model.PageResult

	// Stats aggregates fetch counters for the run.
	Stats model.CrawlStats

	// TimedOut reports whether the crawl was cut short by its context.
	TimedOut bool
}

// Crawl visits the given seed URLs and every in-scope page reachable
// within the configured depth, returning a record for each page that
// yielded at least one email address.
//
// When ctx expires mid-crawl the spider stops admitting requests and
// returns the pages collected so far with Result.TimedOut set; the error
// stays nil because partial results are still usable.
func (s *Spider) Crawl(ctx context.Context, startURLs []string) (*Result, error) {
	start := time.Now()

	if len(startURLs) == 0 {
		return nil, ErrNoSeeds
	}
	targets := make([]model.Target, 0, len(startURLs))
	for _, raw := range startURLs {
		t, err := model.NewTarget(raw)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}

	maxDepth := s.maxDepth
	denyPatterns := s.denyPatterns
	contactSource := s.allowPatterns
	if s.sites != nil {
		siteCfg := s.sites.GetSiteConfig(targets[0].Host())
		if siteCfg.Depth > 0 {
			maxDepth = siteCfg.Depth
		}
		denyPatterns = append(append([]string(nil), denyPatterns...), siteCfg.DenyPatterns...)
		if len(contactSource) == 0 {
			contactSource = siteCfg.AllowPatterns
		}
	}

	allowRE, err := compilePatterns(s.allowPatterns)
	if err != nil {
		return nil, fmt.Errorf("compile allow patterns: %w", err)
	}
	denyRE, err := compilePatterns(denyPatterns)
	if err != nil {
		return nil, fmt.Errorf("compile deny patterns: %w", err)
	}
	var contactRE []*regexp.Regexp
	if s.contactBias {
		if contactRE, err = compileContactPatterns(contactSource); err != nil {
			return nil, fmt.Errorf("compile contact patterns: %w", err)
		}
	}

	perimeter := newScope(targets, s.allowedDomains, s.includeSubdomains)

	c := colly.NewCollector(
		colly.Async(true),
		colly.MaxDepth(maxDepth+1),
		colly.IgnoreRobotsTxt(),
	)
	c.DisallowedURLFilters = append(c.DisallowedURLFilters, staticAssetPattern)
	c.DisallowedURLFilters = append(c.DisallowedURLFilters, denyRE...)

	if s.randomUserAgent {
		extensions.RandomUserAgent(c)
	} else {
		c.UserAgent = s.userAgent
	}
	extensions.Referer(c)

	c.SetClient(&http.Client{
		Timeout:   s.requestTimeout,
		Transport: newTransport(),
	})
	if len(s.proxyURLs) > 0 {
		switcher, err := proxy.RoundRobinProxySwitcher(s.proxyURLs...)
		if err != nil {
			return nil, fmt.Errorf("configure proxy rotation: %w", err)
		}
		c.SetProxyFunc(switcher)
	}

	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: s.parallelism,
		Delay:       s.delay,
		RandomDelay: s.randomDelay,
	}); err != nil {
		return nil, fmt.Errorf("set limit rule: %w", err)
	}

	run := newCrawlRun(s.maxPagesPerDomain)

	c.OnRequest(func(r *colly.Request) {
		if run.stopped.Load() || !perimeter.Allows(r.URL) || !run.admit(r.URL) {
			r.Abort()
			return
		}
		if s.sites != nil {
			siteCfg := s.sites.GetSiteConfig(r.URL.Hostname())
			if siteCfg.Cookie != "" {
				r.Headers.Set("Cookie", siteCfg.Cookie)
			}
			for k, v := range siteCfg.Headers {
				r.Headers.Set(k, v)
			}
		}
	})

	c.OnResponse(func(r *colly.Response) {
		run.notePage()
	})

	c.OnHTML("html", func(e *colly.HTMLElement) {
		depth := e.Request.Depth - 1
		found := extract.ExtractPage(e.DOM)
		if found.HasEmails() {
			run.addPage(model.PageResult{
				PageURL:           e.Request.URL.String(),
				Domain:            e.Request.URL.Host,
				Emails:            found.Emails,
				Depth:             depth,
				MailtoCount:       found.MailtoCount,
				TextCount:         found.TextCount,
				DeobfuscatedCount: found.DeobfuscatedCount,
				ScrapedAt:         time.Now().UTC(),
			})
		}

		if depth >= maxDepth {
			return
		}
		links := pageLinks(e)
		if s.contactBias {
			links = orderByContactBias(links, contactRE)
		}
		for _, link := range links {
			if len(allowRE) > 0 && !matchAny(allowRE, link) {
				continue
			}
			_ = e.Request.Visit(link)
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		pageURL := r.Request.URL.String()
		if !run.stopped.Load() && retryableStatus(r.StatusCode) && run.noteRetry(pageURL, s.retryTimes) {
			s.logger.Debug("retrying request", "url", pageURL, "status", r.StatusCode, "error", err)
			if r.Request.Retry() == nil {
				return
			}
		}
		run.noteError()
		s.logger.Debug("request failed", "url", pageURL, "status", r.StatusCode, "error", err)
	})

	s.logger.Info("starting crawl",
		"seeds", len(targets),
		"max_depth", maxDepth,
		"max_pages_per_domain", s.maxPagesPerDomain,
		"contact_bias", s.contactBias,
	)

	for _, t := range targets {
		if err := c.Visit(t.String()); err != nil {
			s.logger.Debug("seed rejected", "url", t.String(), "error", err)
		}
	}

	done := make(chan struct{})
	go func() {
		c.Wait()
		close(done)
	}()

	timedOut := false
	select {
	case <-done:
	case <-ctx.Done():
		timedOut = true
		run.stopped.Store(true)
	}

	result := run.snapshot()
	result.TimedOut = timedOut
	result.Stats.DurationMS = time.Since(start).Milliseconds()

	s.logger.Info("crawl finished",
		"pages_with_emails", len(result.Pages),
		"pages_visited", result.Stats.PagesVisited,
		"errors", result.Stats.Errors,
		"timed_out", timedOut,
	)
	return result, nil
}

// newTransport builds the HTTP transport used for fetching. Certificate
// verification is off: harvest targets routinely serve self-signed or
// mismatched certificates, and their pages are read-only input here.
func newTransport() *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     30 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: true,
			Renegotiation:      tls.RenegotiateOnceAsClient,
		},
	}
}

// retryableStatus reports whether a failed fetch is worth retrying.
// Status 0 means the request never completed (DNS, dial, or timeout).
func retryableStatus(status int) bool {
	switch status {
	case 0, http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// pageLinks collects the unique absolute link targets of a page in
// document order, skipping anchors and non-navigational schemes.
func pageLinks(e *colly.HTMLElement) []string {
	seen := make(map[string]bool)
	var links []string

	e.DOM.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		lower := strings.ToLower(href)
		for _, scheme := range skippedSchemes {
			if strings.HasPrefix(lower, scheme) {
				return
			}
		}
		abs := e.Request.AbsoluteURL(href)
		if abs == "" || seen[abs] {
			return
		}
		seen[abs] = true
		links = append(links, abs)
	})

	return links
}

// crawlRun holds the mutable state of a single Crawl invocation, so a
// Spider can be reused across crawls.
type crawlRun struct {
	mu           sync.Mutex
	stopped      atomic.Bool
	maxPerDomain int
	perDomain    map[string]int
	admitted     map[string]bool
	retriesByURL map[string]int
	pages        []model.PageResult
	stats        model.CrawlStats
}

func newCrawlRun(maxPerDomain int) *crawlRun {
	return &crawlRun{
		maxPerDomain: maxPerDomain,
		perDomain:    make(map[string]int),
		admitted:     make(map[string]bool),
		retriesByURL: make(map[string]int),
	}
}

// admit reserves a page slot for the URL's domain. The reservation is
// made at request time so the cap holds even with parallel fetches.
// A URL that already holds a slot is admitted again without consuming
// another one, which keeps retries free.
func (r *crawlRun) admit(u *url.URL) bool {
	key := u.String()
	domain := strings.ToLower(u.Host)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.admitted[key] {
		return true
	}
	if r.maxPerDomain > 0 && r.perDomain[domain] >= r.maxPerDomain {
		return false
	}
	r.perDomain[domain]++
	r.admitted[key] = true
	r.stats.Requests++
	return true
}

func (r *crawlRun) notePage() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.PagesVisited++
}

func (r *crawlRun) noteError() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Errors++
}

// noteRetry records a retry attempt for the URL and reports whether the
// attempt is still within budget.
func (r *crawlRun) noteRetry(pageURL string, budget int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.retriesByURL[pageURL] >= budget {
		return false
	}
	r.retriesByURL[pageURL]++
	r.stats.Retries++
	return true
}

func (r *crawlRun) addPage(p model.PageResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pages = append(r.pages, p)
}

// snapshot copies the collected pages and counters. In-flight handlers
// may still add pages afterwards; the copy keeps the result stable.
func (r *crawlRun) snapshot() *Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	pages := make([]model.PageResult, len(r.pages))
	copy(pages, r.pages)
	return &Result{Pages: pages, Stats: r.stats}
}
