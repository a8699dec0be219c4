package model

// Default values applied to absent ScrapeRequest fields. These mirror the
// crawl subcommand's own flag defaults so a bare {"url": ...} request and
// a bare CLI invocation behave the same.
const (
	// DefaultRequestDepth is the crawl depth used when max_depth is absent.
	DefaultRequestDepth = 2
	// DefaultRequestPagesPerDomain caps parsed pages per hostname when
	// max_pages_per_domain is absent.
	DefaultRequestPagesPerDomain = 50
	// DefaultRequestContactBias enables contact-page prioritization when
	// contact_bias is absent.
	DefaultRequestContactBias = true
)

// ScrapeRequest is the POST /scrape request body. Pointer fields distinguish
// an absent value from an explicit zero; Normalize fills in the defaults.
//
// AllowedDomains and AllowPatterns are comma-separated strings passed through
// to the crawler unchanged.
type ScrapeRequest struct {
	// URL is the crawl start URL. Required; must be absolute http(s).
	URL string `json:"url"`

	// MaxDepth limits link-following distance from the start page.
	// 0 scrapes only the start page itself.
	MaxDepth *int `json:"max_depth,omitempty"`

	// MaxPagesPerDomain stops following links into a hostname once that
	// many of its pages have been parsed.
	MaxPagesPerDomain *int `json:"max_pages_per_domain,omitempty"`

	// ContactBias schedules likely contact pages before other links.
	ContactBias *bool `json:"contact_bias,omitempty"`

	// AllowedDomains restricts the crawl to hostnames matching any of the
	// comma-separated domains (suffix match). Empty means the start URL's
	// hostname.
	AllowedDomains string `json:"allowed_domains,omitempty"`

	// AllowPatterns is a comma-separated list of regex patterns marking
	// links to prioritize when ContactBias is enabled.
	AllowPatterns string `json:"allow_patterns,omitempty"`
}

// Normalize applies default values to absent optional fields in place.
func (r *ScrapeRequest) Normalize() {
	if r.MaxDepth == nil {
		d := DefaultRequestDepth
		r.MaxDepth = &d
	}
	if r.MaxPagesPerDomain == nil {
		p := DefaultRequestPagesPerDomain
		r.MaxPagesPerDomain = &p
	}
	if r.ContactBias == nil {
		b := DefaultRequestContactBias
		r.ContactBias = &b
	}
}

// Target validates the request URL and returns it as a Target.
func (r *ScrapeRequest) Target() (Target, error) {
	return NewTarget(r.URL)
}

// ScrapeResponse is the POST /scrape response body. Crawl failures are
// reported with Success=false and a non-empty Error; the HTTP status stays
// 200 for them since the service itself handled the request.
type ScrapeResponse struct {
	// Success is false when the crawl failed (timeout, crawler error,
	// unreadable output).
	Success bool `json:"success"`

	// URL echoes the requested start URL.
	URL string `json:"url"`

	// EmailsFound holds the crawler's page records verbatim.
	EmailsFound []PageResult `json:"emails_found"`

	// TotalUniqueEmails is len(UniqueEmails).
	TotalUniqueEmails int `json:"total_unique_emails"`

	// UniqueEmails is the sorted set union of addresses across all pages.
	UniqueEmails []string `json:"unique_emails"`

	// PagesScraped is the number of page records in EmailsFound.
	PagesScraped int `json:"pages_scraped"`

	// Error describes the failure when Success is false.
	Error string `json:"error,omitempty"`
}

// NewScrapeResponse aggregates crawler page records into a success response.
func NewScrapeResponse(url string, pages []PageResult) *ScrapeResponse {
	if pages == nil {
		pages = []PageResult{}
	}
	unique := UniqueEmails(pages)
	return &ScrapeResponse{
		Success:           true,
		URL:               url,
		EmailsFound:       pages,
		TotalUniqueEmails: len(unique),
		UniqueEmails:      unique,
		PagesScraped:      len(pages),
	}
}

// NewScrapeFailure builds an empty failure response carrying an error message.
func NewScrapeFailure(url, errMsg string) *ScrapeResponse {
	return &ScrapeResponse{
		Success:      false,
		URL:          url,
		EmailsFound:  []PageResult{},
		UniqueEmails: []string{},
		Error:        errMsg,
	}
}
