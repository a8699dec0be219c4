package model

import (
	"sort"
	"time"
)

// DomainCount pairs a hostname with the number of unique addresses found
// on its pages.
type DomainCount struct {
	Domain string `json:"domain"`
	Emails int    `json:"emails"`
}

// CrawlSummary is a condensed, display-oriented view of a CrawlReport.
// Report writers consume it for human-readable output.
type CrawlSummary struct {
	// StartURL is the first seed URL of the run.
	StartURL string `json:"start_url"`

	// DateScraped is the run start time.
	DateScraped string `json:"date_scraped"`

	// PagesVisited counts all parsed pages; PagesWithEmails counts pages
	// that yielded at least one address.
	PagesVisited    int `json:"pages_visited"`
	PagesWithEmails int `json:"pages_with_emails"`

	// TotalUniqueEmails is the size of the deduplicated address set.
	TotalUniqueEmails int `json:"total_unique_emails"`

	// Per-method totals summed across pages.
	MailtoCount       int `json:"mailto_count"`
	TextCount         int `json:"text_count"`
	DeobfuscatedCount int `json:"deobfuscated_count"`

	// Domains lists per-hostname address counts, most addresses first.
	Domains []DomainCount `json:"domains"`

	// UniqueEmails is the sorted deduplicated address set.
	UniqueEmails []string `json:"unique_emails"`

	// TimedOut and Error mirror the report's failure state.
	TimedOut bool   `json:"timed_out"`
	Error    string `json:"error,omitempty"`

	// DurationMS is the crawl duration in milliseconds.
	DurationMS int64 `json:"duration_ms"`
}

// NewCrawlSummary derives a summary from a full report. The report's
// UniqueEmails is used when the aggregation step filled it; otherwise the
// union is computed here.
func NewCrawlSummary(r *CrawlReport) *CrawlSummary {
	unique := r.UniqueEmails
	if len(unique) == 0 && len(r.Pages) > 0 {
		unique = UniqueEmails(r.Pages)
	}
	if unique == nil {
		unique = []string{}
	}

	s := &CrawlSummary{
		StartURL:          r.StartURL(),
		DateScraped:       r.StartedAt.Format("2006-01-02 15:04:05 MST"),
		PagesVisited:      r.Stats.PagesVisited,
		PagesWithEmails:   len(r.Pages),
		TotalUniqueEmails: len(unique),
		UniqueEmails:      unique,
		TimedOut:          r.TimedOut,
		Error:             r.ErrorMessage,
		DurationMS:        r.Stats.DurationMS,
	}

	perDomain := make(map[string]map[string]struct{})
	for _, p := range r.Pages {
		s.MailtoCount += p.MailtoCount
		s.TextCount += p.TextCount
		s.DeobfuscatedCount += p.DeobfuscatedCount

		set, ok := perDomain[p.Domain]
		if !ok {
			set = make(map[string]struct{})
			perDomain[p.Domain] = set
		}
		for _, e := range p.Emails {
			set[e] = struct{}{}
		}
	}

	s.Domains = make([]DomainCount, 0, len(perDomain))
	for d, set := range perDomain {
		s.Domains = append(s.Domains, DomainCount{Domain: d, Emails: len(set)})
	}
	sort.Slice(s.Domains, func(i, j int) bool {
		if s.Domains[i].Emails != s.Domains[j].Emails {
			return s.Domains[i].Emails > s.Domains[j].Emails
		}
		return s.Domains[i].Domain < s.Domains[j].Domain
	})

	return s
}

// Duration returns the crawl duration as a time.Duration.
func (s *CrawlSummary) Duration() time.Duration {
	return time.Duration(s.DurationMS) * time.Millisecond
}

// MethodCount returns the summed count for one discovery method.
func (s *CrawlSummary) MethodCount(m Method) int {
	switch m {
	case MethodMailto:
		return s.MailtoCount
	case MethodText:
		return s.TextCount
	case MethodDeobfuscated:
		return s.DeobfuscatedCount
	default:
		return 0
	}
}

// HasEmails reports whether any address was found.
func (s *CrawlSummary) HasEmails() bool {
	return s.TotalUniqueEmails > 0
}
