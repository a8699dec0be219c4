package model

import (
	"sort"
	"time"
)

// PageResult represents a single crawled page that yielded at least one
// email address. The crawler writes a JSON array of these records to its
// output file; the HTTP layer echoes them back verbatim in the response.
type PageResult struct {
	// PageURL is the fully qualified URL of the crawled page.
	PageURL string `json:"page_url"`

	// Domain is the network locator of the page URL: the hostname, plus
	// the port when the URL carries one.
	Domain string `json:"domain"`

	// Emails holds the unique addresses found on this page, sorted.
	// Addresses keep the casing in which they appeared.
	Emails []string `json:"emails"`

	// Depth is the link distance from the start URL. The start page is 0.
	Depth int `json:"depth"`

	// MailtoCount is the number of unique addresses found via mailto: links.
	MailtoCount int `json:"mailto_count"`

	// TextCount is the number of unique addresses matched in page text.
	TextCount int `json:"text_count"`

	// DeobfuscatedCount is the number of unique addresses that only
	// surfaced after de-obfuscation substitutions.
	DeobfuscatedCount int `json:"deobfuscated_count"`

	// ScrapedAt is the UTC timestamp when the page was processed.
	ScrapedAt time.Time `json:"scraped_at"`
}

// HasEmails reports whether the page yielded any addresses.
func (p *PageResult) HasEmails() bool {
	return len(p.Emails) > 0
}

// MethodCount returns the count recorded for the given discovery method.
func (p *PageResult) MethodCount(m Method) int {
	switch m {
	case MethodMailto:
		return p.MailtoCount
	case MethodText:
		return p.TextCount
	case MethodDeobfuscated:
		return p.DeobfuscatedCount
	default:
		return 0
	}
}

// UniqueEmails returns the sorted set union of addresses across the given
// page records. Every address appears exactly once; casing is preserved, so
// two spellings that differ only in case count as distinct finds.
func UniqueEmails(pages []PageResult) []string {
	seen := make(map[string]struct{})
	for _, p := range pages {
		for _, e := range p.Emails {
			seen[e] = struct{}{}
		}
	}

	union := make([]string, 0, len(seen))
	for e := range seen {
		union = append(union, e)
	}
	sort.Strings(union)
	return union
}
