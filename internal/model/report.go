package model

import (
	"time"

	"github.com/google/uuid"
)

// CrawlOptions records the effective options a crawl ran with. They are
// embedded in the report so a stored run can be reproduced later.
type CrawlOptions struct {
	// MaxDepth is the link-following limit (start page = 0).
	MaxDepth int `json:"max_depth"`

	// MaxPagesPerDomain caps parsed pages per hostname.
	MaxPagesPerDomain int `json:"max_pages_per_domain"`

	// ContactBias is true when contact-like links were scheduled first.
	ContactBias bool `json:"contact_bias"`

	// AllowedDomains holds the domain suffixes the crawl was confined to.
	AllowedDomains []string `json:"allowed_domains,omitempty"`

	// AllowPatterns holds the regex patterns used for contact bias.
	AllowPatterns []string `json:"allow_patterns,omitempty"`
}

// CrawlStats aggregates counters collected while the spider ran.
type CrawlStats struct {
	// PagesVisited is the number of HTML pages parsed, including pages
	// that yielded no addresses.
	PagesVisited int `json:"pages_visited"`

	// Requests is the number of fetches attempted.
	Requests int `json:"requests"`

	// Errors is the number of failed fetches after retries.
	Errors int `json:"errors"`

	// Retries is the number of fetches retried after a transient failure.
	Retries int `json:"retries"`

	// DurationMS is the wall-clock crawl duration in milliseconds.
	DurationMS int64 `json:"duration_ms"`
}

// Duration returns the crawl duration as a time.Duration.
func (s CrawlStats) Duration() time.Duration {
	return time.Duration(s.DurationMS) * time.Millisecond
}

// DomainVerification is the result of an MX lookup for one email domain.
type DomainVerification struct {
	// Domain is the part after "@" shared by one or more found addresses.
	Domain string `json:"domain"`

	// HasMX is true when the domain publishes MX records (or, failing
	// that, resolves at all).
	HasMX bool `json:"has_mx"`

	// MailHost is the preferred MX host when one exists.
	MailHost string `json:"mail_host,omitempty"`

	// Error describes a lookup failure, if any.
	Error string `json:"error,omitempty"`
}

// CrawlReport is the full result of one crawl run. It accumulates state as
// pipeline steps execute and is the unit persisted to the history database.
type CrawlReport struct {
	// RunID uniquely identifies this run.
	RunID string `json:"run_id"`

	// StartURLs are the seed URLs the crawl began from.
	StartURLs []string `json:"start_urls"`

	// Options are the effective crawl options.
	Options CrawlOptions `json:"options"`

	// StartedAt is when the run began (UTC).
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the run completed (UTC); zero while running.
	FinishedAt time.Time `json:"finished_at,omitzero"`

	// Pages holds one record per page that yielded addresses.
	Pages []PageResult `json:"pages"`

	// UniqueEmails is the sorted set union across Pages, filled by the
	// aggregation step.
	UniqueEmails []string `json:"unique_emails"`

	// Verifications holds per-domain MX results when verification ran.
	Verifications []DomainVerification `json:"verifications,omitempty"`

	// Stats carries spider counters.
	Stats CrawlStats `json:"stats"`

	// TimedOut is true when the run was cancelled before completion.
	TimedOut bool `json:"timed_out"`

	// Error holds the failure that stopped the run, if any.
	// ErrorMessage carries it into serialized forms.
	Error        error  `json:"-"`
	ErrorMessage string `json:"error,omitempty"`

	// PerformedSteps lists pipeline steps that ran, in order.
	PerformedSteps []string `json:"performed_steps,omitempty"`

	// Summary is the condensed view, generated on demand.
	Summary *CrawlSummary `json:"summary,omitempty"`
}

// NewCrawlReport creates an empty report for the given seed URLs with a
// fresh run ID.
func NewCrawlReport(startURLs []string) *CrawlReport {
	return &CrawlReport{
		RunID:        uuid.New().String(),
		StartURLs:    append([]string(nil), startURLs...),
		StartedAt:    time.Now().UTC(),
		Pages:        []PageResult{},
		UniqueEmails: []string{},
	}
}

// StartURL returns the first seed URL, or "" for an empty report.
func (r *CrawlReport) StartURL() string {
	if len(r.StartURLs) == 0 {
		return ""
	}
	return r.StartURLs[0]
}

// AddPage appends a page record to the report.
func (r *CrawlReport) AddPage(p PageResult) {
	r.Pages = append(r.Pages, p)
}

// Succeeded reports whether the run finished without error or timeout.
func (r *CrawlReport) Succeeded() bool {
	return r.Error == nil && r.ErrorMessage == "" && !r.TimedOut
}

// Finish stamps the completion time and computes the run duration.
func (r *CrawlReport) Finish() {
	r.FinishedAt = time.Now().UTC()
	r.Stats.DurationMS = r.FinishedAt.Sub(r.StartedAt).Milliseconds()
}

// RecordError stores a failure on the report without overwriting an
// earlier one.
func (r *CrawlReport) RecordError(err error) {
	if err == nil || r.Error != nil {
		return
	}
	r.Error = err
	r.ErrorMessage = err.Error()
}
