package extract

import (
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

// EmailPattern matches email-like tokens: local part, "@", one or more
// dotted domain labels, and a 2-24 character TLD. Case-insensitive.
var EmailPattern = regexp.MustCompile(`(?i)\b[A-Z0-9._%+\-]+@(?:[A-Z0-9\-]+\.)+[A-Z]{2,24}\b`)

// Obfuscation tokens. The bracketed forms are replaced regardless of
// surrounding whitespace so "name[at]domain[dot]com" and
// "name [at] domain [dot] com" both normalize to a matchable address.
var (
	atToken  = regexp.MustCompile(`(?i)[ \t]*(?:\[\s*at\s*\]|\(\s*at\s*\))[ \t]*`)
	dotToken = regexp.MustCompile(`(?i)[ \t]*(?:\[\s*dot\s*\]|\(\s*dot\s*\))[ \t]*`)
)

// Result holds the merged address set for one page along with per-method
// discovery counts. An address found by several methods appears once in
// Emails while still incrementing each method's counter.
type Result struct {
	// Emails is the sorted unique address set for the page.
	Emails []string

	// MailtoCount is the number of unique addresses from mailto: anchors.
	MailtoCount int

	// TextCount is the number of unique addresses matched in page text.
	TextCount int

	// DeobfuscatedCount is the number of unique addresses that only
	// matched after obfuscation tokens were substituted.
	DeobfuscatedCount int
}

// HasEmails reports whether any pass found an address.
func (r Result) HasEmails() bool {
	return len(r.Emails) > 0
}

// ExtractPage runs all discovery passes over a parsed HTML document or
// element and merges their finds. Text passes cover all text nodes under
// <body> (falling back to the selection itself for fragments), script and
// style contents included, since addresses frequently hide in both.
func ExtractPage(sel *goquery.Selection) Result {
	mailtoSet := make(map[string]struct{})
	sel.Find(`a[href^='mailto:']`).Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		for _, addr := range MailtoAddresses(href) {
			mailtoSet[addr] = struct{}{}
		}
	})

	text := PageText(sel)
	textSet := matchSet(text)

	deobfSet := matchSet(Deobfuscate(text))
	for addr := range textSet {
		delete(deobfSet, addr)
	}

	union := make(map[string]struct{}, len(mailtoSet)+len(textSet)+len(deobfSet))
	for _, set := range []map[string]struct{}{mailtoSet, textSet, deobfSet} {
		for addr := range set {
			union[addr] = struct{}{}
		}
	}

	emails := make([]string, 0, len(union))
	for addr := range union {
		emails = append(emails, addr)
	}
	sort.Strings(emails)

	return Result{
		Emails:            emails,
		MailtoCount:       len(mailtoSet),
		TextCount:         len(textSet),
		DeobfuscatedCount: len(deobfSet),
	}
}

// MailtoAddresses parses a single mailto: href into valid addresses.
// Query parameters (subject, body) are stripped and comma-separated
// recipient lists are split. A candidate is kept only when the email
// pattern matches it in full.
func MailtoAddresses(href string) []string {
	rest, ok := strings.CutPrefix(href, "mailto:")
	if !ok {
		return nil
	}
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		rest = rest[:i]
	}

	var addrs []string
	for _, part := range strings.Split(rest, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if EmailPattern.FindString(part) == part {
			addrs = append(addrs, part)
		}
	}
	return addrs
}

// Deobfuscate rewrites common address obfuscations so the email pattern
// can match them: "[at]"/"(at)" and a bare " at " become "@",
// "[dot]"/"(dot)" become ".". Input is NFKC-normalized first, which folds
// full-width variants like "＠" into their ASCII forms.
func Deobfuscate(text string) string {
	s := norm.NFKC.String(text)
	s = atToken.ReplaceAllString(s, "@")
	s = strings.ReplaceAll(s, " at ", "@")
	s = dotToken.ReplaceAllString(s, ".")
	return s
}

// PageText returns the document's text content: every text node under
// <body> (or under the selection itself when it has no body), trimmed and
// joined with single spaces. Joining with spaces keeps addresses from
// merging across adjacent nodes.
func PageText(sel *goquery.Selection) string {
	root := sel
	if body := sel.Find("body"); body.Length() > 0 {
		root = body
	}

	var parts []string
	for _, n := range root.Nodes {
		collectText(n, &parts)
	}
	return strings.Join(parts, " ")
}

// collectText appends trimmed text node contents in document order.
func collectText(n *html.Node, parts *[]string) {
	if n.Type == html.TextNode {
		if t := strings.TrimSpace(n.Data); t != "" {
			*parts = append(*parts, t)
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, parts)
	}
}

// matchSet collects every pattern match in text as a set.
func matchSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, m := range EmailPattern.FindAllString(text, -1) {
		set[m] = struct{}{}
	}
	return set
}
