package crawler

import (
	"net"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/jlagares/daimatics-n8n/internal/model"
)

// staticAssetPattern filters out media, font, style, and archive URLs
// before they reach the fetcher. Binary downloads cannot contain mailto
// links and their bodies are not worth scanning for addresses.
var staticAssetPattern = regexp.MustCompile(`(?i)\.(png|apng|bmp|gif|ico|cur|jpg|jpeg|jfif|pjp|pjpeg|svg|tif|tiff|webp|xbm|3gp|aac|flac|mpg|mpeg|mp3|mp4|m4a|m4v|m4p|oga|ogg|ogv|mov|wav|webm|eot|woff|woff2|ttf|otf|css|js|pdf|zip|tar|gz|bz2|rar|7z|exe|dmg|iso|apk|doc|docx|xls|xlsx|ppt|pptx)(?:\?|#|$)`)

// defaultContactPatterns mark contact-like paths. They drive link ordering
// when contact bias is enabled and the caller supplied no patterns of
// their own.
var defaultContactPatterns = []string{
	"contact", "about", "team", "impressum", "kontakt", "legal", "privacy",
}

// scope decides which URLs are inside the crawl perimeter.
//
// Entries are matched in two modes. An entry carrying a port (and any
// entry derived from an IP or localhost seed) must equal the URL's
// host:port exactly. A bare registered name matches the URL's hostname
// and all of its subdomains, the same rule Scrapy's offsite middleware
// applies to allowed_domains.
type scope struct {
	// exact holds host or host:port entries requiring an exact match.
	exact map[string]bool

	// suffixes holds registered names matched with subdomain widening.
	suffixes []string
}

// newScope builds the crawl perimeter from explicit allowed domains, or
// derives it from the seed URLs when none are given. With
// includeSubdomains the derived entry is the registrable apex of each
// seed host (via the public suffix list), so a seed of www.example.com
// also admits blog.example.com.
func newScope(targets []model.Target, allowed []string, includeSubdomains bool) *scope {
	s := &scope{exact: make(map[string]bool)}

	if len(allowed) > 0 {
		for _, entry := range allowed {
			entry = strings.ToLower(strings.TrimSpace(entry))
			if entry == "" {
				continue
			}
			if strings.Contains(entry, ":") || isLiteralHost(entry) {
				s.exact[entry] = true
				continue
			}
			s.suffixes = append(s.suffixes, entry)
		}
		return s
	}

	for _, t := range targets {
		host := strings.ToLower(t.Host())
		if isLiteralHost(host) {
			// httptest servers and LAN targets carry meaning in the
			// port, so the whole locator is the perimeter.
			s.exact[strings.ToLower(t.HostPort())] = true
			continue
		}
		if includeSubdomains {
			if apex, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
				s.suffixes = append(s.suffixes, apex)
				continue
			}
		}
		s.suffixes = append(s.suffixes, host)
	}
	return s
}

// Allows reports whether the URL falls inside the crawl perimeter.
func (s *scope) Allows(u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	if s.exact[strings.ToLower(u.Host)] || s.exact[host] {
		return true
	}
	for _, d := range s.suffixes {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// isLiteralHost reports whether the host is an IP literal or localhost,
// names the public suffix list cannot widen.
func isLiteralHost(host string) bool {
	if host == "localhost" {
		return true
	}
	return net.ParseIP(strings.Trim(host, "[]")) != nil
}

// compilePatterns compiles user-supplied regular expressions, reporting
// the first malformed one.
func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// compileContactPatterns compiles the patterns used for contact-biased
// link ordering. User patterns are taken as written; the built-in set is
// matched case-insensitively.
func compileContactPatterns(userPatterns []string) ([]*regexp.Regexp, error) {
	if len(userPatterns) > 0 {
		return compilePatterns(userPatterns)
	}
	compiled := make([]*regexp.Regexp, 0, len(defaultContactPatterns))
	for _, p := range defaultContactPatterns {
		compiled = append(compiled, regexp.MustCompile(`(?i)`+p))
	}
	return compiled, nil
}

// matchAny reports whether any pattern matches s.
func matchAny(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// orderByContactBias partitions links so that contact-like URLs are
// visited first. Order within each partition is preserved.
func orderByContactBias(links []string, contactPatterns []*regexp.Regexp) []string {
	if len(contactPatterns) == 0 || len(links) < 2 {
		return links
	}

	contact := make([]string, 0, len(links))
	rest := make([]string, 0, len(links))
	for _, link := range links {
		if matchAny(contactPatterns, link) {
			contact = append(contact, link)
		} else {
			rest = append(rest, link)
		}
	}
	return append(contact, rest...)
}
