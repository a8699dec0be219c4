package model

import (
	"errors"
	"net/url"
	"strings"
)

// Target errors.
var (
	// ErrInvalidTarget is returned when the URL is not an absolute http(s) URL.
	ErrInvalidTarget = errors.New("invalid target URL")
	// ErrEmptyTarget is returned when the URL is empty.
	ErrEmptyTarget = errors.New("target URL cannot be empty")
)

// Target is an immutable value object representing a validated crawl start URL.
// Only absolute http and https URLs with a non-empty host are accepted, so a
// Target can always be handed to the crawler subprocess as-is.
type Target struct {
	raw    string   // Original URL string as provided
	parsed *url.URL // Parsed form, scheme and host guaranteed non-empty
}

// NewTarget creates a Target from a raw URL string.
// It returns an error if the URL is empty, unparseable, uses a scheme other
// than http/https, or has no host.
func NewTarget(raw string) (Target, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Target{}, ErrEmptyTarget
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return Target{}, ErrInvalidTarget
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return Target{}, ErrInvalidTarget
	}
	if u.Host == "" {
		return Target{}, ErrInvalidTarget
	}

	return Target{raw: trimmed, parsed: u}, nil
}

// String returns the target URL as provided (whitespace trimmed).
func (t Target) String() string {
	return t.raw
}

// Host returns the hostname portion of the target without any port.
func (t Target) Host() string {
	return t.parsed.Hostname()
}

// HostPort returns the network locator of the target: the hostname plus
// the port when the URL carries one.
func (t Target) HostPort() string {
	return t.parsed.Host
}

// Scheme returns the lowercased URL scheme (http or https).
func (t Target) Scheme() string {
	return strings.ToLower(t.parsed.Scheme)
}

// IsZero reports whether the target is the zero value.
func (t Target) IsZero() bool {
	return t.parsed == nil
}
