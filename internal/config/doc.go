// Package config holds all configuration for the email scraper.
//
// A single flat Config struct is populated from CLI flags and passed through
// the application via dependency injection rather than global state. Default
// values live in package-level constants so flag definitions and tests share
// them. Site-specific overrides (headers, cookies, per-host depth) load from
// an optional .emailscraper YAML file.
package config
