package config

// SiteConfig holds site-specific overrides for a single hostname.
// This allows tuning crawl behavior for sites that need cookies, custom
// headers, or a different depth than the rest of a batch.
type SiteConfig struct {
	// Cookie is an HTTP cookie to send when crawling this site.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are custom HTTP headers for requests to this site.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Depth overrides the global crawl depth for this site.
	// If zero, the global MaxDepth is used.
	Depth int `yaml:"depth,omitempty"`

	// AllowPatterns are extra regex patterns marking links to prioritize
	// on this site when contact bias is enabled.
	AllowPatterns []string `yaml:"allowPatterns,omitempty"`

	// DenyPatterns are regex patterns for URLs to skip on this site.
	DenyPatterns []string `yaml:"denyPatterns,omitempty"`
}

// File represents the structure of the .emailscraper configuration file.
type File struct {
	// Sites maps hostnames to their site-specific configurations.
	// Keys are bare hostnames without a scheme (e.g. "example.com").
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults contains overrides applied to every site unless the
	// site-specific entry sets its own value.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the configuration for a hostname, merging the
// site-specific entry over the defaults.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	result := cf.Defaults

	if siteConfig, ok := cf.Sites[host]; ok {
		if siteConfig.Cookie != "" {
			result.Cookie = siteConfig.Cookie
		}
		if siteConfig.Depth != 0 {
			result.Depth = siteConfig.Depth
		}
		if len(siteConfig.Headers) > 0 {
			// Merge into a fresh map; result.Headers still aliases the
			// shared Defaults.Headers map at this point.
			merged := make(map[string]string, len(result.Headers)+len(siteConfig.Headers))
			for k, v := range result.Headers {
				merged[k] = v
			}
			for k, v := range siteConfig.Headers {
				merged[k] = v
			}
			result.Headers = merged
		}
		if len(siteConfig.AllowPatterns) > 0 {
			result.AllowPatterns = siteConfig.AllowPatterns
		}
		if len(siteConfig.DenyPatterns) > 0 {
			result.DenyPatterns = siteConfig.DenyPatterns
		}
	}

	return result
}
