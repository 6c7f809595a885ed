package config

import (
	"maps"
	"net/url"
	"strings"
)

// SiteConfig holds crawl settings for one host.
type SiteConfig struct {
	// Cookie is sent with every request to the site.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are extra HTTP headers sent with every request to the site.
	Headers map[string]string `yaml:"headers,omitempty"`

	// UserAgent overrides the default User-Agent.
	UserAgent string `yaml:"userAgent,omitempty"`

	// Aggressive enables brute-force extension matching. Nil inherits.
	Aggressive *bool `yaml:"aggressive,omitempty"`

	// MaxURLs caps the crawl. Zero inherits.
	MaxURLs int `yaml:"maxURLs,omitempty"`

	// IgnorePatterns are glob patterns of URL paths that are never fetched.
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`

	// FollowPatterns restrict the crawl to matching URL paths when set.
	FollowPatterns []string `yaml:"followPatterns,omitempty"`

	// Proxy routes requests through a socks5:// or http:// proxy.
	Proxy string `yaml:"proxy,omitempty"`
}

// IsAggressive reports whether aggressive matching is enabled.
func (s SiteConfig) IsAggressive() bool {
	return s.Aggressive != nil && *s.Aggressive
}

// ToolsConfig locates the external programs webql drives. Empty values
// fall back to the program name on PATH.
type ToolsConfig struct {
	Webcrack   string `yaml:"webcrack,omitempty"`
	Beautifier string `yaml:"beautifier,omitempty"`
	CodeQL     string `yaml:"codeql,omitempty"`
	Trufflehog string `yaml:"trufflehog,omitempty"`

	// QuerySuite overrides the CodeQL query suite.
	QuerySuite string `yaml:"querySuite,omitempty"`
}

// File represents the structure of the .webql configuration file.
type File struct {
	// Defaults apply to every site unless overridden.
	Defaults SiteConfig `yaml:"defaults,omitempty"`

	// Sites maps a host (optionally with port) to its settings.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Tools locates external programs.
	Tools ToolsConfig `yaml:"tools,omitempty"`
}

// DefaultIgnorePatterns returns the ignore patterns used when the defaults
// section sets none. Images and web fonts never hold script.
func DefaultIgnorePatterns() []string {
	return []string{"*.png", "*.jpg", "*.jpeg", "*.gif", "*.svg", "*.ico", "*.webp", "*.woff*", "*.ttf"}
}

// NewFile returns a configuration file with no sites and the default ignore
// patterns.
func NewFile() *File {
	return &File{
		Defaults: SiteConfig{IgnorePatterns: DefaultIgnorePatterns()},
		Sites:    make(map[string]SiteConfig),
	}
}

// QuerySuite returns the configured query suite or DefaultQuerySuite.
func (f *File) QuerySuite() string {
	if f.Tools.QuerySuite != "" {
		return f.Tools.QuerySuite
	}
	return DefaultQuerySuite
}

// SiteFor returns the settings for a target URL. Sites are looked up by
// the full target, then by host with port, then by host alone.
func (f *File) SiteFor(target string) SiteConfig {
	for _, key := range siteKeys(target) {
		if site, ok := f.Sites[key]; ok {
			return mergeSiteConfig(f.Defaults, site)
		}
	}
	return mergeSiteConfig(f.Defaults, SiteConfig{})
}

func siteKeys(target string) []string {
	keys := []string{target}
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return keys
	}
	host := strings.ToLower(u.Host)
	keys = append(keys, host)
	if name := strings.ToLower(u.Hostname()); name != host {
		keys = append(keys, name)
	}
	return keys
}

// mergeSiteConfig overlays the non-zero fields of override on defaults.
// The result never shares maps or slices with its inputs.
func mergeSiteConfig(defaults, override SiteConfig) SiteConfig {
	result := defaults
	result.Headers = maps.Clone(defaults.Headers)
	result.IgnorePatterns = append([]string(nil), defaults.IgnorePatterns...)
	result.FollowPatterns = append([]string(nil), defaults.FollowPatterns...)

	if override.Cookie != "" {
		result.Cookie = override.Cookie
	}
	if override.UserAgent != "" {
		result.UserAgent = override.UserAgent
	}
	if override.Aggressive != nil {
		result.Aggressive = boolPtr(*override.Aggressive)
	}
	if override.MaxURLs != 0 {
		result.MaxURLs = override.MaxURLs
	}
	if override.Proxy != "" {
		result.Proxy = override.Proxy
	}
	if len(override.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string, len(override.Headers))
		}
		maps.Copy(result.Headers, override.Headers)
	}
	if len(override.IgnorePatterns) > 0 {
		result.IgnorePatterns = append([]string(nil), override.IgnorePatterns...)
	}
	if len(override.FollowPatterns) > 0 {
		result.FollowPatterns = append([]string(nil), override.FollowPatterns...)
	}
	return result
}
