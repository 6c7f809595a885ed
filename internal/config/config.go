package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "webql"

	// DefaultOutputDir is the base directory for harvested files and reports.
	DefaultOutputDir = "webql_output"

	// DefaultTimeout bounds each HTTP request.
	DefaultTimeout = 30 * time.Second

	// DefaultToolTimeout bounds each external tool invocation. CodeQL
	// database creation on a large bundle can take many minutes.
	DefaultToolTimeout = 30 * time.Minute

	// DefaultMaxURLs caps the number of URLs fetched per crawl.
	DefaultMaxURLs = 10000

	// DefaultBatchSize is the number of targets analyzed concurrently.
	DefaultBatchSize = 4

	// DefaultRateLimit is the request rate per second. Zero is unlimited.
	DefaultRateLimit = 0

	// DefaultMaxBodySize limits the bytes read from one response.
	DefaultMaxBodySize = 10 * 1024 * 1024

	// DefaultQuerySuite is the CodeQL query suite run by analyze and parse.
	DefaultQuerySuite = "javascript-lgtm.qls"

	// DefaultDatabaseName is the CodeQL database directory name used by generate.
	DefaultDatabaseName = "webql_codeql_db"
)

// Config holds every option of a webql invocation. It is built from CLI
// flags and the optional configuration file, and passed down explicitly.
type Config struct {
	// Targets are seed URLs or local paths.
	Targets []string

	// OutputDir is the base directory for harvested files, databases and reports.
	OutputDir string

	// Aggressive enables brute-force script extension matching in HTML.
	Aggressive bool

	// Deobfuscate runs webcrack on every harvested script.
	Deobfuscate bool

	// Secrets runs trufflehog over the harvested scripts.
	Secrets bool

	// MaxURLs caps the number of URLs fetched per crawl. Zero is unlimited.
	MaxURLs int

	// Timeout bounds each HTTP request.
	Timeout time.Duration

	// ToolTimeout bounds each external tool invocation.
	ToolTimeout time.Duration

	// RateLimit is the request rate per second. Zero is unlimited.
	RateLimit float64

	// UserAgent overrides the crawler's User-Agent header when set.
	UserAgent string

	// Proxy routes crawl requests through a socks5:// or http:// proxy.
	Proxy string

	// MaxBodySize is the maximum response body size in bytes.
	MaxBodySize int64

	// BatchSize is the number of targets analyzed concurrently.
	BatchSize int

	// ContinueOnError keeps the pipeline running after a failed step.
	ContinueOnError bool

	// Verbose enables debug logging.
	Verbose bool

	// ConfigFilePath is an explicit configuration file path. When empty,
	// .webql is searched in the current directory and then the home directory.
	ConfigFilePath string

	// File is the parsed configuration file, never nil after loading.
	File *File

	// JSONReport selects JSON output.
	JSONReport bool

	// MarkdownReport selects Markdown output.
	MarkdownReport bool

	// ReportFile writes the report to a file instead of stdout.
	ReportFile string

	// NoColor disables ANSI colors in text output.
	NoColor bool

	// DBDir is the directory of the run history database.
	DBDir string

	// SaveToDB records each analysis in the run history.
	SaveToDB bool
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		OutputDir:   DefaultOutputDir,
		Deobfuscate: true,
		MaxURLs:     DefaultMaxURLs,
		Timeout:     DefaultTimeout,
		ToolTimeout: DefaultToolTimeout,
		RateLimit:   DefaultRateLimit,
		MaxBodySize: DefaultMaxBodySize,
		BatchSize:   DefaultBatchSize,
		File:        NewFile(),
		DBDir:       XDGDataDir(),
		SaveToDB:    true,
	}
}

// XDGDataDir returns the XDG data directory for webql, where the run
// history database lives.
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for webql.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for webql.
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return ErrNoTarget
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.ToolTimeout <= 0 {
		return ErrInvalidToolTimeout
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.MaxURLs < 0 {
		return ErrInvalidMaxURLs
	}
	if c.RateLimit < 0 {
		return ErrInvalidRateLimit
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	return nil
}

// Site returns the effective crawl settings for target: configuration file
// defaults, then the matching site entry, then the CLI flags that were set.
func (c *Config) Site(target string) SiteConfig {
	f := c.File
	if f == nil {
		f = NewFile()
	}
	site := f.SiteFor(target)
	if c.Aggressive {
		site.Aggressive = boolPtr(true)
	}
	if site.MaxURLs == 0 {
		site.MaxURLs = c.MaxURLs
	}
	if site.UserAgent == "" {
		site.UserAgent = c.UserAgent
	}
	if c.Proxy != "" {
		site.Proxy = c.Proxy
	}
	return site
}

func boolPtr(b bool) *bool {
	return &b
}
