// Package config provides configuration management for the search engine.
// It defines configuration structures and default values for crawling,
// indexing, querying and serving.
package config

import (
	"path/filepath"
	"regexp"
	"time"

	"github.com/adrg/xdg"
)

// AppName names the data directory and the config file.
const AppName = "novasearch"

// Config is the complete runtime configuration
type Config struct {
	DatabasePath string       `mapstructure:"database_path" yaml:"database_path"` // Path to SQLite database file
	Log          LogConfig    `mapstructure:"log" yaml:"log"`
	Crawl        CrawlConfig  `mapstructure:"crawl" yaml:"crawl"`
	Index        IndexConfig  `mapstructure:"index" yaml:"index"`
	Search       SearchConfig `mapstructure:"search" yaml:"search"`
	Server       ServerConfig `mapstructure:"server" yaml:"server"`
}

// LogConfig controls the slog handler
type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`             // debug, info, warn, error
	Format     string `mapstructure:"format" yaml:"format"`           // json or text
	File       string `mapstructure:"file" yaml:"file"`               // Optional log file, rotated by size
	MaxSizeMB  int64  `mapstructure:"max_size_mb" yaml:"max_size_mb"` // Rotation threshold
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"` // Rotated files kept
}

// CrawlConfig holds crawler configuration
type CrawlConfig struct {
	MaxDepth            int           `mapstructure:"max_depth" yaml:"max_depth"`                         // Links deeper than this are not followed
	WorkerCount         int           `mapstructure:"worker_count" yaml:"worker_count"`                   // Number of concurrent fetch workers
	PerHostDelay        time.Duration `mapstructure:"per_host_delay" yaml:"per_host_delay"`               // Minimum interval between requests to one host
	FetchTimeout        time.Duration `mapstructure:"fetch_timeout" yaml:"fetch_timeout"`                 // HTTP request timeout
	UserAgent           string        `mapstructure:"user_agent" yaml:"user_agent"`                       // HTTP User-Agent header
	RespectRobots       bool          `mapstructure:"respect_robots" yaml:"respect_robots"`               // Whether to respect robots.txt
	FollowExternalHosts bool          `mapstructure:"follow_external_hosts" yaml:"follow_external_hosts"` // Follow links off the seed host
	MaxPages            int           `mapstructure:"max_pages" yaml:"max_pages"`                         // Stop after N pages (0=unlimited)
	MaxPending          int           `mapstructure:"max_pending" yaml:"max_pending"`                     // Cap on queued frontier entries
	MaxURLsPerHost      int           `mapstructure:"max_urls_per_host" yaml:"max_urls_per_host"`         // Discovered-URL budget per host
	IncludePatterns     []string      `mapstructure:"include_patterns" yaml:"include_patterns"`           // Regex patterns for URLs to include
	ExcludePatterns     []string      `mapstructure:"exclude_patterns" yaml:"exclude_patterns"`           // Regex patterns for URLs to exclude
	StripQuery          bool          `mapstructure:"strip_query" yaml:"strip_query"`                     // Drop query strings during normalization
	TrailingSlash       string        `mapstructure:"trailing_slash" yaml:"trailing_slash"`               // strip or keep
}

// IndexConfig holds tokenizer settings shared by the indexer and the query engine
type IndexConfig struct {
	Stemming       bool `mapstructure:"stemming" yaml:"stemming"`
	StopWords      bool `mapstructure:"stop_words" yaml:"stop_words"`
	MinTokenLength int  `mapstructure:"min_token_length" yaml:"min_token_length"`
}

// SearchConfig holds query engine settings
type SearchConfig struct {
	DefaultLimit  int           `mapstructure:"default_limit" yaml:"default_limit"`
	MaxLimit      int           `mapstructure:"max_limit" yaml:"max_limit"`
	Mode          string        `mapstructure:"mode" yaml:"mode"` // or, and
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	SnippetLength int           `mapstructure:"snippet_length" yaml:"snippet_length"`
}

// ServerConfig holds HTTP service settings
type ServerConfig struct {
	Addr              string   `mapstructure:"addr" yaml:"addr"`
	RateLimitGet      int      `mapstructure:"rate_limit_get" yaml:"rate_limit_get"`           // Requests per minute per client
	RateLimitPost     int      `mapstructure:"rate_limit_post" yaml:"rate_limit_post"`         // Requests per minute per client
	CORSOrigins       []string `mapstructure:"cors_origins" yaml:"cors_origins"`
	TrustProxyHeaders bool     `mapstructure:"trust_proxy_headers" yaml:"trust_proxy_headers"` // Take the client IP from proxy headers; only behind a proxy
}

// DefaultDatabasePath returns links.db inside the XDG data directory
func DefaultDatabasePath() string {
	return filepath.Join(xdg.DataHome, AppName, "links.db")
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		DatabasePath: DefaultDatabasePath(),
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 5,
		},
		Crawl: CrawlConfig{
			MaxDepth:       2,
			WorkerCount:    4,
			PerHostDelay:   1 * time.Second,
			FetchTimeout:   10 * time.Second,
			UserAgent:      "NovaSearch/1.0",
			RespectRobots:  true,
			MaxPending:     100000,
			MaxURLsPerHost: 10000,
			TrailingSlash:  "strip",
		},
		Index: IndexConfig{
			Stemming:       true,
			StopWords:      true,
			MinTokenLength: 2,
		},
		Search: SearchConfig{
			DefaultLimit:  15,
			MaxLimit:      100,
			Mode:          "or",
			Timeout:       5 * time.Second,
			SnippetLength: 200,
		},
		Server: ServerConfig{
			Addr:          ":8000",
			RateLimitGet:  15,
			RateLimitPost: 5,
			CORSOrigins:   []string{"*"},
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return ErrEmptyDatabasePath
	}
	if err := c.Crawl.Validate(); err != nil {
		return err
	}

	if c.Index.MinTokenLength < 1 {
		c.Index.MinTokenLength = 1
	}

	switch c.Search.Mode {
	case "or", "and":
	default:
		return ErrInvalidSearchMode
	}
	if c.Search.DefaultLimit <= 0 || c.Search.MaxLimit < c.Search.DefaultLimit {
		return ErrInvalidLimit
	}
	if c.Search.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	return nil
}

// Validate checks the crawl section on its own; the crawl trigger endpoint
// validates per-run overrides with it.
func (c *CrawlConfig) Validate() error {
	if c.MaxDepth < 0 {
		return ErrInvalidMaxDepth
	}
	if c.WorkerCount <= 0 {
		return ErrInvalidWorkerCount
	}
	if c.FetchTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.PerHostDelay < 0 {
		c.PerHostDelay = 0
	}

	switch c.TrailingSlash {
	case "":
		c.TrailingSlash = "strip"
	case "strip", "keep":
	default:
		return ErrInvalidTrailingSlash
	}

	for _, p := range append(append([]string{}, c.IncludePatterns...), c.ExcludePatterns...) {
		if _, err := regexp.Compile(p); err != nil {
			return &PatternError{Pattern: p, Err: err}
		}
	}
	return nil
}
