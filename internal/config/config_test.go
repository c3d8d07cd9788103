package config

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Crawl.MaxDepth != 2 {
		t.Errorf("Expected max depth 2, got %d", cfg.Crawl.MaxDepth)
	}

	if cfg.Crawl.WorkerCount != 4 {
		t.Errorf("Expected worker count 4, got %d", cfg.Crawl.WorkerCount)
	}

	if cfg.Crawl.PerHostDelay != 1*time.Second {
		t.Errorf("Expected per host delay 1s, got %v", cfg.Crawl.PerHostDelay)
	}

	if cfg.Crawl.FetchTimeout != 10*time.Second {
		t.Errorf("Expected fetch timeout 10s, got %v", cfg.Crawl.FetchTimeout)
	}

	if cfg.Crawl.UserAgent != "NovaSearch/1.0" {
		t.Errorf("Expected user agent 'NovaSearch/1.0', got %s", cfg.Crawl.UserAgent)
	}

	if !cfg.Crawl.RespectRobots {
		t.Errorf("Expected respect robots true")
	}

	if cfg.Search.DefaultLimit != 15 || cfg.Search.Mode != "or" {
		t.Errorf("Unexpected search defaults: %+v", cfg.Search)
	}

	if filepath.Base(cfg.DatabasePath) != "links.db" {
		t.Errorf("Expected database file links.db, got %s", cfg.DatabasePath)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "invalid worker count",
			mutate:  func(c *Config) { c.Crawl.WorkerCount = 0 },
			wantErr: ErrInvalidWorkerCount,
		},
		{
			name:    "negative depth",
			mutate:  func(c *Config) { c.Crawl.MaxDepth = -1 },
			wantErr: ErrInvalidMaxDepth,
		},
		{
			name:    "invalid timeout",
			mutate:  func(c *Config) { c.Crawl.FetchTimeout = 0 },
			wantErr: ErrInvalidTimeout,
		},
		{
			name:    "empty database path",
			mutate:  func(c *Config) { c.DatabasePath = "" },
			wantErr: ErrEmptyDatabasePath,
		},
		{
			name:    "unknown trailing slash policy",
			mutate:  func(c *Config) { c.Crawl.TrailingSlash = "add" },
			wantErr: ErrInvalidTrailingSlash,
		},
		{
			name:    "unknown search mode",
			mutate:  func(c *Config) { c.Search.Mode = "xor" },
			wantErr: ErrInvalidSearchMode,
		},
		{
			name:    "limit above max",
			mutate:  func(c *Config) { c.Search.DefaultLimit = 500 },
			wantErr: ErrInvalidLimit,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateBadPattern(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Crawl.ExcludePatterns = []string{"("}

	err := cfg.Validate()
	var patternErr *PatternError
	if !errors.As(err, &patternErr) {
		t.Fatalf("Expected PatternError, got %v", err)
	}
	if patternErr.Pattern != "(" {
		t.Errorf("Expected pattern '(', got %q", patternErr.Pattern)
	}
}

func TestValidateNormalizesDelay(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Crawl.PerHostDelay = -time.Second
	cfg.Crawl.TrailingSlash = ""

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.Crawl.PerHostDelay != 0 {
		t.Errorf("Expected negative delay clamped to 0, got %v", cfg.Crawl.PerHostDelay)
	}
	if cfg.Crawl.TrailingSlash != "strip" {
		t.Errorf("Expected empty trailing slash policy to default to strip, got %q", cfg.Crawl.TrailingSlash)
	}
}
