package crawler

import (
	"regexp"
	"testing"

	"github.com/Nova-Search/api/internal/config"
)

func TestShouldCrawlURL(t *testing.T) {
	const seed = "https://example.com"

	tests := []struct {
		name            string
		followExternal  bool
		includePatterns []string
		excludePatterns []string
		url             string
		expected        bool
	}{
		{
			name:     "Same host, no patterns",
			url:      "https://example.com/page",
			expected: true,
		},
		{
			name:     "External host rejected",
			url:      "https://other.com/page",
			expected: false,
		},
		{
			name:     "Different scheme is a different origin",
			url:      "http://example.com/page",
			expected: false,
		},
		{
			name:           "External host allowed",
			followExternal: true,
			url:            "https://other.com/page",
			expected:       true,
		},
		{
			name:            "Include pattern match",
			includePatterns: []string{`^https?://example\.com/docs/`},
			url:             "https://example.com/docs/intro",
			expected:        true,
		},
		{
			name:            "Include pattern no match",
			includePatterns: []string{`^https?://example\.com/docs/`},
			url:             "https://example.com/blog/post",
			expected:        false,
		},
		{
			name:            "Exclude pattern match",
			excludePatterns: []string{`\.pdf$`},
			url:             "https://example.com/file.pdf",
			expected:        false,
		},
		{
			name:            "Exclude wins over include",
			includePatterns: []string{`/docs/`},
			excludePatterns: []string{`/docs/private`},
			url:             "https://example.com/docs/private/a",
			expected:        false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Crawler{config: &config.CrawlConfig{FollowExternalHosts: tt.followExternal}}
			for _, p := range tt.includePatterns {
				c.include = append(c.include, regexp.MustCompile(p))
			}
			for _, p := range tt.excludePatterns {
				c.exclude = append(c.exclude, regexp.MustCompile(p))
			}

			if got := c.shouldCrawlURL(seed, tt.url); got != tt.expected {
				t.Errorf("shouldCrawlURL(%q) = %v, want %v", tt.url, got, tt.expected)
			}
		})
	}
}

func TestOrigin(t *testing.T) {
	if got := origin("http://127.0.0.1:8080/a/b?q=1"); got != "http://127.0.0.1:8080" {
		t.Errorf("origin() = %q", got)
	}
}
