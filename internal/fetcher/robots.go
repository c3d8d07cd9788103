package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"
)

// RobotsPolicy answers robots.txt questions per host. Rules are fetched
// once per host and cached for the life of the policy. Fetch failures and
// 5xx responses allow everything, and that outcome is cached too so an
// unreachable host costs one robots.txt request per crawl.
type RobotsPolicy struct {
	httpClient *HTTPClient
	userAgent  string
	respect    bool
	logger     *slog.Logger

	mu    sync.RWMutex
	rules map[string]*robotstxt.Group
	group singleflight.Group
}

// NewRobotsPolicy creates a robots.txt policy. With respect=false every URL
// is allowed and no robots.txt is requested.
func NewRobotsPolicy(httpClient *HTTPClient, respect bool, logger *slog.Logger) *RobotsPolicy {
	if logger == nil {
		logger = slog.Default()
	}
	return &RobotsPolicy{
		httpClient: httpClient,
		userAgent:  httpClient.UserAgent(),
		respect:    respect,
		logger:     logger,
		rules:      make(map[string]*robotstxt.Group),
	}
}

// Allowed reports whether rawURL may be fetched
func (r *RobotsPolicy) Allowed(ctx context.Context, rawURL string) bool {
	if !r.respect {
		return true
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	group, err := r.getRules(ctx, parsedURL)
	if err != nil {
		return true
	}

	path := parsedURL.EscapedPath()
	if path == "" {
		path = "/"
	}
	if parsedURL.RawQuery != "" {
		path += "?" + parsedURL.RawQuery
	}
	return group.Test(path)
}

// CrawlDelay returns the Crawl-delay for rawURL's host, or 0 when robots
// are ignored, unset or could not be fetched.
func (r *RobotsPolicy) CrawlDelay(ctx context.Context, rawURL string) time.Duration {
	if !r.respect {
		return 0
	}
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return 0
	}
	group, err := r.getRules(ctx, parsedURL)
	if err != nil {
		return 0
	}
	return group.CrawlDelay
}

// getRules fetches and parses robots.txt for a host, at most once
// concurrently per host. It only fails when ctx is done; any other failure
// caches an allow-all group for the host.
func (r *RobotsPolicy) getRules(ctx context.Context, u *url.URL) (*robotstxt.Group, error) {
	host := strings.ToLower(u.Host)

	r.mu.RLock()
	group, exists := r.rules[host]
	r.mu.RUnlock()
	if exists {
		return group, nil
	}

	v, err, _ := r.group.Do(host, func() (interface{}, error) {
		r.mu.RLock()
		cached, ok := r.rules[host]
		r.mu.RUnlock()
		if ok {
			return cached, nil
		}

		g, err := r.fetchRules(ctx, u.Scheme, host)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.logger.Warn("robots fetch failed; allowing access", "host", host, "error", err)
			g = allowAll.FindGroup(r.userAgent)
		}

		r.mu.Lock()
		r.rules[host] = g
		r.mu.Unlock()
		return g, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*robotstxt.Group), nil
}

func (r *RobotsPolicy) fetchRules(ctx context.Context, scheme, host string) (*robotstxt.Group, error) {
	resp, err := r.httpClient.Get(ctx, fmt.Sprintf("%s://%s/robots.txt", scheme, host))
	if err != nil {
		return nil, err
	}

	status := resp.StatusCode
	if status >= 500 {
		// An unavailable robots.txt is treated as absent.
		status = 404
	}
	data, err := robotstxt.FromStatusAndBytes(status, resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse robots: %w", err)
	}
	return data.FindGroup(r.userAgent), nil
}

// allowAll stands in for a robots.txt that could not be fetched
var allowAll, _ = robotstxt.FromStatusAndBytes(404, nil)
