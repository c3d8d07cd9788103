// Package crawler schedules a depth-bounded crawl: a pool of workers takes
// URLs from the frontier, fetches them, records pages and links, indexes the
// text and feeds newly discovered links back into the frontier.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/Nova-Search/api/internal/config"
	"github.com/Nova-Search/api/internal/fetcher"
	"github.com/Nova-Search/api/internal/store"
	"github.com/Nova-Search/api/internal/urlnorm"
)

// Crawler starts and resumes crawl runs. One Crawler can drive several runs
// at once; each run has its own frontier.
type Crawler struct {
	config     *config.CrawlConfig
	storage    Storage
	indexer    DocumentIndexer
	fetcher    PageFetcher
	robots     RobotsChecker
	normalizer *urlnorm.Normalizer
	include    []*regexp.Regexp
	exclude    []*regexp.Regexp
	logger     *slog.Logger
	closer     func()

	statsInterval time.Duration
}

// NewNormalizer returns the URL normalizer described by the crawl settings
func NewNormalizer(cfg *config.CrawlConfig) *urlnorm.Normalizer {
	return urlnorm.New(urlnorm.Options{
		StripQuery:        cfg.StripQuery,
		KeepTrailingSlash: cfg.TrailingSlash == "keep",
	})
}

// NewCrawler creates a crawler that fetches over HTTP with the configured
// user agent and timeout, and honours robots.txt unless told otherwise.
func NewCrawler(cfg *config.CrawlConfig, storage Storage, indexer DocumentIndexer, logger *slog.Logger) (*Crawler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	normalizer := NewNormalizer(cfg)
	f := fetcher.New(fetcher.Options{
		UserAgent:  cfg.UserAgent,
		Timeout:    cfg.FetchTimeout,
		Normalizer: normalizer,
		Logger:     logger,
	})

	c := &Crawler{
		config:        cfg,
		storage:       storage,
		indexer:       indexer,
		fetcher:       f,
		robots:        fetcher.NewRobotsPolicy(f.Client(), cfg.RespectRobots, logger),
		normalizer:    normalizer,
		logger:        logger,
		closer:        f.Close,
		statsInterval: 10 * time.Second,
	}

	for _, p := range cfg.IncludePatterns {
		c.include = append(c.include, regexp.MustCompile(p))
	}
	for _, p := range cfg.ExcludePatterns {
		c.exclude = append(c.exclude, regexp.MustCompile(p))
	}
	return c, nil
}

// Normalizer returns the normalizer used for start URLs and links
func (c *Crawler) Normalizer() *urlnorm.Normalizer {
	return c.normalizer
}

// Close releases idle HTTP connections
func (c *Crawler) Close() {
	if c.closer != nil {
		c.closer()
	}
}

// Run crawls from req.StartURL until the frontier is exhausted, max_pages
// is reached or ctx is cancelled, and returns the final run record.
func (c *Crawler) Run(ctx context.Context, req Request) (store.CrawlRun, error) {
	job, err := c.Start(ctx, req)
	if err != nil {
		return store.CrawlRun{}, err
	}
	return job.Execute(ctx)
}

// Resume continues an interrupted run from its stored state
func (c *Crawler) Resume(ctx context.Context, runID string) (store.CrawlRun, error) {
	job, err := c.Reopen(ctx, runID)
	if err != nil {
		return store.CrawlRun{}, err
	}
	return job.Execute(ctx)
}

// Start records a new run and seeds its frontier. The run does not fetch
// anything until Execute is called.
func (c *Crawler) Start(ctx context.Context, req Request) (*Job, error) {
	if req.MaxDepth < 0 {
		return nil, config.ErrInvalidMaxDepth
	}
	startURL, err := c.normalizer.Normalize(req.StartURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidStartURL, err)
	}

	id := req.RunID
	if id == "" {
		if id, err = NewRunID(); err != nil {
			return nil, err
		}
	}

	run := store.CrawlRun{
		ID:        id,
		StartURL:  startURL,
		MaxDepth:  req.MaxDepth,
		Status:    store.RunRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := c.storage.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create crawl run: %w", err)
	}

	job := c.newJob(run)
	job.frontier.Enqueue(startURL, 0, "")
	return job, nil
}

// Reopen rebuilds a run's frontier from the store: fetched and failed pages
// count as visited, pending pages are queued again, and links from fetched
// pages to URLs never reached are queued one level below their source.
func (c *Crawler) Reopen(ctx context.Context, runID string) (*Job, error) {
	run, err := c.storage.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load crawl run %s: %w", runID, err)
	}
	if run.Status == store.RunCompleted {
		return nil, fmt.Errorf("%w: %s", ErrRunFinished, runID)
	}

	job := c.newJob(run)

	var pending []store.Page
	var sources []store.Page
	for page, err := range c.storage.IteratePages(ctx, store.PageFilter{RunID: runID}) {
		if err != nil {
			return nil, fmt.Errorf("rebuild frontier: %w", err)
		}
		switch page.Status {
		case store.StatusPending:
			pending = append(pending, store.Page{URL: page.URL, Depth: page.Depth, DiscoveredFrom: page.DiscoveredFrom})
			continue
		case store.StatusFetched:
			job.fetched.Add(1)
			if page.Depth < run.MaxDepth {
				sources = append(sources, store.Page{URL: page.URL, Depth: page.Depth})
			}
		case store.StatusFailed:
			job.failed.Add(1)
		}
		job.frontier.MarkVisited(page.URL)
	}
	job.dispatched.Store(job.fetched.Load() + job.failed.Load())

	for _, p := range pending {
		job.frontier.Enqueue(p.URL, p.Depth, p.DiscoveredFrom)
	}
	for _, src := range sources {
		targets, err := c.storage.OutLinks(ctx, src.URL)
		if err != nil {
			return nil, fmt.Errorf("rebuild frontier: %w", err)
		}
		for _, target := range targets {
			if job.inScope(target) {
				job.frontier.Enqueue(target, src.Depth+1, src.URL)
			}
		}
	}
	if !job.frontier.Seen(run.StartURL) {
		job.frontier.Enqueue(run.StartURL, 0, "")
	}

	run.Status = store.RunRunning
	run.FinishedAt = time.Time{}
	run.Error = ""
	if err := c.storage.UpdateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("reopen crawl run: %w", err)
	}
	job.record = run

	c.logger.Info("Resuming crawl", "run_id", runID,
		"fetched", job.fetched.Load(), "failed", job.failed.Load(), "queued", job.frontier.Len())
	return job, nil
}

// NewRunID returns a time-ordered run identifier
func NewRunID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	return id.String(), nil
}

// origin returns scheme://host of a normalized URL
func origin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// shouldCrawlURL determines if a URL should be crawled based on host and
// include/exclude patterns
func (c *Crawler) shouldCrawlURL(seedOrigin, urlStr string) bool {
	if !c.config.FollowExternalHosts && origin(urlStr) != seedOrigin {
		return false
	}

	// If include patterns are specified, URL must match at least one
	if len(c.include) > 0 {
		matched := false
		for _, re := range c.include {
			if re.MatchString(urlStr) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	for _, re := range c.exclude {
		if re.MatchString(urlStr) {
			return false
		}
	}
	return true
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
