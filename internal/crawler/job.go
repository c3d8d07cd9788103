package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Nova-Search/api/internal/fetcher"
	"github.com/Nova-Search/api/internal/frontier"
	"github.com/Nova-Search/api/internal/metrics"
	"github.com/Nova-Search/api/internal/store"
)

var errDisallowed = errors.New("disallowed by robots.txt")

// Job is one crawl run in progress
type Job struct {
	c          *Crawler
	frontier   *frontier.Frontier
	seedOrigin string
	startTime  time.Time

	mu     sync.Mutex
	record store.CrawlRun

	fetched    atomic.Int64
	failed     atomic.Int64
	dispatched atomic.Int64
	delayHosts sync.Map
}

func (c *Crawler) newJob(run store.CrawlRun) *Job {
	return &Job{
		c: c,
		frontier: frontier.New(frontier.Options{
			MaxDepth:       run.MaxDepth,
			MaxPending:     c.config.MaxPending,
			MaxURLsPerHost: c.config.MaxURLsPerHost,
			HostDelay:      c.config.PerHostDelay,
		}),
		seedOrigin: origin(run.StartURL),
		startTime:  time.Now(),
		record:     run,
	}
}

// ID returns the run ID
func (j *Job) ID() string {
	return j.record.ID
}

// Record returns the current run record
func (j *Job) Record() store.CrawlRun {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.record
}

// Stats returns current crawling statistics
func (j *Job) Stats() CrawlStats {
	return CrawlStats{
		PagesFetched: j.fetched.Load(),
		PagesFailed:  j.failed.Load(),
		Pending:      j.frontier.Len(),
		InFlight:     j.frontier.InFlight(),
		StartTime:    j.startTime,
		Duration:     time.Since(j.startTime),
	}
}

// Execute runs the worker pool until the frontier is exhausted, max_pages
// is reached, a store error occurs or ctx is cancelled. The final status is
// written to the run record even when ctx is cancelled.
func (j *Job) Execute(ctx context.Context) (store.CrawlRun, error) {
	c := j.c
	c.logger.Info("Starting crawl", "run_id", j.ID(), "start_url", j.record.StartURL,
		"max_depth", j.record.MaxDepth, "workers", c.config.WorkerCount)

	done := make(chan struct{})
	var reporter sync.WaitGroup
	reporter.Add(1)
	go func() {
		defer reporter.Done()
		j.statsReporter(done)
	}()

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < c.config.WorkerCount; i++ {
		g.Go(func() error {
			return j.worker(gctx, i)
		})
	}
	err := g.Wait()

	close(done)
	reporter.Wait()

	return j.finish(ctx, err)
}

func (j *Job) finish(ctx context.Context, err error) (store.CrawlRun, error) {
	status := store.RunCompleted
	switch {
	case err == nil:
	case ctx.Err() != nil && isCancellation(err):
		status = store.RunCancelled
		err = ctx.Err()
	default:
		status = store.RunFailed
	}

	j.mu.Lock()
	j.record.Status = status
	j.record.FinishedAt = time.Now().UTC()
	j.record.PagesFetched = int(j.fetched.Load())
	j.record.PagesFailed = int(j.failed.Load())
	if status == store.RunFailed {
		j.record.Error = err.Error()
	}
	run := j.record
	j.mu.Unlock()

	if updateErr := j.c.storage.UpdateRun(context.WithoutCancel(ctx), run); updateErr != nil {
		j.c.logger.Error("Failed to save crawl run", "run_id", run.ID, "error", updateErr)
		if err == nil {
			err = fmt.Errorf("save crawl run: %w", updateErr)
		}
	}
	metrics.ObserveRun(string(status))

	stats := j.Stats()
	j.c.logger.Info("Crawling finished", "run_id", run.ID, "status", status,
		"fetched", stats.PagesFetched, "failed", stats.PagesFailed, "duration", stats.Duration)
	return run, err
}

// worker processes URLs from the frontier
// Termination conditions:
// 1. Context cancelled (graceful shutdown or another worker's store error)
// 2. Reached configured limit of pages
// 3. Frontier exhausted: nothing queued and nothing in flight
func (j *Job) worker(ctx context.Context, id int) error {
	log := j.c.logger.With("run_id", j.ID(), "worker_id", id)
	log.Debug("Worker started")
	defer log.Debug("Worker stopped")

	for {
		if j.limitReached() {
			return nil
		}

		entry, err := j.frontier.Dequeue(ctx)
		if errors.Is(err, frontier.ErrExhausted) {
			return nil
		}
		if err != nil {
			return err
		}

		if limit := j.c.config.MaxPages; limit > 0 && j.dispatched.Add(1) > int64(limit) {
			j.frontier.Done(entry)
			log.Info("Worker reached limit")
			return nil
		}

		metrics.IncActiveWorkers()
		err = j.process(ctx, entry)
		metrics.DecActiveWorkers()
		j.frontier.Done(entry)

		if err != nil {
			log.Error("Worker stopped on store error", "url", entry.URL, "error", err)
			return err
		}
	}
}

func (j *Job) limitReached() bool {
	limit := j.c.config.MaxPages
	return limit > 0 && j.dispatched.Load() >= int64(limit)
}

// process fetches, stores and indexes one URL and queues its links. Only
// store and index errors are returned; fetch failures are recorded on the
// page. Once started, a page is processed to the end even if ctx is
// cancelled; the fetch timeout bounds how long that takes.
func (j *Job) process(ctx context.Context, entry frontier.Entry) error {
	ctx = context.WithoutCancel(ctx)
	c := j.c

	page := store.Page{
		URL:            entry.URL,
		Host:           entry.Host,
		Depth:          entry.Depth,
		RunID:          j.ID(),
		DiscoveredFrom: entry.DiscoveredFrom,
		AddedAt:        time.Now().UTC(),
	}
	if err := c.storage.RecordPending(ctx, page); err != nil {
		return fmt.Errorf("record pending %s: %w", entry.URL, err)
	}

	if !c.robots.Allowed(ctx, entry.URL) {
		c.logger.Info("URL disallowed by robots.txt", "url", entry.URL)
		return j.recordFailure(ctx, page, &fetcher.FetchError{Kind: fetcher.KindDisallowed, URL: entry.URL, Err: errDisallowed})
	}
	j.applyCrawlDelay(ctx, entry)

	result, err := c.fetcher.Fetch(ctx, entry.URL)
	if err != nil {
		return j.recordFailure(ctx, page, err)
	}

	page.Status = store.StatusFetched
	page.StatusCode = result.StatusCode
	page.Title = result.Title
	page.Description = result.Description
	page.Keywords = result.Keywords
	page.RawText = result.Text
	page.ContentHash = result.ContentHash
	page.FetchedAt = result.FetchedAt

	if err := c.storage.RecordPage(ctx, page, result.Links); err != nil {
		return fmt.Errorf("record page %s: %w", entry.URL, err)
	}
	if err := c.indexer.IndexDocument(ctx, page); err != nil {
		return fmt.Errorf("index %s: %w", entry.URL, err)
	}
	j.fetched.Add(1)

	queued := 0
	if entry.Depth < j.record.MaxDepth {
		for _, link := range result.Links {
			if c.shouldCrawlURL(j.seedOrigin, link) && j.frontier.Enqueue(link, entry.Depth+1, entry.URL) {
				queued++
			}
		}
	}

	c.logger.Info("Processed URL", "url", entry.URL, "depth", entry.Depth,
		"status", result.StatusCode, "links", len(result.Links), "queued", queued)
	return nil
}

// recordFailure marks the page failed and drops it from the index
func (j *Job) recordFailure(ctx context.Context, page store.Page, fetchErr error) error {
	page.Status = store.StatusFailed
	page.FetchedAt = time.Now().UTC()
	page.ErrorKind = string(fetcher.KindNetwork)
	page.ErrorMessage = fetchErr.Error()

	var fe *fetcher.FetchError
	if errors.As(fetchErr, &fe) {
		page.ErrorKind = string(fe.Kind)
		page.StatusCode = fe.StatusCode
	}

	if err := j.c.storage.RecordPage(ctx, page, nil); err != nil {
		return fmt.Errorf("record page %s: %w", page.URL, err)
	}
	if err := j.c.indexer.IndexDocument(ctx, page); err != nil {
		return fmt.Errorf("index %s: %w", page.URL, err)
	}
	j.failed.Add(1)

	j.c.logger.Warn("Failed to fetch URL", "url", page.URL, "kind", page.ErrorKind, "error", fetchErr)
	return nil
}

// applyCrawlDelay raises the host's politeness interval to its robots.txt
// Crawl-delay the first time the host is seen in this run
func (j *Job) applyCrawlDelay(ctx context.Context, entry frontier.Entry) {
	if _, loaded := j.delayHosts.LoadOrStore(entry.Host, struct{}{}); loaded {
		return
	}
	if delay := j.c.robots.CrawlDelay(ctx, entry.URL); delay > 0 {
		j.frontier.SetHostDelay(entry.Host, delay)
		j.c.logger.Debug("Applied crawl delay", "host", entry.Host, "delay", delay)
	}
}

func (j *Job) inScope(rawURL string) bool {
	return j.c.shouldCrawlURL(j.seedOrigin, rawURL)
}

// statsReporter periodically reports crawling statistics
func (j *Job) statsReporter(done <-chan struct{}) {
	ticker := time.NewTicker(j.c.statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			stats := j.Stats()
			j.c.logger.Info("Crawling stats", "run_id", j.ID(), "fetched", stats.PagesFetched,
				"failed", stats.PagesFailed, "queued", stats.Pending, "in_flight", stats.InFlight,
				"duration", stats.Duration)
		}
	}
}
