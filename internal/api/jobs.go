package api

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/Nova-Search/api/internal/crawler"
	"github.com/Nova-Search/api/internal/store"
)

// CrawlStarter records and seeds a new crawl run
type CrawlStarter interface {
	Start(ctx context.Context, req crawler.Request) (*crawler.Job, error)
}

// Jobs runs crawls triggered over HTTP in the background and tracks the
// ones still in progress.
type Jobs struct {
	starter CrawlStarter
	logger  *slog.Logger

	base   context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	running map[string]*crawler.Job
	wg      sync.WaitGroup
}

// NewJobs creates a job manager
func NewJobs(starter CrawlStarter, logger *slog.Logger) *Jobs {
	if logger == nil {
		logger = slog.Default()
	}
	base, cancel := context.WithCancel(context.Background())
	return &Jobs{
		starter: starter,
		logger:  logger,
		base:    base,
		cancel:  cancel,
		running: make(map[string]*crawler.Job),
	}
}

// Launch records a new run and executes it in the background. The returned
// record is the run as first stored.
func (j *Jobs) Launch(ctx context.Context, req crawler.Request) (store.CrawlRun, error) {
	job, err := j.starter.Start(ctx, req)
	if err != nil {
		return store.CrawlRun{}, err
	}

	j.mu.Lock()
	j.running[job.ID()] = job
	j.mu.Unlock()

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		defer func() {
			j.mu.Lock()
			delete(j.running, job.ID())
			j.mu.Unlock()
		}()

		run, err := job.Execute(j.base)
		if err != nil && !errors.Is(err, context.Canceled) {
			j.logger.Error("Crawl failed", "run_id", run.ID, "error", err)
		}
	}()

	return job.Record(), nil
}

// Get returns the live record of a running crawl
func (j *Jobs) Get(id string) (store.CrawlRun, bool) {
	j.mu.Lock()
	job, ok := j.running[id]
	j.mu.Unlock()
	if !ok {
		return store.CrawlRun{}, false
	}

	run := job.Record()
	if run.Status == store.RunRunning {
		stats := job.Stats()
		run.PagesFetched = int(stats.PagesFetched)
		run.PagesFailed = int(stats.PagesFailed)
	}
	return run, true
}

// Running returns the number of crawls in progress
func (j *Jobs) Running() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.running)
}

// Shutdown cancels every running crawl and waits for them to record their
// final status, or for ctx to expire.
func (j *Jobs) Shutdown(ctx context.Context) error {
	j.cancel()

	done := make(chan struct{})
	go func() {
		j.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
