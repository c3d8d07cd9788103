package crawler

import (
	"context"
	"iter"
	"time"

	"github.com/Nova-Search/api/internal/fetcher"
	"github.com/Nova-Search/api/internal/store"
)

// PageFetcher retrieves and parses a single URL
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*fetcher.Result, error)
}

// RobotsChecker answers robots.txt questions for a URL
type RobotsChecker interface {
	Allowed(ctx context.Context, url string) bool
	CrawlDelay(ctx context.Context, url string) time.Duration
}

// DocumentIndexer keeps the inverted index in line with stored pages
type DocumentIndexer interface {
	IndexDocument(ctx context.Context, page store.Page) error
}

// Storage handles data persistence
type Storage interface {
	// Pages and edges
	RecordPending(ctx context.Context, page store.Page) error
	RecordPage(ctx context.Context, page store.Page, targets []string) error
	OutLinks(ctx context.Context, source string) ([]string, error)
	IteratePages(ctx context.Context, filter store.PageFilter) iter.Seq2[store.Page, error]

	// Crawl runs
	CreateRun(ctx context.Context, run store.CrawlRun) error
	UpdateRun(ctx context.Context, run store.CrawlRun) error
	GetRun(ctx context.Context, id string) (store.CrawlRun, error)
}

var _ Storage = (*store.Store)(nil)
