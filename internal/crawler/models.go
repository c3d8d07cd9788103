package crawler

import (
	"errors"
	"time"
)

var (
	// ErrInvalidStartURL is returned when the start URL cannot be normalized
	ErrInvalidStartURL = errors.New("invalid start URL")
	// ErrRunFinished is returned when resuming a run that already completed
	ErrRunFinished = errors.New("crawl run already completed")
)

// Request describes a new crawl run
type Request struct {
	StartURL string
	MaxDepth int
	RunID    string // generated when empty
}

// CrawlStats represents crawling statistics for one run
type CrawlStats struct {
	PagesFetched int64
	PagesFailed  int64
	Pending      int
	InFlight     int
	StartTime    time.Time
	Duration     time.Duration
}
