package store

import "time"

// PageStatus is the lifecycle state of a page
type PageStatus string

const (
	StatusPending PageStatus = "pending"
	StatusFetched PageStatus = "fetched"
	StatusFailed  PageStatus = "failed"
)

// Page is one crawled (or about to be crawled) URL
type Page struct {
	ID             int64
	URL            string
	Host           string
	Depth          int
	Status         PageStatus
	RunID          string
	DiscoveredFrom string
	Priority       int
	AddedAt        time.Time

	StatusCode  int
	Title       string
	Description string // <meta name="description">
	Keywords    string // <meta name="keywords">
	RawText     string
	ContentHash string
	FetchedAt   time.Time // zero until fetched or failed

	ErrorKind    string
	ErrorMessage string
}

// PageFilter narrows IteratePages. Zero values match everything.
type PageFilter struct {
	Status    PageStatus
	RunID     string
	BatchSize int
}

// RunStatus is the state of a crawl run
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunCancelled RunStatus = "cancelled"
	RunFailed    RunStatus = "failed"
)

// CrawlRun records one invocation of the crawler
type CrawlRun struct {
	ID           string    `json:"id"`
	StartURL     string    `json:"start_url"`
	MaxDepth     int       `json:"max_depth"`
	Status       RunStatus `json:"status"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	PagesFetched int       `json:"pages_fetched"`
	PagesFailed  int       `json:"pages_failed"`
	Error        string    `json:"error,omitempty"`
}

// Document is the index entry for one page
type Document struct {
	URL         string
	ContentHash string
	Length      int
	RunID       string
	IndexedAt   time.Time
}

// Posting is one (term, document) pair
type Posting struct {
	Term      string
	URL       string
	TF        int
	Positions []int
}

// DomainCount is a host and how many pages it has
type DomainCount struct {
	Host  string `json:"host"`
	Pages int    `json:"pages"`
}

// Stats summarizes the store contents
type Stats struct {
	TotalPages     int           `json:"total_pages"`
	FetchedPages   int           `json:"fetched_pages"`
	FailedPages    int           `json:"failed_pages"`
	PendingPages   int           `json:"pending_pages"`
	FetchedLast24h int           `json:"fetched_last_24h"`
	NeverFetched   int           `json:"never_fetched"`
	OldestFetch    time.Time     `json:"oldest_fetch"`
	Links          int           `json:"links"`
	Documents      int           `json:"documents"`
	Terms          int           `json:"terms"`
	TopDomains     []DomainCount `json:"top_domains"`
}
