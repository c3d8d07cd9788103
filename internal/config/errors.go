package config

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidWorkerCount is returned when worker_count is not greater than 0
	ErrInvalidWorkerCount = errors.New("crawl.worker_count must be greater than 0")
	// ErrInvalidMaxDepth is returned when max_depth is negative
	ErrInvalidMaxDepth = errors.New("crawl.max_depth cannot be negative")
	// ErrInvalidTimeout is returned when a timeout is not greater than 0
	ErrInvalidTimeout = errors.New("timeouts must be greater than 0")
	// ErrEmptyDatabasePath is returned when database path is empty
	ErrEmptyDatabasePath = errors.New("database_path cannot be empty")
	// ErrInvalidTrailingSlash is returned for an unknown trailing slash policy
	ErrInvalidTrailingSlash = errors.New("crawl.trailing_slash must be 'strip' or 'keep'")
	// ErrInvalidSearchMode is returned for an unknown search mode
	ErrInvalidSearchMode = errors.New("search.mode must be 'or' or 'and'")
	// ErrInvalidLimit is returned when search limits are inconsistent
	ErrInvalidLimit = errors.New("search.default_limit must be > 0 and <= search.max_limit")
)

// PatternError reports an include/exclude pattern that does not compile
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("invalid URL pattern %q: %v", e.Pattern, e.Err)
}

func (e *PatternError) Unwrap() error { return e.Err }
