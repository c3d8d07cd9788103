package fetcher

import "fmt"

// Kind classifies why a fetch failed
type Kind string

const (
	KindNetwork    Kind = "network"     // DNS, connect, TLS, timeout, truncated body
	KindHTTPStatus Kind = "http_status" // non-2xx response
	KindParse      Kind = "parse"       // not HTML or undecodable
	KindDisallowed Kind = "disallowed"  // blocked by robots.txt
)

// FetchError is returned by Fetch for every failure. The crawler records
// Kind and the message on the page and moves on.
type FetchError struct {
	Kind       Kind
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Kind == KindHTTPStatus {
		return fmt.Sprintf("fetch %s: %s %d", e.URL, e.Kind, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
