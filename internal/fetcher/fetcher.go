// Package fetcher retrieves a single URL over HTTP and turns it into
// extracted text and outbound links. It never persists anything.
package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/Nova-Search/api/internal/metrics"
	"github.com/Nova-Search/api/internal/parser"
	"github.com/Nova-Search/api/internal/urlnorm"
)

// Options configures a Fetcher
type Options struct {
	UserAgent  string
	Timeout    time.Duration
	Normalizer *urlnorm.Normalizer
	Logger     *slog.Logger
}

// Result is a successfully fetched and parsed HTML page
type Result struct {
	URL         string
	FinalURL    string
	StatusCode  int
	ContentType string
	Title       string
	Description string
	Keywords    string
	Text        string
	Links       []string
	NoFollow    bool
	ContentHash string
	Size        int
	TTFB        time.Duration
	Duration    time.Duration
	FetchedAt   time.Time
}

// Fetcher downloads pages and extracts their content
type Fetcher struct {
	client     *HTTPClient
	normalizer *urlnorm.Normalizer
	timeout    time.Duration
	logger     *slog.Logger
}

// New creates a Fetcher
func New(opts Options) *Fetcher {
	if opts.Normalizer == nil {
		opts.Normalizer = urlnorm.New(urlnorm.Options{})
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Fetcher{
		client:     NewHTTPClient(opts.UserAgent, opts.Timeout),
		normalizer: opts.Normalizer,
		timeout:    opts.Timeout,
		logger:     opts.Logger,
	}
}

// Client returns the underlying HTTP client, shared with the robots policy
func (f *Fetcher) Client() *HTTPClient {
	return f.client
}

// Fetch retrieves rawURL and parses it. Every failure is a *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := f.client.Get(ctx, rawURL)
	if err != nil {
		f.observe(rawURL, KindNetwork, 0, time.Since(start))
		return nil, &FetchError{Kind: KindNetwork, URL: rawURL, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f.observe(rawURL, KindHTTPStatus, len(resp.Body), resp.Metrics.DownloadTime)
		return nil, &FetchError{
			Kind:       KindHTTPStatus,
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	if !isHTML(resp.ContentType, resp.Body) {
		f.observe(rawURL, KindParse, len(resp.Body), resp.Metrics.DownloadTime)
		return nil, &FetchError{
			Kind:       KindParse,
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unsupported content type %q", resp.ContentType),
		}
	}
	if resp.Truncated {
		f.logger.Warn("Response body truncated", "url", rawURL, "limit", DefaultMaxBodySize)
	}

	p, err := parser.NewHTMLParser(resp.FinalURL, f.normalizer)
	if err != nil {
		return nil, &FetchError{Kind: KindParse, URL: rawURL, StatusCode: resp.StatusCode, Err: err}
	}
	parsed, err := p.Parse(resp.Body, resp.ContentType)
	if err != nil {
		f.observe(rawURL, KindParse, len(resp.Body), resp.Metrics.DownloadTime)
		return nil, &FetchError{Kind: KindParse, URL: rawURL, StatusCode: resp.StatusCode, Err: err}
	}

	f.observe(rawURL, "", len(resp.Body), resp.Metrics.DownloadTime)

	return &Result{
		URL:         rawURL,
		FinalURL:    resp.FinalURL,
		StatusCode:  resp.StatusCode,
		ContentType: resp.ContentType,
		Title:       parsed.Title,
		Description: parsed.Description,
		Keywords:    parsed.Keywords,
		Text:        parsed.Text,
		Links:       parsed.Links,
		NoFollow:    parsed.NoFollow,
		ContentHash: parsed.ContentHash,
		Size:        len(resp.Body),
		TTFB:        resp.Metrics.TTFB,
		Duration:    resp.Metrics.DownloadTime,
		FetchedAt:   time.Now().UTC(),
	}, nil
}

// Close releases idle connections
func (f *Fetcher) Close() {
	f.client.Close()
}

func (f *Fetcher) observe(rawURL string, kind Kind, size int, d time.Duration) {
	outcome := "fetched"
	if kind != "" {
		outcome = string(kind)
	}
	metrics.ObserveFetch(rawURL, outcome, size, d)
}

func isHTML(contentType string, body []byte) bool {
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}
