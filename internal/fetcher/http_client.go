package fetcher

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"time"
)

// DefaultMaxBodySize caps how much of a response body is read
const DefaultMaxBodySize = 10 << 20

var errTooManyRedirects = errors.New("too many redirects")

// HTTPClient handles HTTP requests with timing metrics
type HTTPClient struct {
	client      *http.Client
	userAgent   string
	maxBodySize int64
}

// HTTPMetrics contains timing for a single request
type HTTPMetrics struct {
	TTFB         time.Duration // Time to First Byte
	DownloadTime time.Duration // Total download time
	DNSLookup    time.Duration
	TCPConnect   time.Duration
	TLSHandshake time.Duration
}

// HTTPResponse contains the response and metrics
type HTTPResponse struct {
	StatusCode  int
	Headers     http.Header
	Body        []byte
	ContentType string
	Truncated   bool // body exceeded maxBodySize
	Metrics     HTTPMetrics
	FinalURL    string // After following redirects
}

// NewHTTPClient creates a new HTTP client
func NewHTTPClient(userAgent string, timeout time.Duration) *HTTPClient {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return errTooManyRedirects
			}
			return nil
		},
	}

	return &HTTPClient{
		client:      client,
		userAgent:   userAgent,
		maxBodySize: DefaultMaxBodySize,
	}
}

// UserAgent returns the User-Agent header sent with every request
func (h *HTTPClient) UserAgent() string {
	return h.userAgent
}

// Get performs an HTTP GET request, recording DNS, connect, TLS, TTFB and
// total download time.
func (h *HTTPClient) Get(ctx context.Context, url string) (*HTTPResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", h.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	var metrics HTTPMetrics
	var dnsStart, connectStart, tlsStart, firstByteTime time.Time

	trace := &httptrace.ClientTrace{
		DNSStart: func(httptrace.DNSStartInfo) {
			dnsStart = time.Now()
		},
		DNSDone: func(httptrace.DNSDoneInfo) {
			metrics.DNSLookup = time.Since(dnsStart)
		},
		ConnectStart: func(string, string) {
			connectStart = time.Now()
		},
		ConnectDone: func(string, string, error) {
			metrics.TCPConnect = time.Since(connectStart)
		},
		TLSHandshakeStart: func() {
			tlsStart = time.Now()
		},
		TLSHandshakeDone: func(tls.ConnectionState, error) {
			metrics.TLSHandshake = time.Since(tlsStart)
		},
		GotFirstResponseByte: func() {
			firstByteTime = time.Now()
		},
	}

	req = req.WithContext(httptrace.WithClientTrace(req.Context(), trace))

	startTime := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if !firstByteTime.IsZero() {
		metrics.TTFB = firstByteTime.Sub(startTime)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, h.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	truncated := int64(len(body)) > h.maxBodySize
	if truncated {
		body = body[:h.maxBodySize]
	}

	metrics.DownloadTime = time.Since(startTime)

	return &HTTPResponse{
		StatusCode:  resp.StatusCode,
		Headers:     resp.Header,
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		Truncated:   truncated,
		Metrics:     metrics,
		FinalURL:    resp.Request.URL.String(),
	}, nil
}

// Close closes idle connections
func (h *HTTPClient) Close() {
	h.client.CloseIdleConnections()
}
