// Package metrics exposes Prometheus collectors for the crawler, indexer,
// query engine and HTTP service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlerPagesTotal          *prometheus.CounterVec
	crawlerBytesTotal          *prometheus.CounterVec
	crawlerFetchSeconds        prometheus.Histogram
	crawlerActiveWorkers       prometheus.Gauge
	crawlerFrontierPending     prometheus.Gauge
	crawlerPolitenessSeconds   prometheus.Histogram
	crawlerRunsTotal           *prometheus.CounterVec
	indexDocumentsTotal        *prometheus.CounterVec
	searchQueriesTotal         *prometheus.CounterVec
	searchDurationSeconds      prometheus.Histogram
	storeRetriesTotal          *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "novasearch_crawler_pages_total",
				Help: "Total number of pages crawled, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		crawlerBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "novasearch_crawler_bytes_total",
				Help: "Total number of body bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		crawlerFetchSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "novasearch_crawler_fetch_duration_seconds",
				Help:    "Histogram of page fetch latencies.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		)

		crawlerActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "novasearch_crawler_active_workers",
				Help: "Number of workers currently processing a URL.",
			},
		)

		crawlerFrontierPending = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "novasearch_crawler_frontier_pending",
				Help: "Number of URLs waiting in the frontier.",
			},
		)

		crawlerPolitenessSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "novasearch_crawler_politeness_wait_seconds",
				Help:    "Histogram of time spent waiting for a host to become eligible.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		)

		crawlerRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "novasearch_crawler_runs_total",
				Help: "Total number of crawl runs finished, labeled by status.",
			},
			[]string{"status"},
		)

		indexDocumentsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "novasearch_index_documents_total",
				Help: "Total number of index operations, labeled by result.",
			},
			[]string{"result"},
		)

		searchQueriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "novasearch_search_queries_total",
				Help: "Total number of search queries, labeled by mode and outcome.",
			},
			[]string{"mode", "outcome"},
		)

		searchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "novasearch_search_duration_seconds",
				Help:    "Histogram of query engine latencies.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
		)

		storeRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "novasearch_store_retries_total",
				Help: "Total number of retried store operations, labeled by operation.",
			},
			[]string{"op"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite extracts a lowercase hostname from a URL.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveFetch records one fetched page. outcome is "fetched" or a failure kind.
func ObserveFetch(site, outcome string, bytesFetched int, duration time.Duration) {
	Init()
	sanitizedSite := SanitizeSite(site)
	crawlerPagesTotal.WithLabelValues(sanitizedSite, outcome).Inc()
	if bytesFetched > 0 {
		crawlerBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
	crawlerFetchSeconds.Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	crawlerActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	crawlerActiveWorkers.Dec()
}

// SetFrontierPending sets the number of queued URLs.
func SetFrontierPending(n int) {
	Init()
	crawlerFrontierPending.Set(float64(n))
}

// ObservePolitenessWait records how long a dequeue waited on host politeness.
func ObservePolitenessWait(duration time.Duration) {
	Init()
	crawlerPolitenessSeconds.Observe(duration.Seconds())
}

// ObserveRun increments the run counter for the given final status.
func ObserveRun(status string) {
	Init()
	crawlerRunsTotal.WithLabelValues(status).Inc()
}

// ObserveIndex increments the index counter ("indexed", "unchanged", "removed", "error").
func ObserveIndex(result string) {
	Init()
	indexDocumentsTotal.WithLabelValues(result).Inc()
}

// ObserveSearch records one query.
func ObserveSearch(mode, outcome string, duration time.Duration) {
	Init()
	searchQueriesTotal.WithLabelValues(mode, outcome).Inc()
	searchDurationSeconds.Observe(duration.Seconds())
}

// ObserveStoreRetry increments the retry counter for a store operation.
func ObserveStoreRetry(op string) {
	Init()
	storeRetriesTotal.WithLabelValues(op).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
