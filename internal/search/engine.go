// Package search answers keyword queries against the inverted index with
// TF-IDF ranking.
package search

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/Nova-Search/api/internal/config"
	"github.com/Nova-Search/api/internal/index"
	"github.com/Nova-Search/api/internal/metrics"
	"github.com/Nova-Search/api/internal/store"
)

// ErrInvalidQuery is returned for a negative limit or offset or an unknown
// mode. The HTTP layer also uses it for a missing query.
var ErrInvalidQuery = errors.New("invalid query")

// Mode selects how multiple terms combine
type Mode string

const (
	ModeOr  Mode = "or"  // documents containing any term
	ModeAnd Mode = "and" // documents containing every term
)

// ParseMode converts a mode name. The empty string yields "".
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case "", ModeOr, ModeAnd:
		return m, nil
	default:
		return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidQuery, s)
	}
}

// Query is one search request. Zero Limit and Mode take the engine defaults.
type Query struct {
	Text   string
	Limit  int
	Offset int
	Mode   Mode
}

// Result is one ranked hit
type Result struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Score       float64   `json:"score"`
	Snippet     string    `json:"snippet"`
	Priority    int       `json:"priority"`
	Matched     int       `json:"-"`
	FetchedAt   time.Time `json:"-"`
}

// Options configures an Engine
type Options struct {
	DefaultLimit  int
	MaxLimit      int
	Mode          Mode
	Timeout       time.Duration
	SnippetLength int
	Logger        *slog.Logger
}

// OptionsFromConfig maps the search configuration section
func OptionsFromConfig(cfg config.SearchConfig) Options {
	return Options{
		DefaultLimit:  cfg.DefaultLimit,
		MaxLimit:      cfg.MaxLimit,
		Mode:          Mode(cfg.Mode),
		Timeout:       cfg.Timeout,
		SnippetLength: cfg.SnippetLength,
	}
}

// Engine ranks visible documents for a query. It is safe for concurrent use.
type Engine struct {
	store     *store.Store
	tokenizer *index.Tokenizer
	opts      Options
	logger    *slog.Logger
}

// NewEngine creates an Engine. tokenizer must be the one the index was
// built with.
func NewEngine(st *store.Store, tokenizer *index.Tokenizer, opts Options) *Engine {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 15
	}
	if opts.MaxLimit < opts.DefaultLimit {
		opts.MaxLimit = opts.DefaultLimit
	}
	if opts.Mode == "" {
		opts.Mode = ModeOr
	}
	if opts.SnippetLength <= 0 {
		opts.SnippetLength = 200
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{store: st, tokenizer: tokenizer, opts: opts, logger: opts.Logger}
}

// Search returns the hits of q ordered by the number of distinct query terms
// they contain, then by descending score; ties go to the more recently
// fetched page, then to the smaller URL. A query with no
// indexable terms, or whose terms match nothing, returns an empty slice.
func (e *Engine) Search(ctx context.Context, q Query) ([]Result, error) {
	start := time.Now()
	mode := q.Mode
	if mode == "" {
		mode = e.opts.Mode
	}

	results, err := e.search(ctx, q, mode)

	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case len(results) == 0:
		outcome = "empty"
	}
	metrics.ObserveSearch(string(mode), outcome, time.Since(start))

	if err != nil {
		e.logger.Error("Search failed", "query", q.Text, "error", err)
		return nil, err
	}
	e.logger.Debug("Search", "query", q.Text, "mode", mode, "results", len(results), "duration", time.Since(start))
	return results, nil
}

func (e *Engine) search(ctx context.Context, q Query, mode Mode) ([]Result, error) {
	if q.Limit < 0 || q.Offset < 0 {
		return nil, fmt.Errorf("%w: negative limit or offset", ErrInvalidQuery)
	}
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit == 0 {
		limit = e.opts.DefaultLimit
	}
	limit = min(limit, e.opts.MaxLimit)

	terms := e.tokenizer.Terms(q.Text)
	if len(terms) == 0 {
		return []Result{}, nil
	}

	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	snap, err := e.store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer func() { _ = snap.Close() }()

	n, err := snap.DocumentCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	if n == 0 {
		return []Result{}, nil
	}

	scores := make(map[string]float64)
	matched := make(map[string]int)
	for _, term := range terms {
		postings, err := snap.Postings(ctx, term)
		if err != nil {
			return nil, fmt.Errorf("search: %w", err)
		}
		if len(postings) == 0 {
			if mode == ModeAnd {
				return []Result{}, nil
			}
			continue
		}

		idf := math.Log(float64(n) / float64(len(postings)))
		for _, p := range postings {
			scores[p.URL] += float64(p.TF) * idf
			matched[p.URL]++
		}
	}

	urls := make([]string, 0, len(scores))
	for u := range scores {
		if mode == ModeAnd && matched[u] < len(terms) {
			continue
		}
		urls = append(urls, u)
	}
	if len(urls) == 0 {
		return []Result{}, nil
	}

	pages, err := snap.Pages(ctx, urls)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	hits := make([]Result, 0, len(urls))
	for _, u := range urls {
		hits = append(hits, Result{URL: u, Score: scores[u], Matched: matched[u], FetchedAt: pages[u].FetchedAt})
	}
	slices.SortFunc(hits, compareResults)

	if q.Offset >= len(hits) {
		return []Result{}, nil
	}
	hits = hits[q.Offset:min(q.Offset+limit, len(hits))]

	for i := range hits {
		page := pages[hits[i].URL]
		hits[i].Title = page.Title
		hits[i].Description = page.Description
		hits[i].Priority = page.Priority
		hits[i].Snippet = e.snippet(page, terms)
	}
	return hits, nil
}

// snippet falls back to the meta description when the body holds none of
// the terms, which happens when only the title or meta fields matched
func (e *Engine) snippet(page store.Page, terms []string) string {
	s, found := snippet(e.tokenizer, page.RawText, terms, e.opts.SnippetLength)
	if found || page.Description == "" {
		return s
	}
	return clip(page.Description, 0, e.opts.SnippetLength)
}

func compareResults(a, b Result) int {
	if c := cmp.Compare(b.Matched, a.Matched); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	if c := b.FetchedAt.Compare(a.FetchedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.URL, b.URL)
}
