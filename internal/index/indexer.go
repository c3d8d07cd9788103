package index

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Nova-Search/api/internal/metrics"
	"github.com/Nova-Search/api/internal/store"
)

const lockStripes = 64

// Report counts what a bulk index operation did
type Report struct {
	Indexed   int
	Unchanged int
	Removed   int
}

// Indexer is the only writer of documents and postings. Writes for
// different URLs proceed in parallel; writes for the same URL are serialized
// by a striped lock.
type Indexer struct {
	store     *store.Store
	tokenizer *Tokenizer
	logger    *slog.Logger
	locks     [lockStripes]sync.Mutex
}

// NewIndexer creates an Indexer
func NewIndexer(st *store.Store, tokenizer *Tokenizer, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{store: st, tokenizer: tokenizer, logger: logger}
}

// Tokenizer returns the tokenizer shared with the query engine
func (ix *Indexer) Tokenizer() *Tokenizer {
	return ix.tokenizer
}

// IndexDocument brings the index entry for page in line with its stored
// state. Fetched pages are (re)indexed unless the same content was already
// indexed in the same run; any other page loses its document.
func (ix *Indexer) IndexDocument(ctx context.Context, page store.Page) error {
	_, err := ix.indexDocument(ctx, page, false)
	return err
}

func (ix *Indexer) indexDocument(ctx context.Context, page store.Page, force bool) (string, error) {
	mu := ix.lockFor(page.URL)
	mu.Lock()
	defer mu.Unlock()

	if page.Status == store.StatusFailed || page.ContentHash == "" {
		if err := ix.store.DeleteDocument(ctx, page.URL); err != nil {
			metrics.ObserveIndex("error")
			return "", fmt.Errorf("failed to remove document %s: %w", page.URL, err)
		}
		metrics.ObserveIndex("removed")
		return "removed", nil
	}

	if !force {
		doc, err := ix.store.GetDocument(ctx, page.URL)
		switch {
		case err == nil && doc.ContentHash == page.ContentHash && doc.RunID == page.RunID:
			metrics.ObserveIndex("unchanged")
			return "unchanged", nil
		case err != nil && !errors.Is(err, store.ErrNotFound):
			metrics.ObserveIndex("error")
			return "", fmt.Errorf("failed to load document %s: %w", page.URL, err)
		}
	}

	doc, postings := ix.build(page)
	if err := ix.store.ReplaceDocument(ctx, doc, postings); err != nil {
		metrics.ObserveIndex("error")
		return "", fmt.Errorf("failed to index %s: %w", page.URL, err)
	}

	metrics.ObserveIndex("indexed")
	ix.logger.Debug("Indexed document", "url", page.URL, "terms", len(postings), "length", doc.Length)
	return "indexed", nil
}

// build computes the document row and postings for a page. The title and
// the meta description and keywords are indexed ahead of the body text.
func (ix *Indexer) build(page store.Page) (store.Document, []store.Posting) {
	tokens := ix.tokenizer.Tokenize(strings.Join([]string{
		page.Title, page.Description, page.Keywords, page.RawText,
	}, "\n"))

	byTerm := make(map[string]*store.Posting)
	var order []string
	for _, tok := range tokens {
		p, ok := byTerm[tok.Term]
		if !ok {
			p = &store.Posting{Term: tok.Term, URL: page.URL}
			byTerm[tok.Term] = p
			order = append(order, tok.Term)
		}
		p.TF++
		p.Positions = append(p.Positions, tok.Position)
	}

	postings := make([]store.Posting, 0, len(order))
	for _, term := range order {
		postings = append(postings, *byTerm[term])
	}

	doc := store.Document{
		URL:         page.URL,
		ContentHash: page.ContentHash,
		Length:      len(tokens),
		RunID:       page.RunID,
		IndexedAt:   time.Now().UTC(),
	}
	return doc, postings
}

// Rebuild reindexes every page in the store from its stored text
func (ix *Indexer) Rebuild(ctx context.Context) (Report, error) {
	var report Report
	for page, err := range ix.store.IteratePages(ctx, store.PageFilter{}) {
		if err != nil {
			return report, err
		}
		if page.Status == store.StatusPending && page.ContentHash == "" {
			continue
		}
		result, err := ix.indexDocument(ctx, page, true)
		if err != nil {
			return report, err
		}
		report.add(result)
	}

	if err := ix.store.SetMeta(ctx, "last_rebuild", time.Now().UTC().Format(time.RFC3339)); err != nil {
		return report, err
	}
	ix.logger.Info("Index rebuilt", "indexed", report.Indexed, "removed", report.Removed)
	return report, nil
}

// Repair reindexes only documents that disagree with their page, as left
// behind by a crash between a page write and its index write.
func (ix *Indexer) Repair(ctx context.Context) (Report, error) {
	var report Report

	stale, err := ix.store.StaleDocuments(ctx)
	if err != nil {
		return report, err
	}

	for _, url := range stale {
		page, err := ix.store.GetPage(ctx, url)
		if errors.Is(err, store.ErrNotFound) {
			page = store.Page{URL: url, Status: store.StatusFailed}
		} else if err != nil {
			return report, err
		}

		result, err := ix.indexDocument(ctx, page, true)
		if err != nil {
			return report, err
		}
		report.add(result)
	}

	ix.logger.Info("Index repaired", "stale", len(stale), "indexed", report.Indexed, "removed", report.Removed)
	return report, nil
}

func (r *Report) add(result string) {
	switch result {
	case "indexed":
		r.Indexed++
	case "unchanged":
		r.Unchanged++
	case "removed":
		r.Removed++
	}
}

func (ix *Indexer) lockFor(url string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(url))
	return &ix.locks[h.Sum32()%lockStripes]
}
