package store

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestReplaceDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	url := "https://example.com/"

	if err := s.RecordPage(ctx, fetchedPage(url, "go go gopher", "h1"), nil); err != nil {
		t.Fatalf("RecordPage failed: %v", err)
	}

	postings := []Posting{
		{Term: "go", TF: 2, Positions: []int{0, 1}},
		{Term: "gopher", TF: 1, Positions: []int{2}},
	}
	for i := 0; i < 2; i++ {
		if err := s.ReplaceDocument(ctx, Document{URL: url, ContentHash: "h1", Length: 3, RunID: "run-1"}, postings); err != nil {
			t.Fatalf("ReplaceDocument #%d failed: %v", i, err)
		}
	}

	if n, _ := s.CountPostings(ctx, url); n != 2 {
		t.Errorf("Expected 2 postings after double index, got %d", n)
	}

	// Replacing with a smaller set drops stale postings
	if err := s.ReplaceDocument(ctx, Document{URL: url, ContentHash: "h1", Length: 1}, postings[1:]); err != nil {
		t.Fatalf("ReplaceDocument failed: %v", err)
	}
	if n, _ := s.CountPostings(ctx, url); n != 1 {
		t.Errorf("Expected 1 posting after replace, got %d", n)
	}

	doc, err := s.GetDocument(ctx, url)
	if err != nil {
		t.Fatalf("GetDocument failed: %v", err)
	}
	if doc.Length != 1 || doc.ContentHash != "h1" {
		t.Errorf("Unexpected document %+v", doc)
	}

	if err := s.DeleteDocument(ctx, url); err != nil {
		t.Fatalf("DeleteDocument failed: %v", err)
	}
	if _, err := s.GetDocument(ctx, url); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
	if n, _ := s.CountPostings(ctx, url); n != 0 {
		t.Errorf("Expected no postings after delete, got %d", n)
	}
}

func TestSnapshotVisibility(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	current := "https://example.com/current"
	outdated := "https://example.com/outdated"

	_ = s.RecordPage(ctx, fetchedPage(current, "gopher", "h1"), nil)
	_ = s.RecordPage(ctx, fetchedPage(outdated, "gopher v2", "h2"), nil)

	posting := []Posting{{Term: "gopher", TF: 1, Positions: []int{0}}}
	_ = s.ReplaceDocument(ctx, Document{URL: current, ContentHash: "h1", Length: 1}, posting)
	// Indexed from older content than the page now holds
	_ = s.ReplaceDocument(ctx, Document{URL: outdated, ContentHash: "h1", Length: 1}, posting)

	snap, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	defer snap.Close()

	n, err := snap.DocumentCount(ctx)
	if err != nil || n != 1 {
		t.Errorf("DocumentCount = %d, %v; want 1", n, err)
	}

	got, err := snap.Postings(ctx, "gopher")
	if err != nil {
		t.Fatalf("Postings failed: %v", err)
	}
	if len(got) != 1 || got[0].URL != current || !reflect.DeepEqual(got[0].Positions, []int{0}) {
		t.Errorf("Expected only the current document, got %+v", got)
	}

	pages, err := snap.Pages(ctx, []string{current, "https://example.com/missing"})
	if err != nil {
		t.Fatalf("Pages failed: %v", err)
	}
	if len(pages) != 1 || pages[current].RawText != "gopher" {
		t.Errorf("Unexpected pages %+v", pages)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	url := "https://example.com/"

	_ = s.RecordPage(ctx, fetchedPage(url, "alpha", "h1"), nil)
	_ = s.ReplaceDocument(ctx, Document{URL: url, ContentHash: "h1", Length: 1},
		[]Posting{{Term: "alpha", TF: 1}})

	snap, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	defer snap.Close()

	if n, _ := snap.DocumentCount(ctx); n != 1 {
		t.Fatalf("Expected 1 document, got %d", n)
	}

	// A write after the snapshot started is not visible through it
	_ = s.RecordPage(ctx, fetchedPage("https://example.com/2", "alpha", "h2"), nil)
	_ = s.ReplaceDocument(ctx, Document{URL: "https://example.com/2", ContentHash: "h2", Length: 1},
		[]Posting{{Term: "alpha", TF: 1}})

	if postings, _ := snap.Postings(ctx, "alpha"); len(postings) != 1 {
		t.Errorf("Expected snapshot to see 1 posting, got %d", len(postings))
	}
}

func TestStaleDocuments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_ = s.RecordPage(ctx, fetchedPage("https://example.com/fresh", "a", "h1"), nil)
	_ = s.ReplaceDocument(ctx, Document{URL: "https://example.com/fresh", ContentHash: "h1"}, nil)

	_ = s.RecordPage(ctx, fetchedPage("https://example.com/changed", "b", "h2"), nil)
	_ = s.ReplaceDocument(ctx, Document{URL: "https://example.com/changed", ContentHash: "old"}, nil)

	_ = s.RecordPage(ctx, fetchedPage("https://example.com/unindexed", "c", "h3"), nil)

	_ = s.RecordPage(ctx, fetchedPage("https://example.com/failed", "d", "h4"), nil)
	_ = s.ReplaceDocument(ctx, Document{URL: "https://example.com/failed", ContentHash: "h4"}, nil)
	_ = s.RecordPage(ctx, Page{URL: "https://example.com/failed", Status: StatusFailed}, nil)

	stale, err := s.StaleDocuments(ctx)
	if err != nil {
		t.Fatalf("StaleDocuments failed: %v", err)
	}
	want := []string{
		"https://example.com/changed",
		"https://example.com/failed",
		"https://example.com/unindexed",
	}
	if !reflect.DeepEqual(stale, want) {
		t.Errorf("StaleDocuments = %v, want %v", stale, want)
	}
}

func TestPositionsRoundTrip(t *testing.T) {
	if got := decodePositions(encodePositions([]int{3, 14, 159})); !reflect.DeepEqual(got, []int{3, 14, 159}) {
		t.Errorf("Unexpected positions %v", got)
	}
	if got := decodePositions(""); got != nil {
		t.Errorf("Expected nil for empty positions, got %v", got)
	}
}

func TestSnapshotPostingsJoinsPagesAndDocuments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	urls := []string{"https://example.com/c", "https://example.com/a", "https://example.com/b"}
	for i, u := range urls {
		hash := "hash-" + u
		if err := s.RecordPage(ctx, fetchedPage(u, "gopher", hash), nil); err != nil {
			t.Fatalf("RecordPage failed: %v", err)
		}
		posting := []Posting{{Term: "gopher", TF: i + 1, Positions: []int{0}}}
		if err := s.ReplaceDocument(ctx, Document{URL: u, ContentHash: hash, Length: 1}, posting); err != nil {
			t.Fatalf("ReplaceDocument failed: %v", err)
		}
	}

	snap, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	defer snap.Close()

	got, err := snap.Postings(ctx, "gopher")
	if err != nil {
		t.Fatalf("Postings failed: %v", err)
	}
	var order []string
	tf := make(map[string]int)
	for _, p := range got {
		order = append(order, p.URL)
		tf[p.URL] = p.TF
	}
	want := []string{"https://example.com/a", "https://example.com/b", "https://example.com/c"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("Postings order = %v, want %v", order, want)
	}
	if tf["https://example.com/c"] != 1 || tf["https://example.com/a"] != 2 || tf["https://example.com/b"] != 3 {
		t.Errorf("Unexpected term frequencies %v", tf)
	}

	if none, err := snap.Postings(ctx, "missing"); err != nil || len(none) != 0 {
		t.Errorf("Postings(missing) = %v, %v; want empty", none, err)
	}
}
