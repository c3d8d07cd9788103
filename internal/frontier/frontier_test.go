package frontier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestEnqueueDepthBound(t *testing.T) {
	f := New(Options{MaxDepth: 1})

	if f.Enqueue("https://example.com/deep", 2, "") {
		t.Error("Expected URL beyond max depth to be rejected")
	}
	if f.Enqueue("https://example.com/neg", -1, "") {
		t.Error("Expected negative depth to be rejected")
	}
	if !f.Enqueue("https://example.com/ok", 1, "") {
		t.Error("Expected URL at max depth to be accepted")
	}
	if f.Len() != 1 {
		t.Errorf("Expected 1 pending entry, got %d", f.Len())
	}
}

func TestEnqueueDeduplicates(t *testing.T) {
	f := New(Options{MaxDepth: 3})
	url := "https://example.com/page"

	if !f.Enqueue(url, 0, "") {
		t.Fatal("First enqueue should succeed")
	}
	if f.Enqueue(url, 1, "https://example.com/") {
		t.Error("Duplicate enqueue should be a no-op")
	}

	entry, err := f.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	f.Done(entry)

	if f.Enqueue(url, 0, "") {
		t.Error("Visited URL should not be enqueued again")
	}
}

func TestConcurrentEnqueueAcceptsOnce(t *testing.T) {
	f := New(Options{MaxDepth: 2})

	var accepted int32
	var wg sync.WaitGroup
	for g := 0; g < 20; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				if f.Enqueue(fmt.Sprintf("https://example.com/%d", i), 1, fmt.Sprintf("src-%d", g)) {
					atomic.AddInt32(&accepted, 1)
				}
			}
		}(g)
	}
	wg.Wait()

	if accepted != 10 {
		t.Errorf("Expected exactly 10 accepted enqueues, got %d", accepted)
	}
	if f.Len() != 10 {
		t.Errorf("Expected 10 pending entries, got %d", f.Len())
	}
}

func TestDequeueBreadthFirst(t *testing.T) {
	f := New(Options{MaxDepth: 3})
	ctx := context.Background()

	f.Enqueue("https://a.example/2", 2, "")
	f.Enqueue("https://b.example/1", 1, "")
	f.Enqueue("https://c.example/0", 0, "")
	f.Enqueue("https://d.example/1", 1, "")

	var depths []int
	for {
		entry, err := f.Dequeue(ctx)
		if errors.Is(err, ErrExhausted) {
			break
		}
		if err != nil {
			t.Fatalf("Dequeue failed: %v", err)
		}
		depths = append(depths, entry.Depth)
		f.Done(entry)
	}

	want := []int{0, 1, 1, 2}
	if fmt.Sprint(depths) != fmt.Sprint(want) {
		t.Errorf("Dequeue depths = %v, want %v", depths, want)
	}
}

func TestDequeueExhaustedWaitsForInFlight(t *testing.T) {
	f := New(Options{MaxDepth: 1})
	ctx := context.Background()

	if _, err := f.Dequeue(ctx); !errors.Is(err, ErrExhausted) {
		t.Fatalf("Expected ErrExhausted on empty frontier, got %v", err)
	}

	f.Enqueue("https://example.com/", 0, "")
	entry, err := f.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}

	result := make(chan error, 1)
	go func() {
		_, err := f.Dequeue(ctx)
		result <- err
	}()

	select {
	case err := <-result:
		t.Fatalf("Dequeue returned %v while an entry was in flight", err)
	case <-time.After(50 * time.Millisecond):
	}

	f.Done(entry)

	select {
	case err := <-result:
		if !errors.Is(err, ErrExhausted) {
			t.Errorf("Expected ErrExhausted after Done, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not return after quiescence")
	}
}

func TestDequeueWakesOnEnqueue(t *testing.T) {
	f := New(Options{MaxDepth: 2})
	ctx := context.Background()

	f.Enqueue("https://example.com/", 0, "")
	parent, _ := f.Dequeue(ctx)

	result := make(chan Entry, 1)
	go func() {
		entry, err := f.Dequeue(ctx)
		if err == nil {
			result <- entry
		}
	}()

	time.Sleep(20 * time.Millisecond)
	f.Enqueue("https://example.com/child", 1, parent.URL)

	select {
	case entry := <-result:
		if entry.URL != "https://example.com/child" || entry.DiscoveredFrom != parent.URL {
			t.Errorf("Unexpected entry %+v", entry)
		}
	case <-time.After(time.Second):
		t.Fatal("Blocked Dequeue was not woken by Enqueue")
	}
}

func TestDequeuePoliteness(t *testing.T) {
	delay := 150 * time.Millisecond
	f := New(Options{MaxDepth: 1, HostDelay: delay})
	ctx := context.Background()

	f.Enqueue("https://a.example/1", 0, "")
	f.Enqueue("https://a.example/2", 0, "")
	f.Enqueue("https://b.example/1", 0, "")

	start := time.Now()
	var order []string
	for i := 0; i < 3; i++ {
		entry, err := f.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue failed: %v", err)
		}
		order = append(order, entry.URL)
		f.Done(entry)
	}
	elapsed := time.Since(start)

	want := []string{"https://a.example/1", "https://b.example/1", "https://a.example/2"}
	if fmt.Sprint(order) != fmt.Sprint(want) {
		t.Errorf("Dequeue order = %v, want %v", order, want)
	}
	if elapsed < delay-20*time.Millisecond {
		t.Errorf("Second request to the same host came after %v, want at least %v", elapsed, delay)
	}
}

func TestDequeueCancellation(t *testing.T) {
	f := New(Options{MaxDepth: 1, HostDelay: time.Hour})
	f.Enqueue("https://example.com/1", 0, "")
	f.Enqueue("https://example.com/2", 0, "")

	first, err := f.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	defer f.Done(first)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := f.Dequeue(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected context deadline error, got %v", err)
	}
}

func TestEnqueueCaps(t *testing.T) {
	f := New(Options{MaxDepth: 1, MaxPending: 2})
	f.Enqueue("https://a.example/", 0, "")
	f.Enqueue("https://b.example/", 0, "")
	if f.Enqueue("https://c.example/", 0, "") {
		t.Error("Expected enqueue beyond max pending to be rejected")
	}

	g := New(Options{MaxDepth: 1, MaxURLsPerHost: 1})
	g.Enqueue("https://a.example/1", 0, "")
	if g.Enqueue("https://a.example/2", 0, "") {
		t.Error("Expected enqueue beyond host budget to be rejected")
	}
	if !g.Enqueue("https://b.example/1", 0, "") {
		t.Error("Other hosts should not be affected by the budget")
	}
}

func TestMarkVisited(t *testing.T) {
	f := New(Options{MaxDepth: 1})
	f.MarkVisited("https://example.com/done")

	if !f.Seen("https://example.com/done") {
		t.Error("Expected URL to be seen after MarkVisited")
	}
	if f.Enqueue("https://example.com/done", 0, "") {
		t.Error("Visited URL should not be enqueued")
	}
	if f.Seen("https://example.com/other") {
		t.Error("Unrelated URL should not be seen")
	}
}

func TestDoneRetiresURLs(t *testing.T) {
	f := New(Options{MaxDepth: 1})
	ctx := context.Background()

	const n = 200
	for i := 0; i < n; i++ {
		f.Enqueue(fmt.Sprintf("https://example.com/%d", i), 0, "")
	}
	if got := f.Active(); got != n {
		t.Fatalf("Expected %d active URLs, got %d", n, got)
	}

	entry, err := f.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if got := f.Active(); got != n {
		t.Errorf("In-flight URL should stay active, got %d active", got)
	}
	f.Done(entry)
	for {
		entry, err := f.Dequeue(ctx)
		if errors.Is(err, ErrExhausted) {
			break
		}
		if err != nil {
			t.Fatalf("Dequeue failed: %v", err)
		}
		f.Done(entry)
	}

	if got := f.Active(); got != 0 {
		t.Errorf("Expected every finished URL to be retired, %d still active", got)
	}
	for i := 0; i < n; i++ {
		url := fmt.Sprintf("https://example.com/%d", i)
		if !f.Seen(url) {
			t.Errorf("Retired URL %s should still be seen", url)
		}
		if f.Enqueue(url, 0, "") {
			t.Errorf("Retired URL %s should not be enqueued again", url)
		}
	}
}
