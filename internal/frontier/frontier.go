// Package frontier holds the URLs a crawl has discovered but not yet
// fetched. It serves them breadth-first, never hands out the same URL twice
// in a run, and spaces requests to each host.
//
// URLs that are queued or in flight are tracked exactly. Once an entry is
// Done its URL is retired into a Bloom filter, so the memory held for the
// visited set is bounded by the queue plus a fixed-size bit array rather
// than by the number of pages crawled. A filter false positive makes a
// never-seen URL look visited; FalsePositiveRate bounds how often.
package frontier

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/Nova-Search/api/internal/metrics"
	"github.com/Nova-Search/api/internal/urlnorm"
)

// ErrExhausted is returned by Dequeue once the queue is empty and no
// dequeued entry is still being processed.
var ErrExhausted = errors.New("frontier exhausted")

// Entry is one URL waiting to be crawled
type Entry struct {
	URL            string
	Depth          int
	DiscoveredFrom string
	Host           string
}

// Options configures a Frontier
type Options struct {
	MaxDepth       int
	MaxPending     int // 0 means unlimited
	MaxURLsPerHost int // 0 means unlimited
	HostDelay      time.Duration
	ExpectedURLs      uint    // retired-URL filter sizing
	FalsePositiveRate float64 // chance an unseen URL is taken as visited
}

// level is the queue for one depth: a FIFO per host, served round-robin
type level struct {
	hosts map[string][]Entry
	order []string
	size  int
}

// Frontier is safe for concurrent use
type Frontier struct {
	opts    Options
	limiter *HostLimiter

	mu         sync.Mutex
	levels     []*level
	pending    int
	inFlight   int
	active     map[string]struct{} // queued or in flight
	retired    *bloom.BloomFilter  // done or marked visited
	hostCounts map[string]int
	wake       chan struct{}
	now        func() time.Time
}

// New creates an empty Frontier
func New(opts Options) *Frontier {
	if opts.ExpectedURLs == 0 {
		opts.ExpectedURLs = 1 << 20
	}
	if opts.FalsePositiveRate <= 0 || opts.FalsePositiveRate >= 1 {
		opts.FalsePositiveRate = 1e-6
	}
	return &Frontier{
		opts:       opts,
		limiter:    NewHostLimiter(opts.HostDelay),
		active:     make(map[string]struct{}),
		retired:    bloom.NewWithEstimates(opts.ExpectedURLs, opts.FalsePositiveRate),
		hostCounts: make(map[string]int),
		wake:       make(chan struct{}),
		now:        time.Now,
	}
}

// Enqueue adds url at depth. It returns false, changing nothing, when depth
// exceeds the maximum, the URL was already enqueued or visited, the queue is
// full, or the URL's host has used up its budget.
func (f *Frontier) Enqueue(url string, depth int, source string) bool {
	if depth < 0 || depth > f.opts.MaxDepth {
		return false
	}
	host := urlnorm.Host(url)

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.seenLocked(url) {
		return false
	}
	if f.opts.MaxPending > 0 && f.pending >= f.opts.MaxPending {
		return false
	}
	if f.opts.MaxURLsPerHost > 0 && f.hostCounts[host] >= f.opts.MaxURLsPerHost {
		return false
	}

	f.active[url] = struct{}{}
	f.hostCounts[host]++

	for len(f.levels) <= depth {
		f.levels = append(f.levels, &level{hosts: make(map[string][]Entry)})
	}
	lvl := f.levels[depth]
	if _, ok := lvl.hosts[host]; !ok {
		lvl.order = append(lvl.order, host)
	}
	lvl.hosts[host] = append(lvl.hosts[host], Entry{URL: url, Depth: depth, DiscoveredFrom: source, Host: host})
	lvl.size++
	f.pending++

	metrics.SetFrontierPending(f.pending)
	f.broadcastLocked()
	return true
}

// MarkVisited records url as already crawled so it will never be enqueued.
// Used when rebuilding a run from the store.
func (f *Frontier) MarkVisited(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.seenLocked(url) {
		f.retired.AddString(url)
		f.hostCounts[urlnorm.Host(url)]++
	}
}

// Seen reports whether url was enqueued or visited in this run
func (f *Frontier) Seen(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seenLocked(url)
}

// SetHostDelay overrides the politeness interval of one host, e.g. from a
// robots.txt Crawl-delay.
func (f *Frontier) SetHostDelay(host string, delay time.Duration) {
	f.limiter.SetHostDelay(host, delay)
}

// Dequeue blocks until an entry is eligible and returns it. Entries at a
// lower depth are always returned before deeper ones; within a depth, hosts
// that are still inside their politeness interval are skipped. It returns
// ErrExhausted at quiescence and the context error on cancellation.
// Every returned entry must be passed to Done.
func (f *Frontier) Dequeue(ctx context.Context) (Entry, error) {
	var waitStart time.Time

	for {
		if err := ctx.Err(); err != nil {
			return Entry{}, err
		}

		f.mu.Lock()
		if f.pending == 0 && f.inFlight == 0 {
			f.mu.Unlock()
			return Entry{}, ErrExhausted
		}

		var wait time.Duration
		if f.pending > 0 {
			entry, ok, next := f.takeLocked()
			if ok {
				f.pending--
				f.inFlight++
				metrics.SetFrontierPending(f.pending)
				f.mu.Unlock()
				if !waitStart.IsZero() {
					metrics.ObservePolitenessWait(time.Since(waitStart))
				}
				return entry, nil
			}
			wait = next
			if waitStart.IsZero() {
				waitStart = time.Now()
			}
		}
		wake := f.wake
		f.mu.Unlock()

		var timer *time.Timer
		var timeout <-chan time.Time
		if wait > 0 {
			timer = time.NewTimer(wait)
			timeout = timer.C
		}

		select {
		case <-ctx.Done():
		case <-wake:
		case <-timeout:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// takeLocked pops the next eligible entry from the lowest non-empty depth.
// When no host there is eligible it returns the shortest wait.
func (f *Frontier) takeLocked() (Entry, bool, time.Duration) {
	var lvl *level
	for _, l := range f.levels {
		if l.size > 0 {
			lvl = l
			break
		}
	}
	if lvl == nil {
		return Entry{}, false, 0
	}

	now := f.now()
	shortest := time.Duration(-1)
	for i, host := range lvl.order {
		ok, wait := f.limiter.TryAcquire(host, now)
		if !ok {
			if shortest < 0 || wait < shortest {
				shortest = wait
			}
			continue
		}

		queue := lvl.hosts[host]
		entry := queue[0]
		lvl.size--

		// Rotate the served host to the back so hosts take turns
		lvl.order = append(lvl.order[:i], lvl.order[i+1:]...)
		if len(queue) == 1 {
			delete(lvl.hosts, host)
		} else {
			lvl.hosts[host] = queue[1:]
			lvl.order = append(lvl.order, host)
		}
		return entry, true, 0
	}
	return Entry{}, false, shortest
}

// Done marks a dequeued entry as fully processed and retires its URL. When
// the last in-flight entry finishes with nothing queued, blocked Dequeue
// calls return ErrExhausted.
func (f *Frontier) Done(entry Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.active[entry.URL]; ok {
		delete(f.active, entry.URL)
		f.retired.AddString(entry.URL)
	}

	if f.inFlight > 0 {
		f.inFlight--
	}
	f.broadcastLocked()
}

// Len returns the number of queued entries
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending
}

// InFlight returns the number of dequeued entries not yet Done
func (f *Frontier) InFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight
}

// Active returns the number of URLs tracked exactly: queued plus in flight
func (f *Frontier) Active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.active)
}

func (f *Frontier) seenLocked(url string) bool {
	if _, ok := f.active[url]; ok {
		return true
	}
	return f.retired.TestString(url)
}

func (f *Frontier) broadcastLocked() {
	close(f.wake)
	f.wake = make(chan struct{})
}
