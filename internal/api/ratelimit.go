package api

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL  = 10 * time.Minute
	limiterSweepMin = 1024
)

type clientLimiter struct {
	get      *rate.Limiter
	post     *rate.Limiter
	lastSeen time.Time
}

// RateLimiter limits requests per client IP, with separate budgets for
// reads and writes
type RateLimiter struct {
	mu        sync.Mutex
	clients   map[string]*clientLimiter
	getLimit  rate.Limit
	getBurst  int
	postLimit rate.Limit
	postBurst int
	now       func() time.Time

	// TrustProxyHeaders keys clients by CF-Connecting-IP when set. Enable
	// it only when every request arrives through a proxy that overwrites
	// the header.
	TrustProxyHeaders bool
}

// NewRateLimiter allows getPerMinute GET and postPerMinute POST requests per
// client. A non-positive value disables that limit.
func NewRateLimiter(getPerMinute, postPerMinute int) *RateLimiter {
	rl := &RateLimiter{clients: make(map[string]*clientLimiter), now: time.Now}
	rl.getLimit, rl.getBurst = perMinute(getPerMinute)
	rl.postLimit, rl.postBurst = perMinute(postPerMinute)
	return rl
}

func perMinute(n int) (rate.Limit, int) {
	if n <= 0 {
		return rate.Inf, 0
	}
	return rate.Every(time.Minute / time.Duration(n)), n
}

// Allow reports whether client may make a request with method now
func (rl *RateLimiter) Allow(client, method string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cl, ok := rl.clients[client]
	if !ok {
		rl.sweepLocked(now)
		cl = &clientLimiter{
			get:  rate.NewLimiter(rl.getLimit, rl.getBurst),
			post: rate.NewLimiter(rl.postLimit, rl.postBurst),
		}
		rl.clients[client] = cl
	}
	cl.lastSeen = now

	if method == http.MethodPost || method == http.MethodPut || method == http.MethodDelete {
		return cl.post.AllowN(now, 1)
	}
	return cl.get.AllowN(now, 1)
}

// sweepLocked drops idle clients once the table grows
func (rl *RateLimiter) sweepLocked(now time.Time) {
	if len(rl.clients) < limiterSweepMin {
		return
	}
	for ip, cl := range rl.clients {
		if now.Sub(cl.lastSeen) > limiterIdleTTL {
			delete(rl.clients, ip)
		}
	}
}

// Middleware rejects requests over the client's budget with 429
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if !rl.Allow(rl.clientIP(r), r.Method) {
			w.Header().Set("Retry-After", strconv.Itoa(60))
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"detail": "Rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP is the peer address, or the address Cloudflare reports for the
// original client when proxy headers are trusted
func (rl *RateLimiter) clientIP(r *http.Request) string {
	if rl.TrustProxyHeaders {
		if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
