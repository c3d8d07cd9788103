package frontier

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HostLimiter enforces a minimum interval between requests to each host
type HostLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	delay    time.Duration
}

// NewHostLimiter creates a limiter with defaultDelay between requests per host
func NewHostLimiter(defaultDelay time.Duration) *HostLimiter {
	return &HostLimiter{
		limiters: make(map[string]*rate.Limiter),
		delay:    defaultDelay,
	}
}

// SetHostDelay sets a custom delay for a host. Delays shorter than the
// default are raised to it.
func (r *HostLimiter) SetHostDelay(host string, delay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if delay < r.delay {
		delay = r.delay
	}

	if limiter, exists := r.limiters[host]; exists {
		limiter.SetLimit(every(delay))
		return
	}
	r.limiters[host] = rate.NewLimiter(every(delay), 1)
}

// TryAcquire takes the host's token if it is available at now. Otherwise it
// reports how long until it will be, without consuming anything.
func (r *HostLimiter) TryAcquire(host string, now time.Time) (bool, time.Duration) {
	limiter := r.getLimiter(host)

	res := limiter.ReserveN(now, 1)
	if !res.OK() {
		return false, r.delay
	}
	wait := res.DelayFrom(now)
	if wait == 0 {
		return true, 0
	}
	res.CancelAt(now)
	return false, wait
}

// getLimiter gets or creates the limiter for a host
func (r *HostLimiter) getLimiter(host string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limiter, exists := r.limiters[host]; exists {
		return limiter
	}

	limiter := rate.NewLimiter(every(r.delay), 1)
	r.limiters[host] = limiter
	return limiter
}

func every(delay time.Duration) rate.Limit {
	if delay <= 0 {
		return rate.Inf
	}
	return rate.Every(delay)
}
