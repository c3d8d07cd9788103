package store

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/Nova-Search/api/internal/metrics"
)

// retryPolicy retries busy/locked errors with jittered exponential backoff
type retryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

func newRetryPolicy() *retryPolicy {
	return &retryPolicy{
		maxAttempts: 3,
		baseDelay:   50 * time.Millisecond,
		maxDelay:    time.Second,
	}
}

// shouldRetry decides whether the error is retryable
func (p *retryPolicy) shouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.maxAttempts {
		return false
	}
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

// backoff returns the wait duration before the next attempt
func (p *retryPolicy) backoff(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	return time.Duration(delay/2) + randomJitter(time.Duration(delay)/2)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

// withRetry runs fn, retrying transient lock errors. Failures other than
// ErrNotFound and context cancellation come back wrapped in
// ErrStoreUnavailable.
func (s *Store) withRetry(ctx context.Context, op string, fn func() error) error {
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || errors.Is(err, ErrNotFound) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", op, ctxErr)
		}
		if !s.retry.shouldRetry(err, attempt) {
			return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
		}

		metrics.ObserveStoreRetry(op)
		s.logger.Warn("Retrying store operation", "op", op, "attempt", attempt, "error", err)

		timer := time.NewTimer(s.retry.backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: %w", op, ctx.Err())
		case <-timer.C:
		}
	}
}
