// Package ratelimit implements token-bucket admission control for the
// external embedding/scoring dependency. The bucket refills continuously at
// maxRequests/window; callers that cannot be served within the grace period
// fail fast instead of queuing a doomed request.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrRateLimited means the request was rejected without queuing because
	// the expected wait exceeded the grace period. Retryable later.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrAcquireTimeout means the request was queued but no token became
	// available within the grace period. Retryable later.
	ErrAcquireTimeout = errors.New("timed out waiting for rate limit token")
)

// RateLimitError carries the computed delay after which a retry could
// plausibly succeed. errors.Is(err, ErrRateLimited) holds for it.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter.Round(time.Millisecond))
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

type waiter struct {
	result     chan error
	enqueuedAt time.Time
}

// Limiter is a token bucket with a bounded FIFO wait queue. It is safe for
// concurrent use; all scoring workers share one instance.
type Limiter struct {
	mu         sync.Mutex
	maxTokens  float64
	refillRate float64 // tokens per second
	grace      time.Duration
	tokens     float64
	lastRefill time.Time
	queue      []*waiter

	done     chan struct{}
	stopOnce sync.Once
}

// New constructs a limiter allowing maxRequests per window. Queued callers
// that wait longer than grace are evicted. The caller owns the lifecycle and
// must Stop() the limiter on shutdown.
func New(maxRequests int, window, grace time.Duration) *Limiter {
	if maxRequests < 1 {
		maxRequests = 1
	}
	if window <= 0 {
		window = time.Minute
	}

	l := &Limiter{
		maxTokens:  float64(maxRequests),
		refillRate: float64(maxRequests) / window.Seconds(),
		grace:      grace,
		tokens:     float64(maxRequests),
		lastRefill: time.Now(),
		done:       make(chan struct{}),
	}
	go l.run()
	return l
}

// Acquire returns nil once a token has been consumed. It fails with
// ErrRateLimited when the expected wait exceeds the grace period, with
// ErrAcquireTimeout when a queued wait expires, or with the context error
// when the caller gives up first.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	l.refillLocked()

	if l.tokens >= 1 {
		l.tokens--
		l.mu.Unlock()
		return nil
	}

	expectedWait := time.Duration((1 - l.tokens) / l.refillRate * float64(time.Second))
	if expectedWait > l.grace {
		l.mu.Unlock()
		return &RateLimitError{RetryAfter: expectedWait}
	}

	w := &waiter{result: make(chan error, 1), enqueuedAt: time.Now()}
	l.queue = append(l.queue, w)
	l.mu.Unlock()

	select {
	case err := <-w.result:
		return err
	case <-ctx.Done():
		l.abandon(w)
		return ctx.Err()
	}
}

// Stop terminates the background admission loop. Pending waiters are evicted.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() {
		close(l.done)
		l.mu.Lock()
		for _, w := range l.queue {
			w.result <- ErrAcquireTimeout
		}
		l.queue = nil
		l.mu.Unlock()
	})
}

func (l *Limiter) run() {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.admit()
		}
	}
}

// admit refills the bucket, evicts expired waiters, and grants tokens FIFO.
func (l *Limiter) admit() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refillLocked()
	now := time.Now()

	for len(l.queue) > 0 {
		w := l.queue[0]
		if now.Sub(w.enqueuedAt) > l.grace {
			w.result <- ErrAcquireTimeout
			l.queue = l.queue[1:]
			continue
		}
		if l.tokens < 1 {
			break
		}
		l.tokens--
		w.result <- nil
		l.queue = l.queue[1:]
	}
}

// abandon removes a waiter whose caller cancelled. If a token was granted
// concurrently, it is returned to the bucket.
func (l *Limiter) abandon(w *waiter) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, queued := range l.queue {
		if queued == w {
			l.queue = append(l.queue[:i], l.queue[i+1:]...)
			return
		}
	}

	select {
	case err := <-w.result:
		if err == nil && l.tokens < l.maxTokens {
			l.tokens++
		}
	default:
	}
}

func (l *Limiter) refillLocked() {
	now := time.Now()
	elapsed := now.Sub(l.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	l.tokens = min(l.maxTokens, l.tokens+elapsed*l.refillRate)
	l.lastRefill = now
}
