package market

import (
	"context"
	"time"
)

// RateLimiter is the single process-wide serialization point for outbound
// provider calls. Grants are at least minInterval apart and waiters are
// served in arrival order.
type RateLimiter struct {
	minInterval time.Duration
	clock       Clock

	// token holds the right to inspect and update last. Blocked receivers
	// on a channel are woken first-in first-out.
	token chan struct{}
	last  time.Time
}

func NewRateLimiter(minInterval time.Duration, clock Clock) *RateLimiter {
	if minInterval < 0 {
		minInterval = 0
	}
	if clock == nil {
		clock = SystemClock{}
	}
	l := &RateLimiter{
		minInterval: minInterval,
		clock:       clock,
		token:       make(chan struct{}, 1),
	}
	l.token <- struct{}{}
	return l
}

// Acquire blocks until the caller may issue the next request and returns
// the time the slot was granted.
func (l *RateLimiter) Acquire(ctx context.Context) (time.Time, error) {
	select {
	case <-l.token:
	case <-ctx.Done():
		return time.Time{}, ctx.Err()
	}
	defer func() { l.token <- struct{}{} }()

	if !l.last.IsZero() {
		if wait := l.minInterval - l.clock.Now().Sub(l.last); wait > 0 {
			if err := l.clock.Sleep(ctx, wait); err != nil {
				return time.Time{}, err
			}
		}
	}
	l.last = l.clock.Now()
	return l.last, nil
}

func (l *RateLimiter) MinInterval() time.Duration {
	return l.minInterval
}
