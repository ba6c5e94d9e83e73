package market

import (
	"context"
	"errors"
	"log"
	"time"
)

const (
	defaultMaxRetries = 3
	maxThrottleWait   = 10 * time.Second
)

// Fetcher runs single provider calls under the shared rate limiter and
// retries them with backoff.
type Fetcher struct {
	limiter    *RateLimiter
	clock      Clock
	maxRetries int
}

func NewFetcher(limiter *RateLimiter, clock Clock, maxRetries int) *Fetcher {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Fetcher{limiter: limiter, clock: clock, maxRetries: maxRetries}
}

func throttleBackoff(attempt int) time.Duration {
	wait := time.Second << uint(attempt)
	if wait > maxThrottleWait || wait <= 0 {
		return maxThrottleWait
	}
	return wait
}

func transientBackoff(attempt int) time.Duration {
	return time.Duration(attempt) * time.Second
}

// Execute performs op, re-acquiring the rate limiter before every attempt.
// When every attempt is throttled the result is ErrRateLimitExceeded. Any
// other failure that is not ErrNotFound ends in *UpstreamError.
func Execute[T any](ctx context.Context, f *Fetcher, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	allThrottled := true
	for attempt := 1; attempt <= f.maxRetries; attempt++ {
		if f.limiter != nil {
			if _, err := f.limiter.Acquire(ctx); err != nil {
				return zero, err
			}
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if isThrottled(err) {
			if attempt == f.maxRetries {
				if allThrottled {
					return zero, ErrRateLimitExceeded
				}
				break
			}
			wait := throttleBackoff(attempt)
			log.Printf("market rate limited, waiting %v before retry %d/%d", wait, attempt, f.maxRetries)
			if err := f.clock.Sleep(ctx, wait); err != nil {
				return zero, err
			}
			continue
		}
		allThrottled = false

		if !shouldRetry(err) {
			if errors.Is(err, ErrNotFound) {
				return zero, err
			}
			return zero, &UpstreamError{Attempts: attempt, Err: err}
		}
		log.Printf("market request attempt %d/%d failed: %v", attempt, f.maxRetries, err)
		if attempt == f.maxRetries {
			break
		}
		if err := f.clock.Sleep(ctx, transientBackoff(attempt)); err != nil {
			return zero, err
		}
	}
	return zero, &UpstreamError{Attempts: f.maxRetries, Err: lastErr}
}
