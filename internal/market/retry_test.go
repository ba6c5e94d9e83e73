package market

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"testing"
	"time"
)

func newTestFetcher(clk *fakeClock) *Fetcher {
	return NewFetcher(NewRateLimiter(0, newFakeClock()), clk, 3)
}

func TestExecute_ThrottledThenSuccess(t *testing.T) {
	clk := newFakeClock()
	f := newTestFetcher(clk)
	calls := 0
	got, err := Execute(context.Background(), f, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", &StatusError{Code: http.StatusTooManyRequests}
		}
		return "third", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "third" {
		t.Errorf("expected attempt-3 result, got %q", got)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if s := clk.Sleeps(); !reflect.DeepEqual(s, want) {
		t.Errorf("expected backoff %v, got %v", want, s)
	}
}

func TestExecute_AlwaysThrottled(t *testing.T) {
	clk := newFakeClock()
	f := newTestFetcher(clk)
	calls := 0
	_, err := Execute(context.Background(), f, func(context.Context) (int, error) {
		calls++
		return 0, &StatusError{Code: http.StatusTooManyRequests}
	})
	if !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("expected ErrRateLimitExceeded, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestExecute_TransientExhausted(t *testing.T) {
	clk := newFakeClock()
	f := newTestFetcher(clk)
	cause := &StatusError{Code: http.StatusBadGateway}
	_, err := Execute(context.Background(), f, func(context.Context) (int, error) {
		return 0, cause
	})
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Error("upstream error should wrap the last cause")
	}
	want := []time.Duration{time.Second, 2 * time.Second}
	if s := clk.Sleeps(); !reflect.DeepEqual(s, want) {
		t.Errorf("expected backoff %v, got %v", want, s)
	}
}

func TestExecute_PermanentNotRetried(t *testing.T) {
	clk := newFakeClock()
	f := newTestFetcher(clk)
	calls := 0
	_, err := Execute(context.Background(), f, func(context.Context) (int, error) {
		calls++
		return 0, &StatusError{Code: http.StatusBadRequest}
	})
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if upstream.Attempts != 1 {
		t.Errorf("expected 1 recorded attempt, got %d", upstream.Attempts)
	}
	if calls != 1 {
		t.Errorf("expected a single attempt, got %d", calls)
	}
	if len(clk.Sleeps()) != 0 {
		t.Errorf("expected no backoff, got %v", clk.Sleeps())
	}
}

func TestExecute_EachAttemptAcquiresLimiter(t *testing.T) {
	limiterClock := newFakeClock()
	f := NewFetcher(NewRateLimiter(time.Second, limiterClock), newFakeClock(), 3)
	calls := 0
	_, _ = Execute(context.Background(), f, func(context.Context) (int, error) {
		calls++
		return 0, &StatusError{Code: http.StatusServiceUnavailable}
	})
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if got := len(limiterClock.Sleeps()); got != 2 {
		t.Errorf("expected limiter to delay 2 retries, got %d", got)
	}
}

func TestThrottleBackoffCapped(t *testing.T) {
	if got := throttleBackoff(5); got != 10*time.Second {
		t.Errorf("expected cap at 10s, got %v", got)
	}
	if got := throttleBackoff(1); got != 2*time.Second {
		t.Errorf("expected 2s, got %v", got)
	}
}

func TestExecute_NotFoundPassesThrough(t *testing.T) {
	f := newTestFetcher(newFakeClock())
	_, err := Execute(context.Background(), f, func(context.Context) (int, error) {
		return 0, ErrNotFound
	})
	var upstream *UpstreamError
	if !errors.Is(err, ErrNotFound) || errors.As(err, &upstream) {
		t.Errorf("expected bare ErrNotFound, got %v", err)
	}
}

func TestExecute_MixedFailuresEndUpstream(t *testing.T) {
	clk := newFakeClock()
	f := newTestFetcher(clk)
	calls := 0
	_, err := Execute(context.Background(), f, func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, &StatusError{Code: http.StatusBadGateway}
		}
		return 0, &StatusError{Code: http.StatusTooManyRequests}
	})
	if errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("rate limit error is only for fully throttled runs, got %v", err)
	}
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if !isThrottled(upstream.Err) {
		t.Errorf("expected last cause to be the throttle, got %v", upstream.Err)
	}
	want := []time.Duration{time.Second, 4 * time.Second}
	if s := clk.Sleeps(); !reflect.DeepEqual(s, want) {
		t.Errorf("expected backoff %v, got %v", want, s)
	}
}
