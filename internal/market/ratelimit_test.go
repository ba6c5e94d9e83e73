package market

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"
)

func TestRateLimiter_ConcurrentGrantsAreSpaced(t *testing.T) {
	clk := newFakeClock()
	minInterval := 1100 * time.Millisecond
	l := NewRateLimiter(minInterval, clk)

	const n = 8
	var (
		mu     sync.Mutex
		grants []time.Time
		wg     sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			at, err := l.Acquire(context.Background())
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			mu.Lock()
			grants = append(grants, at)
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(grants) != n {
		t.Fatalf("expected %d grants, got %d", n, len(grants))
	}
	sort.Slice(grants, func(i, j int) bool { return grants[i].Before(grants[j]) })
	for i := 1; i < len(grants); i++ {
		if gap := grants[i].Sub(grants[i-1]); gap < minInterval {
			t.Errorf("grants %d and %d only %v apart", i-1, i, gap)
		}
	}
}

func TestRateLimiter_NoWaitAfterIdle(t *testing.T) {
	clk := newFakeClock()
	l := NewRateLimiter(time.Second, clk)
	if _, err := l.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	clk.Advance(5 * time.Second)
	if _, err := l.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s := clk.Sleeps(); len(s) != 0 {
		t.Errorf("expected no waits, got %v", s)
	}
}

func TestRateLimiter_PartialWait(t *testing.T) {
	clk := newFakeClock()
	l := NewRateLimiter(time.Second, clk)
	first, _ := l.Acquire(context.Background())
	clk.Advance(300 * time.Millisecond)
	second, _ := l.Acquire(context.Background())

	if got := second.Sub(first); got != time.Second {
		t.Errorf("expected grants 1s apart, got %v", got)
	}
	s := clk.Sleeps()
	if len(s) != 1 || s[0] != 700*time.Millisecond {
		t.Errorf("expected a single 700ms wait, got %v", s)
	}
}

func TestRateLimiter_CancelledWhileQueued(t *testing.T) {
	l := NewRateLimiter(time.Hour, SystemClock{})
	if _, err := l.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

type callerKey struct{}

// gateClock blocks every Sleep until gate is closed and records which
// caller slept, in order.
type gateClock struct {
	gate    chan struct{}
	entered chan struct{}
	mu      sync.Mutex
	order   []int
}

func (c *gateClock) Now() time.Time { return time.Now() }

func (c *gateClock) Sleep(ctx context.Context, _ time.Duration) error {
	c.mu.Lock()
	c.order = append(c.order, ctx.Value(callerKey{}).(int))
	c.mu.Unlock()
	select {
	case c.entered <- struct{}{}:
	default:
	}
	<-c.gate
	return nil
}

func TestRateLimiter_GrantsInArrivalOrder(t *testing.T) {
	clk := &gateClock{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	l := NewRateLimiter(time.Hour, clk)
	if _, err := l.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}

	const n = 5
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		ctx := context.WithValue(context.Background(), callerKey{}, i)
		go func() {
			defer wg.Done()
			if _, err := l.Acquire(ctx); err != nil {
				t.Errorf("acquire: %v", err)
			}
		}()
		if i == 0 {
			<-clk.entered
		} else {
			time.Sleep(10 * time.Millisecond)
		}
	}
	close(clk.gate)
	wg.Wait()

	clk.mu.Lock()
	defer clk.mu.Unlock()
	for i, got := range clk.order {
		if got != i {
			t.Fatalf("expected grants in arrival order, got %v", clk.order)
		}
	}
	if len(clk.order) != n {
		t.Errorf("expected %d waits, got %v", n, clk.order)
	}
}
