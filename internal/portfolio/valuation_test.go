package portfolio

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"crypto-chat-assistant/internal/market"
)

type frozenClock struct{ now time.Time }

func (c frozenClock) Now() time.Time { return c.now }

func (c frozenClock) Sleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func TestValuateTwiceWithinTTLIsIdentical(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/simple/price" {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]map[string]float64{
			"bitcoin":  {"usd": 50000, "usd_24h_change": 1.25},
			"ethereum": {"usd": 3000, "usd_24h_change": -2.5},
		})
	}))
	defer srv.Close()

	clk := frozenClock{now: fixedNow()}
	fetcher := market.NewFetcher(market.NewRateLimiter(0, clk), clk, 3)
	client := market.NewClient(market.ClientConfig{BaseURL: srv.URL, BatchSize: 10},
		fetcher, market.NewResponseCache(time.Minute, clk), clk)
	s := NewStore(client, nil, fixedNow)

	if _, err := s.UpsertHolding("s1", "BTC", "0.5"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.UpsertHolding("s1", "ETH", "2"); err != nil {
		t.Fatal(err)
	}

	first, err := s.Valuate(context.Background(), "s1")
	if err != nil {
		t.Fatalf("first valuation: %v", err)
	}
	second, err := s.Valuate(context.Background(), "s1")
	if err != nil {
		t.Fatalf("second valuation: %v", err)
	}

	if n := hits.Load(); n != 1 {
		t.Errorf("expected one provider call, got %d", n)
	}
	if first.TotalValue != 31000 || second.TotalValue != first.TotalValue {
		t.Errorf("expected total 31000 both times, got %v and %v", first.TotalValue, second.TotalValue)
	}
	if !reflect.DeepEqual(first.Holdings, second.Holdings) {
		t.Errorf("holdings differ:\n%+v\n%+v", first.Holdings, second.Holdings)
	}
}
