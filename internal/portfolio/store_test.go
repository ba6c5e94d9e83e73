package portfolio

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"sync"
	"testing"
	"time"

	"crypto-chat-assistant/internal/market"
)

type fakePrices struct {
	mu     sync.Mutex
	quotes map[string]market.PriceQuote
	err    error
	calls  [][]string
}

func (f *fakePrices) GetMultiplePrices(_ context.Context, ids []string) (map[string]market.PriceQuote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), ids...))
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]market.PriceQuote)
	for _, id := range ids {
		if q, ok := f.quotes[id]; ok {
			out[id] = q
		}
	}
	return out, nil
}

type fakeRecorder struct {
	sessions []string
}

func (r *fakeRecorder) RecordValuation(_ context.Context, sessionID string, _ ValuationReport) error {
	r.sessions = append(r.sessions, sessionID)
	return nil
}

func fixedNow() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

func ptr(v float64) *float64 { return &v }

func TestUpsertThenValuate(t *testing.T) {
	prices := &fakePrices{quotes: map[string]market.PriceQuote{"ethereum": {USD: 3000}}}
	s := NewStore(prices, nil, fixedNow)

	res, err := s.UpsertHolding("s1", "eth", "2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Symbol != "ETH" || res.Action != ActionAdded {
		t.Errorf("unexpected upsert result %+v", res)
	}

	report, err := s.Valuate(context.Background(), "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := ValuationReport{
		TotalValue: 6000,
		Holdings:   []HoldingValue{{Symbol: "ETH", Quantity: 2, UnitPrice: 3000, Value: 6000}},
		ComputedAt: fixedNow(),
	}
	if !reflect.DeepEqual(report, want) {
		t.Errorf("expected %+v, got %+v", want, report)
	}
	if !reflect.DeepEqual(prices.calls, [][]string{{"ethereum"}}) {
		t.Errorf("expected one batched call for ethereum, got %v", prices.calls)
	}
}

func TestUpsertHolding_InvalidAmount(t *testing.T) {
	s := NewStore(&fakePrices{}, nil, fixedNow)
	for _, amount := range []string{"-1", "abc", "", "NaN"} {
		if _, err := s.UpsertHolding("s1", "BTC", amount); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("amount %q: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
	if h := s.Holdings("s1"); len(h) != 0 {
		t.Errorf("invalid amounts must not create holdings, got %v", h)
	}
}

func TestUpsertHolding_AddVersusUpdate(t *testing.T) {
	s := NewStore(&fakePrices{}, nil, fixedNow)
	if res, _ := s.UpsertHolding("s1", "btc", "0"); res.Action != ActionAdded {
		t.Errorf("first upsert should add, got %s", res.Action)
	}
	if res, _ := s.UpsertHolding("s1", "BTC", "1.5"); res.Action != ActionAdded {
		t.Errorf("upsert over zero should add, got %s", res.Action)
	}
	res, _ := s.UpsertHolding("s1", " Btc ", "3")
	if res.Action != ActionUpdated {
		t.Errorf("upsert over positive should update, got %s", res.Action)
	}
	if res.OldAmount != 1.5 {
		t.Errorf("expected old amount 1.5, got %v", res.OldAmount)
	}
	if h := s.Holdings("s1"); len(h) != 1 || h[0].Quantity != 3 {
		t.Errorf("expected a single BTC holding of 3, got %v", h)
	}
}

func TestUpsertHolding_EmptySymbol(t *testing.T) {
	s := NewStore(&fakePrices{}, nil, fixedNow)
	if _, err := s.UpsertHolding("s1", "  ", "1"); !errors.Is(err, ErrInvalidSymbol) {
		t.Errorf("expected ErrInvalidSymbol, got %v", err)
	}
}

func TestRemoveHolding(t *testing.T) {
	s := NewStore(&fakePrices{}, nil, fixedNow)
	if _, err := s.RemoveHolding("s1", "DOGE"); !errors.Is(err, ErrHoldingNotFound) {
		t.Fatalf("expected ErrHoldingNotFound, got %v", err)
	}
	_, _ = s.UpsertHolding("s1", "doge", "1000")
	_, _ = s.UpsertHolding("s1", "sol", "4")
	res, err := s.RemoveHolding("s1", "Doge")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Amount != 1000 || res.Symbol != "DOGE" {
		t.Errorf("unexpected remove result %+v", res)
	}
	if h := s.Holdings("s1"); len(h) != 1 || h[0].Symbol != "SOL" {
		t.Errorf("expected only SOL left, got %v", h)
	}
}

func TestClearPortfolio_EmptySessionNoNetwork(t *testing.T) {
	prices := &fakePrices{}
	s := NewStore(prices, nil, fixedNow)
	if n := s.ClearPortfolio("s1"); n != 0 {
		t.Errorf("expected 0 cleared, got %d", n)
	}
	report, err := s.Valuate(context.Background(), "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.TotalValue != 0 || len(report.Holdings) != 0 {
		t.Errorf("expected empty report, got %+v", report)
	}
	if report.Holdings == nil {
		t.Error("expected non-nil empty holdings")
	}
	if len(prices.calls) != 0 {
		t.Errorf("expected no price lookups, got %v", prices.calls)
	}
}

func TestClearPortfolio_CountsHoldings(t *testing.T) {
	s := NewStore(&fakePrices{}, nil, fixedNow)
	_, _ = s.UpsertHolding("s1", "btc", "1")
	_, _ = s.UpsertHolding("s1", "eth", "2")
	if n := s.ClearPortfolio("s1"); n != 2 {
		t.Errorf("expected 2 cleared, got %d", n)
	}
	if h := s.Holdings("s1"); len(h) != 0 {
		t.Errorf("expected no holdings, got %v", h)
	}
}

func TestValuate_MissingQuoteDegrades(t *testing.T) {
	prices := &fakePrices{quotes: map[string]market.PriceQuote{
		"bitcoin":  {USD: 50000, USD24hChange: ptr(-1.25)},
		"ethereum": {USD: 3000},
	}}
	s := NewStore(prices, nil, fixedNow)
	_, _ = s.UpsertHolding("s1", "btc", "0.5")
	_, _ = s.UpsertHolding("s1", "zzz", "10")
	_, _ = s.UpsertHolding("s1", "eth", "2")

	report, err := s.Valuate(context.Background(), "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.TotalValue != 31000 {
		t.Errorf("expected total 31000, got %v", report.TotalValue)
	}
	symbols := []string{}
	for _, h := range report.Holdings {
		symbols = append(symbols, h.Symbol)
	}
	if !reflect.DeepEqual(symbols, []string{"BTC", "ZZZ", "ETH"}) {
		t.Errorf("expected insertion order, got %v", symbols)
	}
	missing := report.Holdings[1]
	if missing.UnitPrice != 0 || missing.Value != 0 || missing.Error == "" {
		t.Errorf("expected degraded holding, got %+v", missing)
	}
	if report.Holdings[0].Change24h != -1.25 {
		t.Errorf("expected 24h change -1.25, got %v", report.Holdings[0].Change24h)
	}
	if len(prices.calls) != 1 {
		t.Fatalf("expected one batched lookup, got %d", len(prices.calls))
	}
	ids := append([]string(nil), prices.calls[0]...)
	sort.Strings(ids)
	if !reflect.DeepEqual(ids, []string{"bitcoin", "ethereum", "zzz"}) {
		t.Errorf("unexpected resolved ids %v", ids)
	}
}

func TestValuate_PropagatesLookupFailure(t *testing.T) {
	prices := &fakePrices{err: market.ErrRateLimitExceeded}
	s := NewStore(prices, nil, fixedNow)
	_, _ = s.UpsertHolding("s1", "btc", "1")
	if _, err := s.Valuate(context.Background(), "s1"); !errors.Is(err, market.ErrRateLimitExceeded) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
}

func TestValuate_RecordsReport(t *testing.T) {
	rec := &fakeRecorder{}
	s := NewStore(&fakePrices{quotes: map[string]market.PriceQuote{"bitcoin": {USD: 10}}}, rec, fixedNow)
	_, _ = s.UpsertHolding("s9", "btc", "1")
	if _, err := s.Valuate(context.Background(), "s9"); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(rec.sessions, []string{"s9"}) {
		t.Errorf("expected one recorded valuation, got %v", rec.sessions)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	s := NewStore(&fakePrices{}, nil, fixedNow)
	_, _ = s.UpsertHolding("a", "btc", "1")
	if h := s.Holdings("b"); len(h) != 0 {
		t.Errorf("session b should be empty, got %v", h)
	}
}

func TestCoinID(t *testing.T) {
	cases := map[string]string{
		"btc":    "bitcoin",
		"MATIC":  "matic-network",
		"Pepe":   "pepe",
		" avax ": "avalanche-2",
	}
	for in, want := range cases {
		if got := CoinID(in); got != want {
			t.Errorf("CoinID(%q) = %q, want %q", in, got, want)
		}
	}
}
