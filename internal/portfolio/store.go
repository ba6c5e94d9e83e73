package portfolio

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"crypto-chat-assistant/internal/market"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount   = errors.New("invalid amount, please enter a positive number")
	ErrInvalidSymbol   = errors.New("symbol is required")
	ErrHoldingNotFound = errors.New("holding not found")
)

const priceUnavailable = "Price data unavailable"

type Action string

const (
	ActionAdded   Action = "added"
	ActionUpdated Action = "updated"
)

type Holding struct {
	Symbol   string  `json:"symbol"`
	Quantity float64 `json:"amount"`
}

type UpsertResult struct {
	Symbol    string  `json:"symbol"`
	Amount    float64 `json:"amount"`
	OldAmount float64 `json:"oldAmount"`
	Action    Action  `json:"action"`
	Message   string  `json:"message"`
}

type RemoveResult struct {
	Symbol  string  `json:"symbol"`
	Amount  float64 `json:"amount"`
	Message string  `json:"message"`
}

type HoldingValue struct {
	Symbol    string  `json:"symbol"`
	Quantity  float64 `json:"amount"`
	UnitPrice float64 `json:"price"`
	Value     float64 `json:"value"`
	Change24h float64 `json:"change24h"`
	Error     string  `json:"error,omitempty"`
}

type ValuationReport struct {
	TotalValue float64        `json:"totalValue"`
	Holdings   []HoldingValue `json:"holdings"`
	ComputedAt time.Time      `json:"lastUpdated"`
}

// PriceSource is the batched quote lookup valuation depends on.
type PriceSource interface {
	GetMultiplePrices(ctx context.Context, ids []string) (map[string]market.PriceQuote, error)
}

// Recorder receives every computed valuation. It is optional.
type Recorder interface {
	RecordValuation(ctx context.Context, sessionID string, report ValuationReport) error
}

// book is one session's holdings; order keeps first-insertion order.
type book struct {
	order []string
	qty   map[string]decimal.Decimal
}

// Store holds every session's portfolio for the lifetime of the process.
type Store struct {
	prices   PriceSource
	recorder Recorder
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*book
}

func NewStore(prices PriceSource, recorder Recorder, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		prices:   prices,
		recorder: recorder,
		now:      now,
		sessions: make(map[string]*book),
	}
}

func (s *Store) bookLocked(sessionID string) *book {
	b, ok := s.sessions[sessionID]
	if !ok {
		b = &book{qty: make(map[string]decimal.Decimal)}
		s.sessions[sessionID] = b
	}
	return b
}

func canonical(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func parseAmount(amount string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	return d, nil
}

// UpsertHolding sets the quantity held for symbol. A previous quantity of
// zero counts as an add.
func (s *Store) UpsertHolding(sessionID, symbol, amount string) (UpsertResult, error) {
	sym := canonical(symbol)
	if sym == "" {
		return UpsertResult{}, ErrInvalidSymbol
	}
	qty, err := parseAmount(amount)
	if err != nil {
		return UpsertResult{}, err
	}

	s.mu.Lock()
	b := s.bookLocked(sessionID)
	old, existed := b.qty[sym]
	if !existed {
		b.order = append(b.order, sym)
	}
	b.qty[sym] = qty
	s.mu.Unlock()

	action := ActionUpdated
	verb := "Updated"
	if !old.IsPositive() {
		action = ActionAdded
		verb = "Added"
	}
	return UpsertResult{
		Symbol:    sym,
		Amount:    qty.InexactFloat64(),
		OldAmount: old.InexactFloat64(),
		Action:    action,
		Message:   fmt.Sprintf("%s %s %s to your portfolio", verb, qty.String(), sym),
	}, nil
}

func (s *Store) RemoveHolding(sessionID, symbol string) (RemoveResult, error) {
	sym := canonical(symbol)
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.bookLocked(sessionID)
	qty, ok := b.qty[sym]
	if !ok {
		return RemoveResult{}, fmt.Errorf("%s not found in your portfolio: %w", sym, ErrHoldingNotFound)
	}
	delete(b.qty, sym)
	for i, o := range b.order {
		if o == sym {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return RemoveResult{
		Symbol:  sym,
		Amount:  qty.InexactFloat64(),
		Message: fmt.Sprintf("Removed %s %s from your portfolio", qty.String(), sym),
	}, nil
}

// ClearPortfolio empties the session and returns how many holdings it had.
func (s *Store) ClearPortfolio(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.bookLocked(sessionID)
	n := len(b.order)
	b.order = nil
	b.qty = make(map[string]decimal.Decimal)
	return n
}

func (s *Store) Holdings(sessionID string) []Holding {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.bookLocked(sessionID)
	out := make([]Holding, 0, len(b.order))
	for _, sym := range b.order {
		out = append(out, Holding{Symbol: sym, Quantity: b.qty[sym].InexactFloat64()})
	}
	return out
}

type position struct {
	symbol string
	qty    decimal.Decimal
	coinID string
}

func (s *Store) snapshot(sessionID string) []position {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.bookLocked(sessionID)
	out := make([]position, 0, len(b.order))
	for _, sym := range b.order {
		out = append(out, position{symbol: sym, qty: b.qty[sym], coinID: CoinID(sym)})
	}
	return out
}

// Valuate prices every holding of the session with a single batched lookup.
// Holdings without a quote are reported with a zero value and an error note
// instead of failing the whole valuation.
func (s *Store) Valuate(ctx context.Context, sessionID string) (ValuationReport, error) {
	positions := s.snapshot(sessionID)
	if len(positions) == 0 {
		return ValuationReport{Holdings: []HoldingValue{}, ComputedAt: s.now()}, nil
	}

	ids := make([]string, 0, len(positions))
	for _, p := range positions {
		ids = append(ids, p.coinID)
	}
	quotes, err := s.prices.GetMultiplePrices(ctx, ids)
	if err != nil {
		return ValuationReport{}, fmt.Errorf("fetch portfolio value: %w", err)
	}

	total := decimal.Zero
	holdings := make([]HoldingValue, 0, len(positions))
	for _, p := range positions {
		hv := HoldingValue{Symbol: p.symbol, Quantity: p.qty.InexactFloat64()}
		q, ok := quotes[p.coinID]
		if !ok || q.USD <= 0 {
			hv.Error = priceUnavailable
			holdings = append(holdings, hv)
			continue
		}
		value := p.qty.Mul(decimal.NewFromFloat(q.USD))
		total = total.Add(value)
		hv.UnitPrice = q.USD
		hv.Value = value.InexactFloat64()
		if q.USD24hChange != nil {
			hv.Change24h = *q.USD24hChange
		}
		holdings = append(holdings, hv)
	}

	report := ValuationReport{
		TotalValue: total.InexactFloat64(),
		Holdings:   holdings,
		ComputedAt: s.now(),
	}
	if s.recorder != nil {
		if err := s.recorder.RecordValuation(ctx, sessionID, report); err != nil {
			log.Printf("record valuation error: %v", err)
		}
	}
	return report, nil
}
