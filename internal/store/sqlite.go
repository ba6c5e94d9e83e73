package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"crypto-chat-assistant/internal/portfolio"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

type ValuationRecord struct {
	ID           string  `json:"id"`
	SessionID    string  `json:"session_id"`
	TS           int64   `json:"ts"`
	TotalValue   float64 `json:"total_value"`
	HoldingsJSON string  `json:"holdings_json"`
	CreatedAt    string  `json:"created_at"`
}

type QuoteSnapshot struct {
	ID        string  `json:"id"`
	TS        int64   `json:"ts"`
	CoinID    string  `json:"coin_id"`
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	ChangePct float64 `json:"change_pct"`
	MarketCap float64 `json:"market_cap"`
	Volume    float64 `json:"volume"`
	CreatedAt string  `json:"created_at"`
}

func Open(path string) (*Store, error) {
	if path == "" {
		path = "data/app.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=3000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS valuations (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			total_value REAL,
			holdings_json TEXT,
			created_at TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_valuations_session_ts ON valuations(session_id, ts);`,
		`CREATE TABLE IF NOT EXISTS quote_snapshot (
			id TEXT PRIMARY KEY,
			ts INTEGER NOT NULL,
			coin_id TEXT,
			symbol TEXT,
			price REAL,
			change_pct REAL,
			market_cap REAL,
			volume REAL,
			created_at TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_quote_snapshot_ts ON quote_snapshot(ts);`,
		`CREATE INDEX IF NOT EXISTS idx_quote_snapshot_coin ON quote_snapshot(coin_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *Store) InsertValuation(ctx context.Context, v ValuationRecord) error {
	if s == nil || s.db == nil {
		return nil
	}
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.CreatedAt == "" {
		v.CreatedAt = time.Now().Format(time.RFC3339)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO valuations (id, session_id, ts, total_value, holdings_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		v.ID, v.SessionID, v.TS, v.TotalValue, v.HoldingsJSON, v.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert valuation: %w", err)
	}
	return nil
}

// RecordValuation stores a computed portfolio valuation as history.
func (s *Store) RecordValuation(ctx context.Context, sessionID string, report portfolio.ValuationReport) error {
	if s == nil || s.db == nil {
		return nil
	}
	holdings, err := json.Marshal(report.Holdings)
	if err != nil {
		return fmt.Errorf("marshal holdings: %w", err)
	}
	return s.InsertValuation(ctx, ValuationRecord{
		SessionID:    sessionID,
		TS:           report.ComputedAt.UnixMilli(),
		TotalValue:   report.TotalValue,
		HoldingsJSON: string(holdings),
	})
}

func (s *Store) QueryValuations(ctx context.Context, sessionID string, limit int, offset int) ([]ValuationRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	limit, offset = clampPage(limit, offset)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, ts, total_value, holdings_json, created_at
		FROM valuations WHERE session_id = ?
		ORDER BY ts DESC LIMIT ? OFFSET ?`,
		sessionID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("query valuations: %w", err)
	}
	defer rows.Close()

	var out []ValuationRecord
	for rows.Next() {
		var v ValuationRecord
		if err := rows.Scan(&v.ID, &v.SessionID, &v.TS, &v.TotalValue, &v.HoldingsJSON, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan valuation: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows valuation: %w", err)
	}
	return out, nil
}

func (s *Store) InsertQuoteSnapshot(ctx context.Context, qs QuoteSnapshot) error {
	if s == nil || s.db == nil {
		return nil
	}
	if qs.ID == "" {
		qs.ID = uuid.NewString()
	}
	if qs.CreatedAt == "" {
		qs.CreatedAt = time.Now().Format(time.RFC3339)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO quote_snapshot (id, ts, coin_id, symbol, price, change_pct, market_cap, volume, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		qs.ID, qs.TS, qs.CoinID, qs.Symbol, qs.Price, qs.ChangePct, qs.MarketCap, qs.Volume, qs.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert quote snapshot: %w", err)
	}
	return nil
}

func (s *Store) QueryQuoteSnapshots(ctx context.Context, coinID string, limit int, offset int) ([]QuoteSnapshot, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	limit, offset = clampPage(limit, offset)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ts, coin_id, symbol, price, change_pct, market_cap, volume, created_at
		FROM quote_snapshot WHERE coin_id = ?
		ORDER BY ts DESC LIMIT ? OFFSET ?`,
		coinID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("query quote snapshot: %w", err)
	}
	defer rows.Close()
	var out []QuoteSnapshot
	for rows.Next() {
		var qs QuoteSnapshot
		if err := rows.Scan(&qs.ID, &qs.TS, &qs.CoinID, &qs.Symbol, &qs.Price, &qs.ChangePct, &qs.MarketCap, &qs.Volume, &qs.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan quote snapshot: %w", err)
		}
		out = append(out, qs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows quote snapshot: %w", err)
	}
	return out, nil
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 200
	}
	if limit > 1000 {
		limit = 1000
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
