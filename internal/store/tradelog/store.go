// Package tradelog keeps a queryable audit trail beside the JSON state
// file: every settled position and every guardrail veto, in SQLite.
package tradelog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"ballast/internal/guard"
	"ballast/internal/position"

	_ "modernc.org/sqlite"
)

// Store wraps the SQLite connection. All writes go through one mutex; the
// engine produces audit rows serially anyway and SQLite rewards a single
// writer.
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// TradeRecord is one settled position as stored.
type TradeRecord struct {
	ID             int64   `json:"id"`
	PositionID     string  `json:"position_id"`
	Strategy       string  `json:"strategy"`
	Status         string  `json:"status"`
	CloseReason    string  `json:"close_reason"`
	AmountBase     float64 `json:"amount_base"`
	AmountQuote    float64 `json:"amount_quote"`
	EntryPrice     float64 `json:"entry_price"`
	ExitPrice      float64 `json:"exit_price"`
	RealizedPnL    float64 `json:"realized_pnl"`
	RealizedPnLPct float64 `json:"realized_pnl_pct"`
	EntryTime      int64   `json:"entry_time"`
	ExitTime       int64   `json:"exit_time"`
}

// VetoRecord is one guardrail rejection as stored.
type VetoRecord struct {
	ID         int64   `json:"id"`
	TraceID    string  `json:"trace_id"`
	Timestamp  int64   `json:"ts"`
	Action     string  `json:"action"`
	Strategy   string  `json:"strategy"`
	Quantity   float64 `json:"quantity"`
	EntryPrice float64 `json:"entry_price"`
	Failures   string  `json:"failures"`
}

func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("trade log path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS closed_trades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			position_id TEXT NOT NULL,
			strategy TEXT NOT NULL,
			status TEXT NOT NULL,
			close_reason TEXT,
			amount_base REAL NOT NULL DEFAULT 0,
			amount_quote REAL NOT NULL DEFAULT 0,
			entry_price REAL NOT NULL DEFAULT 0,
			exit_price REAL NOT NULL DEFAULT 0,
			realized_pnl REAL NOT NULL DEFAULT 0,
			realized_pnl_pct REAL NOT NULL DEFAULT 0,
			entry_time INTEGER NOT NULL,
			exit_time INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_closed_trades_strategy_exit ON closed_trades(strategy, exit_time DESC);`,
		`CREATE TABLE IF NOT EXISTS guardrail_vetoes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			trace_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			action TEXT NOT NULL,
			strategy TEXT,
			quantity REAL NOT NULL DEFAULT 0,
			entry_price REAL NOT NULL DEFAULT 0,
			failures TEXT,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_guardrail_vetoes_ts ON guardrail_vetoes(ts DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("trade log schema: %w", err)
		}
	}
	return nil
}

// AppendTrade records a settled position.
func (s *Store) AppendTrade(ctx context.Context, p position.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return fmt.Errorf("trade log store is closed")
	}
	exitTime := int64(0)
	if p.ExitTime != nil {
		exitTime = p.ExitTime.Unix()
	}
	closeReason, _ := p.Metadata["close_reason"].(string)
	_, err := s.db.ExecContext(ctx, `INSERT INTO closed_trades
		(position_id, strategy, status, close_reason, amount_base, amount_quote,
		 entry_price, exit_price, realized_pnl, realized_pnl_pct, entry_time, exit_time, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Strategy, string(p.Status), closeReason, p.AmountBase, p.AmountQuote,
		p.EntryPrice, p.ExitPrice, p.RealizedPnL, p.RealizedPnLPct,
		p.EntryTime.Unix(), exitTime, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("append trade: %w", err)
	}
	return nil
}

// AppendVeto records a guardrail rejection with the full failure list.
func (s *Store) AppendVeto(ctx context.Context, verdict guard.Verdict, action, strategy string, quantity, entryPrice float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return fmt.Errorf("trade log store is closed")
	}
	failures, err := json.Marshal(verdict.Failures())
	if err != nil {
		return fmt.Errorf("encode veto failures: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO guardrail_vetoes
		(trace_id, ts, action, strategy, quantity, entry_price, failures, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		verdict.TraceID, time.Now().Unix(), action, strategy, quantity, entryPrice,
		string(failures), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("append veto: %w", err)
	}
	return nil
}

// RecentTrades returns the newest settled trades, most recent first.
func (s *Store) RecentTrades(ctx context.Context, limit int) ([]TradeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, fmt.Errorf("trade log store is closed")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, position_id, strategy, status, close_reason,
		amount_base, amount_quote, entry_price, exit_price, realized_pnl, realized_pnl_pct,
		entry_time, exit_time
		FROM closed_trades ORDER BY exit_time DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var r TradeRecord
		var closeReason sql.NullString
		if err := rows.Scan(&r.ID, &r.PositionID, &r.Strategy, &r.Status, &closeReason,
			&r.AmountBase, &r.AmountQuote, &r.EntryPrice, &r.ExitPrice,
			&r.RealizedPnL, &r.RealizedPnLPct, &r.EntryTime, &r.ExitTime); err != nil {
			return nil, err
		}
		r.CloseReason = closeReason.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecentVetoes returns the newest guardrail rejections, most recent first.
func (s *Store) RecentVetoes(ctx context.Context, limit int) ([]VetoRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, fmt.Errorf("trade log store is closed")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, trace_id, ts, action, strategy, quantity,
		entry_price, failures
		FROM guardrail_vetoes ORDER BY ts DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []VetoRecord
	for rows.Next() {
		var r VetoRecord
		var strategy, failures sql.NullString
		if err := rows.Scan(&r.ID, &r.TraceID, &r.Timestamp, &r.Action, &strategy,
			&r.Quantity, &r.EntryPrice, &failures); err != nil {
			return nil, err
		}
		r.Strategy = strategy.String
		r.Failures = failures.String
		out = append(out, r)
	}
	return out, rows.Err()
}
