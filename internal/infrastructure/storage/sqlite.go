package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vitos/trade_lifecycle/internal/domain"
)

// SQLiteStore persists lifecycle state and the decision and trade journals.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS position_states (
			position_id TEXT PRIMARY KEY,
			label TEXT NOT NULL,
			moving_stop_activated BOOLEAN NOT NULL DEFAULT 0,
			early_profit_taken BOOLEAN NOT NULL DEFAULT 0,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS decisions (
			id TEXT PRIMARY KEY,
			time DATETIME NOT NULL,
			label TEXT NOT NULL,
			symbol TEXT NOT NULL,
			outcome TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			side TEXT NOT NULL DEFAULT '',
			volume REAL NOT NULL DEFAULT 0,
			stop_pips REAL NOT NULL DEFAULT 0,
			detail TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_label_time ON decisions(label, time);`,
		`CREATE TABLE IF NOT EXISTS trades (
			id TEXT PRIMARY KEY,
			position_id TEXT NOT NULL,
			label TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			volume REAL NOT NULL,
			entry_price REAL NOT NULL,
			closing_price REAL NOT NULL,
			entry_time DATETIME NOT NULL,
			closing_time DATETIME NOT NULL,
			net_profit REAL NOT NULL
		);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}

	return nil
}

// PositionStateStore Implementation

func (s *SQLiteStore) GetPositionState(ctx context.Context, positionID string) (*domain.PositionState, error) {
	query := `SELECT position_id, label, moving_stop_activated, early_profit_taken, updated_at FROM position_states WHERE position_id = ?`
	row := s.db.QueryRowContext(ctx, query, positionID)

	var st domain.PositionState
	err := row.Scan(&st.PositionID, &st.Label, &st.MovingStopActivated, &st.EarlyProfitTaken, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// SavePositionState upserts the row. Flags are OR-ed with what is stored so they never go back
// to false.
func (s *SQLiteStore) SavePositionState(ctx context.Context, st *domain.PositionState) error {
	updatedAt := st.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	query := `INSERT INTO position_states (position_id, label, moving_stop_activated, early_profit_taken, updated_at)
			  VALUES (?, ?, ?, ?, ?)
			  ON CONFLICT(position_id) DO UPDATE SET
			  label=excluded.label,
			  moving_stop_activated=MAX(position_states.moving_stop_activated, excluded.moving_stop_activated),
			  early_profit_taken=MAX(position_states.early_profit_taken, excluded.early_profit_taken),
			  updated_at=excluded.updated_at`
	_, err := s.db.ExecContext(ctx, query,
		st.PositionID, st.Label, st.MovingStopActivated, st.EarlyProfitTaken, updatedAt.UTC())
	return err
}

func (s *SQLiteStore) DeletePositionState(ctx context.Context, positionID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM position_states WHERE position_id = ?", positionID)
	return err
}

func (s *SQLiteStore) ListPositionStates(ctx context.Context) ([]*domain.PositionState, error) {
	query := `SELECT position_id, label, moving_stop_activated, early_profit_taken, updated_at FROM position_states ORDER BY updated_at DESC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var states []*domain.PositionState
	for rows.Next() {
		var st domain.PositionState
		if err := rows.Scan(&st.PositionID, &st.Label, &st.MovingStopActivated, &st.EarlyProfitTaken, &st.UpdatedAt); err != nil {
			return nil, err
		}
		states = append(states, &st)
	}
	return states, rows.Err()
}

// DecisionJournal Implementation

func (s *SQLiteStore) SaveDecision(ctx context.Context, rec *domain.DecisionRecord) error {
	query := `INSERT INTO decisions (id, time, label, symbol, outcome, reason, side, volume, stop_pips, detail)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.Time.UTC(), rec.Label, rec.Symbol, rec.Outcome, rec.Reason, string(rec.Side), rec.Volume, rec.StopPips, rec.Detail)
	return err
}

func (s *SQLiteStore) ListDecisions(ctx context.Context, limit int) ([]*domain.DecisionRecord, error) {
	query := `SELECT id, time, label, symbol, outcome, reason, side, volume, stop_pips, detail FROM decisions ORDER BY id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.DecisionRecord
	for rows.Next() {
		var r domain.DecisionRecord
		var side string
		if err := rows.Scan(&r.ID, &r.Time, &r.Label, &r.Symbol, &r.Outcome, &r.Reason, &side, &r.Volume, &r.StopPips, &r.Detail); err != nil {
			return nil, err
		}
		r.Side = domain.Side(side)
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveTrade(ctx context.Context, t *domain.TradeRecord) error {
	query := `INSERT INTO trades (id, position_id, label, symbol, side, volume, entry_price, closing_price, entry_time, closing_time, net_profit)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			  ON CONFLICT(id) DO NOTHING`
	_, err := s.db.ExecContext(ctx, query,
		t.ID, t.PositionID, t.Label, t.Symbol, string(t.Side), t.Volume, t.EntryPrice, t.ClosingPrice,
		t.EntryTime.UTC(), t.ClosingTime.UTC(), t.NetProfit)
	return err
}

func (s *SQLiteStore) ListTrades(ctx context.Context, limit int) ([]*domain.TradeRecord, error) {
	query := `SELECT id, position_id, label, symbol, side, volume, entry_price, closing_price, entry_time, closing_time, net_profit FROM trades ORDER BY closing_time DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*domain.TradeRecord
	for rows.Next() {
		var t domain.TradeRecord
		var side string
		if err := rows.Scan(&t.ID, &t.PositionID, &t.Label, &t.Symbol, &side, &t.Volume, &t.EntryPrice, &t.ClosingPrice, &t.EntryTime, &t.ClosingTime, &t.NetProfit); err != nil {
			return nil, err
		}
		t.Side = domain.Side(side)
		trades = append(trades, &t)
	}
	return trades, rows.Err()
}
