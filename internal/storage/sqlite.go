package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS outcomes (
    id           TEXT PRIMARY KEY,
    ts_ms        INTEGER NOT NULL,
    market       TEXT    NOT NULL,
    outcome      TEXT    NOT NULL,
    side         TEXT    NOT NULL,
    size_usdc    TEXT    NOT NULL,
    price        TEXT    NOT NULL,
    status       TEXT    NOT NULL,
    order_id     TEXT    NOT NULL DEFAULT '',
    reason       TEXT    NOT NULL DEFAULT '',
    token_id     TEXT    NOT NULL DEFAULT '',
    tx_hash      TEXT    NOT NULL DEFAULT '',
    block_number INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_outcomes_ts ON outcomes(ts_ms DESC);
`

const (
	sqliteInsertOutcome = `INSERT OR IGNORE INTO outcomes
    (id, ts_ms, market, outcome, side, size_usdc, price, status, order_id, reason, token_id, tx_hash, block_number)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqliteSelectOutcomes = `SELECT id, ts_ms, market, outcome, side, size_usdc, price, status,
    order_id, reason, token_id, tx_hash, block_number FROM outcomes`

	sqliteStatusSizes = `SELECT status, size_usdc FROM outcomes`
)

// SQLiteLedger keeps outcomes in a local SQLite file.
type SQLiteLedger struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ledger := &SQLiteLedger{db: db}
	if err := ledger.EnsureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return ledger, nil
}

// EnsureSchema applies the schema; it is idempotent.
func (l *SQLiteLedger) EnsureSchema(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("apply sqlite schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

// AppendOutcome inserts an outcome. Re-appending the same id is a no-op.
func (l *SQLiteLedger) AppendOutcome(ctx context.Context, o Outcome) error {
	if _, err := l.db.ExecContext(ctx, sqliteInsertOutcome,
		o.ID.String(),
		o.Timestamp.UTC().UnixMilli(),
		o.Market,
		o.OutcomeLabel,
		o.Side,
		o.SizeBase.String(),
		o.Price.String(),
		o.Status,
		o.OrderID,
		o.Reason,
		o.TokenID,
		o.TxHash,
		int64(o.BlockNumber),
	); err != nil {
		return fmt.Errorf("append outcome: %w", err)
	}
	return nil
}

// ListRecentOutcomes returns the newest outcomes first.
func (l *SQLiteLedger) ListRecentOutcomes(ctx context.Context, limit int) ([]Outcome, error) {
	rows, err := l.db.QueryContext(ctx, sqliteSelectOutcomes+` ORDER BY ts_ms DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent outcomes: %w", err)
	}
	defer rows.Close()
	return scanSQLiteOutcomes(rows)
}

// ListOutcomesBetween returns outcomes in [from, to) in chronological order.
func (l *SQLiteLedger) ListOutcomesBetween(ctx context.Context, from, to time.Time) ([]Outcome, error) {
	rows, err := l.db.QueryContext(ctx,
		sqliteSelectOutcomes+` WHERE ts_ms >= ? AND ts_ms < ? ORDER BY ts_ms, rowid`,
		from.UTC().UnixMilli(), to.UTC().UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("list outcomes between: %w", err)
	}
	defer rows.Close()
	return scanSQLiteOutcomes(rows)
}

// Summarize aggregates in Go to keep decimal precision.
func (l *SQLiteLedger) Summarize(ctx context.Context) (Summary, error) {
	rows, err := l.db.QueryContext(ctx, sqliteStatusSizes)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize outcomes: %w", err)
	}
	defer rows.Close()

	var summary Summary
	for rows.Next() {
		var status, sizeStr string
		if err := rows.Scan(&status, &sizeStr); err != nil {
			return Summary{}, err
		}
		size, err := decimal.NewFromString(sizeStr)
		if err != nil {
			return Summary{}, fmt.Errorf("parse size: %w", err)
		}
		summary.add(status, 1, size)
	}
	return summary, rows.Err()
}

func scanSQLiteOutcomes(rows *sql.Rows) ([]Outcome, error) {
	var out []Outcome
	for rows.Next() {
		var (
			o                        Outcome
			idStr, sizeStr, priceStr string
			tsMillis, block          int64
		)
		if err := rows.Scan(&idStr, &tsMillis, &o.Market, &o.OutcomeLabel, &o.Side, &sizeStr, &priceStr,
			&o.Status, &o.OrderID, &o.Reason, &o.TokenID, &o.TxHash, &block); err != nil {
			return nil, err
		}
		var err error
		if o.ID, err = uuid.Parse(idStr); err != nil {
			return nil, fmt.Errorf("parse id: %w", err)
		}
		if o.SizeBase, err = decimal.NewFromString(sizeStr); err != nil {
			return nil, fmt.Errorf("parse size: %w", err)
		}
		if o.Price, err = decimal.NewFromString(priceStr); err != nil {
			return nil, fmt.Errorf("parse price: %w", err)
		}
		o.Timestamp = time.UnixMilli(tsMillis).UTC()
		o.BlockNumber = uint64(block)
		out = append(out, o)
	}
	return out, rows.Err()
}

var _ Ledger = (*SQLiteLedger)(nil)
