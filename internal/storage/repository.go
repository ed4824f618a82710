package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	createOutcomesSQL = `CREATE TABLE IF NOT EXISTS outcomes (
        id            UUID PRIMARY KEY,
        ts            TIMESTAMPTZ NOT NULL,
        market        TEXT NOT NULL,
        outcome       TEXT NOT NULL,
        side          TEXT NOT NULL,
        size_usdc     NUMERIC NOT NULL,
        price         NUMERIC NOT NULL,
        status        TEXT NOT NULL,
        order_id      TEXT NOT NULL DEFAULT '',
        reason        TEXT NOT NULL DEFAULT '',
        token_id      TEXT NOT NULL DEFAULT '',
        tx_hash       TEXT NOT NULL DEFAULT '',
        block_number  BIGINT NOT NULL DEFAULT 0
    );
    CREATE INDEX IF NOT EXISTS outcomes_ts_idx ON outcomes (ts);`

	insertOutcomeSQL = `INSERT INTO outcomes (
        id,
        ts,
        market,
        outcome,
        side,
        size_usdc,
        price,
        status,
        order_id,
        reason,
        token_id,
        tx_hash,
        block_number
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
    )
    ON CONFLICT (id) DO NOTHING;`

	selectOutcomeColumns = `SELECT
        id::text,
        ts,
        market,
        outcome,
        side,
        size_usdc::text,
        price::text,
        status,
        order_id,
        reason,
        token_id,
        tx_hash,
        block_number
    FROM outcomes`

	listOutcomesBetweenSQL = selectOutcomeColumns + `
    WHERE ts >= $1
      AND ts < $2
    ORDER BY ts;`

	listRecentOutcomesSQL = selectOutcomeColumns + `
    ORDER BY ts DESC
    LIMIT $1;`

	summarizeOutcomesSQL = `SELECT status, COUNT(*), COALESCE(SUM(size_usdc), 0)::text
    FROM outcomes
    GROUP BY status;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// OutcomeLedger is the append-only sink the worker writes to.
type OutcomeLedger interface {
	AppendOutcome(ctx context.Context, outcome Outcome) error
}

// OutcomeReader serves the dashboard and export commands.
type OutcomeReader interface {
	ListRecentOutcomes(ctx context.Context, limit int) ([]Outcome, error)
	ListOutcomesBetween(ctx context.Context, from, to time.Time) ([]Outcome, error)
	Summarize(ctx context.Context) (Summary, error)
}

// Ledger is a provisionable outcome store.
type Ledger interface {
	OutcomeLedger
	OutcomeReader
	EnsureSchema(ctx context.Context) error
	Close() error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store is the PostgreSQL ledger.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// Pool exposes the pool so other tables can share it.
func (s *Store) Pool() *pgxpool.Pool {
	if s == nil {
		return nil
	}
	return s.pool
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the outcomes table.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, createOutcomesSQL); err != nil {
		return fmt.Errorf("create outcomes: %w", err)
	}
	return nil
}

// AppendOutcome persists an outcome. Re-appending the same id is a no-op.
func (s *Store) AppendOutcome(ctx context.Context, outcome Outcome) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, insertOutcomeSQL,
		outcome.ID.String(),
		outcome.Timestamp,
		outcome.Market,
		outcome.OutcomeLabel,
		outcome.Side,
		outcome.SizeBase.String(),
		outcome.Price.String(),
		outcome.Status,
		outcome.OrderID,
		outcome.Reason,
		outcome.TokenID,
		outcome.TxHash,
		int64(outcome.BlockNumber),
	)
	if execErr != nil {
		return fmt.Errorf("append outcome: %w", execErr)
	}
	return nil
}

// ListOutcomesBetween lists outcomes within a time window.
func (s *Store) ListOutcomesBetween(ctx context.Context, from, to time.Time) ([]Outcome, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listOutcomesBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list outcomes between: %w", queryErr)
	}
	defer rows.Close()
	return collectOutcomes(rows, 0)
}

// ListRecentOutcomes lists the most recent outcomes, newest first.
func (s *Store) ListRecentOutcomes(ctx context.Context, limit int) ([]Outcome, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentOutcomesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent outcomes: %w", queryErr)
	}
	defer rows.Close()
	return collectOutcomes(rows, limit)
}

// Summarize aggregates counts and volume per status.
func (s *Store) Summarize(ctx context.Context) (Summary, error) {
	pool, err := s.getPool()
	if err != nil {
		return Summary{}, err
	}

	rows, queryErr := pool.Query(ctx, summarizeOutcomesSQL)
	if queryErr != nil {
		return Summary{}, fmt.Errorf("summarize outcomes: %w", queryErr)
	}
	defer rows.Close()

	var summary Summary
	for rows.Next() {
		var (
			status    string
			count     int64
			volumeStr string
		)
		if err := rows.Scan(&status, &count, &volumeStr); err != nil {
			return Summary{}, err
		}
		volume, convErr := decimal.NewFromString(volumeStr)
		if convErr != nil {
			return Summary{}, fmt.Errorf("parse volume: %w", convErr)
		}
		summary.add(status, count, volume)
	}
	if rows.Err() != nil {
		return Summary{}, rows.Err()
	}
	return summary, nil
}

func collectOutcomes(rows pgx.Rows, capacity int) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, capacity)
	for rows.Next() {
		var (
			rec                      Outcome
			idStr, sizeStr, priceStr string
			block                    int64
		)
		if err := rows.Scan(
			&idStr,
			&rec.Timestamp,
			&rec.Market,
			&rec.OutcomeLabel,
			&rec.Side,
			&sizeStr,
			&priceStr,
			&rec.Status,
			&rec.OrderID,
			&rec.Reason,
			&rec.TokenID,
			&rec.TxHash,
			&block,
		); err != nil {
			return nil, err
		}

		var convErr error
		rec.ID, convErr = uuid.Parse(idStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse id: %w", convErr)
		}
		rec.BlockNumber = uint64(block)
		rec.SizeBase, convErr = decimal.NewFromString(sizeStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse size: %w", convErr)
		}
		rec.Price, convErr = decimal.NewFromString(priceStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse price: %w", convErr)
		}
		outcomes = append(outcomes, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return outcomes, nil
}

var (
	_ Ledger         = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
