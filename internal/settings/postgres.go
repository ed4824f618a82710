package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ErrNotConfigured indicates the database pool was not initialised.
var ErrNotConfigured = errors.New("settings: pool not configured")

const (
	createParametersTableSQL = `CREATE TABLE IF NOT EXISTS operating_parameters (
        id            SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
        is_active     BOOLEAN NOT NULL DEFAULT FALSE,
        copy_ratio    NUMERIC NOT NULL,
        max_cap_usdc  NUMERIC NOT NULL,
        target_wallet TEXT NOT NULL,
        updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );`

	seedParametersSQL = `INSERT INTO operating_parameters (id, is_active, copy_ratio, max_cap_usdc, target_wallet)
    VALUES (1, $1, $2, $3, $4)
    ON CONFLICT (id) DO NOTHING;`

	selectParametersSQL = `SELECT
        is_active,
        copy_ratio::text,
        max_cap_usdc::text,
        target_wallet
    FROM operating_parameters
    WHERE id = 1;`
)

// ErrMissing means the parameters row has not been provisioned.
var ErrMissing = errors.New("settings: operating parameters row missing")

// PostgresStore reads the single-row operating_parameters table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps a pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the table and seeds it with Defaults when empty.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, createParametersTableSQL); err != nil {
		return fmt.Errorf("create operating_parameters: %w", err)
	}
	def := Defaults()
	if _, err := pool.Exec(ctx, seedParametersSQL,
		def.Active,
		def.CopyRatio.String(),
		def.MaxCapBase.String(),
		def.TargetAddress.Hex(),
	); err != nil {
		return fmt.Errorf("seed operating_parameters: %w", err)
	}
	return nil
}

// Read loads the current row.
func (s *PostgresStore) Read(ctx context.Context) (OperatingParameters, error) {
	pool, err := s.getPool()
	if err != nil {
		return OperatingParameters{}, err
	}

	var (
		active                 bool
		ratioStr, capStr, addr string
	)
	if err := pool.QueryRow(ctx, selectParametersSQL).Scan(&active, &ratioStr, &capStr, &addr); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return OperatingParameters{}, ErrMissing
		}
		return OperatingParameters{}, fmt.Errorf("select operating_parameters: %w", err)
	}

	ratio, err := decimal.NewFromString(ratioStr)
	if err != nil {
		return OperatingParameters{}, fmt.Errorf("parse copy_ratio: %w", err)
	}
	maxCap, err := decimal.NewFromString(capStr)
	if err != nil {
		return OperatingParameters{}, fmt.Errorf("parse max_cap_usdc: %w", err)
	}
	target, err := parseTarget(addr)
	if err != nil {
		return OperatingParameters{}, err
	}

	return OperatingParameters{
		Active:        active,
		CopyRatio:     ratio,
		MaxCapBase:    maxCap,
		TargetAddress: target,
	}, nil
}

var _ Store = (*PostgresStore)(nil)
