package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"polymirror/internal/config"
)

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}

// OpenLedger opens the ledger selected by cfg.Driver. The returned Store is
// non-nil only for the postgres driver, for callers that need its pool or lock.
func OpenLedger(ctx context.Context, ledgerCfg config.LedgerConfig, dbCfg config.DatabaseConfig) (Ledger, *Store, error) {
	switch ledgerCfg.Driver {
	case "", "sqlite":
		ledger, err := OpenSQLite(ledgerCfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return ledger, nil, nil
	case "postgres":
		pool, err := NewPool(ctx, dbCfg)
		if err != nil {
			return nil, nil, err
		}
		store := NewStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("unsupported ledger driver %q", ledgerCfg.Driver)
	}
}
