package app

import (
	"context"
	"fmt"

	"polymirror/internal/settings"
)

// Init provisions the outcome ledger and the operating parameters document.
// It never overwrites parameters that already exist.
func (a *App) Init(ctx context.Context) error {
	ledger, store, closeLedger, err := a.openLedger(ctx)
	if err != nil {
		return err
	}
	defer closeLedger()

	if err := ledger.EnsureSchema(ctx); err != nil {
		return err
	}
	a.Logger.Info().Str("driver", a.Config.Ledger.Driver).Msg("ledger schema ready")

	paramStore, closeSettings, err := a.openSettings(ctx, store)
	if err != nil {
		return err
	}
	if closeSettings != nil {
		defer closeSettings()
	}

	switch s := paramStore.(type) {
	case *settings.FileStore:
		written, err := s.WriteDefault()
		if err != nil {
			return err
		}
		if written {
			a.Logger.Info().Str("path", s.Path()).Msg("default operating parameters written")
		} else {
			a.Logger.Info().Str("path", s.Path()).Msg("operating parameters already present; left untouched")
		}
	case *settings.PostgresStore:
		if err := s.EnsureSchema(ctx); err != nil {
			return err
		}
		a.Logger.Info().Msg("operating_parameters table ready")
	default:
		return fmt.Errorf("unsupported settings source %q", a.Config.Settings.Source)
	}
	return nil
}
