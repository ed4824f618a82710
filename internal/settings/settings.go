// Package settings reads the operating parameters that the control surface edits.
package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ErrInvalid marks parameters that fail validation.
var ErrInvalid = errors.New("settings: invalid operating parameters")

// OperatingParameters control whether and how much the worker mirrors.
type OperatingParameters struct {
	Active        bool
	CopyRatio     decimal.Decimal
	MaxCapBase    decimal.Decimal
	TargetAddress common.Address
}

// Store returns the current parameters. Implementations must read fresh on every call.
type Store interface {
	Read(ctx context.Context) (OperatingParameters, error)
}

// Defaults are written by the init command.
func Defaults() OperatingParameters {
	return OperatingParameters{
		Active:        false,
		CopyRatio:     decimal.New(1, -1),
		MaxCapBase:    decimal.NewFromInt(500),
		TargetAddress: common.HexToAddress("0x6031b6eed1c97e853c6e0f03ad3ce3529351f96d"),
	}
}

// Validate enforces 0 < ratio ≤ 1, a non-negative cap and a non-zero target.
func (p OperatingParameters) Validate() error {
	one := decimal.NewFromInt(1)
	if !p.CopyRatio.IsPositive() || p.CopyRatio.GreaterThan(one) {
		return fmt.Errorf("%w: copy_ratio %s must be in (0, 1]", ErrInvalid, p.CopyRatio)
	}
	if p.MaxCapBase.IsNegative() {
		return fmt.Errorf("%w: max_cap_usdc %s must not be negative", ErrInvalid, p.MaxCapBase)
	}
	if p.TargetAddress == (common.Address{}) {
		return fmt.Errorf("%w: target_wallet is required", ErrInvalid)
	}
	return nil
}

// parseTarget accepts a hex address in any case.
func parseTarget(raw string) (common.Address, error) {
	if raw == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%w: target_wallet %q is not an address", ErrInvalid, raw)
	}
	return common.HexToAddress(raw), nil
}

// ReadValid reads and validates in one step.
func ReadValid(ctx context.Context, store Store) (OperatingParameters, error) {
	params, err := store.Read(ctx)
	if err != nil {
		return OperatingParameters{}, err
	}
	if err := params.Validate(); err != nil {
		return OperatingParameters{}, err
	}
	return params, nil
}
