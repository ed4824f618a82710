// Package guard decides whether an observed trade should be mirrored, and at what size.
package guard

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"polymirror/internal/classifier"
	"polymirror/internal/clob"
	"polymirror/internal/settings"
)

// DefaultTolerance is the maximum absolute price drift accepted, in probability units.
var DefaultTolerance = decimal.New(5, -2)

// Rejection reasons.
const (
	ReasonInactive    = "inactive"
	ReasonNonPositive = "non-positive size"
	ReasonNoLiquidity = "no liquidity"
	ReasonSlippage    = "slippage"
)

// BookSource provides order book snapshots.
type BookSource interface {
	OrderBook(ctx context.Context, tokenID string) (clob.OrderBook, error)
}

// Decision is the guard's verdict. A rejection is a value, not an error.
type Decision struct {
	Approved     bool
	SizeBase     decimal.Decimal
	LimitPrice   decimal.Decimal
	CurrentPrice decimal.Decimal
	Reason       string
}

// Guard applies the activity, sizing and slippage checks.
type Guard struct {
	books     BookSource
	tolerance decimal.Decimal
}

// New builds a Guard. A non-positive tolerance falls back to DefaultTolerance.
func New(books BookSource, tolerance decimal.Decimal) *Guard {
	if !tolerance.IsPositive() {
		tolerance = DefaultTolerance
	}
	return &Guard{books: books, tolerance: tolerance}
}

// Tolerance returns the slippage bound in use.
func (g *Guard) Tolerance() decimal.Decimal {
	return g.tolerance
}

// Size is min(observed × ratio, cap).
func Size(observed decimal.Decimal, params settings.OperatingParameters) decimal.Decimal {
	return decimal.Min(observed.Mul(params.CopyRatio), params.MaxCapBase)
}

// Evaluate returns an error only when the current price could not be read.
func (g *Guard) Evaluate(ctx context.Context, intent classifier.TradeIntent, params settings.OperatingParameters) (Decision, error) {
	if !params.Active {
		return Decision{Reason: ReasonInactive}, nil
	}

	size := Size(intent.ObservedSizeBase, params)
	if !size.IsPositive() {
		return Decision{SizeBase: size, Reason: ReasonNonPositive}, nil
	}

	book, err := g.books.OrderBook(ctx, intent.TokenIDString())
	if err != nil {
		return Decision{}, fmt.Errorf("guard price read: %w", err)
	}

	var (
		current decimal.Decimal
		ok      bool
	)
	if intent.Direction == classifier.Acquire {
		current, ok = book.BestAsk()
	} else {
		current, ok = book.BestBid()
	}
	if !ok {
		return Decision{SizeBase: size, Reason: ReasonNoLiquidity}, nil
	}

	drift := current.Sub(intent.ImpliedPrice).Abs()
	if drift.GreaterThan(g.tolerance) {
		return Decision{
			SizeBase:     size,
			CurrentPrice: current,
			Reason: fmt.Sprintf("%s: current %s vs observed %s (tolerance %s)",
				ReasonSlippage, current.StringFixed(4), intent.ImpliedPrice.StringFixed(4), g.tolerance),
		}, nil
	}

	return Decision{
		Approved:     true,
		SizeBase:     size,
		LimitPrice:   current,
		CurrentPrice: current,
	}, nil
}
