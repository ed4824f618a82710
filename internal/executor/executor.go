// Package executor submits the mirrored order and reports exactly one outcome per attempt.
package executor

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"polymirror/internal/classifier"
	"polymirror/internal/clob"
	"polymirror/internal/market"
	"polymirror/internal/storage"
)

// Submitter places signed orders at the venue.
type Submitter interface {
	Submit(ctx context.Context, req clob.OrderRequest) (clob.OrderResult, error)
	IsNegRisk(ctx context.Context, tokenID string) (bool, error)
}

// Order is an approved mirror trade.
type Order struct {
	TokenID     string
	Direction   classifier.Direction
	SizeBase    decimal.Decimal
	LimitPrice  decimal.Decimal
	Market      market.MarketInfo
	TxHash      string
	BlockNumber uint64
}

// Outcome returns an outcome skeleton describing the order.
func (o Order) Outcome(status, reason string) storage.Outcome {
	out := storage.NewOutcome()
	out.Market = o.Market.Question
	out.OutcomeLabel = o.Market.OutcomeLabel
	out.Side = string(o.Direction)
	out.SizeBase = o.SizeBase
	out.Price = o.LimitPrice
	out.Status = status
	out.Reason = reason
	out.TokenID = o.TokenID
	out.TxHash = o.TxHash
	out.BlockNumber = o.BlockNumber
	return out
}

// Shares converts collateral size into a share count at the limit price,
// floored to the venue's size precision.
func Shares(sizeBase, price decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() {
		return decimal.Zero
	}
	return sizeBase.DivRound(price, clob.SharesDecimals+4).Truncate(clob.SharesDecimals)
}

// Executor performs single-attempt submissions.
type Executor struct {
	submitter Submitter
	logger    zerolog.Logger
}

// New constructs an Executor.
func New(submitter Submitter, logger zerolog.Logger) *Executor {
	return &Executor{
		submitter: submitter,
		logger:    logger.With().Str("component", "executor").Logger(),
	}
}

// Execute submits the order once. It never retries and always returns a
// SUCCESS or FAILED outcome.
func (e *Executor) Execute(ctx context.Context, order Order) storage.Outcome {
	shares := Shares(order.SizeBase, order.LimitPrice)
	if !shares.IsPositive() {
		return e.failed(order, fmt.Sprintf("size %s at price %s rounds to zero shares", order.SizeBase, order.LimitPrice))
	}

	negRisk, err := e.submitter.IsNegRisk(ctx, order.TokenID)
	if err != nil {
		return e.failed(order, fmt.Sprintf("neg risk lookup: %v", err))
	}

	side := clob.Buy
	if order.Direction == classifier.Dispose {
		side = clob.Sell
	}

	result, err := e.submitter.Submit(ctx, clob.OrderRequest{
		TokenID: order.TokenID,
		Side:    side,
		Price:   order.LimitPrice,
		Shares:  shares,
		NegRisk: negRisk,
	})
	if err != nil {
		return e.failed(order, fmt.Sprintf("submit: %v", err))
	}
	if !result.Success {
		reason := result.ErrorMsg
		if reason == "" {
			reason = "order rejected"
			if result.Status != "" {
				reason += ": " + result.Status
			}
		}
		return e.failed(order, reason)
	}

	outcome := order.Outcome(storage.StatusSuccess, "")
	outcome.OrderID = result.OrderID
	e.logger.Info().
		Str("order_id", result.OrderID).
		Str("side", string(side)).
		Str("token_id", order.TokenID).
		Str("shares", shares.String()).
		Str("price", order.LimitPrice.String()).
		Str("market", order.Market.Question).
		Msg("mirror order filled")
	return outcome
}

func (e *Executor) failed(order Order, reason string) storage.Outcome {
	e.logger.Warn().
		Str("token_id", order.TokenID).
		Str("side", string(order.Direction)).
		Str("size", order.SizeBase.String()).
		Str("reason", reason).
		Msg("mirror order failed")
	return order.Outcome(storage.StatusFailed, reason)
}
