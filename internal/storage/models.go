package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Outcome statuses.
const (
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
	StatusSkipped = "SKIPPED"
)

// Outcome records what happened to one mirrored trade.
type Outcome struct {
	ID           uuid.UUID
	Timestamp    time.Time
	Market       string
	OutcomeLabel string
	Side         string
	SizeBase     decimal.Decimal
	Price        decimal.Decimal
	Status       string
	OrderID      string
	Reason       string
	TokenID      string
	TxHash       string
	BlockNumber  uint64
}

// NewOutcome stamps a fresh id and the current time.
func NewOutcome() Outcome {
	return Outcome{ID: uuid.New(), Timestamp: time.Now().UTC()}
}

// Summary aggregates the ledger for dashboards.
type Summary struct {
	Total   int64
	Success int64
	Failed  int64
	Skipped int64
	// Volume is the collateral committed by successful orders.
	Volume decimal.Decimal
}

// SuccessRate is the share of attempted (non-skipped) orders that succeeded, in percent.
func (s Summary) SuccessRate() decimal.Decimal {
	attempted := s.Success + s.Failed
	if attempted == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(s.Success).Mul(decimal.NewFromInt(100)).DivRound(decimal.NewFromInt(attempted), 2)
}

func (s *Summary) add(status string, count int64, volume decimal.Decimal) {
	s.Total += count
	switch status {
	case StatusSuccess:
		s.Success += count
		s.Volume = s.Volume.Add(volume)
	case StatusFailed:
		s.Failed += count
	case StatusSkipped:
		s.Skipped += count
	}
}
