package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"polymirror/internal/alerting"
	"polymirror/internal/chain"
	"polymirror/internal/classifier"
	"polymirror/internal/executor"
	"polymirror/internal/guard"
	"polymirror/internal/market"
	"polymirror/internal/scheduler"
	"polymirror/internal/settings"
	"polymirror/internal/storage"
)

// EventPoller is the cursor-owning event feed.
type EventPoller interface {
	Poll(ctx context.Context, target common.Address) (chain.Range, error)
	Advance(r chain.Range) bool
}

// MarketResolver maps a token id to market metadata.
type MarketResolver interface {
	Resolve(ctx context.Context, tokenID string) market.MarketInfo
}

// TradeGuard decides whether and how large to mirror.
type TradeGuard interface {
	Evaluate(ctx context.Context, intent classifier.TradeIntent, params settings.OperatingParameters) (guard.Decision, error)
}

// OrderExecutor submits approved orders.
type OrderExecutor interface {
	Execute(ctx context.Context, order executor.Order) storage.Outcome
}

// Options toggle outcome policies.
type Options struct {
	RecordSkipped bool
	NotifySuccess bool
	LockKey       int64
}

// Deps are the collaborators of the mirroring pipeline.
type Deps struct {
	Scheduler *scheduler.Scheduler
	Settings  settings.Store
	Poller    EventPoller
	Resolver  MarketResolver
	Guard     TradeGuard
	Executor  OrderExecutor
	Ledger    storage.OutcomeLedger
	Notifier  alerting.Notifier
	Locker    storage.AdvisoryLocker
}

// Service orchestrates polling, classification, guarding, execution and recording.
type Service struct {
	deps   Deps
	opts   Options
	logger zerolog.Logger
}

// New constructs the mirroring service.
func New(deps Deps, opts Options, logger zerolog.Logger) *Service {
	return &Service{
		deps:   deps,
		opts:   opts,
		logger: logger.With().Str("component", "service").Logger(),
	}
}

// Run holds the single-worker lock and drives Iterate until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.deps.Scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}

	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		return fmt.Errorf("another worker holds advisory lock %d", s.opts.LockKey)
	}
	if unlock != nil {
		defer unlock()
	}

	err = s.deps.Scheduler.Run(ctx, s.Iterate)
	if errors.Is(err, context.Canceled) {
		s.logger.Info().Msg("worker stopped")
		return nil
	}
	return err
}

// Iterate performs one poll and handles every event of the returned range in order.
// The cursor advances only when the whole range was handled.
func (s *Service) Iterate(ctx context.Context) error {
	params, err := settings.ReadValid(ctx, s.deps.Settings)
	if err != nil {
		return fmt.Errorf("read operating parameters: %w", err)
	}

	rng, err := s.deps.Poller.Poll(ctx, params.TargetAddress)
	if err != nil {
		return err
	}
	if rng.Empty() {
		return nil
	}

	for i, ev := range rng.Events {
		if err := ctx.Err(); err != nil {
			s.logger.Info().Int("handled", i).Int("total", len(rng.Events)).
				Uint64("from", rng.From).Uint64("to", rng.To).
				Msg("shutdown requested, range left unadvanced")
			return err
		}
		s.HandleEvent(context.WithoutCancel(ctx), ev, params)
	}

	if s.deps.Poller.Advance(rng) {
		s.logger.Debug().Uint64("from", rng.From).Uint64("to", rng.To).
			Int("events", len(rng.Events)).Msg("range processed")
	}
	return nil
}

// HandleEvent runs one fill through the pipeline. It reports whether an outcome was produced.
func (s *Service) HandleEvent(ctx context.Context, ev chain.FillEvent, params settings.OperatingParameters) (storage.Outcome, bool) {
	logger := s.logger.With().
		Uint64("block", ev.BlockNumber).
		Str("tx", ev.TxHash.Hex()).
		Uint("log_index", ev.LogIndex).
		Logger()

	intent, err := classifier.Classify(ev, params.TargetAddress)
	switch {
	case errors.Is(err, classifier.ErrNotTarget):
		return storage.Outcome{}, false
	case err != nil:
		logger.Warn().Err(err).Msg("decode failure")
		return storage.Outcome{}, false
	}

	tokenID := intent.TokenIDString()
	info := s.deps.Resolver.Resolve(ctx, tokenID)

	order := executor.Order{
		TokenID:     tokenID,
		Direction:   intent.Direction,
		SizeBase:    guard.Size(intent.ObservedSizeBase, params),
		LimitPrice:  intent.ImpliedPrice,
		Market:      info,
		TxHash:      ev.TxHash.Hex(),
		BlockNumber: ev.BlockNumber,
	}

	logger.Info().Str("side", string(intent.Direction)).
		Str("role", string(intent.Role)).
		Str("market", info.Question).
		Str("outcome", info.OutcomeLabel).
		Str("observed_size", intent.ObservedSizeBase.String()).
		Str("implied_price", intent.ImpliedPrice.String()).
		Msg("target trade detected")

	var outcome storage.Outcome
	decision, err := s.deps.Guard.Evaluate(ctx, intent, params)
	switch {
	case err != nil:
		outcome = order.Outcome(storage.StatusFailed, err.Error())
	case !decision.Approved:
		if !s.opts.RecordSkipped {
			logger.Info().Str("reason", decision.Reason).Msg("trade not mirrored")
			return storage.Outcome{}, false
		}
		outcome = order.Outcome(storage.StatusSkipped, decision.Reason)
	default:
		order.SizeBase = decision.SizeBase
		order.LimitPrice = decision.LimitPrice
		outcome = s.deps.Executor.Execute(ctx, order)
	}

	s.record(ctx, logger, outcome, params)
	return outcome, true
}

func (s *Service) record(ctx context.Context, logger zerolog.Logger, outcome storage.Outcome, params settings.OperatingParameters) {
	event := logger.Info()
	if outcome.Status == storage.StatusFailed {
		event = logger.Warn()
	}
	event.Str("status", outcome.Status).
		Str("size", outcome.SizeBase.String()).
		Str("price", outcome.Price.String()).
		Str("order_id", outcome.OrderID).
		Str("reason", outcome.Reason).
		Msg("outcome")

	if s.deps.Ledger != nil {
		if err := s.deps.Ledger.AppendOutcome(ctx, outcome); err != nil {
			logger.Error().Err(err).
				Str("id", outcome.ID.String()).
				Time("ts", outcome.Timestamp).
				Str("market", outcome.Market).
				Str("outcome", outcome.OutcomeLabel).
				Str("side", outcome.Side).
				Str("size", outcome.SizeBase.String()).
				Str("price", outcome.Price.String()).
				Str("status", outcome.Status).
				Str("order_id", outcome.OrderID).
				Str("reason", outcome.Reason).
				Msg("failed to append outcome")
		}
	}

	if s.deps.Notifier == nil || outcome.Status == storage.StatusSkipped {
		return
	}
	if outcome.Status == storage.StatusSuccess && !s.opts.NotifySuccess {
		return
	}
	note := alerting.Notification{Outcome: outcome, Target: params.TargetAddress.Hex()}
	if err := s.deps.Notifier.Notify(ctx, note); err != nil {
		logger.Error().Err(err).Msg("failed to dispatch notification")
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.opts.LockKey == 0 || s.deps.Locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.deps.Locker.TryAdvisoryLock(ctx, s.opts.LockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
