package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/olekukonko/tablewriter"

	"polymirror/internal/classifier"
	"polymirror/internal/guard"
	"polymirror/internal/settings"
)

// Replay classifies the target's fills in a historical block range and prints
// what would have been mirrored. No order is placed and nothing is recorded.
func (a *App) Replay(ctx context.Context, opts ReplayOptions) error {
	if opts.ToBlock < opts.FromBlock {
		return errors.New("--to-block must not be below --from-block")
	}

	paramStore, closeSettings, err := a.openSettings(ctx, nil)
	if err != nil {
		return err
	}
	if closeSettings != nil {
		defer closeSettings()
	}
	params, err := settings.ReadValid(ctx, paramStore)
	if err != nil {
		return fmt.Errorf("read operating parameters: %w", err)
	}

	resolver, closeResolver, err := a.newResolver(ctx)
	if err != nil {
		return err
	}
	if closeResolver != nil {
		defer closeResolver()
	}

	source := a.newSource()
	span := a.Config.Chain.MaxBlockSpan
	if span == 0 {
		span = opts.ToBlock - opts.FromBlock + 1
	}

	table := tablewriter.NewWriter(a.out())
	table.Header("Block", "Tx", "Role", "Side", "Market", "Outcome", "Observed", "Price", "Mirror size")

	var matched, malformed int
	for from := opts.FromBlock; from <= opts.ToBlock; from += span {
		if err := ctx.Err(); err != nil {
			return err
		}
		to := from + span - 1
		if to > opts.ToBlock {
			to = opts.ToBlock
		}

		events, err := source.FetchFills(ctx, from, to, params.TargetAddress)
		if err != nil {
			return fmt.Errorf("replay blocks %d-%d: %w", from, to, err)
		}

		for _, ev := range events {
			intent, err := classifier.Classify(ev, params.TargetAddress)
			if errors.Is(err, classifier.ErrNotTarget) {
				continue
			}
			if err != nil {
				malformed++
				a.Logger.Warn().Err(err).Uint64("block", ev.BlockNumber).Msg("decode failure")
				continue
			}
			matched++
			info := resolver.Resolve(ctx, intent.TokenIDString())
			table.Append(
				fmt.Sprintf("%d", ev.BlockNumber),
				truncate(ev.TxHash.Hex(), 18),
				string(intent.Role),
				string(intent.Direction),
				truncate(info.Question, 40),
				info.OutcomeLabel,
				intent.ObservedSizeBase.StringFixed(2),
				intent.ImpliedPrice.StringFixed(4),
				guard.Size(intent.ObservedSizeBase, params).StringFixed(2),
			)
		}
		a.Logger.Debug().Uint64("from", from).Uint64("to", to).Int("events", len(events)).Msg("replayed block range")
	}

	table.Render()
	fmt.Fprintf(a.out(), "\nTarget %s: %d fills matched, %d malformed, blocks %d-%d\n",
		params.TargetAddress.Hex(), matched, malformed, opts.FromBlock, opts.ToBlock)
	return nil
}
