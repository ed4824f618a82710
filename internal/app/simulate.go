package app

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"polymirror/internal/chain"
	"polymirror/internal/classifier"
	"polymirror/internal/settings"
)

// SyntheticFill builds the settlement a target trade of the given side, price and
// collateral size would emit, with the target as maker.
func SyntheticFill(opts SimulateOptions, target common.Address) (chain.FillEvent, error) {
	token, ok := new(big.Int).SetString(strings.TrimSpace(opts.TokenID), 10)
	if !ok || token.Sign() <= 0 {
		return chain.FillEvent{}, fmt.Errorf("invalid token id %q", opts.TokenID)
	}
	if !opts.Price.IsPositive() || !opts.Size.IsPositive() {
		return chain.FillEvent{}, errors.New("price and size must be positive")
	}

	scale := decimal.New(1, classifier.AmountDecimals)
	collateral := opts.Size.Mul(scale).Truncate(0).BigInt()
	tokens := opts.Size.DivRound(opts.Price, classifier.AmountDecimals).Mul(scale).Truncate(0).BigInt()

	ev := chain.FillEvent{
		Maker: target,
		Taker: common.HexToAddress("0x000000000000000000000000000000000000dEaD"),
		Fee:   big.NewInt(0),
	}
	switch classifier.Direction(strings.ToUpper(opts.Side)) {
	case classifier.Acquire:
		ev.MakerAssetID, ev.MakerAmountFilled = big.NewInt(0), collateral
		ev.TakerAssetID, ev.TakerAmountFilled = token, tokens
	case classifier.Dispose:
		ev.MakerAssetID, ev.MakerAmountFilled = token, tokens
		ev.TakerAssetID, ev.TakerAmountFilled = big.NewInt(0), collateral
	default:
		return chain.FillEvent{}, fmt.Errorf("side must be BUY or SELL, got %q", opts.Side)
	}
	return ev, nil
}

// SimulateFill pushes one synthetic fill through classification, resolution and
// the guard against the live order book, and prints the decision. No order is placed.
func (a *App) SimulateFill(ctx context.Context, opts SimulateOptions) error {
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

	ev, err := SyntheticFill(opts, params.TargetAddress)
	if err != nil {
		return err
	}
	intent, err := classifier.Classify(ev, params.TargetAddress)
	if err != nil {
		return fmt.Errorf("classify synthetic fill: %w", err)
	}

	resolver, closeResolver, err := a.newResolver(ctx)
	if err != nil {
		return err
	}
	if closeResolver != nil {
		defer closeResolver()
	}
	info := resolver.Resolve(ctx, intent.TokenIDString())

	decision, err := a.newGuard(a.newClobClient()).Evaluate(ctx, intent, params)
	if err != nil {
		return err
	}

	out := a.out()
	fmt.Fprintf(out, "Market:   %s (%s)\n", info.Question, info.OutcomeLabel)
	fmt.Fprintf(out, "Observed: %s %s USDC @ %s\n", intent.Direction, intent.ObservedSizeBase.StringFixed(2), intent.ImpliedPrice.StringFixed(4))
	if decision.Approved {
		fmt.Fprintf(out, "Decision: APPROVED %s USDC @ %s\n", decision.SizeBase.StringFixed(2), decision.LimitPrice.StringFixed(4))
	} else {
		fmt.Fprintf(out, "Decision: REJECTED (%s)\n", decision.Reason)
	}
	return nil
}
