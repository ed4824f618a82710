// Package classifier derives the target's trade from a raw settlement record.
package classifier

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"polymirror/internal/chain"
)

// Direction is the target's side of the trade.
type Direction string

const (
	Acquire Direction = "BUY"
	Dispose Direction = "SELL"
)

// Role tells which side of the settlement the target was on.
type Role string

const (
	RoleMaker Role = "maker"
	RoleTaker Role = "taker"
)

// AmountDecimals is the on-chain precision of both collateral and outcome tokens.
const AmountDecimals = 6

var (
	// ErrNotTarget means neither counterparty is the target.
	ErrNotTarget = errors.New("classifier: event does not involve target")
	// ErrMalformed means the event cannot be mapped to a collateral/outcome trade.
	ErrMalformed = errors.New("classifier: malformed settlement")

	pricePrecision int32 = 6
)

// TradeIntent is the target's trade as seen in one settlement.
type TradeIntent struct {
	Direction        Direction
	TokenID          *big.Int
	ImpliedPrice     decimal.Decimal
	ObservedSizeBase decimal.Decimal
	Role             Role
}

// TokenIDString renders the token id the way the venue APIs expect it.
func (t TradeIntent) TokenIDString() string {
	if t.TokenID == nil {
		return ""
	}
	return t.TokenID.String()
}

// Classify maps a settlement to the target's trade. It has no side effects.
func Classify(ev chain.FillEvent, target common.Address) (TradeIntent, error) {
	if target == (common.Address{}) {
		return TradeIntent{}, ErrNotTarget
	}

	var (
		role                   Role
		ownAsset, otherAsset   *big.Int
		ownAmount, otherAmount *big.Int
	)
	switch target {
	case ev.Maker:
		role = RoleMaker
		ownAsset, otherAsset = ev.MakerAssetID, ev.TakerAssetID
		ownAmount, otherAmount = ev.MakerAmountFilled, ev.TakerAmountFilled
	case ev.Taker:
		role = RoleTaker
		ownAsset, otherAsset = ev.TakerAssetID, ev.MakerAssetID
		ownAmount, otherAmount = ev.TakerAmountFilled, ev.MakerAmountFilled
	default:
		return TradeIntent{}, ErrNotTarget
	}

	if ownAsset == nil || otherAsset == nil || ownAmount == nil || otherAmount == nil {
		return TradeIntent{}, fmt.Errorf("%w: missing fields in tx %s", ErrMalformed, ev.TxHash.Hex())
	}

	ownIsCollateral := ownAsset.Sign() == 0
	otherIsCollateral := otherAsset.Sign() == 0
	if ownIsCollateral == otherIsCollateral {
		return TradeIntent{}, fmt.Errorf("%w: asset ids %s/%s in tx %s", ErrMalformed, ownAsset, otherAsset, ev.TxHash.Hex())
	}

	intent := TradeIntent{Role: role}
	var collateral, tokens *big.Int
	if ownIsCollateral {
		// target gives collateral and receives the opposing outcome token
		intent.Direction = Acquire
		intent.TokenID = new(big.Int).Set(otherAsset)
		collateral, tokens = ownAmount, otherAmount
	} else {
		intent.Direction = Dispose
		intent.TokenID = new(big.Int).Set(ownAsset)
		collateral, tokens = otherAmount, ownAmount
	}

	if tokens.Sign() <= 0 || collateral.Sign() < 0 {
		return TradeIntent{}, fmt.Errorf("%w: token amount %s in tx %s", ErrMalformed, tokens, ev.TxHash.Hex())
	}

	collateralDec := decimal.NewFromBigInt(collateral, 0)
	intent.ImpliedPrice = collateralDec.DivRound(decimal.NewFromBigInt(tokens, 0), pricePrecision)
	intent.ObservedSizeBase = decimal.NewFromBigInt(collateral, -AmountDecimals)
	return intent, nil
}
