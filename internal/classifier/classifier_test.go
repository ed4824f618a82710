package classifier

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polymirror/internal/chain"
)

var (
	target = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	other  = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	token  = big.NewInt(1234567)
)

func fill(maker, taker common.Address, makerAsset, takerAsset *big.Int, makerAmt, takerAmt int64) chain.FillEvent {
	return chain.FillEvent{
		Maker:             maker,
		Taker:             taker,
		MakerAssetID:      makerAsset,
		TakerAssetID:      takerAsset,
		MakerAmountFilled: big.NewInt(makerAmt),
		TakerAmountFilled: big.NewInt(takerAmt),
	}
}

func TestClassifyMakerAcquire(t *testing.T) {
	ev := fill(target, other, big.NewInt(0), token, 52_340_000, 100_000_000)

	intent, err := Classify(ev, target)
	require.NoError(t, err)
	assert.Equal(t, Acquire, intent.Direction)
	assert.Equal(t, RoleMaker, intent.Role)
	assert.Equal(t, "1234567", intent.TokenIDString())
	assert.True(t, intent.ImpliedPrice.Equal(decimal.RequireFromString("0.5234")), intent.ImpliedPrice.String())
	assert.True(t, intent.ObservedSizeBase.Equal(decimal.RequireFromString("52.34")), intent.ObservedSizeBase.String())
}

func TestClassifyMakerDispose(t *testing.T) {
	ev := fill(target, other, token, big.NewInt(0), 10_000_000, 6_000_000)

	intent, err := Classify(ev, target)
	require.NoError(t, err)
	assert.Equal(t, Dispose, intent.Direction)
	assert.Equal(t, 0, intent.TokenID.Cmp(token))
	assert.True(t, intent.ImpliedPrice.Equal(decimal.RequireFromString("0.6")))
	assert.True(t, intent.ObservedSizeBase.Equal(decimal.RequireFromString("6")))
}

func TestClassifyTakerSide(t *testing.T) {
	// counterparty sells tokens to the target, who pays collateral
	ev := fill(other, target, token, big.NewInt(0), 20_000_000, 9_000_000)

	intent, err := Classify(ev, target)
	require.NoError(t, err)
	assert.Equal(t, Acquire, intent.Direction)
	assert.Equal(t, RoleTaker, intent.Role)
	assert.True(t, intent.ImpliedPrice.Equal(decimal.RequireFromString("0.45")))
	assert.True(t, intent.ObservedSizeBase.Equal(decimal.RequireFromString("9")))
}

func TestClassifyMakerCheckedFirst(t *testing.T) {
	ev := fill(target, target, big.NewInt(0), token, 5_000_000, 10_000_000)

	intent, err := Classify(ev, target)
	require.NoError(t, err)
	assert.Equal(t, RoleMaker, intent.Role)
	assert.Equal(t, Acquire, intent.Direction)
}

func TestClassifyNotTarget(t *testing.T) {
	ev := fill(other, other, big.NewInt(0), token, 1, 1)
	_, err := Classify(ev, target)
	require.ErrorIs(t, err, ErrNotTarget)

	_, err = Classify(ev, common.Address{})
	require.ErrorIs(t, err, ErrNotTarget)
}

func TestClassifyMalformed(t *testing.T) {
	cases := map[string]chain.FillEvent{
		"no collateral":   fill(target, other, token, big.NewInt(99), 1, 1),
		"both collateral": fill(target, other, big.NewInt(0), big.NewInt(0), 1, 1),
		"zero tokens":     fill(target, other, big.NewInt(0), token, 1_000_000, 0),
		"missing asset":   fill(target, other, nil, token, 1, 1),
	}
	for name, ev := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Classify(ev, target)
			require.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	ev := fill(other, target, big.NewInt(0), token, 3_000_000, 7_000_000)

	first, err := Classify(ev, target)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Classify(ev, target)
		require.NoError(t, err)
		assert.Equal(t, first.Direction, again.Direction)
		assert.True(t, first.ImpliedPrice.Equal(again.ImpliedPrice))
		assert.True(t, first.ObservedSizeBase.Equal(again.ObservedSizeBase))
	}
	// the input must not be aliased into the result
	first.TokenID.SetInt64(1)
	assert.Equal(t, 0, ev.MakerAssetID.Sign())
	assert.Equal(t, 0, ev.TakerAssetID.Cmp(token))
}
