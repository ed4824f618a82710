package chain

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const orderFilledABIJSON = `[{"anonymous":false,"inputs":[
{"indexed":true,"name":"orderHash","type":"bytes32"},
{"indexed":true,"name":"maker","type":"address"},
{"indexed":true,"name":"taker","type":"address"},
{"indexed":false,"name":"makerAssetId","type":"uint256"},
{"indexed":false,"name":"takerAssetId","type":"uint256"},
{"indexed":false,"name":"makerAmountFilled","type":"uint256"},
{"indexed":false,"name":"takerAmountFilled","type":"uint256"},
{"indexed":false,"name":"fee","type":"uint256"}],
"name":"OrderFilled","type":"event"}]`

var (
	exchangeABI abi.ABI

	// OrderFilledTopic is the event signature hash of OrderFilled.
	OrderFilledTopic common.Hash

	// ErrDecode marks a log that does not match the OrderFilled layout.
	ErrDecode = errors.New("chain: decode order filled")
)

func init() {
	parsed, err := abi.JSON(strings.NewReader(orderFilledABIJSON))
	if err != nil {
		panic("failed to parse exchange ABI: " + err.Error())
	}
	exchangeABI = parsed
	OrderFilledTopic = parsed.Events["OrderFilled"].ID
}

// FillEvent is one settlement record emitted by the exchange.
type FillEvent struct {
	OrderHash         common.Hash
	Maker             common.Address
	Taker             common.Address
	MakerAssetID      *big.Int
	TakerAssetID      *big.Int
	MakerAmountFilled *big.Int
	TakerAmountFilled *big.Int
	Fee               *big.Int

	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint
}

// Range is the outcome of one successful poll: every event in (From-1, To].
type Range struct {
	From   uint64
	To     uint64
	Events []FillEvent
}

// Empty reports whether the range covers no blocks.
func (r Range) Empty() bool {
	return r.To < r.From
}

// DecodeOrderFilled converts a raw log into a FillEvent.
func DecodeOrderFilled(lg types.Log) (FillEvent, error) {
	if len(lg.Topics) != 4 || lg.Topics[0] != OrderFilledTopic {
		return FillEvent{}, fmt.Errorf("%w: unexpected topics in tx %s", ErrDecode, lg.TxHash.Hex())
	}

	values, err := exchangeABI.Unpack("OrderFilled", lg.Data)
	if err != nil {
		return FillEvent{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if len(values) != 5 {
		return FillEvent{}, fmt.Errorf("%w: expected 5 data fields, got %d", ErrDecode, len(values))
	}

	amounts := make([]*big.Int, len(values))
	for i, v := range values {
		n, ok := v.(*big.Int)
		if !ok {
			return FillEvent{}, fmt.Errorf("%w: field %d is %T", ErrDecode, i, v)
		}
		amounts[i] = n
	}

	return FillEvent{
		OrderHash:         lg.Topics[1],
		Maker:             common.BytesToAddress(lg.Topics[2].Bytes()),
		Taker:             common.BytesToAddress(lg.Topics[3].Bytes()),
		MakerAssetID:      amounts[0],
		TakerAssetID:      amounts[1],
		MakerAmountFilled: amounts[2],
		TakerAmountFilled: amounts[3],
		Fee:               amounts[4],
		BlockNumber:       lg.BlockNumber,
		TxHash:            lg.TxHash,
		LogIndex:          lg.Index,
	}, nil
}

// sortLogs orders logs the way the ledger emitted them and drops duplicates and re-orged entries.
func sortLogs(logs []types.Log) []types.Log {
	type key struct {
		tx    common.Hash
		index uint
	}
	seen := make(map[key]struct{}, len(logs))
	out := make([]types.Log, 0, len(logs))
	for _, lg := range logs {
		if lg.Removed {
			continue
		}
		k := key{tx: lg.TxHash, index: lg.Index}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, lg)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		return out[i].Index < out[j].Index
	})
	return out
}
