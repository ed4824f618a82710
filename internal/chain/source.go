package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

// LogSource reads settlement records from the ledger.
type LogSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FetchFills(ctx context.Context, from, to uint64, target common.Address) ([]FillEvent, error)
}

// SourceOptions parameterise the RPC-backed log source.
type SourceOptions struct {
	RPCURL         string
	Exchanges      []string
	Timeout        time.Duration
	FilterByTarget bool
}

// logFilterer is the subset of ethclient used by EthSource.
type logFilterer interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// EthSource fetches OrderFilled events through an Ethereum JSON-RPC endpoint.
type EthSource struct {
	opts      SourceOptions
	exchanges []common.Address
	logger    zerolog.Logger
	client    logFilterer
	clientMux sync.Mutex
}

// NewEthSource builds a new RPC log source.
func NewEthSource(opts SourceOptions, logger zerolog.Logger) *EthSource {
	exchanges := make([]common.Address, 0, len(opts.Exchanges))
	for _, addr := range opts.Exchanges {
		exchanges = append(exchanges, common.HexToAddress(addr))
	}
	return &EthSource{
		opts:      opts,
		exchanges: exchanges,
		logger:    logger.With().Str("component", "chain_source").Logger(),
	}
}

// BlockNumber returns the latest block height reported by the node.
func (s *EthSource) BlockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	client, err := s.getClient(ctx)
	if err != nil {
		return 0, err
	}
	height, err := client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("block number: %w", err)
	}
	return height, nil
}

// FetchFills returns decoded OrderFilled events in [from, to] in ledger order.
// With a non-zero target and FilterByTarget the node filters on the maker and taker topics.
func (s *EthSource) FetchFills(ctx context.Context, from, to uint64, target common.Address) ([]FillEvent, error) {
	if to < from {
		return nil, nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	client, err := s.getClient(ctx)
	if err != nil {
		return nil, err
	}

	queries := s.queries(from, to, target)
	var logs []types.Log
	for _, q := range queries {
		batch, err := client.FilterLogs(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("filter logs %d-%d: %w", from, to, err)
		}
		logs = append(logs, batch...)
	}

	ordered := sortLogs(logs)
	events := make([]FillEvent, 0, len(ordered))
	for _, lg := range ordered {
		ev, err := DecodeOrderFilled(lg)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	s.logger.Debug().Uint64("from", from).Uint64("to", to).
		Int("queries", len(queries)).Int("events", len(events)).
		Msg("fetched fills")
	return events, nil
}

func (s *EthSource) queries(from, to uint64, target common.Address) []ethereum.FilterQuery {
	base := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: s.exchanges,
	}

	if !s.opts.FilterByTarget || target == (common.Address{}) {
		q := base
		q.Topics = [][]common.Hash{{OrderFilledTopic}}
		return []ethereum.FilterQuery{q}
	}

	topic := common.BytesToHash(target.Bytes())
	asMaker := base
	asMaker.Topics = [][]common.Hash{{OrderFilledTopic}, nil, {topic}}
	asTaker := base
	asTaker.Topics = [][]common.Hash{{OrderFilledTopic}, nil, nil, {topic}}
	return []ethereum.FilterQuery{asMaker, asTaker}
}

func (s *EthSource) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

func (s *EthSource) getClient(ctx context.Context) (logFilterer, error) {
	s.clientMux.Lock()
	defer s.clientMux.Unlock()

	if s.client != nil {
		return s.client, nil
	}
	if s.opts.RPCURL == "" {
		return nil, errors.New("chain rpc url not configured")
	}

	client, err := ethclient.DialContext(ctx, s.opts.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	s.client = client
	return client, nil
}

var _ LogSource = (*EthSource)(nil)
