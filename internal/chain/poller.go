package chain

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// PollerOptions tune how far each poll reaches.
type PollerOptions struct {
	// StartBlock is the last height considered processed. Zero means the head at first poll.
	StartBlock    uint64
	Confirmations uint64
	MaxBlockSpan  uint64
}

// Poller owns the chain cursor: the last fully handled block height.
// Poll never moves the cursor; Advance does, and only forward.
type Poller struct {
	src    LogSource
	opts   PollerOptions
	logger zerolog.Logger

	mu          sync.Mutex
	cursor      uint64
	initialised bool
}

// NewPoller constructs a Poller over the given source.
func NewPoller(src LogSource, opts PollerOptions, logger zerolog.Logger) *Poller {
	p := &Poller{
		src:    src,
		opts:   opts,
		logger: logger.With().Str("component", "poller").Logger(),
	}
	if opts.StartBlock > 0 {
		p.cursor = opts.StartBlock
		p.initialised = true
	}
	return p
}

// Cursor returns the last processed height and whether it has been established.
func (p *Poller) Cursor() (uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor, p.initialised
}

// Poll fetches the events in (cursor, head], head being the confirmed tip capped by MaxBlockSpan.
// The first call without a StartBlock anchors the cursor at the confirmed tip and returns an empty range.
func (p *Poller) Poll(ctx context.Context, target common.Address) (Range, error) {
	latest, err := p.src.BlockNumber(ctx)
	if err != nil {
		return Range{}, fmt.Errorf("poll head: %w", err)
	}

	var tip uint64
	if latest > p.opts.Confirmations {
		tip = latest - p.opts.Confirmations
	}

	p.mu.Lock()
	if !p.initialised {
		p.cursor = tip
		p.initialised = true
		p.mu.Unlock()
		p.logger.Info().Uint64("cursor", tip).Msg("cursor anchored at chain head")
		return Range{From: tip + 1, To: tip}, nil
	}
	cursor := p.cursor
	p.mu.Unlock()

	if tip <= cursor {
		return Range{From: cursor + 1, To: cursor}, nil
	}

	to := tip
	if p.opts.MaxBlockSpan > 0 && to-cursor > p.opts.MaxBlockSpan {
		to = cursor + p.opts.MaxBlockSpan
	}

	events, err := p.src.FetchFills(ctx, cursor+1, to, target)
	if err != nil {
		return Range{}, fmt.Errorf("poll range %d-%d: %w", cursor+1, to, err)
	}

	return Range{From: cursor + 1, To: to, Events: events}, nil
}

// Advance marks the range as handled. Ranges that do not continue the cursor are ignored.
func (p *Poller) Advance(r Range) bool {
	if r.Empty() {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialised || r.From != p.cursor+1 || r.To < p.cursor {
		p.logger.Warn().Uint64("cursor", p.cursor).Uint64("from", r.From).Uint64("to", r.To).
			Msg("ignoring non-contiguous range")
		return false
	}
	p.cursor = r.To
	return true
}
