// Package market resolves outcome token ids to human readable market information.
package market

import (
	"context"
	"errors"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

const defaultCacheSize = 100

// MarketInfo is the display metadata of one outcome token.
type MarketInfo struct {
	Question     string `json:"question"`
	OutcomeLabel string `json:"outcome"`
	Slug         string `json:"slug,omitempty"`
}

// Unknown is returned whenever a token cannot be resolved. It is never cached.
var Unknown = MarketInfo{Question: "unknown", OutcomeLabel: "unknown"}

// MetadataSource performs the authoritative lookup.
type MetadataSource interface {
	Lookup(ctx context.Context, tokenID string) (MarketInfo, error)
}

// Resolver memoises lookups in a bounded LRU, optionally backed by a shared tier.
type Resolver struct {
	source MetadataSource
	shared SharedCache
	cache  *lru.Cache[string, MarketInfo]
	logger zerolog.Logger
}

// NewResolver builds a resolver. shared may be nil.
func NewResolver(source MetadataSource, shared SharedCache, size int, logger zerolog.Logger) (*Resolver, error) {
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New[string, MarketInfo](size)
	if err != nil {
		return nil, err
	}
	return &Resolver{
		source: source,
		shared: shared,
		cache:  cache,
		logger: logger.With().Str("component", "resolver").Logger(),
	}, nil
}

// Resolve never fails: lookup errors yield Unknown.
func (r *Resolver) Resolve(ctx context.Context, tokenID string) MarketInfo {
	if tokenID == "" {
		return Unknown
	}
	if info, ok := r.cache.Get(tokenID); ok {
		return info
	}

	if r.shared != nil {
		info, err := r.shared.Get(ctx, tokenID)
		switch {
		case err == nil:
			r.cache.Add(tokenID, info)
			return info
		case !errors.Is(err, ErrNotFound):
			r.logger.Warn().Err(err).Str("token_id", tokenID).Msg("shared cache read failed")
		}
	}

	info, err := r.source.Lookup(ctx, tokenID)
	if err != nil {
		r.logger.Warn().Err(err).Str("token_id", tokenID).Msg("market lookup failed, using unknown")
		return Unknown
	}

	r.cache.Add(tokenID, info)
	if r.shared != nil {
		if err := r.shared.Set(ctx, tokenID, info); err != nil {
			r.logger.Warn().Err(err).Str("token_id", tokenID).Msg("shared cache write failed")
		}
	}
	return info
}

// Len reports the number of entries held in memory.
func (r *Resolver) Len() int {
	return r.cache.Len()
}
