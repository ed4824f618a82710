// Package clob talks to the Polymarket central limit order book API.
package clob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://clob.polymarket.com"
	defaultTimeout = 10 * time.Second
	defaultRate    = 20.0

	bookPath     = "/book"
	negRiskPath  = "/neg-risk"
	tickSizePath = "/tick-size"
)

// ErrStatus wraps non-2xx responses.
var ErrStatus = errors.New("clob: unexpected status")

// Options configure a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	RatePerSec float64
	HTTPClient *http.Client
}

// Client performs the public (unauthenticated) CLOB calls.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger

	negRiskMu sync.RWMutex
	negRisk   map[string]bool

	tickMu sync.RWMutex
	ticks  map[string]decimal.Decimal
}

// NewClient constructs a Client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	perSec := opts.RatePerSec
	if perSec <= 0 {
		perSec = defaultRate
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: base,
		http:    client,
		limiter: rate.NewLimiter(rate.Limit(perSec), int(perSec)+1),
		logger:  logger.With().Str("component", "clob").Logger(),
		negRisk: make(map[string]bool),
		ticks:   make(map[string]decimal.Decimal),
	}
}

// Level is one price level of a book side.
type Level struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// OrderBook is a snapshot of resting liquidity for one token.
type OrderBook struct {
	TokenID string
	Bids    []Level
	Asks    []Level
}

// BestAsk returns the lowest ask. The venue's ordering of levels is not relied upon.
func (b OrderBook) BestAsk() (decimal.Decimal, bool) {
	var best decimal.Decimal
	found := false
	for _, lvl := range b.Asks {
		if !lvl.Size.IsPositive() {
			continue
		}
		if !found || lvl.Price.LessThan(best) {
			best = lvl.Price
			found = true
		}
	}
	return best, found
}

// BestBid returns the highest bid.
func (b OrderBook) BestBid() (decimal.Decimal, bool) {
	var best decimal.Decimal
	found := false
	for _, lvl := range b.Bids {
		if !lvl.Size.IsPositive() {
			continue
		}
		if !found || lvl.Price.GreaterThan(best) {
			best = lvl.Price
			found = true
		}
	}
	return best, found
}

type bookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type bookResponse struct {
	AssetID string      `json:"asset_id"`
	Bids    []bookLevel `json:"bids"`
	Asks    []bookLevel `json:"asks"`
}

type negRiskResponse struct {
	NegRisk bool `json:"neg_risk"`
}

type tickSizeResponse struct {
	MinimumTickSize json.Number `json:"minimum_tick_size"`
}

// OrderBook fetches the current book for tokenID.
func (c *Client) OrderBook(ctx context.Context, tokenID string) (OrderBook, error) {
	var resp bookResponse
	if err := c.get(ctx, bookPath, url.Values{"token_id": {tokenID}}, &resp); err != nil {
		return OrderBook{}, fmt.Errorf("order book %s: %w", tokenID, err)
	}

	book := OrderBook{TokenID: tokenID}
	var err error
	if book.Bids, err = parseLevels(resp.Bids); err != nil {
		return OrderBook{}, fmt.Errorf("order book %s bids: %w", tokenID, err)
	}
	if book.Asks, err = parseLevels(resp.Asks); err != nil {
		return OrderBook{}, fmt.Errorf("order book %s asks: %w", tokenID, err)
	}
	return book, nil
}

func parseLevels(raw []bookLevel) ([]Level, error) {
	levels := make([]Level, 0, len(raw))
	for _, r := range raw {
		price, err := decimal.NewFromString(r.Price)
		if err != nil {
			return nil, fmt.Errorf("price %q: %w", r.Price, err)
		}
		size, err := decimal.NewFromString(r.Size)
		if err != nil {
			return nil, fmt.Errorf("size %q: %w", r.Size, err)
		}
		levels = append(levels, Level{Price: price, Size: size})
	}
	return levels, nil
}

// IsNegRisk reports whether the token trades on the neg-risk exchange. Answers are cached.
func (c *Client) IsNegRisk(ctx context.Context, tokenID string) (bool, error) {
	c.negRiskMu.RLock()
	v, ok := c.negRisk[tokenID]
	c.negRiskMu.RUnlock()
	if ok {
		return v, nil
	}

	var resp negRiskResponse
	if err := c.get(ctx, negRiskPath, url.Values{"token_id": {tokenID}}, &resp); err != nil {
		return false, fmt.Errorf("neg risk %s: %w", tokenID, err)
	}

	c.negRiskMu.Lock()
	c.negRisk[tokenID] = resp.NegRisk
	c.negRiskMu.Unlock()
	return resp.NegRisk, nil
}

// TickSize returns the minimum price increment of the token's market. Answers are cached.
func (c *Client) TickSize(ctx context.Context, tokenID string) (decimal.Decimal, error) {
	c.tickMu.RLock()
	v, ok := c.ticks[tokenID]
	c.tickMu.RUnlock()
	if ok {
		return v, nil
	}

	var resp tickSizeResponse
	if err := c.get(ctx, tickSizePath, url.Values{"token_id": {tokenID}}, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("tick size %s: %w", tokenID, err)
	}
	tick, err := decimal.NewFromString(resp.MinimumTickSize.String())
	if err != nil || !tick.IsPositive() || tick.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("tick size %s: invalid value %q", tokenID, resp.MinimumTickSize)
	}

	c.tickMu.Lock()
	c.ticks[tokenID] = tick
	c.tickMu.Unlock()
	return tick, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w %d from %s: %s", ErrStatus, resp.StatusCode, req.URL.Path, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", req.URL.Path, err)
	}
	return nil
}
