package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	defaultGammaBase    = "https://gamma-api.polymarket.com"
	defaultGammaTimeout = 5 * time.Second
	defaultGammaRate    = 10.0
	gammaMarketsPath    = "/markets"
)

// ErrNotFound indicates Gamma has no market for the token id.
var ErrNotFound = errors.New("market: token not found")

// GammaOptions configure the Gamma metadata client.
type GammaOptions struct {
	BaseURL    string
	Timeout    time.Duration
	RatePerSec float64
	HTTPClient *http.Client
}

// GammaClient looks up market metadata by CLOB token id.
type GammaClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewGammaClient constructs a GammaClient.
func NewGammaClient(opts GammaOptions, logger zerolog.Logger) *GammaClient {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = defaultGammaBase
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultGammaTimeout
	}
	perSec := opts.RatePerSec
	if perSec <= 0 {
		perSec = defaultGammaRate
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &GammaClient{
		baseURL: base,
		http:    client,
		limiter: rate.NewLimiter(rate.Limit(perSec), int(perSec)+1),
		logger:  logger.With().Str("component", "gamma").Logger(),
	}
}

type gammaToken struct {
	TokenID string `json:"token_id"`
	Outcome string `json:"outcome"`
}

type gammaMarket struct {
	Question     string       `json:"question"`
	Slug         string       `json:"slug"`
	Tokens       []gammaToken `json:"tokens"`
	ClobTokenIDs string       `json:"clobTokenIds"`
	Outcomes     string       `json:"outcomes"`
}

// outcomeFor returns the outcome label of tokenID within the market.
// Both the tokens array and the JSON-encoded clobTokenIds/outcomes pair are understood.
func (m gammaMarket) outcomeFor(tokenID string) (string, bool) {
	for _, tok := range m.Tokens {
		if tok.TokenID == tokenID {
			return tok.Outcome, true
		}
	}
	if m.ClobTokenIDs == "" || m.Outcomes == "" {
		return "", false
	}
	var ids, labels []string
	if err := json.Unmarshal([]byte(m.ClobTokenIDs), &ids); err != nil {
		return "", false
	}
	if err := json.Unmarshal([]byte(m.Outcomes), &labels); err != nil {
		return "", false
	}
	for i, id := range ids {
		if id == tokenID && i < len(labels) {
			return labels[i], true
		}
	}
	return "", false
}

// Lookup fetches the market that lists tokenID among its outcomes.
func (c *GammaClient) Lookup(ctx context.Context, tokenID string) (MarketInfo, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return MarketInfo{}, fmt.Errorf("gamma rate limiter: %w", err)
	}

	params := url.Values{}
	params.Set("clob_token_ids", tokenID)
	endpoint := c.baseURL + gammaMarketsPath + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return MarketInfo{}, fmt.Errorf("gamma request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return MarketInfo{}, fmt.Errorf("gamma lookup %s: %w", tokenID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return MarketInfo{}, fmt.Errorf("gamma lookup %s: status %d: %s", tokenID, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var markets []gammaMarket
	if err := json.NewDecoder(resp.Body).Decode(&markets); err != nil {
		return MarketInfo{}, fmt.Errorf("gamma decode: %w", err)
	}
	if len(markets) == 0 {
		return MarketInfo{}, ErrNotFound
	}

	for _, m := range markets {
		if label, ok := m.outcomeFor(tokenID); ok {
			return MarketInfo{Question: m.Question, OutcomeLabel: label, Slug: m.Slug}, nil
		}
	}

	c.logger.Debug().Str("token_id", tokenID).Int("markets", len(markets)).Msg("token missing from market outcomes")
	return MarketInfo{}, ErrNotFound
}
