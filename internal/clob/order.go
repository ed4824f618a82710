package clob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/polymarket/go-order-utils/pkg/builder"
	"github.com/polymarket/go-order-utils/pkg/model"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	orderPath   = "/order"
	zeroAddress = "0x0000000000000000000000000000000000000000"

	// SharesDecimals is the size precision accepted by the venue.
	SharesDecimals = 2
)

// Side of an order.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Credential policies.
const (
	PolicySession  = "session"
	PolicyPerOrder = "per_order"
)

var (
	// ErrInvalidAmounts means the order rounds to nothing at the venue's precision.
	ErrInvalidAmounts = errors.New("clob: order amounts round to zero")

	tokenUnit = decimal.New(1, 6)
)

// OrderRequest is a limit order in human units.
type OrderRequest struct {
	TokenID string
	Side    Side
	Price   decimal.Decimal
	Shares  decimal.Decimal
	NegRisk bool
}

// OrderResult is the venue's answer to a submission.
type OrderResult struct {
	Success  bool
	OrderID  string
	Status   string
	ErrorMsg string
}

// PriceTick returns the coarsest venue tick that represents price exactly.
// It is the fallback when the market's tick size cannot be fetched.
func PriceTick(price decimal.Decimal) decimal.Decimal {
	for _, exp := range []int32{-2, -3, -4} {
		if price.Equal(price.Truncate(-exp)) {
			return decimal.New(1, exp)
		}
	}
	return decimal.New(1, -4)
}

// OrderAmounts converts price and shares into the on-chain maker and taker amounts.
// Shares are floored to SharesDecimals. A buy price is snapped down to tick and a
// sell price up, so the order never commits more collateral or accepts less than
// price. makerAmount equals price × takerAmount exactly for buys (and the reverse
// for sells).
func OrderAmounts(side Side, price, shares, tick decimal.Decimal) (maker, taker *big.Int, err error) {
	if !tick.IsPositive() {
		tick = PriceTick(price)
	}
	ticks := price.Div(tick)
	if side == Sell {
		ticks = ticks.Ceil()
	} else {
		ticks = ticks.Floor()
	}
	snapped := ticks.Mul(tick)
	floored := shares.Truncate(SharesDecimals)

	if !snapped.IsPositive() || !floored.IsPositive() || snapped.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, nil, fmt.Errorf("%w: price=%s shares=%s", ErrInvalidAmounts, price, shares)
	}

	sharesUnits := floored.Mul(tokenUnit)
	collateralUnits := floored.Mul(snapped).Mul(tokenUnit)
	if !collateralUnits.Equal(collateralUnits.Truncate(0)) {
		return nil, nil, fmt.Errorf("%w: tick %s too fine for collateral precision", ErrInvalidAmounts, tick)
	}

	if side == Sell {
		return sharesUnits.BigInt(), collateralUnits.BigInt(), nil
	}
	return collateralUnits.BigInt(), sharesUnits.BigInt(), nil
}

// TraderOptions configure the authenticated trader.
type TraderOptions struct {
	ChainID          int64
	OrderType        string
	CredentialPolicy string
	Credentials      Credentials
}

// Trader signs and submits orders with the operator's wallet.
type Trader struct {
	client  *Client
	wallet  *Wallet
	builder builder.ExchangeOrderBuilder
	opts    TraderOptions
	logger  zerolog.Logger

	credsMu sync.Mutex
	creds   Credentials
}

// NewTrader builds a Trader. Static credentials, when complete, are always used as is.
func NewTrader(client *Client, wallet *Wallet, opts TraderOptions, logger zerolog.Logger) *Trader {
	if opts.OrderType == "" {
		opts.OrderType = "FOK"
	}
	opts.OrderType = strings.ToUpper(opts.OrderType)
	if opts.CredentialPolicy == "" {
		opts.CredentialPolicy = PolicySession
	}
	return &Trader{
		client:  client,
		wallet:  wallet,
		builder: builder.NewExchangeOrderBuilderImpl(big.NewInt(opts.ChainID), nil),
		opts:    opts,
		logger:  logger.With().Str("component", "trader").Logger(),
		creds:   opts.Credentials,
	}
}

// credentials returns L2 credentials according to the configured policy.
func (t *Trader) credentials(ctx context.Context) (Credentials, error) {
	if t.opts.Credentials.Complete() {
		return t.opts.Credentials, nil
	}

	t.credsMu.Lock()
	defer t.credsMu.Unlock()
	if t.opts.CredentialPolicy == PolicySession && t.creds.Complete() {
		return t.creds, nil
	}

	creds, err := t.client.DeriveCredentials(ctx, t.wallet)
	if err != nil {
		return Credentials{}, err
	}
	if t.opts.CredentialPolicy == PolicySession {
		t.creds = creds
		t.logger.Info().Str("address", t.wallet.Address().Hex()).Msg("derived api credentials")
	}
	return creds, nil
}

type orderBody struct {
	Salt          int64  `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          string `json:"side"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}

type orderRequestBody struct {
	Order     orderBody `json:"order"`
	Owner     string    `json:"owner"`
	OrderType string    `json:"orderType"`
}

type orderResponse struct {
	Success  bool   `json:"success"`
	ErrorMsg string `json:"errorMsg"`
	OrderID  string `json:"orderID"`
	Status   string `json:"status"`
}

// tickSize prefers the market's published tick and falls back to the price's own precision.
func (t *Trader) tickSize(ctx context.Context, req OrderRequest) decimal.Decimal {
	tick, err := t.client.TickSize(ctx, req.TokenID)
	if err != nil {
		tick = PriceTick(req.Price)
		t.logger.Warn().Err(err).Str("token_id", req.TokenID).Str("tick", tick.String()).
			Msg("tick size lookup failed, using price precision")
	}
	return tick
}

func (t *Trader) sign(req OrderRequest, tick decimal.Decimal) (*model.SignedOrder, error) {
	makerAmt, takerAmt, err := OrderAmounts(req.Side, req.Price, req.Shares, tick)
	if err != nil {
		return nil, err
	}

	side := model.BUY
	if req.Side == Sell {
		side = model.SELL
	}
	var contract model.VerifyingContract = model.CTFExchange
	if req.NegRisk {
		contract = model.NegRiskCTFExchange
	}

	data := &model.OrderData{
		Maker:         t.wallet.Address().Hex(),
		Taker:         zeroAddress,
		TokenId:       req.TokenID,
		MakerAmount:   makerAmt.String(),
		TakerAmount:   takerAmt.String(),
		FeeRateBps:    "0",
		Nonce:         "0",
		Signer:        t.wallet.Address().Hex(),
		Expiration:    "0",
		Side:          side,
		SignatureType: model.EOA,
	}
	signed, err := t.builder.BuildSignedOrder(t.wallet.key, data, contract)
	if err != nil {
		return nil, fmt.Errorf("build signed order: %w", err)
	}
	return signed, nil
}

// Submit signs the order and posts it once. A venue-side rejection is reported
// in the result; transport and signing problems are returned as errors.
func (t *Trader) Submit(ctx context.Context, req OrderRequest) (OrderResult, error) {
	creds, err := t.credentials(ctx)
	if err != nil {
		return OrderResult{}, fmt.Errorf("credentials: %w", err)
	}

	signed, err := t.sign(req, t.tickSize(ctx, req))
	if err != nil {
		return OrderResult{}, err
	}

	body := orderRequestBody{
		Order: orderBody{
			Salt:          signed.Order.Salt.Int64(),
			Maker:         signed.Order.Maker.Hex(),
			Signer:        signed.Order.Signer.Hex(),
			Taker:         signed.Order.Taker.Hex(),
			TokenID:       req.TokenID,
			MakerAmount:   signed.Order.MakerAmount.String(),
			TakerAmount:   signed.Order.TakerAmount.String(),
			Expiration:    signed.Order.Expiration.String(),
			Nonce:         signed.Order.Nonce.String(),
			FeeRateBps:    signed.Order.FeeRateBps.String(),
			Side:          string(req.Side),
			SignatureType: int(signed.Order.SignatureType.Int64()),
			Signature:     hexutil.Encode(signed.Signature),
		},
		Owner:     creds.APIKey,
		OrderType: t.opts.OrderType,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return OrderResult{}, fmt.Errorf("marshal order: %w", err)
	}

	headers, err := t.wallet.l2Headers(creds, http.MethodPost, orderPath, string(payload))
	if err != nil {
		return OrderResult{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.client.baseURL+orderPath, strings.NewReader(string(payload)))
	if err != nil {
		return OrderResult{}, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header[k] = v
	}

	var resp orderResponse
	if err := t.client.do(httpReq, &resp); err != nil {
		return OrderResult{}, fmt.Errorf("post order: %w", err)
	}

	t.logger.Debug().Str("token_id", req.TokenID).Str("side", string(req.Side)).
		Bool("success", resp.Success).Str("order_id", resp.OrderID).
		Str("error_msg", resp.ErrorMsg).Msg("order submitted")

	return OrderResult{
		Success:  resp.Success,
		OrderID:  resp.OrderID,
		Status:   resp.Status,
		ErrorMsg: resp.ErrorMsg,
	}, nil
}

// IsNegRisk proxies the public lookup.
func (t *Trader) IsNegRisk(ctx context.Context, tokenID string) (bool, error) {
	return t.client.IsNegRisk(ctx, tokenID)
}
