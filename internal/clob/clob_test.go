package clob

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestOrderBookBestLevels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/book", r.URL.Path)
		assert.Equal(t, "77", r.URL.Query().Get("token_id"))
		// levels deliberately unsorted
		fmt.Fprint(w, `{"asset_id":"77",
			"bids":[{"price":"0.48","size":"10"},{"price":"0.51","size":"3"},{"price":"0.55","size":"0"}],
			"asks":[{"price":"0.60","size":"5"},{"price":"0.53","size":"1"},{"price":"0.58","size":"9"}]}`)
	}))
	defer server.Close()

	client := NewClient(Options{BaseURL: server.URL, RatePerSec: 1000}, zerolog.Nop())
	book, err := client.OrderBook(context.Background(), "77")
	require.NoError(t, err)

	ask, ok := book.BestAsk()
	require.True(t, ok)
	assert.True(t, ask.Equal(dec("0.53")))

	bid, ok := book.BestBid()
	require.True(t, ok)
	assert.True(t, bid.Equal(dec("0.51")), "empty levels are ignored")

	_, ok = OrderBook{}.BestAsk()
	assert.False(t, ok)
}

func TestOrderBookErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"No orderbook exists"}`, http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(Options{BaseURL: server.URL, RatePerSec: 1000}, zerolog.Nop())
	_, err := client.OrderBook(context.Background(), "1")
	require.ErrorIs(t, err, ErrStatus)
}

func TestIsNegRiskIsCached(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		fmt.Fprint(w, `{"neg_risk":true}`)
	}))
	defer server.Close()

	client := NewClient(Options{BaseURL: server.URL, RatePerSec: 1000}, zerolog.Nop())
	for i := 0; i < 3; i++ {
		neg, err := client.IsNegRisk(context.Background(), "5")
		require.NoError(t, err)
		assert.True(t, neg)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestOrderAmounts(t *testing.T) {
	tick := dec("0.01")

	maker, taker, err := OrderAmounts(Buy, dec("0.52"), dec("19.2307"), tick)
	require.NoError(t, err)
	assert.Equal(t, "9999600", maker.String())
	assert.Equal(t, "19230000", taker.String())

	maker, taker, err = OrderAmounts(Sell, dec("0.6"), dec("10"), tick)
	require.NoError(t, err)
	assert.Equal(t, "10000000", maker.String())
	assert.Equal(t, "6000000", taker.String())

	// buys snap down, sells snap up
	maker, _, err = OrderAmounts(Buy, dec("0.527"), dec("1"), tick)
	require.NoError(t, err)
	assert.Equal(t, "520000", maker.String())
	_, taker, err = OrderAmounts(Sell, dec("0.521"), dec("1"), tick)
	require.NoError(t, err)
	assert.Equal(t, "530000", taker.String())

	_, _, err = OrderAmounts(Buy, dec("0.5"), dec("0.004"), tick)
	require.ErrorIs(t, err, ErrInvalidAmounts)
	_, _, err = OrderAmounts(Buy, dec("0.001"), dec("10"), tick)
	require.ErrorIs(t, err, ErrInvalidAmounts)
}

func TestOrderAmountsStayWithinCappedCollateral(t *testing.T) {
	price := dec("0.545")
	shares := dec("91.74") // 50 USDC at 0.545, floored to 2dp
	capUnits := dec("50").Mul(tokenUnit)

	for _, tick := range []decimal.Decimal{dec("0.01"), dec("0.001"), decimal.Zero} {
		maker, _, err := OrderAmounts(Buy, price, shares, tick)
		require.NoError(t, err)
		assert.True(t, decimal.NewFromBigInt(maker, 0).LessThanOrEqual(capUnits), "tick %s: maker %s", tick, maker)
	}

	maker, _, err := OrderAmounts(Buy, price, shares, dec("0.001"))
	require.NoError(t, err)
	assert.Equal(t, "49998300", maker.String(), "price on tick is kept")
}

func TestPriceTick(t *testing.T) {
	assert.True(t, PriceTick(dec("0.6")).Equal(dec("0.01")))
	assert.True(t, PriceTick(dec("0.673")).Equal(dec("0.001")))
	assert.True(t, PriceTick(dec("0.5125")).Equal(dec("0.0001")))
	assert.True(t, PriceTick(dec("0.123456")).Equal(dec("0.0001")))
}

func TestTickSizeIsCached(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "/tick-size", r.URL.Path)
		fmt.Fprint(w, `{"minimum_tick_size":"0.001"}`)
	}))
	defer server.Close()

	client := NewClient(Options{BaseURL: server.URL, RatePerSec: 1000}, zerolog.Nop())
	for i := 0; i < 2; i++ {
		tick, err := client.TickSize(context.Background(), "5")
		require.NoError(t, err)
		assert.True(t, tick.Equal(dec("0.001")), tick.String())
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

type venue struct {
	derives int32
	orders  int32
	last    orderRequestBody
	headers http.Header
	reply   string
	tick    string
}

func (v *venue) server(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/derive-api-key":
			atomic.AddInt32(&v.derives, 1)
			assert.NotEmpty(t, r.Header.Get("POLY_SIGNATURE"))
			assert.Equal(t, "0", r.Header.Get("POLY_NONCE"))
			fmt.Fprint(w, `{"apiKey":"key-1","secret":"c2VjcmV0LXNlY3JldA==","passphrase":"pass"}`)
		case "/tick-size":
			if v.tick == "" {
				http.NotFound(w, r)
				return
			}
			fmt.Fprintf(w, `{"minimum_tick_size":%q}`, v.tick)
		case "/order":
			atomic.AddInt32(&v.orders, 1)
			body, _ := io.ReadAll(r.Body)
			assert.NoError(t, json.Unmarshal(body, &v.last))
			v.headers = r.Header.Clone()
			fmt.Fprint(w, v.reply)
		default:
			http.NotFound(w, r)
		}
	}))
}

func newTrader(t *testing.T, baseURL string, opts TraderOptions) *Trader {
	t.Helper()
	wallet, err := NewWallet("0x"+testKey, 137)
	require.NoError(t, err)
	client := NewClient(Options{BaseURL: baseURL, RatePerSec: 1000}, zerolog.Nop())
	opts.ChainID = 137
	return NewTrader(client, wallet, opts, zerolog.Nop())
}

func TestTraderSubmitSessionPolicy(t *testing.T) {
	v := &venue{reply: `{"success":true,"orderID":"0xabc","status":"matched"}`}
	server := v.server(t)
	defer server.Close()

	trader := newTrader(t, server.URL, TraderOptions{})
	req := OrderRequest{TokenID: "123", Side: Buy, Price: dec("0.5"), Shares: dec("10")}

	for i := 0; i < 2; i++ {
		res, err := trader.Submit(context.Background(), req)
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, "0xabc", res.OrderID)
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&v.derives))
	assert.Equal(t, int32(2), atomic.LoadInt32(&v.orders))
	assert.Equal(t, "FOK", v.last.OrderType)
	assert.Equal(t, "key-1", v.last.Owner)
	assert.Equal(t, "BUY", v.last.Order.Side)
	assert.Equal(t, "5000000", v.last.Order.MakerAmount)
	assert.Equal(t, "10000000", v.last.Order.TakerAmount)
	assert.Equal(t, trader.wallet.Address().Hex(), v.last.Order.Signer)
	assert.Equal(t, "key-1", v.headers.Get("POLY_API_KEY"))
	assert.NotEmpty(t, v.headers.Get("POLY_SIGNATURE"))
}

func TestTraderPerOrderPolicyDerivesEveryTime(t *testing.T) {
	v := &venue{reply: `{"success":true,"orderID":"1"}`}
	server := v.server(t)
	defer server.Close()

	trader := newTrader(t, server.URL, TraderOptions{CredentialPolicy: PolicyPerOrder})
	req := OrderRequest{TokenID: "123", Side: Sell, Price: dec("0.4"), Shares: dec("5"), NegRisk: true}
	for i := 0; i < 3; i++ {
		_, err := trader.Submit(context.Background(), req)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&v.derives))
	assert.Equal(t, "SELL", v.last.Order.Side)
}

func TestTraderStaticCredentialsSkipDerivation(t *testing.T) {
	v := &venue{reply: `{"success":false,"errorMsg":"order couldn't be fully filled"}`}
	server := v.server(t)
	defer server.Close()

	trader := newTrader(t, server.URL, TraderOptions{Credentials: Credentials{
		APIKey: "static", Secret: "c2VjcmV0", Passphrase: "p",
	}})
	res, err := trader.Submit(context.Background(), OrderRequest{TokenID: "1", Side: Buy, Price: dec("0.3"), Shares: dec("3")})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "order couldn't be fully filled", res.ErrorMsg)
	assert.Equal(t, int32(0), atomic.LoadInt32(&v.derives))
	assert.Equal(t, "static", v.last.Owner)
}

func TestTraderSignsAtMarketTick(t *testing.T) {
	v := &venue{reply: `{"success":true,"orderID":"7"}`, tick: "0.001"}
	server := v.server(t)
	defer server.Close()

	trader := newTrader(t, server.URL, TraderOptions{})
	_, err := trader.Submit(context.Background(), OrderRequest{TokenID: "9", Side: Buy, Price: dec("0.545"), Shares: dec("91.74")})
	require.NoError(t, err)
	assert.Equal(t, "49998300", v.last.Order.MakerAmount)
	assert.Equal(t, "91740000", v.last.Order.TakerAmount)
}

func TestTraderSuccessFlagDecidesResult(t *testing.T) {
	v := &venue{reply: `{"success":true,"orderID":"0xdef","status":"matched","errorMsg":"partial fill notice"}`}
	server := v.server(t)
	defer server.Close()

	trader := newTrader(t, server.URL, TraderOptions{})
	res, err := trader.Submit(context.Background(), OrderRequest{TokenID: "1", Side: Buy, Price: dec("0.5"), Shares: dec("2")})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "0xdef", res.OrderID)
	assert.Equal(t, "partial fill notice", res.ErrorMsg)
}

func TestClobAuthSignatureRecoversWallet(t *testing.T) {
	wallet, err := NewWallet(testKey, 137)
	require.NoError(t, err)

	keccak := func(s string) []byte { return crypto.Keccak256([]byte(s)) }
	var domain []byte
	domain = append(domain, keccak("EIP712Domain(string name,string version,uint256 chainId)")...)
	domain = append(domain, keccak(clobDomainName)...)
	domain = append(domain, keccak(clobDomainVersion)...)
	domain = append(domain, common.LeftPadBytes(big.NewInt(137).Bytes(), 32)...)

	var msg []byte
	msg = append(msg, keccak("ClobAuth(address address,string timestamp,uint256 nonce,string message)")...)
	msg = append(msg, common.LeftPadBytes(wallet.Address().Bytes(), 32)...)
	msg = append(msg, keccak("1700000000")...)
	msg = append(msg, common.LeftPadBytes(big.NewInt(3).Bytes(), 32)...)
	msg = append(msg, keccak(clobAuthMessage)...)

	want := crypto.Keccak256([]byte{0x19, 0x01}, crypto.Keccak256(domain), crypto.Keccak256(msg))
	got, err := wallet.clobAuthHash("1700000000", 3)
	require.NoError(t, err)
	assert.Equal(t, hexutil.Encode(want), hexutil.Encode(got))

	sigHex, err := wallet.signClobAuth("1700000000", 3)
	require.NoError(t, err)
	sig, err := hexutil.Decode(sigHex)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	sig[64] -= 27
	pub, err := crypto.SigToPub(want, sig)
	require.NoError(t, err)
	assert.Equal(t, wallet.Address(), crypto.PubkeyToAddress(*pub))
}

func TestHMACSignatureIsStable(t *testing.T) {
	a, err := hmacSignature("c2VjcmV0", "1700000000POST/order{}")
	require.NoError(t, err)
	b, err := hmacSignature("c2VjcmV0", "1700000000POST/order{}")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	_, err = hmacSignature("%%%", "x")
	require.Error(t, err)
}
