package clob

import (
	"context"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	clobDomainName    = "ClobAuthDomain"
	clobDomainVersion = "1"
	clobAuthMessage   = "This message attests that I control the given wallet"

	deriveKeyPath = "/auth/derive-api-key"
)

// ErrNoCredentials is returned when an L2 call is attempted before credentials exist.
var ErrNoCredentials = errors.New("clob: api credentials not available")

// Credentials are the L2 API key triple.
type Credentials struct {
	APIKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// Complete reports whether every field is set.
func (c Credentials) Complete() bool {
	return c.APIKey != "" && c.Secret != "" && c.Passphrase != ""
}

var clobAuthTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
	},
	"ClobAuth": {
		{Name: "address", Type: "address"},
		{Name: "timestamp", Type: "string"},
		{Name: "nonce", Type: "uint256"},
		{Name: "message", Type: "string"},
	},
}

// Wallet holds the operator key and produces L1 and L2 signatures.
type Wallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
	now     func() time.Time
}

// NewWallet parses a hex private key with or without the 0x prefix.
func NewWallet(privateKeyHex string, chainID int64) (*Wallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("clob: invalid private key: %w", err)
	}
	return &Wallet{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: big.NewInt(chainID),
		now:     time.Now,
	}, nil
}

// Address is the wallet's public address.
func (w *Wallet) Address() common.Address {
	return w.address
}

// clobAuthHash is the EIP-712 digest of the ClobAuth message.
func (w *Wallet) clobAuthHash(timestamp string, nonce int64) ([]byte, error) {
	typedData := apitypes.TypedData{
		Types:       clobAuthTypes,
		PrimaryType: "ClobAuth",
		Domain: apitypes.TypedDataDomain{
			Name:    clobDomainName,
			Version: clobDomainVersion,
			ChainId: (*math.HexOrDecimal256)(new(big.Int).Set(w.chainID)),
		},
		Message: apitypes.TypedDataMessage{
			"address":   w.address.Hex(),
			"timestamp": timestamp,
			"nonce":     big.NewInt(nonce),
			"message":   clobAuthMessage,
		},
	}
	hash, _, err := apitypes.TypedDataAndHash(typedData)
	return hash, err
}

// signClobAuth signs the ClobAuth typed data used for L1 authentication.
func (w *Wallet) signClobAuth(timestamp string, nonce int64) (string, error) {
	hash, err := w.clobAuthHash(timestamp, nonce)
	if err != nil {
		return "", err
	}
	sig, err := crypto.Sign(hash, w.key)
	if err != nil {
		return "", err
	}
	sig[64] += 27
	return hexutil.Encode(sig), nil
}

// l1Headers authenticate key management calls.
func (w *Wallet) l1Headers(nonce int64) (http.Header, error) {
	ts := strconv.FormatInt(w.now().Unix(), 10)
	sig, err := w.signClobAuth(ts, nonce)
	if err != nil {
		return nil, fmt.Errorf("sign clob auth: %w", err)
	}
	h := http.Header{}
	h.Set("POLY_ADDRESS", w.address.Hex())
	h.Set("POLY_SIGNATURE", sig)
	h.Set("POLY_TIMESTAMP", ts)
	h.Set("POLY_NONCE", strconv.FormatInt(nonce, 10))
	return h, nil
}

// l2Headers authenticate trading calls with an HMAC over timestamp, method, path and body.
func (w *Wallet) l2Headers(creds Credentials, method, path, body string) (http.Header, error) {
	if !creds.Complete() {
		return nil, ErrNoCredentials
	}
	ts := strconv.FormatInt(w.now().Unix(), 10)
	sig, err := hmacSignature(creds.Secret, ts+strings.ToUpper(method)+path+body)
	if err != nil {
		return nil, err
	}
	h := http.Header{}
	h.Set("POLY_ADDRESS", w.address.Hex())
	h.Set("POLY_SIGNATURE", sig)
	h.Set("POLY_TIMESTAMP", ts)
	h.Set("POLY_API_KEY", creds.APIKey)
	h.Set("POLY_PASSPHRASE", creds.Passphrase)
	return h, nil
}

func hmacSignature(secret, message string) (string, error) {
	key, err := base64.URLEncoding.DecodeString(secret)
	if err != nil {
		return "", fmt.Errorf("decode api secret: %w", err)
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil)), nil
}

// DeriveCredentials obtains the wallet's API credentials through L1 authentication.
func (c *Client) DeriveCredentials(ctx context.Context, w *Wallet) (Credentials, error) {
	headers, err := w.l1Headers(0)
	if err != nil {
		return Credentials{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+deriveKeyPath, nil)
	if err != nil {
		return Credentials{}, fmt.Errorf("new request: %w", err)
	}
	for k, v := range headers {
		req.Header[k] = v
	}

	var creds Credentials
	if err := c.do(req, &creds); err != nil {
		return Credentials{}, fmt.Errorf("derive api key: %w", err)
	}
	if !creds.Complete() {
		return Credentials{}, fmt.Errorf("derive api key: %w", ErrNoCredentials)
	}
	return creds, nil
}
