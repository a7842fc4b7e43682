package seller

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"gopkg.in/yaml.v3"

	"github.com/confluxpay/paygate/internal/networks"
	"github.com/confluxpay/paygate/internal/schemes"
	"github.com/confluxpay/paygate/pkg/x402"
)

// HeaderDemoPay is the request header a caller sets to "auto" to ask the
// demo auto-pay path to act as payer. Never honored outside test networks.
const HeaderDemoPay = "X-Payment-Demo"

// AutoPayer signs EIP-3009 authorizations with a held key so a demo request
// can pay itself without a client round-trip. Construction fails outright on
// non-test networks.
type AutoPayer struct {
	key    *ecdsa.PrivateKey
	from   common.Address
	logger *slog.Logger
}

// NewAutoPayer creates the demo payer. network must be flagged as a testnet.
func NewAutoPayer(keyHex string, network *networks.Network, logger *slog.Logger) (*AutoPayer, error) {
	if network == nil || !network.Testnet {
		return nil, fmt.Errorf("demo auto-pay is only available on test networks")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parsing payer key: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AutoPayer{
		key:    key,
		from:   crypto.PubkeyToAddress(key.PublicKey),
		logger: logger,
	}, nil
}

// Requested reports whether the caller explicitly opted into auto-pay.
func (a *AutoPayer) Requested(r *http.Request) bool {
	return r.Header.Get(HeaderDemoPay) == "auto"
}

// Pay builds a signed EIP-3009 payment proof for the issuer's gate.
func (a *AutoPayer) Pay(issuer *Issuer) (*x402.PaymentProof, error) {
	net := issuer.Network()
	if !net.Testnet {
		return nil, fmt.Errorf("demo auto-pay is only available on test networks")
	}

	tok, err := issuer.Token()
	if err != nil {
		return nil, err
	}
	if tok.Method != x402.MethodEIP3009 {
		tok, err = eip3009Token(net)
		if err != nil {
			return nil, err
		}
	}

	amount := issuer.amount
	if amount == "" {
		amount = tok.MinAmount
	}
	value, err := x402.ParseAmount(amount)
	if err != nil {
		return nil, err
	}

	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("generating authorization nonce: %w", err)
	}

	now := time.Now().Unix()
	validAfter := big.NewInt(now - 60)
	validBefore := big.NewInt(now + 600)

	signature, err := schemes.SignAuthorization(
		a.key, tok.DomainName, tok.DomainVersion, net.ChainID,
		common.HexToAddress(tok.Address),
		a.from, common.HexToAddress(net.Treasury),
		value, validAfter, validBefore, nonce)
	if err != nil {
		return nil, fmt.Errorf("signing authorization: %w", err)
	}

	payload, err := json.Marshal(x402.EIP3009Payload{
		Signature: signature,
		Authorization: x402.Authorization{
			From:        a.from.Hex(),
			To:          net.Treasury,
			Value:       amount,
			ValidAfter:  strconv.FormatInt(validAfter.Int64(), 10),
			ValidBefore: strconv.FormatInt(validBefore.Int64(), 10),
			Nonce:       "0x" + hex.EncodeToString(nonce[:]),
		},
	})
	if err != nil {
		return nil, err
	}

	a.logger.Info("demo auto-pay proof generated",
		"network", net.ID, "token", tok.Symbol, "amount", amount, "payer", a.from.Hex())

	return &x402.PaymentProof{
		X402Version: x402.Version,
		Scheme:      x402.SchemeExact,
		Network:     net.ID,
		Method:      x402.MethodEIP3009,
		Payload:     payload,
	}, nil
}

func eip3009Token(net *networks.Network) (networks.Token, error) {
	for _, t := range net.Tokens {
		if t.Method == x402.MethodEIP3009 {
			return t, nil
		}
	}
	return networks.Token{}, fmt.Errorf("no eip3009 token on %s", net.ID)
}

// PayerCredentials is the on-disk shape of the demo payer key file.
type PayerCredentials struct {
	PrivateKey string `yaml:"private_key"`
}

// LoadPayerCredentials reads the demo payer key file, conventionally
// ~/.config/paygate/payer.yaml with 0600 permissions.
func LoadPayerCredentials(path string) (*PayerCredentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading payer credentials: %w", err)
	}
	var creds PayerCredentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parsing payer credentials: %w", err)
	}
	if creds.PrivateKey == "" {
		return nil, fmt.Errorf("payer credentials file %s has no private_key", path)
	}
	return &creds, nil
}
