package seller

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/confluxpay/paygate/internal/invoices"
	"github.com/confluxpay/paygate/internal/networks"
	"github.com/confluxpay/paygate/internal/observability/metrics"
	"github.com/confluxpay/paygate/pkg/x402"
)

// DefaultChallengeTimeout is how long a 402 challenge stays redeemable.
const DefaultChallengeTimeout = 3600 * time.Second

// InvoiceCreator is the slice of the invoice store the issuer uses to record
// challenges. May be nil.
type InvoiceCreator interface {
	Create(ctx context.Context, inv *invoices.Invoice) error
}

// Challenge is one issued 402 challenge, ready to be written as a response.
type Challenge struct {
	Envelope  x402.PaymentRequired
	Token     networks.Token
	Amount    string
	InvoiceID string
	Nonce     string
	Expiry    time.Time
}

// Issuer builds payment-required challenges for one gated resource.
type Issuer struct {
	network        *networks.Network
	tokenSymbol    string
	amount         string
	description    string
	mimeType       string
	facilitatorURL string
	timeout        time.Duration
	store          InvoiceCreator
	logger         *slog.Logger
}

// IssuerConfig configures a challenge issuer. Token and Amount are optional:
// an empty token resolves via the network's default-token policy, an empty
// amount falls back to the resolved token's configured minimum.
type IssuerConfig struct {
	Network        *networks.Network
	Token          string
	Amount         string
	Description    string
	MimeType       string
	FacilitatorURL string
	Timeout        time.Duration
	Invoices       InvoiceCreator
	Logger         *slog.Logger
}

// NewIssuer creates a challenge issuer for one gated resource.
func NewIssuer(cfg IssuerConfig) (*Issuer, error) {
	if cfg.Network == nil {
		return nil, fmt.Errorf("challenge issuer requires a network")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultChallengeTimeout
	}
	return &Issuer{
		network:        cfg.Network,
		tokenSymbol:    cfg.Token,
		amount:         cfg.Amount,
		description:    cfg.Description,
		mimeType:       cfg.MimeType,
		facilitatorURL: cfg.FacilitatorURL,
		timeout:        cfg.Timeout,
		store:          cfg.Invoices,
		logger:         cfg.Logger,
	}, nil
}

// Token resolves the token this issuer charges in.
func (i *Issuer) Token() (networks.Token, error) {
	if i.tokenSymbol != "" {
		return i.network.Token(i.tokenSymbol)
	}
	return i.network.DefaultToken()
}

// Network returns the network this issuer charges on.
func (i *Issuer) Network() *networks.Network {
	return i.network
}

// Issue builds a fresh challenge for the given request. Identifiers are
// random per call; nothing is reused across challenges.
func (i *Issuer) Issue(r *http.Request) (*Challenge, error) {
	tok, err := i.Token()
	if err != nil {
		return nil, err
	}

	amount := i.amount
	if amount == "" {
		amount = tok.MinAmount
	}

	nonce, err := newNonce()
	if err != nil {
		return nil, err
	}

	ch := &Challenge{
		Token:     tok,
		Amount:    amount,
		InvoiceID: uuid.NewString(),
		Nonce:     nonce,
		Expiry:    time.Now().Add(i.timeout),
	}

	extra := map[string]string{
		x402.ExtraPaymentMethod:   string(tok.Method),
		x402.ExtraSymbol:          tok.Symbol,
		x402.ExtraDecimals:        strconv.Itoa(tok.Decimals),
		x402.ExtraPaymentContract: i.network.PaymentContract,
	}
	if tok.Method == x402.MethodEIP3009 {
		extra[x402.ExtraDomainName] = tok.DomainName
		extra[x402.ExtraDomainVersion] = tok.DomainVersion
	}

	ch.Envelope = x402.PaymentRequired{
		X402Version: x402.Version,
		Resource: x402.ResourceInfo{
			URL:         resourceURL(r),
			Description: i.description,
			MimeType:    i.mimeType,
		},
		Accepts: []x402.Requirement{{
			Scheme:            x402.SchemeExact,
			Network:           i.network.ID,
			Amount:            amount,
			Asset:             tok.Address,
			PayTo:             i.network.Treasury,
			MaxTimeoutSeconds: int(i.timeout / time.Second),
			Extra:             extra,
		}},
	}

	i.record(r.Context(), ch)
	metrics.RecordChallenge(i.network.ID, tok.Symbol)
	return ch, nil
}

// Write sends the challenge as a 402 response: the full envelope in the
// PAYMENT-REQUIRED header, duplicated as discrete headers for clients that
// only read simple ones, plus a generic JSON body.
func (i *Issuer) Write(w http.ResponseWriter, ch *Challenge, message string) {
	encoded, err := x402.EncodeRequired(ch.Envelope)
	if err != nil {
		i.logger.Error("encoding payment challenge", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set(x402.HeaderPaymentRequired, encoded)
	h.Set(x402.HeaderAmount, ch.Amount)
	h.Set(x402.HeaderToken, ch.Token.Symbol)
	h.Set(x402.HeaderNonce, ch.Nonce)
	h.Set(x402.HeaderExpiry, strconv.FormatInt(ch.Expiry.Unix(), 10))
	h.Set(x402.HeaderEndpoint, i.facilitatorURL)
	h.Set(x402.HeaderInvoiceID, ch.InvoiceID)
	h.Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)

	if message == "" {
		message = "Payment required"
	}
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// record persists the challenge as a pending invoice, best-effort.
func (i *Issuer) record(ctx context.Context, ch *Challenge) {
	if i.store == nil {
		return
	}
	inv := &invoices.Invoice{
		ID:          ch.InvoiceID,
		Network:     i.network.ID,
		TokenSymbol: ch.Token.Symbol,
		Amount:      ch.Amount,
		Endpoint:    ch.Envelope.Resource.URL,
		Status:      invoices.StatusPending,
		CreatedAt:   time.Now(),
		ExpiresAt:   ch.Expiry,
	}
	if err := i.store.Create(ctx, inv); err != nil {
		i.logger.Warn("recording challenge invoice", "invoice", ch.InvoiceID, "error", err)
	}
}

// newNonce returns a 128-bit random hex identifier.
func newNonce() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}

// resourceURL reconstructs the request URL for the challenge envelope.
func resourceURL(r *http.Request) string {
	scheme := "https"
	if r.TLS == nil {
		scheme = "http"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return scheme + "://" + r.Host + r.URL.Path
}
