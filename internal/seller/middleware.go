package seller

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/confluxpay/paygate/internal/networks"
	"github.com/confluxpay/paygate/pkg/client"
	"github.com/confluxpay/paygate/pkg/x402"
)

// Facilitator is the remote verify/settle dependency of the middleware.
// *client.Client satisfies it.
type Facilitator interface {
	Verify(ctx context.Context, method x402.PaymentMethod, req client.PaymentRequest) (*x402.VerifyResult, error)
	Settle(ctx context.Context, method x402.PaymentMethod, req client.PaymentRequest) (*x402.SettlementResult, error)
}

// Config configures the payment middleware for one gated resource.
type Config struct {
	Facilitator Facilitator
	Issuer      *Issuer
	AutoPayer   *AutoPayer // optional demo payer, testnet only
	Logger      *slog.Logger
}

// Middleware gates an http.Handler behind a payment: requests without a
// proof get a 402 challenge, requests with one are verified and settled
// against the facilitator before the protected handler runs.
type Middleware struct {
	facilitator Facilitator
	issuer      *Issuer
	autoPayer   *AutoPayer
	logger      *slog.Logger
}

// New creates the payment middleware.
func New(cfg Config) (*Middleware, error) {
	if cfg.Facilitator == nil {
		return nil, fmt.Errorf("payment middleware requires a facilitator")
	}
	if cfg.Issuer == nil {
		return nil, fmt.Errorf("payment middleware requires a challenge issuer")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Middleware{
		facilitator: cfg.Facilitator,
		issuer:      cfg.Issuer,
		autoPayer:   cfg.AutoPayer,
		logger:      cfg.Logger,
	}, nil
}

// Handler wraps next with the payment gate.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(x402.HeaderPaymentSignature)

		var proof *x402.PaymentProof
		switch {
		case header != "":
			decoded, err := x402.DecodeProof(header)
			if err != nil {
				// Malformed proof is a protocol error, distinct from a
				// failed payment.
				m.logger.Warn("malformed payment proof", "error", err)
				writeError(w, http.StatusBadRequest, "Invalid payment signature header")
				return
			}
			proof = &decoded

		case m.autoPayer != nil && m.autoPayer.Requested(r):
			generated, err := m.autoPayer.Pay(m.issuer)
			if err != nil {
				m.logger.Error("demo auto-pay failed", "error", err)
				writeError(w, http.StatusInternalServerError, "Auto-pay failed")
				return
			}
			proof = generated

		default:
			m.challenge(w, r, "")
			return
		}

		tok, err := m.resolveToken(proof.Method)
		if err != nil {
			m.challenge(w, r, "No matching payment option")
			return
		}

		net := m.issuer.Network()
		preq := client.PaymentRequest{
			Payload: *proof,
			Token:   tok.Symbol,
			Network: net.ID,
		}

		vres, err := m.facilitator.Verify(r.Context(), proof.Method, preq)
		if err != nil {
			m.logger.Error("facilitator verify failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, "Payment verification unavailable")
			return
		}
		if !vres.Valid {
			m.logger.Warn("payment rejected", "method", string(proof.Method), "reason", vres.Reason)
			writeError(w, http.StatusPaymentRequired, vres.Reason)
			return
		}

		// Funds may already be moving on-chain; a client disconnect must
		// not abort the settlement.
		sres, err := m.facilitator.Settle(context.WithoutCancel(r.Context()), proof.Method, preq)
		if err != nil {
			m.logger.Error("facilitator settle failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, "Payment settlement unavailable")
			return
		}
		if !sres.Success {
			// A failed settle after a successful verify is not a payment.
			m.logger.Warn("settlement failed", "method", string(proof.Method), "error", sres.Error)
			writeError(w, http.StatusPaymentRequired, sres.Error)
			return
		}

		m.logger.Info("payment settled",
			"method", string(proof.Method),
			"network", net.ID,
			"transaction", sres.Transaction,
			"payer", sres.Payer)

		if encoded, err := x402.EncodeSettlement(*sres); err == nil {
			w.Header().Set(x402.HeaderPaymentResponse, encoded)
		}

		ctx := WithPayment(r.Context(), &Payment{Result: sres, Token: tok, Network: net})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// challenge issues a fresh 402 response.
func (m *Middleware) challenge(w http.ResponseWriter, r *http.Request, message string) {
	ch, err := m.issuer.Issue(r)
	if err != nil {
		m.logger.Error("issuing payment challenge", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	m.issuer.Write(w, ch, message)
}

// resolveToken picks the token the buyer's chosen method settles in: the
// issuer's configured token when the method matches, otherwise the first
// network token supporting the method.
func (m *Middleware) resolveToken(method x402.PaymentMethod) (networks.Token, error) {
	tok, err := m.issuer.Token()
	if err != nil {
		return networks.Token{}, err
	}
	if tok.Method == method {
		return tok, nil
	}
	for _, t := range m.issuer.Network().Tokens {
		if t.Method == method {
			return t, nil
		}
	}
	return networks.Token{}, fmt.Errorf("no token supports method %s on %s", method, m.issuer.Network().ID)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
