package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/confluxpay/paygate/internal/invoices"
	"github.com/confluxpay/paygate/internal/networks"
	"github.com/confluxpay/paygate/internal/schemes"
	"github.com/confluxpay/paygate/pkg/x402"
)

// ErrUnknownMethod is returned when no scheme handler exists for the
// requested payment method.
var ErrUnknownMethod = errors.New("unknown payment method")

// Connector resolves a CAIP-2 network identifier (or "", meaning the default
// network) to the chain access objects a scheme handler needs. The settler is
// nil when no relayer key is configured.
type Connector interface {
	Connect(network string) (schemes.ChainReader, schemes.Settler, *networks.Network, error)
	Relayer() string
	RelayerBalance(ctx context.Context, chainID int64) (string, error)
}

// HandlerRegistry resolves a payment method to its scheme handler.
// *schemes.Registry satisfies it.
type HandlerRegistry interface {
	Get(method x402.PaymentMethod) (schemes.Handler, error)
}

// InvoiceMarker is the slice of the invoice store the service uses to flip
// invoices to paid after settlement. May be nil.
type InvoiceMarker interface {
	MarkPaid(ctx context.Context, id, transaction, payer string) error
}

type service struct {
	conn     Connector
	handlers HandlerRegistry
	registry *networks.Registry
	invoices InvoiceMarker
	logger   *slog.Logger
}

// NewService creates the facilitator payment service. invoiceStore may be
// nil, in which case settlements are not recorded.
func NewService(conn Connector, handlers HandlerRegistry, registry *networks.Registry, invoiceStore InvoiceMarker, logger *slog.Logger) *service {
	return &service{
		conn:     conn,
		handlers: handlers,
		registry: registry,
		invoices: invoiceStore,
		logger:   logger,
	}
}

// Verify checks a payment proof without moving funds.
func (s *service) Verify(ctx context.Context, method x402.PaymentMethod, req PaymentRequest) (*x402.VerifyResult, error) {
	sreq, handler, err := s.prepare(method, req)
	if err != nil {
		return nil, err
	}
	return handler.Verify(ctx, sreq)
}

// Settle finalizes a verified payment on-chain. A settlement failure is a
// result, not an error; errors are reserved for requests that never reached
// the scheme handler.
func (s *service) Settle(ctx context.Context, method x402.PaymentMethod, req PaymentRequest) (*x402.SettlementResult, error) {
	sreq, handler, err := s.prepare(method, req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := handler.Settle(ctx, sreq)
	if err != nil {
		return nil, err
	}

	if res.Success {
		s.logger.Info("payment settled",
			"method", string(method),
			"network", sreq.Network.ID,
			"transaction", res.Transaction,
			"payer", res.Payer,
			"elapsed", time.Since(start))
		s.markPaid(ctx, method, req.Proof, res)
	} else {
		s.logger.Warn("settlement failed",
			"method", string(method),
			"network", sreq.Network.ID,
			"error", res.Error)
	}
	return res, nil
}

// markPaid records the settlement against its invoice, best-effort: a store
// error never fails a payment that already moved on-chain.
func (s *service) markPaid(ctx context.Context, method x402.PaymentMethod, proof x402.PaymentProof, res *x402.SettlementResult) {
	if s.invoices == nil || method != x402.MethodERC20 {
		return
	}
	var payload x402.ERC20Payload
	if err := proof.DecodePayload(&payload); err != nil || payload.InvoiceID == "" {
		return
	}
	if err := s.invoices.MarkPaid(ctx, payload.InvoiceID, res.Transaction, res.Payer); err != nil {
		if !errors.Is(err, invoices.ErrNotFound) {
			s.logger.Warn("recording settled invoice", "invoice", payload.InvoiceID, "error", err)
		}
	}
}

// Health reports the default network, the relayer identity and its native
// balance. A balance fetch failure degrades the status instead of erroring.
func (s *service) Health(ctx context.Context) *Health {
	net := s.registry.Default()
	h := &Health{
		Status:          "ok",
		Network:         net.ID,
		ChainID:         net.ChainID,
		Facilitator:     s.conn.Relayer(),
		PaymentContract: net.PaymentContract,
	}
	balance, err := s.conn.RelayerBalance(ctx, net.ChainID)
	if err != nil {
		s.logger.Warn("fetching relayer balance", "chainId", net.ChainID, "error", err)
		h.Status = "degraded"
		return h
	}
	h.Balance = balance
	return h
}

// Supported lists every (scheme, network) pair the facilitator serves.
func (s *service) Supported() []SupportedKind {
	var kinds []SupportedKind
	for _, net := range s.registry.All() {
		byMethod := make(map[x402.PaymentMethod][]string)
		for _, tok := range net.Tokens {
			byMethod[tok.Method] = append(byMethod[tok.Method], tok.Symbol)
		}
		for method, symbols := range byMethod {
			sort.Strings(symbols)
			kinds = append(kinds, SupportedKind{
				Scheme:  x402.SchemeExact,
				Method:  method,
				Network: net.ID,
				Tokens:  symbols,
			})
		}
	}
	sort.Slice(kinds, func(i, j int) bool {
		if kinds[i].Network != kinds[j].Network {
			return kinds[i].Network < kinds[j].Network
		}
		return kinds[i].Method < kinds[j].Method
	})
	return kinds
}

// prepare resolves the request onto a handler, a chain connection and the
// effective token/treasury/contract configuration.
func (s *service) prepare(method x402.PaymentMethod, req PaymentRequest) (*schemes.Request, schemes.Handler, error) {
	handler, err := s.handlers.Get(method)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownMethod, method)
	}

	chain, settler, net, err := s.conn.Connect(req.Network)
	if err != nil {
		return nil, nil, err
	}

	var tok networks.Token
	if req.Token != "" {
		tok, err = net.Token(req.Token)
	} else {
		tok, err = net.DefaultToken()
	}
	if err != nil {
		return nil, nil, err
	}

	treasury := req.Treasury
	if treasury == "" {
		treasury = net.Treasury
	}
	paymentContract := req.PaymentContract
	if paymentContract == "" {
		paymentContract = net.PaymentContract
	}

	return &schemes.Request{
		Proof:           req.Proof,
		Token:           tok,
		Network:         net,
		Treasury:        treasury,
		PaymentContract: paymentContract,
		Chain:           chain,
		Settler:         settler,
	}, handler, nil
}
