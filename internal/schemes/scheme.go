// Package schemes implements the three x402 payment methods. Each handler is
// an independent verify/settle pair behind a common contract; the facilitator
// dispatches by payment method.
package schemes

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/confluxpay/paygate/internal/networks"
	"github.com/confluxpay/paygate/pkg/x402"
)

// Verification failure reasons surfaced to buyers.
const (
	ReasonUnsupportedVersion = "Unsupported x402 version"
	ReasonUnsupportedScheme  = "Unsupported scheme"
	ReasonNetworkMismatch    = "Network mismatch"
	ReasonTxNotFound         = "Transaction not found"
	ReasonTxFailed           = "Transaction failed"
	ReasonInsufficientAmount = "Insufficient amount"
	ReasonSenderMismatch     = "Sender mismatch"
	ReasonInvalidSignature   = "Invalid signature"
	ReasonInvalidRecipient   = "Invalid recipient"
	ReasonInsufficientFunds  = "Insufficient balance"
	ReasonNotYetValid        = "Authorization not yet valid"
	ReasonExpired            = "Authorization expired"
)

// ChainReader is the read-only chain access a verify step needs.
// *ethclient.Client satisfies it.
type ChainReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, txHash common.Hash) (*types.Transaction, bool, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Settler submits relayer-signed settlement transactions.
// *contract.Transactor satisfies it.
type Settler interface {
	From() common.Address
	Send(ctx context.Context, to common.Address, value *big.Int, data []byte, gasLimit uint64) (*types.Receipt, error)
}

// Request carries one verify or settle invocation. Chain and Network are
// always set by the dispatcher; Settler is nil on verify-only paths and
// for the native method.
type Request struct {
	Proof           x402.PaymentProof
	Token           networks.Token
	Network         *networks.Network
	Treasury        string
	PaymentContract string
	Chain           ChainReader
	Settler         Settler
}

// Handler is the two-method contract every payment method implements.
// Verify never submits transactions; Settle is called at most once and only
// after Verify succeeded.
type Handler interface {
	Method() x402.PaymentMethod
	Verify(ctx context.Context, req *Request) (*x402.VerifyResult, error)
	Settle(ctx context.Context, req *Request) (*x402.SettlementResult, error)
}

// Registry holds one handler per payment method.
type Registry struct {
	handlers map[x402.PaymentMethod]Handler
}

// NewRegistry builds the stock registry with all three methods.
func NewRegistry() *Registry {
	r := &Registry{handlers: make(map[x402.PaymentMethod]Handler)}
	for _, h := range []Handler{NewNative(), NewERC20(), NewEIP3009()} {
		r.handlers[h.Method()] = h
	}
	return r
}

// Get resolves the handler for a method.
func (r *Registry) Get(method x402.PaymentMethod) (Handler, error) {
	if h, ok := r.handlers[method]; ok {
		return h, nil
	}
	return nil, fmt.Errorf("no handler for payment method %q", method)
}

// checkEnvelope applies the version/scheme/network gates shared by every
// method. These run before any chain I/O. A nil result means the envelope
// is acceptable.
func checkEnvelope(req *Request) *x402.VerifyResult {
	if req.Proof.X402Version != x402.Version {
		return x402.Invalid(ReasonUnsupportedVersion)
	}
	if req.Proof.Scheme != x402.SchemeExact {
		return x402.Invalid(ReasonUnsupportedScheme)
	}
	if req.Proof.Network != "" && req.Proof.Network != req.Network.ID {
		return x402.Invalid(ReasonNetworkMismatch)
	}
	return nil
}

// minAmount parses the token's configured floor; a missing floor is zero.
func minAmount(tok networks.Token) *big.Int {
	if tok.MinAmount == "" {
		return new(big.Int)
	}
	v, err := x402.ParseAmount(tok.MinAmount)
	if err != nil {
		return new(big.Int)
	}
	return v
}
