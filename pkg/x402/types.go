// Package x402 defines the wire types of the x402 HTTP-402 machine-payment
// protocol as exchanged between buyers, the seller middleware and the
// facilitator. All envelopes are JSON; amounts are decimal strings in the
// token's smallest unit.
package x402

import (
	"encoding/json"
	"fmt"
	"math/big"
)

// Version is the x402 protocol version this implementation speaks.
const Version = 2

// SchemeExact is the only payment scheme identifier defined by the protocol.
const SchemeExact = "exact"

// PaymentMethod selects one of the three settlement mechanisms.
type PaymentMethod string

const (
	// MethodNative pays with the chain's native coin via a buyer-broadcast
	// transaction that is only confirmed server-side.
	MethodNative PaymentMethod = "native"

	// MethodERC20 pays with an ERC-20 token the buyer has approved to the
	// payment contract; the relayer executes the transferFrom.
	MethodERC20 PaymentMethod = "erc20"

	// MethodEIP3009 pays with an off-chain EIP-3009 transfer authorization;
	// the buyer pays zero gas.
	MethodEIP3009 PaymentMethod = "eip3009"
)

// Valid reports whether m is one of the three known payment methods.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodNative, MethodERC20, MethodEIP3009:
		return true
	}
	return false
}

// ResourceInfo describes the gated resource inside a 402 challenge.
type ResourceInfo struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// Requirement is a single acceptable payment option inside a challenge.
type Requirement struct {
	Scheme            string            `json:"scheme"`
	Network           string            `json:"network"`
	Amount            string            `json:"amount"`
	Asset             string            `json:"asset"`
	PayTo             string            `json:"payTo"`
	MaxTimeoutSeconds int               `json:"maxTimeoutSeconds"`
	Extra             map[string]string `json:"extra,omitempty"`
}

// Extra metadata keys used inside Requirement.Extra.
const (
	ExtraPaymentMethod   = "paymentMethod"
	ExtraSymbol          = "symbol"
	ExtraDecimals        = "decimals"
	ExtraDomainName      = "name"
	ExtraDomainVersion   = "version"
	ExtraPaymentContract = "paymentContract"
)

// PaymentRequired is the full 402 challenge envelope. It is ephemeral:
// regenerated for every gated request and never persisted.
type PaymentRequired struct {
	X402Version int           `json:"x402Version"`
	Resource    ResourceInfo  `json:"resource"`
	Accepts     []Requirement `json:"accepts"`
}

// PaymentProof is the payload the buyer submits to redeem a challenge.
// Payload is tagged by Method and decodes to one of NativePayload,
// ERC20Payload or EIP3009Payload.
type PaymentProof struct {
	X402Version int             `json:"x402Version"`
	Scheme      string          `json:"scheme"`
	Network     string          `json:"network"`
	Method      PaymentMethod   `json:"method"`
	Payload     json.RawMessage `json:"payload"`
}

// NativePayload proves a buyer-broadcast native coin transfer.
type NativePayload struct {
	TxHash string `json:"txHash"`
	From   string `json:"from,omitempty"`
	Amount string `json:"amount,omitempty"`
}

// ERC20Payload requests a relayed transferFrom against a prior approval.
type ERC20Payload struct {
	From       string `json:"from"`
	Amount     string `json:"amount"`
	InvoiceID  string `json:"invoiceId,omitempty"`
	ApprovalTx string `json:"approvalTx,omitempty"`
}

// EIP3009Payload carries a signed transferWithAuthorization message.
type EIP3009Payload struct {
	Signature     string        `json:"signature"`
	Authorization Authorization `json:"authorization"`
}

// Authorization is the EIP-3009 message struct. Numeric fields are decimal
// strings; Nonce is a 0x-prefixed 32-byte hex string.
type Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// VerifyResult is the outcome of a facilitator verify call.
type VerifyResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// SettlementResult is the outcome of a settle call. Immutable once produced;
// the seller middleware attaches it to the request context for downstream
// handlers.
type SettlementResult struct {
	Success     bool   `json:"success"`
	Transaction string `json:"transaction,omitempty"`
	Payer       string `json:"payer,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Invalid builds a failed VerifyResult with the given reason.
func Invalid(reason string) *VerifyResult {
	return &VerifyResult{Valid: false, Reason: reason}
}

// SettleFailure builds a failed SettlementResult with the given error text.
func SettleFailure(msg string) *SettlementResult {
	return &SettlementResult{Success: false, Error: msg}
}

// DecodePayload unmarshals the scheme-tagged payload into dst.
func (p *PaymentProof) DecodePayload(dst any) error {
	if len(p.Payload) == 0 {
		return fmt.Errorf("payment proof has no payload")
	}
	if err := json.Unmarshal(p.Payload, dst); err != nil {
		return fmt.Errorf("decoding %s payload: %w", p.Method, err)
	}
	return nil
}

// ParseAmount parses a decimal-string amount in smallest units. Negative
// values and non-decimal input are rejected.
func ParseAmount(s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("amount is empty")
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %q", s)
	}
	return v, nil
}
