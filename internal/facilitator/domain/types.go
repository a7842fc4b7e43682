// Package domain contains the business logic of the payment facilitator:
// resolving a request onto a network, token and chain connection, and
// dispatching it to the matching scheme handler.
package domain

import "github.com/confluxpay/paygate/pkg/x402"

// PaymentRequest is one verify or settle invocation as seen by the service.
// Token, Network, Treasury and PaymentContract are optional; empty fields
// resolve to the default network's configuration.
type PaymentRequest struct {
	Proof           x402.PaymentProof
	Token           string
	Network         string
	Treasury        string
	PaymentContract string
}

// Health is the liveness/capacity report of the facilitator.
type Health struct {
	Status          string `json:"status"`
	Network         string `json:"network"`
	ChainID         int64  `json:"chainId"`
	Facilitator     string `json:"facilitator"`
	Balance         string `json:"balance,omitempty"`
	PaymentContract string `json:"paymentContract"`
}

// SupportedKind is one (scheme, network) pair the facilitator serves,
// with the token symbols accepted for it.
type SupportedKind struct {
	Scheme  string             `json:"scheme"`
	Method  x402.PaymentMethod `json:"method"`
	Network string             `json:"network"`
	Tokens  []string           `json:"tokens"`
}
