// Package transport provides HTTP request/response types for the facilitator.
package transport

import (
	"github.com/confluxpay/paygate/internal/facilitator/domain"
	"github.com/confluxpay/paygate/pkg/x402"
)

// PaymentRequest is the HTTP request body shared by every verify and settle
// endpoint. All fields except payload are optional; empty fields resolve to
// the default network's configuration.
type PaymentRequest struct {
	Payload         x402.PaymentProof `json:"payload"`
	Token           string            `json:"token,omitempty"`
	Network         string            `json:"network,omitempty"`
	Treasury        string            `json:"treasury,omitempty"`
	PaymentContract string            `json:"paymentContract,omitempty"`
}

// ToDomain converts PaymentRequest to domain.PaymentRequest.
func (r PaymentRequest) ToDomain() domain.PaymentRequest {
	return domain.PaymentRequest{
		Proof:           r.Payload,
		Token:           r.Token,
		Network:         r.Network,
		Treasury:        r.Treasury,
		PaymentContract: r.PaymentContract,
	}
}

// SupportedResponse lists the scheme/network pairs the facilitator serves.
type SupportedResponse struct {
	Kinds []domain.SupportedKind `json:"kinds"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
