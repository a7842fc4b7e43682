package x402

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Header names used on the seller-side gated endpoints.
const (
	// HeaderPaymentSignature carries the base64 JSON PaymentProof on requests.
	HeaderPaymentSignature = "PAYMENT-SIGNATURE"

	// HeaderPaymentRequired carries the base64 JSON PaymentRequired envelope
	// on 402 responses.
	HeaderPaymentRequired = "PAYMENT-REQUIRED"

	// HeaderPaymentResponse carries the base64 JSON SettlementResult on paid
	// responses.
	HeaderPaymentResponse = "X-Payment-Response"

	// Discrete challenge headers duplicated for clients that do not decode
	// the full envelope.
	HeaderAmount    = "X-Payment-Amount"
	HeaderToken     = "X-Payment-Token"
	HeaderNonce     = "X-Payment-Nonce"
	HeaderExpiry    = "X-Payment-Expiry"
	HeaderEndpoint  = "X-Payment-Endpoint"
	HeaderInvoiceID = "X-Payment-Invoice-Id"
)

// EncodeRequired encodes a challenge envelope for the PAYMENT-REQUIRED header.
func EncodeRequired(pr PaymentRequired) (string, error) {
	raw, err := json.Marshal(pr)
	if err != nil {
		return "", fmt.Errorf("marshaling payment required: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeRequired decodes a PAYMENT-REQUIRED header value.
func DecodeRequired(encoded string) (PaymentRequired, error) {
	var pr PaymentRequired
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return pr, fmt.Errorf("decoding base64: %w", err)
	}
	if err := json.Unmarshal(raw, &pr); err != nil {
		return pr, fmt.Errorf("unmarshaling payment required: %w", err)
	}
	return pr, nil
}

// EncodeProof encodes a payment proof for the PAYMENT-SIGNATURE header.
func EncodeProof(proof PaymentProof) (string, error) {
	raw, err := json.Marshal(proof)
	if err != nil {
		return "", fmt.Errorf("marshaling payment proof: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeProof decodes a PAYMENT-SIGNATURE header value.
func DecodeProof(encoded string) (PaymentProof, error) {
	var proof PaymentProof
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return proof, fmt.Errorf("decoding base64: %w", err)
	}
	if err := json.Unmarshal(raw, &proof); err != nil {
		return proof, fmt.Errorf("unmarshaling payment proof: %w", err)
	}
	return proof, nil
}

// EncodeSettlement encodes a settlement result for the X-Payment-Response
// header.
func EncodeSettlement(res SettlementResult) (string, error) {
	raw, err := json.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("marshaling settlement: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeSettlement decodes an X-Payment-Response header value.
func DecodeSettlement(encoded string) (SettlementResult, error) {
	var res SettlementResult
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return res, fmt.Errorf("decoding base64: %w", err)
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return res, fmt.Errorf("unmarshaling settlement: %w", err)
	}
	return res, nil
}
