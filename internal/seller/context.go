// Package seller implements the resource-server side of the payment
// protocol: issuing 402 challenges for gated routes and orchestrating
// verify/settle against a facilitator before the protected handler runs.
package seller

import (
	"context"

	"github.com/confluxpay/paygate/internal/networks"
	"github.com/confluxpay/paygate/pkg/x402"
)

// Payment is what a downstream handler sees after a successful settlement:
// the confirmed result plus the token and network it settled on.
type Payment struct {
	Result  *x402.SettlementResult
	Token   networks.Token
	Network *networks.Network
}

type contextKey struct{}

var paymentKey contextKey

// WithPayment attaches a settled payment to the request context.
func WithPayment(ctx context.Context, p *Payment) context.Context {
	return context.WithValue(ctx, paymentKey, p)
}

// PaymentFrom extracts the settled payment from a request context. The
// second return is false on unpaid requests.
func PaymentFrom(ctx context.Context) (*Payment, bool) {
	p, ok := ctx.Value(paymentKey).(*Payment)
	return p, ok
}
