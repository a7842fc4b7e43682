package schemes

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/confluxpay/paygate/internal/contract"
	"github.com/confluxpay/paygate/internal/validation"
	"github.com/confluxpay/paygate/pkg/x402"
)

// eip3009SettleGasLimit caps transferWithAuthorization on the token.
const eip3009SettleGasLimit = 150_000

// EIP3009 is the gasless method: the buyer signs a transferWithAuthorization
// message off-chain and the relayer submits it, absorbing the entire gas
// cost. This subsidy is deliberate and is what makes the scheme usable by
// wallets holding only tokens.
type EIP3009 struct {
	// now is swappable for window-boundary tests.
	now func() time.Time
}

// NewEIP3009 creates the eip3009 scheme handler.
func NewEIP3009() *EIP3009 {
	return &EIP3009{now: time.Now}
}

// Method returns the payment method tag.
func (h *EIP3009) Method() x402.PaymentMethod {
	return x402.MethodEIP3009
}

// Verify recovers the signer from the EIP-712 signature and gates on, in
// order: signer matches the claimed from, destination is the treasury,
// balance covers the value, the wall clock lies strictly inside
// (validAfter, validBefore), and the value meets the configured floor.
func (h *EIP3009) Verify(ctx context.Context, req *Request) (*x402.VerifyResult, error) {
	if res := checkEnvelope(req); res != nil {
		return res, nil
	}

	var payload x402.EIP3009Payload
	if err := req.Proof.DecodePayload(&payload); err != nil {
		return x402.Invalid(fmt.Sprintf("Malformed payload: %v", err)), nil
	}
	auth, err := parseAuthorization(payload.Authorization)
	if err != nil {
		return x402.Invalid(fmt.Sprintf("Malformed authorization: %v", err)), nil
	}

	tokenAddr := common.HexToAddress(req.Token.Address)
	signer, err := recoverAuthorizationSigner(
		req.Token.DomainName, req.Token.DomainVersion,
		req.Network.ChainID, tokenAddr, auth, payload.Signature,
	)
	if err != nil {
		return x402.Invalid(ReasonInvalidSignature), nil
	}
	if signer != auth.From {
		return x402.Invalid(ReasonInvalidSignature), nil
	}

	if !validation.SameAddress(auth.To.Hex(), req.Treasury) {
		return x402.Invalid(ReasonInvalidRecipient), nil
	}

	token := contract.NewToken(tokenAddr, req.Chain)
	balance, err := token.BalanceOf(ctx, auth.From)
	if err != nil {
		return x402.Invalid(fmt.Sprintf("Balance check failed: %v", err)), nil
	}
	if balance.Cmp(auth.Value) < 0 {
		return x402.Invalid(ReasonInsufficientFunds), nil
	}

	now := big.NewInt(h.now().Unix())
	if now.Cmp(auth.ValidAfter) <= 0 {
		return x402.Invalid(ReasonNotYetValid), nil
	}
	if now.Cmp(auth.ValidBefore) >= 0 {
		return x402.Invalid(ReasonExpired), nil
	}

	if auth.Value.Cmp(minAmount(req.Token)) < 0 {
		return x402.Invalid(ReasonInsufficientAmount), nil
	}

	return &x402.VerifyResult{Valid: true}, nil
}

// Settle submits transferWithAuthorization directly on the token, bypassing
// the vault, and waits for one confirmation. A consumed nonce surfaces as a
// revert, which comes back as a settlement failure.
func (h *EIP3009) Settle(ctx context.Context, req *Request) (*x402.SettlementResult, error) {
	if req.Settler == nil {
		return x402.SettleFailure("no relayer configured"), nil
	}

	var payload x402.EIP3009Payload
	if err := req.Proof.DecodePayload(&payload); err != nil {
		return x402.SettleFailure(fmt.Sprintf("malformed payload: %v", err)), nil
	}
	auth, err := parseAuthorization(payload.Authorization)
	if err != nil {
		return x402.SettleFailure(fmt.Sprintf("malformed authorization: %v", err)), nil
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(payload.Signature, "0x"))
	if err != nil {
		return x402.SettleFailure(fmt.Sprintf("malformed signature: %v", err)), nil
	}

	data, err := contract.PackTransferWithAuthorization(
		auth.From, auth.To, auth.Value, auth.ValidAfter, auth.ValidBefore, auth.Nonce, sig,
	)
	if err != nil {
		return x402.SettleFailure(err.Error()), nil
	}

	receipt, err := req.Settler.Send(ctx, common.HexToAddress(req.Token.Address), nil, data, eip3009SettleGasLimit)
	if err != nil {
		return x402.SettleFailure(err.Error()), nil
	}

	return &x402.SettlementResult{
		Success:     true,
		Transaction: receipt.TxHash.Hex(),
		Payer:       auth.From.Hex(),
	}, nil
}

func parseAuthorization(a x402.Authorization) (authorization, error) {
	var out authorization
	if err := validation.ValidateAddress(a.From); err != nil {
		return out, fmt.Errorf("from: %w", err)
	}
	if err := validation.ValidateAddress(a.To); err != nil {
		return out, fmt.Errorf("to: %w", err)
	}
	value, err := x402.ParseAmount(a.Value)
	if err != nil {
		return out, fmt.Errorf("value: %w", err)
	}
	validAfter, err := x402.ParseAmount(a.ValidAfter)
	if err != nil {
		return out, fmt.Errorf("validAfter: %w", err)
	}
	validBefore, err := x402.ParseAmount(a.ValidBefore)
	if err != nil {
		return out, fmt.Errorf("validBefore: %w", err)
	}
	if err := validation.ValidateBytes32(a.Nonce); err != nil {
		return out, fmt.Errorf("nonce: %w", err)
	}

	out.From = common.HexToAddress(a.From)
	out.To = common.HexToAddress(a.To)
	out.Value = value
	out.ValidAfter = validAfter
	out.ValidBefore = validBefore
	copy(out.Nonce[:], common.HexToHash(a.Nonce).Bytes())
	return out, nil
}
