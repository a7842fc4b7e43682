package schemes

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/confluxpay/paygate/internal/validation"
	"github.com/confluxpay/paygate/pkg/x402"
)

// Native confirms a buyer-broadcast native coin transfer. Verification does
// all the work; settlement is a pure echo because the transfer was finalized
// the moment the buyer's transaction was mined.
type Native struct{}

// NewNative creates the native scheme handler.
func NewNative() *Native {
	return &Native{}
}

// Method returns the payment method tag.
func (h *Native) Method() x402.PaymentMethod {
	return x402.MethodNative
}

// Verify checks the referenced transaction, in order: it exists, it
// succeeded, its value covers the required amount, and its sender matches
// the claimed sender. The first failed gate wins.
func (h *Native) Verify(ctx context.Context, req *Request) (*x402.VerifyResult, error) {
	if res := checkEnvelope(req); res != nil {
		return res, nil
	}

	var payload x402.NativePayload
	if err := req.Proof.DecodePayload(&payload); err != nil {
		return x402.Invalid(fmt.Sprintf("Malformed payload: %v", err)), nil
	}
	if err := validation.ValidateTxHash(payload.TxHash); err != nil {
		return x402.Invalid("Transaction hash required"), nil
	}

	hash := common.HexToHash(payload.TxHash)
	receipt, err := req.Chain.TransactionReceipt(ctx, hash)
	if err != nil || receipt == nil {
		return x402.Invalid(ReasonTxNotFound), nil
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return x402.Invalid(ReasonTxFailed), nil
	}

	tx, _, err := req.Chain.TransactionByHash(ctx, hash)
	if err != nil || tx == nil {
		return x402.Invalid(ReasonTxNotFound), nil
	}

	required, err := h.requiredAmount(req, payload)
	if err != nil {
		return x402.Invalid(fmt.Sprintf("Invalid amount: %v", err)), nil
	}
	if tx.Value().Cmp(required) < 0 {
		return x402.Invalid(ReasonInsufficientAmount), nil
	}

	if payload.From != "" {
		sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(req.Network.ChainID)), tx)
		if err != nil {
			return x402.Invalid(ReasonSenderMismatch), nil
		}
		if !validation.SameAddress(sender.Hex(), payload.From) {
			return x402.Invalid(ReasonSenderMismatch), nil
		}
	}

	return &x402.VerifyResult{Valid: true}, nil
}

// requiredAmount is the claimed amount when the proof supplies one,
// otherwise the token's configured price. A claimed amount below the
// configured floor never passes.
func (h *Native) requiredAmount(req *Request, payload x402.NativePayload) (*big.Int, error) {
	floor := minAmount(req.Token)
	if payload.Amount == "" {
		return floor, nil
	}
	claimed, err := x402.ParseAmount(payload.Amount)
	if err != nil {
		return nil, err
	}
	if claimed.Cmp(floor) < 0 {
		// Verification against the floor forces the insufficient-amount gate.
		return floor, nil
	}
	return claimed, nil
}

// Settle echoes a confirmation. The buyer already broadcast and paid for the
// transfer, so no additional chain call is made.
func (h *Native) Settle(ctx context.Context, req *Request) (*x402.SettlementResult, error) {
	var payload x402.NativePayload
	if err := req.Proof.DecodePayload(&payload); err != nil {
		return x402.SettleFailure(fmt.Sprintf("malformed payload: %v", err)), nil
	}
	if payload.TxHash == "" {
		return x402.SettleFailure("transaction hash required"), nil
	}
	return &x402.SettlementResult{
		Success:     true,
		Transaction: payload.TxHash,
		Payer:       payload.From,
	}, nil
}
