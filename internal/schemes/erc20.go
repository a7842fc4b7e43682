package schemes

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/confluxpay/paygate/internal/contract"
	"github.com/confluxpay/paygate/internal/validation"
	"github.com/confluxpay/paygate/pkg/x402"
)

// erc20SettleGasLimit caps the relayed transferFrom. The vault call is two
// storage writes plus the token transfer; 300k leaves headroom for fee-on-
// transfer tokens.
const erc20SettleGasLimit = 300_000

// ERC20 settles via the payment vault's relayed transferFrom: the buyer pays
// only the approval gas, the relayer pays the settlement gas and is the sole
// address the vault authorizes to trigger it.
type ERC20 struct{}

// NewERC20 creates the erc20 scheme handler.
func NewERC20() *ERC20 {
	return &ERC20{}
}

// Method returns the payment method tag.
func (h *ERC20) Method() x402.PaymentMethod {
	return x402.MethodERC20
}

// Verify checks the optional approval transaction, then the on-chain
// allowance toward the payment contract and the buyer's balance. Any RPC
// failure or unmet condition yields an invalid result, never an error.
func (h *ERC20) Verify(ctx context.Context, req *Request) (*x402.VerifyResult, error) {
	if res := checkEnvelope(req); res != nil {
		return res, nil
	}

	var payload x402.ERC20Payload
	if err := req.Proof.DecodePayload(&payload); err != nil {
		return x402.Invalid(fmt.Sprintf("Malformed payload: %v", err)), nil
	}
	if err := validation.ValidateAddress(payload.From); err != nil {
		return x402.Invalid("Sender required"), nil
	}
	amount, err := x402.ParseAmount(payload.Amount)
	if err != nil {
		return x402.Invalid("Amount required"), nil
	}
	if amount.Cmp(minAmount(req.Token)) < 0 {
		return x402.Invalid(ReasonInsufficientAmount), nil
	}
	if err := validation.ValidateAddress(req.PaymentContract); err != nil {
		return x402.Invalid("Payment contract required"), nil
	}

	if payload.ApprovalTx != "" {
		receipt, err := req.Chain.TransactionReceipt(ctx, common.HexToHash(payload.ApprovalTx))
		if err != nil || receipt == nil {
			return x402.Invalid("Approval transaction not found"), nil
		}
		if receipt.Status != types.ReceiptStatusSuccessful {
			return x402.Invalid("Approval transaction failed"), nil
		}
	}

	token := contract.NewToken(common.HexToAddress(req.Token.Address), req.Chain)
	sender := common.HexToAddress(payload.From)
	spender := common.HexToAddress(req.PaymentContract)

	allowance, err := token.Allowance(ctx, sender, spender)
	if err != nil {
		return x402.Invalid(fmt.Sprintf("Allowance check failed: %v", err)), nil
	}
	if allowance.Cmp(amount) < 0 {
		return x402.Invalid("Insufficient allowance"), nil
	}

	balance, err := token.BalanceOf(ctx, sender)
	if err != nil {
		return x402.Invalid(fmt.Sprintf("Balance check failed: %v", err)), nil
	}
	if balance.Cmp(amount) < 0 {
		return x402.Invalid(ReasonInsufficientFunds), nil
	}

	return &x402.VerifyResult{Valid: true}, nil
}

// Settle invokes the vault's payWithTokenFrom with the relayer key, waits
// for one confirmation and reports the confirmed hash. Reverts and RPC
// errors come back as settlement failures.
func (h *ERC20) Settle(ctx context.Context, req *Request) (*x402.SettlementResult, error) {
	if req.Settler == nil {
		return x402.SettleFailure("no relayer configured"), nil
	}

	var payload x402.ERC20Payload
	if err := req.Proof.DecodePayload(&payload); err != nil {
		return x402.SettleFailure(fmt.Sprintf("malformed payload: %v", err)), nil
	}
	amount, err := x402.ParseAmount(payload.Amount)
	if err != nil {
		return x402.SettleFailure(fmt.Sprintf("invalid amount: %v", err)), nil
	}

	data, err := contract.PackPayWithTokenFrom(
		common.HexToAddress(req.Token.Address),
		common.HexToAddress(payload.From),
		amount,
		contract.InvoiceBytes32(payload.InvoiceID),
	)
	if err != nil {
		return x402.SettleFailure(err.Error()), nil
	}

	receipt, err := req.Settler.Send(ctx, common.HexToAddress(req.PaymentContract), nil, data, erc20SettleGasLimit)
	if err != nil {
		return x402.SettleFailure(err.Error()), nil
	}

	return &x402.SettlementResult{
		Success:     true,
		Transaction: receipt.TxHash.Hex(),
		Payer:       payload.From,
	}, nil
}
