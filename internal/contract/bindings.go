// Package contract wraps the on-chain surfaces the facilitator talks to: the
// payment vault (receives funds), ERC-20 views, and the EIP-3009 token's
// transferWithAuthorization entrypoint.
package contract

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Caller is the read-only chain access the view bindings need.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Backend is the subset of ethclient.Client the transactor needs. Tests
// provide in-memory fakes.
type Backend interface {
	Caller
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

const vaultABIJSON = `[
	{"type":"function","name":"payNative","stateMutability":"payable","inputs":[{"name":"invoiceId","type":"bytes32"}],"outputs":[]},
	{"type":"function","name":"payWithTokenFrom","stateMutability":"nonpayable","inputs":[{"name":"token","type":"address"},{"name":"from","type":"address"},{"name":"amount","type":"uint256"},{"name":"invoiceId","type":"bytes32"}],"outputs":[]}
]`

const tokenABIJSON = `[
	{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"transferWithAuthorization","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"value","type":"uint256"},{"name":"validAfter","type":"uint256"},{"name":"validBefore","type":"uint256"},{"name":"nonce","type":"bytes32"},{"name":"signature","type":"bytes"}],"outputs":[]}
]`

var (
	vaultABI = mustParseABI(vaultABIJSON)
	tokenABI = mustParseABI(tokenABIJSON)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Token provides read access to an ERC-20 token contract.
type Token struct {
	Address common.Address
	backend Caller
}

// NewToken binds a token address to a backend.
func NewToken(address common.Address, backend Caller) *Token {
	return &Token{Address: address, backend: backend}
}

// Allowance returns allowance(owner, spender).
func (t *Token) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	return t.callUint256(ctx, "allowance", owner, spender)
}

// BalanceOf returns balanceOf(account).
func (t *Token) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	return t.callUint256(ctx, "balanceOf", account)
}

func (t *Token) callUint256(ctx context.Context, method string, args ...any) (*big.Int, error) {
	data, err := tokenABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("packing %s: %w", method, err)
	}
	out, err := t.backend.CallContract(ctx, ethereum.CallMsg{To: &t.Address, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", method, err)
	}
	vals, err := tokenABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpacking %s: %w", method, err)
	}
	result, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s returned unexpected type %T", method, vals[0])
	}
	return result, nil
}

// PackPayWithTokenFrom encodes the vault's relayed settlement call.
func PackPayWithTokenFrom(token, from common.Address, amount *big.Int, invoiceID [32]byte) ([]byte, error) {
	data, err := vaultABI.Pack("payWithTokenFrom", token, from, amount, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("packing payWithTokenFrom: %w", err)
	}
	return data, nil
}

// PackPayNative encodes the vault's native payment call.
func PackPayNative(invoiceID [32]byte) ([]byte, error) {
	data, err := vaultABI.Pack("payNative", invoiceID)
	if err != nil {
		return nil, fmt.Errorf("packing payNative: %w", err)
	}
	return data, nil
}

// PackTransferWithAuthorization encodes the EIP-3009 settlement call on the
// token itself.
func PackTransferWithAuthorization(from, to common.Address, value, validAfter, validBefore *big.Int, nonce [32]byte, signature []byte) ([]byte, error) {
	data, err := tokenABI.Pack("transferWithAuthorization", from, to, value, validAfter, validBefore, nonce, signature)
	if err != nil {
		return nil, fmt.Errorf("packing transferWithAuthorization: %w", err)
	}
	return data, nil
}

// InvoiceBytes32 packs an invoice id string into the fixed-width on-chain
// form: truncated to 32 bytes, zero-padded. Empty ids default to "x402".
func InvoiceBytes32(invoiceID string) [32]byte {
	if invoiceID == "" {
		invoiceID = "x402"
	}
	var out [32]byte
	copy(out[:], invoiceID)
	return out
}
