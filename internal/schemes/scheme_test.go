package schemes

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/confluxpay/paygate/internal/networks"
	"github.com/confluxpay/paygate/pkg/x402"
)

const (
	testTreasury = "0x1f0F8A21c741AA32b8d22b0a275656f8e0d8e7aC"
	testVault    = "0x47572Ff058d864E23Ae0111e65D4D1c797BCB0A8"
	testTokenAdr = "0x349298B0E20DF67dEFd6eFb8F3170cF4a32722EF"
)

func testNetwork() *networks.Network {
	return &networks.Network{
		ID:              "eip155:71",
		ChainID:         71,
		Treasury:        testTreasury,
		PaymentContract: testVault,
	}
}

// fakeChain is an in-memory ChainReader. ERC-20 view calls are dispatched by
// calldata length: allowance carries two words, balanceOf one.
type fakeChain struct {
	receipts  map[common.Hash]*types.Receipt
	txs       map[common.Hash]*types.Transaction
	balances  map[common.Address]*big.Int
	allowance *big.Int
	callErr   error
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		receipts: make(map[common.Hash]*types.Receipt),
		txs:      make(map[common.Hash]*types.Transaction),
		balances: make(map[common.Address]*big.Int),
	}
}

func (f *fakeChain) TransactionReceipt(ctx context.Context, h common.Hash) (*types.Receipt, error) {
	if r, ok := f.receipts[h]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func (f *fakeChain) TransactionByHash(ctx context.Context, h common.Hash) (*types.Transaction, bool, error) {
	if tx, ok := f.txs[h]; ok {
		return tx, false, nil
	}
	return nil, false, ethereum.NotFound
}

func (f *fakeChain) BalanceAt(ctx context.Context, addr common.Address, _ *big.Int) (*big.Int, error) {
	if b, ok := f.balances[addr]; ok {
		return b, nil
	}
	return new(big.Int), nil
}

func (f *fakeChain) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if f.callErr != nil {
		return nil, f.callErr
	}
	switch len(msg.Data) {
	case 4 + 64: // allowance(owner, spender)
		v := f.allowance
		if v == nil {
			v = new(big.Int)
		}
		return common.LeftPadBytes(v.Bytes(), 32), nil
	case 4 + 32: // balanceOf(account)
		owner := common.BytesToAddress(msg.Data[4+12 : 4+32])
		b := f.balances[owner]
		if b == nil {
			b = new(big.Int)
		}
		return common.LeftPadBytes(b.Bytes(), 32), nil
	}
	return nil, errors.New("unexpected call")
}

// fakeSettler records Send calls and can be made to fail per call.
type fakeSettler struct {
	from   common.Address
	calls  int
	errs   []error
	txHash common.Hash
	lastTo common.Address
}

func (f *fakeSettler) From() common.Address { return f.from }

func (f *fakeSettler) Send(ctx context.Context, to common.Address, value *big.Int, data []byte, gasLimit uint64) (*types.Receipt, error) {
	idx := f.calls
	f.calls++
	f.lastTo = to
	if idx < len(f.errs) && f.errs[idx] != nil {
		return nil, f.errs[idx]
	}
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: f.txHash}, nil
}

func makeProof(t *testing.T, method x402.PaymentMethod, payload any) x402.PaymentProof {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return x402.PaymentProof{
		X402Version: x402.Version,
		Scheme:      x402.SchemeExact,
		Network:     "eip155:71",
		Method:      method,
		Payload:     raw,
	}
}

func TestRegistryDispatch(t *testing.T) {
	r := NewRegistry()

	for _, method := range []x402.PaymentMethod{x402.MethodNative, x402.MethodERC20, x402.MethodEIP3009} {
		h, err := r.Get(method)
		require.NoError(t, err)
		require.Equal(t, method, h.Method())
	}

	_, err := r.Get(x402.PaymentMethod("lightning"))
	require.Error(t, err)
}

func TestVersionGateRunsBeforeChainIO(t *testing.T) {
	// Chain is nil: if any handler touched the chain before the version
	// gate, the test would panic.
	for _, h := range []Handler{NewNative(), NewERC20(), NewEIP3009()} {
		proof := makeProof(t, h.Method(), map[string]string{})
		proof.X402Version = 1
		res, err := h.Verify(context.Background(), &Request{
			Proof:   proof,
			Network: testNetwork(),
			Chain:   nil,
		})
		require.NoError(t, err)
		require.False(t, res.Valid)
		require.Equal(t, ReasonUnsupportedVersion, res.Reason, "method %s", h.Method())
	}
}

func TestSchemeAndNetworkGates(t *testing.T) {
	h := NewNative()

	proof := makeProof(t, x402.MethodNative, x402.NativePayload{})
	proof.Scheme = "subscription"
	res, err := h.Verify(context.Background(), &Request{Proof: proof, Network: testNetwork()})
	require.NoError(t, err)
	require.Equal(t, ReasonUnsupportedScheme, res.Reason)

	proof = makeProof(t, x402.MethodNative, x402.NativePayload{})
	proof.Network = "eip155:1030"
	res, err = h.Verify(context.Background(), &Request{Proof: proof, Network: testNetwork()})
	require.NoError(t, err)
	require.Equal(t, ReasonNetworkMismatch, res.Reason)
}
