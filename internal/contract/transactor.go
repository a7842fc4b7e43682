package contract

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// receiptPollInterval is how often a pending settlement transaction is
// re-checked for its receipt.
const receiptPollInterval = 2 * time.Second

// Transactor signs and submits settlement transactions with the relayer key
// and waits for one confirmation. Gas limits are fixed ceilings supplied by
// the caller; gas price follows the node's suggestion.
type Transactor struct {
	backend Backend
	key     *ecdsa.PrivateKey
	chainID *big.Int
	from    common.Address
}

// NewTransactor binds a relayer key to a chain.
func NewTransactor(backend Backend, key *ecdsa.PrivateKey, chainID int64) *Transactor {
	return &Transactor{
		backend: backend,
		key:     key,
		chainID: big.NewInt(chainID),
		from:    crypto.PubkeyToAddress(key.PublicKey),
	}
}

// From returns the relayer address.
func (t *Transactor) From() common.Address {
	return t.from
}

// Send submits a contract call and blocks until it is mined or ctx expires.
// A mined-but-reverted transaction is returned as an error carrying the
// transaction hash.
func (t *Transactor) Send(ctx context.Context, to common.Address, value *big.Int, data []byte, gasLimit uint64) (*types.Receipt, error) {
	nonce, err := t.backend.PendingNonceAt(ctx, t.from)
	if err != nil {
		return nil, fmt.Errorf("fetching nonce: %w", err)
	}
	gasPrice, err := t.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching gas price: %w", err)
	}
	if value == nil {
		value = new(big.Int)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(t.chainID), t.key)
	if err != nil {
		return nil, fmt.Errorf("signing transaction: %w", err)
	}
	if err := t.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("sending transaction: %w", err)
	}

	receipt, err := t.waitMined(ctx, signed.Hash())
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("transaction %s reverted", signed.Hash().Hex())
	}
	return receipt, nil
}

func (t *Transactor) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := t.backend.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for transaction %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
