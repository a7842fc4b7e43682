// Package chainpool manages per-chain RPC connections and the relayer signing
// identity. Connections are created lazily on first use and cached for the
// process lifetime; the pool is owned by the facilitator service and injected
// into scheme handlers.
package chainpool

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/confluxpay/paygate/internal/networks"
)

// Pool caches one RPC client and one transactor per chain id. Lazy inserts
// are guarded by a mutex; after warmup access is read-mostly.
type Pool struct {
	registry *networks.Registry
	key      *ecdsa.PrivateKey
	relayer  common.Address

	mu      sync.Mutex
	clients map[int64]*ethclient.Client
}

// New creates a pool over the given network registry. relayerKeyHex is the
// facilitator's signing key; it may be empty for verify-only deployments.
func New(registry *networks.Registry, relayerKeyHex string) (*Pool, error) {
	p := &Pool{
		registry: registry,
		clients:  make(map[int64]*ethclient.Client),
	}
	if relayerKeyHex != "" {
		key, err := crypto.HexToECDSA(trimHexPrefix(relayerKeyHex))
		if err != nil {
			return nil, fmt.Errorf("parsing relayer key: %w", err)
		}
		p.key = key
		p.relayer = crypto.PubkeyToAddress(key.PublicKey)
	}
	return p, nil
}

// Relayer returns the facilitator's signing address, or the zero address if
// no key is configured.
func (p *Pool) Relayer() common.Address {
	return p.relayer
}

// Key returns the relayer private key, or nil if none is configured.
func (p *Pool) Key() *ecdsa.PrivateKey {
	return p.key
}

// Registry returns the underlying network registry.
func (p *Pool) Registry() *networks.Registry {
	return p.registry
}

// Client returns the cached RPC client for a chain id, dialing the network's
// RPC endpoint on first use. Unknown chain ids fail without dialing.
func (p *Pool) Client(chainID int64) (*ethclient.Client, *networks.Network, error) {
	net, err := p.registry.ByChainID(chainID)
	if err != nil {
		return nil, nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[chainID]; ok {
		return c, net, nil
	}
	c, err := ethclient.Dial(net.RPCEndpoint)
	if err != nil {
		return nil, nil, fmt.Errorf("dialing %s: %w", net.RPCEndpoint, err)
	}
	p.clients[chainID] = c
	return c, net, nil
}

// ClientForNetwork resolves by CAIP-2 identifier instead of numeric chain id.
func (p *Pool) ClientForNetwork(network string) (*ethclient.Client, *networks.Network, error) {
	chainID, err := networks.ParseChainID(network)
	if err != nil {
		return nil, nil, err
	}
	return p.Client(chainID)
}

// DefaultClient returns the client for the boot-configured default network.
func (p *Pool) DefaultClient() (*ethclient.Client, *networks.Network, error) {
	return p.Client(p.registry.Default().ChainID)
}

// RelayerBalance reports the relayer's native balance on the given chain,
// used as a liveness/capacity signal by the health endpoint.
func (p *Pool) RelayerBalance(ctx context.Context, chainID int64) (string, error) {
	client, _, err := p.Client(chainID)
	if err != nil {
		return "", err
	}
	bal, err := client.BalanceAt(ctx, p.relayer, nil)
	if err != nil {
		return "", fmt.Errorf("fetching relayer balance: %w", err)
	}
	return bal.String(), nil
}

// Close releases every cached connection.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, c := range p.clients {
		c.Close()
		delete(p.clients, id)
	}
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
