// Package networks holds the static per-chain configuration: which chains the
// gateway serves, their RPC endpoints, and the tokens accepted on each. The
// registry is loaded once at startup and never mutated afterwards.
package networks

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/confluxpay/paygate/pkg/x402"
)

// NativeAsset is the zero-address sentinel used for a chain's native coin.
const NativeAsset = "0x0000000000000000000000000000000000000000"

// Common errors returned by registry lookups.
var (
	ErrNetworkNotFound = errors.New("network not supported")
	ErrTokenNotFound   = errors.New("token not supported")
)

// Token describes one accepted token on a network. DomainName and
// DomainVersion are only meaningful when Method is eip3009.
type Token struct {
	Symbol        string
	Address       string
	Decimals      int
	Method        x402.PaymentMethod
	DomainName    string
	DomainVersion string
	MinAmount     string
}

// IsNative reports whether the token is the chain's native coin.
func (t Token) IsNative() bool {
	return strings.EqualFold(t.Address, NativeAsset)
}

// Network describes one chain the gateway serves. ID is the CAIP-2 chain
// identifier ("eip155:<chainId>"). Testnet gates demo-only behavior such as
// the seller auto-pay path.
type Network struct {
	ID              string
	ChainID         int64
	RPCEndpoint     string
	ExplorerURL     string
	Treasury        string
	PaymentContract string
	Testnet         bool
	Tokens          map[string]Token
}

// Token resolves a token by symbol, case-insensitively.
func (n *Network) Token(symbol string) (Token, error) {
	for sym, tok := range n.Tokens {
		if strings.EqualFold(sym, symbol) {
			return tok, nil
		}
	}
	return Token{}, fmt.Errorf("%w: %s on %s", ErrTokenNotFound, symbol, n.ID)
}

// DefaultToken picks the token offered when the buyer does not name one:
// the gasless eip3009 token if the network has one, else the native coin.
func (n *Network) DefaultToken() (Token, error) {
	var native *Token
	for _, tok := range n.Tokens {
		switch tok.Method {
		case x402.MethodEIP3009:
			return tok, nil
		case x402.MethodNative:
			t := tok
			native = &t
		}
	}
	if native != nil {
		return *native, nil
	}
	return Token{}, fmt.Errorf("%w: no default token on %s", ErrTokenNotFound, n.ID)
}

// Registry maps CAIP-2 network identifiers to their descriptors. Exactly two
// entries exist in the stock configuration (testnet and mainnet).
type Registry struct {
	networks  map[string]*Network
	defaultID string
}

// NewRegistry builds a registry from descriptors. The first descriptor is
// the process default network.
func NewRegistry(nets ...*Network) (*Registry, error) {
	if len(nets) == 0 {
		return nil, errors.New("at least one network is required")
	}
	r := &Registry{networks: make(map[string]*Network, len(nets)), defaultID: nets[0].ID}
	for _, n := range nets {
		if _, err := ParseChainID(n.ID); err != nil {
			return nil, err
		}
		r.networks[n.ID] = n
	}
	return r, nil
}

// Default returns the boot-configured default network.
func (r *Registry) Default() *Network {
	return r.networks[r.defaultID]
}

// Get resolves a network by its CAIP-2 identifier.
func (r *Registry) Get(id string) (*Network, error) {
	if n, ok := r.networks[id]; ok {
		return n, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNetworkNotFound, id)
}

// ByChainID resolves a network by its numeric chain id.
func (r *Registry) ByChainID(chainID int64) (*Network, error) {
	for _, n := range r.networks {
		if n.ChainID == chainID {
			return n, nil
		}
	}
	return nil, fmt.Errorf("%w: chain %d", ErrNetworkNotFound, chainID)
}

// All returns every configured network.
func (r *Registry) All() []*Network {
	out := make([]*Network, 0, len(r.networks))
	for _, n := range r.networks {
		out = append(out, n)
	}
	return out
}

// ParseChainID extracts the numeric chain id from a CAIP-2 identifier such
// as "eip155:71".
func ParseChainID(network string) (int64, error) {
	ns, rest, ok := strings.Cut(network, ":")
	if !ok || ns != "eip155" {
		return 0, fmt.Errorf("invalid network identifier %q", network)
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid chain id in %q", network)
	}
	return id, nil
}
