package domain

import (
	"context"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/confluxpay/paygate/internal/chainpool"
	"github.com/confluxpay/paygate/internal/contract"
	"github.com/confluxpay/paygate/internal/networks"
	"github.com/confluxpay/paygate/internal/schemes"
)

// PoolConnector adapts a chainpool.Pool to the Connector interface, pairing
// each RPC client with a relayer-keyed transactor for the same chain.
type PoolConnector struct {
	pool *chainpool.Pool
}

// NewPoolConnector wraps the given pool.
func NewPoolConnector(pool *chainpool.Pool) *PoolConnector {
	return &PoolConnector{pool: pool}
}

// Connect resolves the network and returns its cached RPC client plus a
// settler, dialing on first use. An empty network selects the default.
func (c *PoolConnector) Connect(network string) (schemes.ChainReader, schemes.Settler, *networks.Network, error) {
	var (
		client *ethclient.Client
		net    *networks.Network
		err    error
	)
	if network == "" {
		client, net, err = c.pool.DefaultClient()
	} else {
		client, net, err = c.pool.ClientForNetwork(network)
	}
	if err != nil {
		return nil, nil, nil, err
	}

	var settler schemes.Settler
	if key := c.pool.Key(); key != nil {
		settler = contract.NewTransactor(client, key, net.ChainID)
	}
	return client, settler, net, nil
}

// Relayer returns the facilitator signing address as a hex string.
func (c *PoolConnector) Relayer() string {
	return c.pool.Relayer().Hex()
}

// RelayerBalance reports the relayer's native balance on the given chain.
func (c *PoolConnector) RelayerBalance(ctx context.Context, chainID int64) (string, error) {
	return c.pool.RelayerBalance(ctx, chainID)
}
