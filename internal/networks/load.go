package networks

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/confluxpay/paygate/pkg/x402"
)

// registryFile is the TOML shape of a networks configuration file.
type registryFile struct {
	Default  string        `toml:"default"`
	Networks []networkFile `toml:"networks"`
}

type networkFile struct {
	ID              string      `toml:"id"`
	RPCEndpoint     string      `toml:"rpc_endpoint"`
	ExplorerURL     string      `toml:"explorer_url"`
	Treasury        string      `toml:"treasury"`
	PaymentContract string      `toml:"payment_contract"`
	Testnet         bool        `toml:"testnet"`
	Tokens          []tokenFile `toml:"tokens"`
}

type tokenFile struct {
	Symbol        string `toml:"symbol"`
	Address       string `toml:"address"`
	Decimals      int    `toml:"decimals"`
	Method        string `toml:"method"`
	DomainName    string `toml:"domain_name"`
	DomainVersion string `toml:"domain_version"`
	MinAmount     string `toml:"min_amount"`
}

// LoadFile reads a TOML registry file. The file's `default` field names the
// network used when a request does not specify one.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading networks file: %w", err)
	}
	return parse(data)
}

func parse(data []byte) (*Registry, error) {
	var file registryFile
	if _, err := toml.Decode(string(data), &file); err != nil {
		return nil, fmt.Errorf("parsing networks file: %w", err)
	}
	if len(file.Networks) == 0 {
		return nil, fmt.Errorf("networks file defines no networks")
	}

	nets := make([]*Network, 0, len(file.Networks))
	for _, nf := range file.Networks {
		chainID, err := ParseChainID(nf.ID)
		if err != nil {
			return nil, err
		}
		n := &Network{
			ID:              nf.ID,
			ChainID:         chainID,
			RPCEndpoint:     nf.RPCEndpoint,
			ExplorerURL:     nf.ExplorerURL,
			Treasury:        nf.Treasury,
			PaymentContract: nf.PaymentContract,
			Testnet:         nf.Testnet,
			Tokens:          make(map[string]Token, len(nf.Tokens)),
		}
		for _, tf := range nf.Tokens {
			method := x402.PaymentMethod(tf.Method)
			if !method.Valid() {
				return nil, fmt.Errorf("token %s on %s: unknown method %q", tf.Symbol, nf.ID, tf.Method)
			}
			n.Tokens[tf.Symbol] = Token{
				Symbol:        tf.Symbol,
				Address:       tf.Address,
				Decimals:      tf.Decimals,
				Method:        method,
				DomainName:    tf.DomainName,
				DomainVersion: tf.DomainVersion,
				MinAmount:     tf.MinAmount,
			}
		}
		nets = append(nets, n)
	}

	// Move the declared default to the front; NewRegistry treats the first
	// entry as the process default.
	if file.Default != "" {
		for i, n := range nets {
			if n.ID == file.Default {
				nets[0], nets[i] = nets[i], nets[0]
				break
			}
		}
	}

	return NewRegistry(nets...)
}

// defaultConfig ships the stock testnet + mainnet pair for Conflux eSpace.
const defaultConfig = `
default = "eip155:71"

[[networks]]
id = "eip155:71"
rpc_endpoint = "https://evmtestnet.confluxrpc.com"
explorer_url = "https://evmtestnet.confluxscan.io"
treasury = "0x1f0F8A21c741AA32b8d22b0a275656f8e0d8e7aC"
payment_contract = "0x47572Ff058d864E23Ae0111e65D4D1c797BCB0A8"
testnet = true

  [[networks.tokens]]
  symbol = "CFX"
  address = "0x0000000000000000000000000000000000000000"
  decimals = 18
  method = "native"
  min_amount = "1000000000000000"

  [[networks.tokens]]
  symbol = "USDT"
  address = "0x7d682e65EFC5C13Bf4E394B8f376C48e6baE0355"
  decimals = 18
  method = "erc20"
  min_amount = "10000000000000000"

  [[networks.tokens]]
  symbol = "USDC"
  address = "0x349298B0E20DF67dEFd6eFb8F3170cF4a32722EF"
  decimals = 18
  method = "eip3009"
  domain_name = "USDC"
  domain_version = "2"
  min_amount = "10000000000000000"

[[networks]]
id = "eip155:1030"
rpc_endpoint = "https://evm.confluxrpc.com"
explorer_url = "https://evm.confluxscan.io"
treasury = "0x1f0F8A21c741AA32b8d22b0a275656f8e0d8e7aC"
payment_contract = "0x47572Ff058d864E23Ae0111e65D4D1c797BCB0A8"

  [[networks.tokens]]
  symbol = "CFX"
  address = "0x0000000000000000000000000000000000000000"
  decimals = 18
  method = "native"
  min_amount = "1000000000000000"

  [[networks.tokens]]
  symbol = "USDT"
  address = "0xfe97E85d13ABD9c1c33384E796F10B73905637cE"
  decimals = 18
  method = "erc20"
  min_amount = "10000000000000000"
`

// LoadDefault returns the built-in registry used when no networks file is
// configured.
func LoadDefault() (*Registry, error) {
	return parse([]byte(defaultConfig))
}
