package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// NetworkConfig pins the chain id, the SpendPermissionManager deployment and
// the block explorer for one supported network.
type NetworkConfig struct {
	Name              string
	ChainID           *big.Int
	PermissionManager common.Address
	ExplorerBaseURL   string
}

var networkConfigs = map[string]NetworkConfig{
	"base": {
		Name:              "base",
		ChainID:           big.NewInt(8453),
		PermissionManager: common.HexToAddress("0xf85210B21cC50302F477BA56686d2019dC9b67Ad"),
		ExplorerBaseURL:   "https://basescan.org",
	},
	"base-sepolia": {
		Name:              "base-sepolia",
		ChainID:           big.NewInt(84532),
		PermissionManager: common.HexToAddress("0xf85210B21cC50302F477BA56686d2019dC9b67Ad"),
		ExplorerBaseURL:   "https://sepolia.basescan.org",
	},
}

func LookupNetwork(name string) (NetworkConfig, error) {
	cfg, ok := networkConfigs[name]
	if !ok {
		return NetworkConfig{}, fmt.Errorf("unsupported network: %q", name)
	}
	return cfg, nil
}

// ExplorerTxURL builds the human-viewable link for a transaction hash.
func (c NetworkConfig) ExplorerTxURL(txHash string) string {
	if txHash == "" {
		return ""
	}
	return c.ExplorerBaseURL + "/tx/" + txHash
}

// CAIP2 returns the eip155 network identifier used in receipt messages.
func (c NetworkConfig) CAIP2() string {
	return "eip155:" + c.ChainID.String()
}
