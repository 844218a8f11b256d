// Package chains holds the static table of networks the storefront knows about.
package chains

import (
	"sort"
	"strings"

	"github.com/vitwit/filmarket/types"
)

// Chain is a registry entry: display name plus the add-chain payload.
type Chain struct {
	ChainID     string
	Name        string
	Currency    types.NativeCurrency
	RPCURLs     []string
	ExplorerURL string
	Testnet     bool
}

var registry = map[string]Chain{
	types.ChainIDFilecoinMainnet: {
		ChainID:     types.ChainIDFilecoinMainnet,
		Name:        "Filecoin Mainnet",
		Currency:    types.NativeCurrency{Name: "Filecoin", Symbol: "FIL", Decimals: types.NativeDecimals},
		RPCURLs:     []string{"https://api.node.glif.io/rpc/v1"},
		ExplorerURL: "https://filfox.info/en",
	},
	types.ChainIDFilecoinCalibration: {
		ChainID:     types.ChainIDFilecoinCalibration,
		Name:        "Filecoin Calibration",
		Currency:    types.NativeCurrency{Name: "testnet Filecoin", Symbol: "tFIL", Decimals: types.NativeDecimals},
		RPCURLs:     []string{"https://api.calibration.node.glif.io/rpc/v1"},
		ExplorerURL: "https://calibration.filfox.info/en",
		Testnet:     true,
	},
}

// Lookup returns the registry entry for chainID.
func Lookup(chainID string) (Chain, bool) {
	c, ok := registry[NormalizeChainID(chainID)]
	return c, ok
}

// Classify maps a chain id to its NetworkInfo. Unmatched ids are labelled
// Unknown Network.
func Classify(chainID string) types.NetworkInfo {
	id := NormalizeChainID(chainID)
	if c, ok := registry[id]; ok {
		return types.NetworkInfo{ChainID: id, DisplayName: c.Name, IsRecognized: true}
	}
	return types.NetworkInfo{ChainID: id, DisplayName: types.UnknownNetworkName}
}

// IsExpected reports whether chainID is one of the Filecoin networks checkout accepts.
func IsExpected(chainID string) bool {
	_, ok := Lookup(chainID)
	return ok
}

// Mainnet returns the Filecoin mainnet entry.
func Mainnet() Chain {
	return registry[types.ChainIDFilecoinMainnet]
}

// AddChainParams builds the wallet_addEthereumChain descriptor for chainID.
func AddChainParams(chainID string) (types.ChainParams, bool) {
	c, ok := Lookup(chainID)
	if !ok {
		return types.ChainParams{}, false
	}
	return c.Params(), true
}

// Params returns the chain descriptor for wallet_addEthereumChain.
func (c Chain) Params() types.ChainParams {
	p := types.ChainParams{
		ChainID:        c.ChainID,
		ChainName:      c.Name,
		NativeCurrency: c.Currency,
		RPCURLs:        append([]string(nil), c.RPCURLs...),
	}
	if c.ExplorerURL != "" {
		p.BlockExplorerURLs = []string{c.ExplorerURL}
	}
	return p
}

// All lists registry entries ordered by chain id.
func All() []Chain {
	out := make([]Chain, 0, len(registry))
	for _, c := range registry {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ChainID < out[j].ChainID
	})
	return out
}

// NormalizeChainID lower-cases id and ensures a 0x prefix. Exact matching
// happens on the normalised form.
func NormalizeChainID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return ""
	}
	if !strings.HasPrefix(id, "0x") {
		id = "0x" + id
	}
	return id
}
