package trade

import "strings"

// NormalizeChain maps the many aliases strategies use for a chain onto
// one canonical name. Unknown values pass through lowercased.
func NormalizeChain(raw string) string {
	c := strings.ToLower(strings.TrimSpace(raw))
	switch c {
	case "", "eth", "ethereum", "eth-mainnet", "mainnet":
		return "ethereum"
	case "bsc", "bnb", "binance-smart-chain", "bsc-mainnet":
		return "bsc"
	case "sol", "solana", "sol-mainnet", "sol-mainnet-beta":
		return "solana"
	case "arb", "arbitrum", "arbitrum-one":
		return "arbitrum"
	case "base", "base-mainnet":
		return "base"
	}
	return c
}

// EVMChain reports whether the canonical chain name runs the EVM, which
// decides whether an "evm" entry in a role matrix applies to it.
func EVMChain(chain string) bool {
	switch chain {
	case "ethereum", "base", "arbitrum", "bsc":
		return true
	}
	return false
}
