// Package chain defines the network parameter set for the Bitcoin-like
// UTXO chain the HTLC engine targets. All chain-specific values are
// hardcoded here - no external configuration needed.
package chain

import "github.com/btcsuite/btcd/chaincfg"

// Network represents mainnet or testnet. Immutable per engine instance.
type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
)

// Params returns the btcd consensus parameters for the given network.
// These carry the address version bytes (P2PKH, P2SH, WIF) that the
// ScriptBuilder and Keyring derive addresses and signatures against.
func Params(network Network) *chaincfg.Params {
	if network == Testnet {
		return &chaincfg.TestNet3Params
	}
	return &chaincfg.MainNetParams
}

// ScriptHashAddrID returns the P2SH version byte for the network:
// 0x05 on mainnet, 0xC4 on testnet, per spec.
func ScriptHashAddrID(network Network) byte {
	return Params(network).ScriptHashAddrID
}
