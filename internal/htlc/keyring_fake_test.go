package htlc

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/klingon-exchange/btc-htlc-swap/internal/chain"
	"github.com/klingon-exchange/btc-htlc-swap/internal/keyring"
)

// newTestKeyring builds a real keyring.PrivKeyKeyring over a freshly
// generated key, for tests that need an address and a working Sign
// rather than just a public key.
func newTestKeyring(t *testing.T, network chain.Network) *keyring.PrivKeyKeyring {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	kr, err := keyring.New(priv, network)
	if err != nil {
		t.Fatalf("keyring.New: %v", err)
	}
	return kr
}
