// Package keyring holds the local signing key for one swap leg. It exposes
// just enough surface for the HTLC engine to derive an address, sign
// standard P2PKH funding inputs, and sign the custom HTLC redeem branch -
// where the key lives, and how it was derived, is out of scope (spec §1).
package keyring

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/klingon-exchange/btc-htlc-swap/internal/chain"
)

// Keyring is the dependency-injected abstraction over key custody. It
// signs with a single key; concurrent funding from the same owner address
// across swaps should be serialized by the caller (spec §5).
type Keyring interface {
	// Address returns the owner's P2PKH address, used as the change/refund
	// destination and as the source of funding UTXOs.
	Address() string

	// PublicKey returns the 33-byte compressed SEC public key.
	PublicKey() []byte

	// PrivateKeyWIF returns the WIF-encoded private key, used when signing
	// the HTLC redeem branch directly rather than through a tx-builder
	// callback.
	PrivateKeyWIF() (string, error)

	// Sign produces the scriptSig for a standard P2PKH input at
	// inputIndex, computing the legacy SIGHASH_ALL sighash over prevScript
	// (the owner address's own P2PKH scriptPubKey).
	Sign(tx *wire.MsgTx, inputIndex int, prevScript []byte) ([]byte, error)
}

// PrivKeyKeyring is a Keyring backed directly by an in-memory private key.
type PrivKeyKeyring struct {
	priv    *btcec.PrivateKey
	pub     *btcec.PublicKey
	params  *chaincfg.Params
	address string
}

// New creates a Keyring from a raw secp256k1 private key for the given
// network. The address is derived as a compressed-pubkey P2PKH address.
func New(priv *btcec.PrivateKey, network chain.Network) (*PrivKeyKeyring, error) {
	if priv == nil {
		return nil, fmt.Errorf("keyring: private key is nil")
	}
	params := chain.Params(network)
	pub := priv.PubKey()

	pubKeyHash := btcutil.Hash160(pub.SerializeCompressed())
	addr, err := btcutil.NewAddressPubKeyHash(pubKeyHash, params)
	if err != nil {
		return nil, fmt.Errorf("keyring: failed to derive address: %w", err)
	}

	return &PrivKeyKeyring{
		priv:    priv,
		pub:     pub,
		params:  params,
		address: addr.EncodeAddress(),
	}, nil
}

// FromWIF creates a Keyring from a WIF-encoded private key.
func FromWIF(wif string, network chain.Network) (*PrivKeyKeyring, error) {
	decoded, err := btcutil.DecodeWIF(wif)
	if err != nil {
		return nil, fmt.Errorf("keyring: invalid WIF: %w", err)
	}
	return New(decoded.PrivKey, network)
}

func (k *PrivKeyKeyring) Address() string {
	return k.address
}

func (k *PrivKeyKeyring) PublicKey() []byte {
	return k.pub.SerializeCompressed()
}

func (k *PrivKeyKeyring) PrivateKeyWIF() (string, error) {
	wif, err := btcutil.NewWIF(k.priv, k.params, true)
	if err != nil {
		return "", fmt.Errorf("keyring: failed to encode WIF: %w", err)
	}
	return wif.String(), nil
}

// Sign computes the legacy SIGHASH_ALL sighash for inputIndex against
// prevScript and returns a complete P2PKH scriptSig: <sig> <pubkey>.
func (k *PrivKeyKeyring) Sign(tx *wire.MsgTx, inputIndex int, prevScript []byte) ([]byte, error) {
	sigScript, err := txscript.SignatureScript(
		tx, inputIndex, prevScript, txscript.SigHashAll, k.priv, true,
	)
	if err != nil {
		return nil, fmt.Errorf("keyring: failed to sign input %d: %w", inputIndex, err)
	}
	return sigScript, nil
}
