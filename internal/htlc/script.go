// Package htlc implements the Bitcoin side of a cross-chain atomic swap:
// construction, funding, verification and redemption of hash-time-locked
// P2SH outputs. ScriptBuilder (this file) is a pure function; every other
// component in the package composes it with a ChainGateway and a Keyring.
package htlc

import (
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"golang.org/x/crypto/ripemd160" //lint:ignore SA1019 required to match the on-chain OP_RIPEMD160 branch bit-for-bit

	"github.com/klingon-exchange/btc-htlc-swap/internal/chain"
)

// HashName selects which hash opcode secures the secret-reveal branch.
// Modeled as an enum rather than runtime string dispatch, per spec §9.
type HashName int

const (
	HashRIPEMD160 HashName = iota
	HashSHA256
)

func (h HashName) hashLen() int {
	if h == HashSHA256 {
		return 32
	}
	return 20
}

func (h HashName) opcode() byte {
	if h == HashSHA256 {
		return txscript.OP_SHA256
	}
	return txscript.OP_RIPEMD160
}

// ScriptValues are the parameters that uniquely identify one HTLC
// instance. Immutable; the derived P2SH address is a deterministic
// function of (ScriptValues, network).
type ScriptValues struct {
	// SecretHash is 20 bytes when HashName is HashRIPEMD160, 32 bytes
	// when HashSHA256.
	SecretHash []byte

	// OwnerPublicKey is the 33-byte compressed SEC point of the refund
	// beneficiary.
	OwnerPublicKey []byte

	// RecipientPublicKey is the 33-byte compressed SEC point of the
	// secret-reveal beneficiary.
	RecipientPublicKey []byte

	// LockTime is the absolute locktime (block height or Unix
	// timestamp), BIP-65 conventions, as emitted by the script number
	// encoder.
	LockTime int64

	HashName HashName
}

// Script is the result of compiling ScriptValues: the redeem script and
// its P2SH wrapping address.
type Script struct {
	RedeemScript []byte
	P2SHAddress  string
}

func (v ScriptValues) validate() error {
	if want := v.HashName.hashLen(); len(v.SecretHash) != want {
		return &InvariantError{Reason: fmt.Sprintf("secret hash must be %d bytes, got %d", want, len(v.SecretHash))}
	}
	if len(v.OwnerPublicKey) != 33 {
		return &InvariantError{Reason: fmt.Sprintf("owner public key must be 33 bytes, got %d", len(v.OwnerPublicKey))}
	}
	if len(v.RecipientPublicKey) != 33 {
		return &InvariantError{Reason: fmt.Sprintf("recipient public key must be 33 bytes, got %d", len(v.RecipientPublicKey))}
	}
	if v.LockTime < 0 {
		return &InvariantError{Reason: fmt.Sprintf("lock time must be nonnegative, got %d", v.LockTime)}
	}
	return nil
}

// Build deterministically compiles the HTLC redeem script and derives its
// P2SH address. Pure; no I/O. Two instances with equal fields yield
// byte-identical redeem scripts and addresses (spec §3 invariant).
//
// Redeem script (spec §4.1):
//
//	<HASH_OP> <secretHash> OP_EQUALVERIFY
//	<recipientPubKey> OP_EQUAL
//	OP_IF
//	    <recipientPubKey> OP_CHECKSIG
//	OP_ELSE
//	    <lockTime> OP_CHECKLOCKTIMEVERIFY OP_DROP
//	    <ownerPubKey> OP_CHECKSIG
//	OP_ENDIF
func Build(values ScriptValues, network chain.Network) (*Script, error) {
	if err := values.validate(); err != nil {
		return nil, err
	}

	b := txscript.NewScriptBuilder()
	b.AddOp(values.HashName.opcode())
	b.AddData(values.SecretHash)
	b.AddOp(txscript.OP_EQUALVERIFY)
	b.AddData(values.RecipientPublicKey)
	b.AddOp(txscript.OP_EQUAL)
	b.AddOp(txscript.OP_IF)
	b.AddData(values.RecipientPublicKey)
	b.AddOp(txscript.OP_CHECKSIG)
	b.AddOp(txscript.OP_ELSE)
	b.AddInt64(values.LockTime)
	b.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
	b.AddOp(txscript.OP_DROP)
	b.AddData(values.OwnerPublicKey)
	b.AddOp(txscript.OP_CHECKSIG)
	b.AddOp(txscript.OP_ENDIF)

	redeemScript, err := b.Script()
	if err != nil {
		return nil, &InvariantError{Reason: fmt.Sprintf("failed to build redeem script: %v", err)}
	}

	address, err := p2shAddress(redeemScript, network)
	if err != nil {
		return nil, err
	}

	return &Script{RedeemScript: redeemScript, P2SHAddress: address}, nil
}

// decodeAddress parses a Base58Check address against the given network's
// parameters, shared by Funder and Redeemer when building transaction
// outputs (HTLC, change, destination).
func decodeAddress(address string, network chain.Network) (btcutil.Address, error) {
	return btcutil.DecodeAddress(address, chain.Params(network))
}

// p2shAddress derives Base58Check(version || RIPEMD160(SHA256(script)))
// with version 0x05 (mainnet) or 0xC4 (testnet), per spec §4.1.
func p2shAddress(redeemScript []byte, network chain.Network) (string, error) {
	scriptHash := btcutil.Hash160(redeemScript)
	addr, err := btcutil.NewAddressScriptHashFromHash(scriptHash, chain.Params(network))
	if err != nil {
		return "", &InvariantError{Reason: fmt.Sprintf("failed to derive P2SH address: %v", err)}
	}
	return addr.EncodeAddress(), nil
}

// HashSecret computes the hash of a preimage under the given HashName, for
// constructing ScriptValues.SecretHash from a freshly generated secret.
func HashSecret(secret []byte, name HashName) []byte {
	if name == HashSHA256 {
		sum := sha256.Sum256(secret)
		return sum[:]
	}
	h := ripemd160.New()
	h.Write(secret)
	return h.Sum(nil)
}
