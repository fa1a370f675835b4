package htlc

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/google/uuid"

	"github.com/klingon-exchange/btc-htlc-swap/internal/chain"
	"github.com/klingon-exchange/btc-htlc-swap/internal/gateway"
	"github.com/klingon-exchange/btc-htlc-swap/internal/keyring"
	"github.com/klingon-exchange/btc-htlc-swap/pkg/helpers"
	"github.com/klingon-exchange/btc-htlc-swap/pkg/logging"
)

// Funder builds, signs, and broadcasts the funding transaction that locks
// coins into the HTLC (spec §4.5).
type Funder struct {
	Gateway   gateway.ChainGateway
	Keyring   keyring.Keyring
	FeeOracle FeeOracle
	Network   chain.Network

	// TxHashCallback, if set, is invoked with the built txid before
	// broadcast (spec §4.5 step 7).
	TxHashCallback func(txid string)

	log *logging.Logger
}

// NewFunder constructs a Funder. FeeOracle may be nil to use the
// gateway's own capability (or the constant fallback).
func NewFunder(gw gateway.ChainGateway, kr keyring.Keyring, oracle FeeOracle, network chain.Network) *Funder {
	return &Funder{
		Gateway:   gw,
		Keyring:   kr,
		FeeOracle: oracle,
		Network:   network,
		log:       logging.GetDefault().Component("funder"),
	}
}

// FundResult is returned by Fund.
type FundResult struct {
	TxID        string
	RawTxHex    string
	P2SHAddress string
}

// FundAmount is the user-facing entry point of spec §4.5: amountBTC is a
// decimal BTC string, converted to satoshis exactly once, at this
// boundary, via pkg/helpers. Every internal step past this point operates
// on satoshis as integers.
func (f *Funder) FundAmount(ctx context.Context, values ScriptValues, amountBTC string) (*FundResult, error) {
	fundValue, err := helpers.BTCToSatoshis(amountBTC)
	if err != nil {
		return nil, fmt.Errorf("htlc: invalid amount %q: %w", amountBTC, err)
	}
	return f.Fund(ctx, values, fundValue)
}

// Fund derives the HTLC address from values, selects every UTXO at the
// owner's address, builds a funding transaction paying fundValue satoshis
// into the HTLC with a change output back to the owner, signs it, and
// broadcasts it (spec §4.5).
func (f *Funder) Fund(ctx context.Context, values ScriptValues, fundValue uint64) (*FundResult, error) {
	log := f.log.With("swap_leg", uuid.New().String())

	script, err := Build(values, f.Network)
	if err != nil {
		return nil, err
	}

	ownerAddress := f.Keyring.Address()
	unspents, err := f.Gateway.FetchUnspents(ctx, ownerAddress)
	if err != nil {
		return nil, &GatewayError{Inner: err}
	}

	var total uint64
	for _, u := range unspents {
		total += u.Satoshis
	}

	feeValue, err := estimateFee(ctx, f.FeeOracle, f.Gateway, gateway.FeeEstimateRequest{
		InSatoshis: total,
		Speed:      gateway.SpeedNormal,
		Address:    script.P2SHAddress,
	})
	if err != nil {
		return nil, err
	}

	if total < fundValue+feeValue {
		return nil, &InsufficientFundsError{Total: total, Fee: feeValue, Requested: fundValue}
	}

	tx := wire.NewMsgTx(wire.TxVersion)

	for _, u := range unspents {
		txHash, err := chainhash.NewHashFromStr(u.TxID)
		if err != nil {
			return nil, &InvariantError{Reason: fmt.Sprintf("invalid txid %q: %v", u.TxID, err)}
		}
		tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(txHash, u.Vout), nil, nil))
	}

	htlcAddr, err := decodeAddress(script.P2SHAddress, f.Network)
	if err != nil {
		return nil, &InvariantError{Reason: fmt.Sprintf("invalid HTLC address: %v", err)}
	}
	htlcScript, err := txscript.PayToAddrScript(htlcAddr)
	if err != nil {
		return nil, &InvariantError{Reason: fmt.Sprintf("failed to build HTLC output script: %v", err)}
	}
	tx.AddTxOut(wire.NewTxOut(int64(fundValue), htlcScript))

	// Change output. Emitted unconditionally per spec §4.5 (implementers
	// may omit sub-dust change; the reference behavior does not).
	change := total - fundValue - feeValue
	ownerAddr, err := decodeAddress(ownerAddress, f.Network)
	if err != nil {
		return nil, &InvariantError{Reason: fmt.Sprintf("invalid owner address: %v", err)}
	}
	ownerScript, err := txscript.PayToAddrScript(ownerAddr)
	if err != nil {
		return nil, &InvariantError{Reason: fmt.Sprintf("failed to build change output script: %v", err)}
	}
	tx.AddTxOut(wire.NewTxOut(int64(change), ownerScript))

	for i := range tx.TxIn {
		sigScript, err := f.Keyring.Sign(tx, i, ownerScript)
		if err != nil {
			return nil, fmt.Errorf("htlc: failed to sign input %d: %w", i, err)
		}
		tx.TxIn[i].SignatureScript = sigScript
	}

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, &InvariantError{Reason: fmt.Sprintf("failed to serialize funding tx: %v", err)}
	}
	rawHex := hex.EncodeToString(buf.Bytes())
	txid := tx.TxHash().String()

	if f.TxHashCallback != nil {
		f.TxHashCallback(txid)
	}

	log.Info("broadcasting funding transaction", "txid", txid, "htlc_address", script.P2SHAddress, "fund_value", fundValue, "change", change, "fee", feeValue)

	result, err := f.Gateway.BroadcastTx(ctx, rawHex)
	if err != nil {
		return nil, &GatewayError{Inner: err}
	}

	return &FundResult{TxID: result.TxID, RawTxHex: rawHex, P2SHAddress: script.P2SHAddress}, nil
}
