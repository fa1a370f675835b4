package htlc

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/google/uuid"

	"github.com/klingon-exchange/btc-htlc-swap/internal/chain"
	"github.com/klingon-exchange/btc-htlc-swap/internal/gateway"
	"github.com/klingon-exchange/btc-htlc-swap/internal/keyring"
	"github.com/klingon-exchange/btc-htlc-swap/pkg/logging"
)

// PostBroadcastDelay is how long Redeemer waits after a successful
// broadcast before checking that the transaction became observable
// (spec §4.6 step 8). A package-level var so tests can shrink it.
var PostBroadcastDelay = 10 * time.Second

// sequenceCLTVEligible is 0xFFFFFFFE: final, but does not disable
// nLockTime enforcement the way 0xFFFFFFFF would (spec §4.6 step 5).
const sequenceCLTVEligible = wire.MaxTxInSequenceNum - 1

// Redeemer implements the single withdraw/refund algorithm of spec §4.6.
// Both paths spend every UTXO at the HTLC address to one destination, with
// every input's sequence set to sequenceCLTVEligible; they differ only in
// nLockTime and the secret pushed into the scriptSig.
type Redeemer struct {
	Gateway   gateway.ChainGateway
	Keyring   keyring.Keyring
	FeeOracle FeeOracle
	Network   chain.Network

	// RefundDummySecret is pushed in place of the real secret when
	// redeeming a refund, so that the script's OP_EQUAL on the
	// recipient branch evaluates false and execution falls into the
	// timelock branch. Documented and caller-visible rather than an
	// implicit zero value (spec §9 "known source defect").
	RefundDummySecret []byte

	log *logging.Logger
}

// NewRedeemer constructs a Redeemer with the default dummy refund secret.
func NewRedeemer(gw gateway.ChainGateway, kr keyring.Keyring, oracle FeeOracle, network chain.Network) *Redeemer {
	return &Redeemer{
		Gateway:           gw,
		Keyring:           kr,
		FeeOracle:         oracle,
		Network:           network,
		RefundDummySecret: []byte("not-the-secret"),
		log:               logging.GetDefault().Component("redeemer"),
	}
}

// RedeemRequest carries the parameters of one withdraw or refund call.
type RedeemRequest struct {
	ScriptValues ScriptValues
	IsRefund     bool

	// Secret is the withdraw preimage, as raw bytes with any "0x" prefix
	// already stripped. Ignored when IsRefund is true.
	Secret []byte

	// DestinationAddress overrides the output address. Empty means:
	// the owner address for a refund, the local Keyring's address for
	// a withdraw (spec §4.6 step 6).
	DestinationAddress string
}

// RedeemResult is returned by Redeem.
type RedeemResult struct {
	TxID             string
	AlreadyWithdrawn bool
}

// Redeem spends the HTLC's UTXOs per spec §4.6.
func (r *Redeemer) Redeem(ctx context.Context, req RedeemRequest) (*RedeemResult, error) {
	log := r.log.With("swap_leg", uuid.New().String())

	script, err := Build(req.ScriptValues, r.Network)
	if err != nil {
		return nil, err
	}

	unspents, err := r.Gateway.FetchUnspents(ctx, script.P2SHAddress)
	if err != nil {
		return nil, &GatewayError{Inner: err}
	}

	var total uint64
	for _, u := range unspents {
		total += u.Satoshis
	}

	feeValue, err := estimateFee(ctx, r.FeeOracle, r.Gateway, gateway.FeeEstimateRequest{
		InSatoshis: total,
		Speed:      gateway.SpeedNormal,
		Address:    script.P2SHAddress,
	})
	if err != nil {
		return nil, err
	}

	destination := req.DestinationAddress
	if destination == "" {
		destination = r.Keyring.Address()
	}

	if total < feeValue {
		if checker, ok := r.Gateway.(gateway.WithdrawChecker); ok {
			record, err := checker.CheckWithdraw(ctx, script.P2SHAddress)
			if err != nil {
				return nil, &GatewayError{Inner: err}
			}
			if record != nil && strings.EqualFold(record.Address, destination) {
				return &RedeemResult{TxID: record.TxID, AlreadyWithdrawn: true}, nil
			}
		}
		if total == 0 {
			return nil, ErrAddressEmpty
		}
		return nil, &InsufficientFundsError{Total: total, Fee: feeValue, Requested: 0}
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	if req.IsRefund {
		tx.LockTime = uint32(req.ScriptValues.LockTime)
	}

	for _, u := range unspents {
		txHash, err := chainhash.NewHashFromStr(u.TxID)
		if err != nil {
			return nil, &InvariantError{Reason: fmt.Sprintf("invalid txid %q: %v", u.TxID, err)}
		}
		in := wire.NewTxIn(wire.NewOutPoint(txHash, u.Vout), nil, nil)
		in.Sequence = sequenceCLTVEligible
		tx.AddTxIn(in)
	}

	destAddr, err := decodeAddress(destination, r.Network)
	if err != nil {
		return nil, &InvariantError{Reason: fmt.Sprintf("invalid destination address: %v", err)}
	}
	destScript, err := txscript.PayToAddrScript(destAddr)
	if err != nil {
		return nil, &InvariantError{Reason: fmt.Sprintf("failed to build destination output script: %v", err)}
	}
	tx.AddTxOut(wire.NewTxOut(int64(total-feeValue), destScript))

	secret := req.Secret
	if req.IsRefund {
		secret = r.RefundDummySecret
	}

	for i := range tx.TxIn {
		sigScript, err := r.buildRedeemScriptSig(tx, i, script.RedeemScript, secret)
		if err != nil {
			return nil, err
		}
		tx.TxIn[i].SignatureScript = sigScript
	}

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, &InvariantError{Reason: fmt.Sprintf("failed to serialize redeem tx: %v", err)}
	}
	rawHex := hex.EncodeToString(buf.Bytes())
	txid := tx.TxHash().String()

	action := "withdraw"
	if req.IsRefund {
		action = "refund"
	}
	log.Info("broadcasting redeem transaction", "action", action, "txid", txid, "htlc_address", script.P2SHAddress, "destination", destination, "fee", feeValue)

	broadcast, err := r.Gateway.BroadcastTx(ctx, rawHex)
	if err != nil {
		if errors.Is(err, gateway.ErrNonFinal) {
			return nil, ErrTimelockNotMature
		}
		return nil, &GatewayError{Inner: err}
	}

	if err := r.awaitObservable(ctx, broadcast.TxID); err != nil {
		return nil, err
	}

	log.Info("redeem transaction confirmed observable", "action", action, "txid", broadcast.TxID)
	return &RedeemResult{TxID: broadcast.TxID}, nil
}

// buildRedeemScriptSig computes the legacy SIGHASH_ALL sighash over
// redeemScript and assembles the non-standard scriptSig of spec §4.6
// step 7: <sig> <localPubKey> <secret> <serialized redeem script>.
//
// The HTLC branch has no standard scriptPubKey template for
// txscript.SignatureScript to target, so signing goes through the raw
// WIF-exported key (spec §6's privateKeyWIF requirement) rather than
// Keyring's higher-level Sign.
func (r *Redeemer) buildRedeemScriptSig(tx *wire.MsgTx, inputIndex int, redeemScript, secret []byte) ([]byte, error) {
	sigHash, err := txscript.CalcSignatureHash(redeemScript, txscript.SigHashAll, tx, inputIndex)
	if err != nil {
		return nil, &InvariantError{Reason: fmt.Sprintf("failed to compute sighash for input %d: %v", inputIndex, err)}
	}

	wif, err := r.Keyring.PrivateKeyWIF()
	if err != nil {
		return nil, fmt.Errorf("htlc: failed to export signing key for input %d: %w", inputIndex, err)
	}
	decoded, err := btcutil.DecodeWIF(wif)
	if err != nil {
		return nil, &InvariantError{Reason: fmt.Sprintf("failed to decode signing key for input %d: %v", inputIndex, err)}
	}
	sig := append(ecdsa.Sign(decoded.PrivKey, sigHash).Serialize(), byte(txscript.SigHashAll))

	b := txscript.NewScriptBuilder()
	b.AddData(sig)
	b.AddData(r.Keyring.PublicKey())
	b.AddData(secret)
	b.AddData(redeemScript)
	sigScript, err := b.Script()
	if err != nil {
		return nil, &InvariantError{Reason: fmt.Sprintf("failed to build redeem scriptSig: %v", err)}
	}
	return sigScript, nil
}

// awaitObservable sleeps PostBroadcastDelay then confirms, via the
// gateway's optional TxInfoFetcher, that txid became visible (spec §4.6
// step 8). Absent that capability, the broadcast result is trusted.
func (r *Redeemer) awaitObservable(ctx context.Context, txid string) error {
	fetcher, ok := r.Gateway.(gateway.TxInfoFetcher)
	if !ok {
		return nil
	}

	select {
	case <-time.After(PostBroadcastDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	info, err := fetcher.FetchTxInfo(ctx, txid)
	if err != nil {
		if errors.Is(err, gateway.ErrTxNotFound) {
			return &TxNotFoundError{TxID: txid}
		}
		return &GatewayError{Inner: err}
	}
	if info == nil {
		return &TxNotFoundError{TxID: txid}
	}
	return nil
}
