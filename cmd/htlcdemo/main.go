// Command htlcdemo exercises the fund -> check -> withdraw path of the HTLC
// engine end to end against an in-memory chain gateway, with no network
// access, to make the state machine in SPEC_FULL.md §4.6 observable.
package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/klingon-exchange/btc-htlc-swap/internal/chain"
	"github.com/klingon-exchange/btc-htlc-swap/internal/gateway"
	"github.com/klingon-exchange/btc-htlc-swap/internal/htlc"
	"github.com/klingon-exchange/btc-htlc-swap/internal/keyring"
	"github.com/klingon-exchange/btc-htlc-swap/pkg/helpers"
	"github.com/klingon-exchange/btc-htlc-swap/pkg/logging"
)

func main() {
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	log := logging.New(&logging.Config{Level: *logLevel, TimeFormat: time.TimeOnly, Prefix: "htlcdemo"})
	logging.SetDefault(log)

	ctx := context.Background()
	if err := run(ctx, log); err != nil {
		log.Fatal("demo failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, log *logging.Logger) error {
	network := chain.Testnet

	owner, err := newKeyring(network)
	if err != nil {
		return fmt.Errorf("owner keyring: %w", err)
	}
	recipient, err := newKeyring(network)
	if err != nil {
		return fmt.Errorf("recipient keyring: %w", err)
	}

	gw := newFakeGateway()
	gw.seed(owner.Address(), 2_000_000)

	secret, err := helpers.GenerateSecureRandom(32)
	if err != nil {
		return fmt.Errorf("generate secret: %w", err)
	}
	secretHash := htlc.HashSecret(secret, htlc.HashSHA256)

	values := htlc.ScriptValues{
		SecretHash:         secretHash,
		OwnerPublicKey:     owner.PublicKey(),
		RecipientPublicKey: recipient.PublicKey(),
		LockTime:           500_000,
		HashName:           htlc.HashSHA256,
	}

	oracle := htlc.ConstantFeeOracle{}

	log.Info("NONE -> FUNDED: funding HTLC")
	funder := htlc.NewFunder(gw, owner, oracle, network)
	fundResult, err := funder.FundAmount(ctx, values, "0.01")
	if err != nil {
		return fmt.Errorf("fund: %w", err)
	}
	log.Info("funded", "txid", fundResult.TxID, "htlc_address", fundResult.P2SHAddress)

	log.Info("verifying counterparty's published HTLC")
	checker := htlc.NewScriptChecker(gw, oracle)
	ok, reason, err := checker.Check(ctx, values, htlc.ExpectedHTLC{
		Value:              1_000_000,
		LockTime:           500_000,
		RecipientPublicKey: recipient.PublicKey(),
	}, network)
	if err != nil {
		return fmt.Errorf("check: %w", err)
	}
	if !ok {
		return fmt.Errorf("script check failed: %s", reason)
	}
	log.Info("script check passed")

	cfg := htlc.DefaultConfig()
	cfg.PostBroadcastDelay = 10 * time.Millisecond
	cfg.Apply()

	log.Info("FUNDED -> REDEEMED: recipient withdraws with secret")
	redeemer := htlc.NewRedeemer(gw, recipient, oracle, network)
	redeemResult, err := redeemer.Redeem(ctx, htlc.RedeemRequest{
		ScriptValues: values,
		Secret:       secret,
	})
	if err != nil {
		return fmt.Errorf("withdraw: %w", err)
	}
	log.Info("withdrawn", "txid", redeemResult.TxID, "already_withdrawn", redeemResult.AlreadyWithdrawn)

	log.Info("re-invoking withdraw to demonstrate idempotence")
	again, err := redeemer.Redeem(ctx, htlc.RedeemRequest{
		ScriptValues: values,
		Secret:       secret,
	})
	if err != nil {
		return fmt.Errorf("repeat withdraw: %w", err)
	}
	log.Info("idempotent withdraw observed", "txid", again.TxID, "already_withdrawn", again.AlreadyWithdrawn)

	return nil
}

func newKeyring(network chain.Network) (*keyring.PrivKeyKeyring, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	return keyring.New(priv, network)
}

// fakeUTXO is an in-memory unspent output tracked by the demo gateway.
type fakeUTXO struct {
	txid     string
	vout     uint32
	satoshis uint64
}

// fakeGateway is a minimal, in-process ChainGateway plus every optional
// capability, sufficient to drive one swap leg end to end without any
// real network access.
type fakeGateway struct {
	mu      sync.Mutex
	utxos   map[string][]fakeUTXO // address -> utxos
	spends  map[string]gateway.WithdrawRecord
	network chain.Network
}

var (
	_ gateway.ChainGateway    = (*fakeGateway)(nil)
	_ gateway.TxInfoFetcher   = (*fakeGateway)(nil)
	_ gateway.FeeEstimator    = (*fakeGateway)(nil)
	_ gateway.WithdrawChecker = (*fakeGateway)(nil)
)

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		utxos:   make(map[string][]fakeUTXO),
		spends:  make(map[string]gateway.WithdrawRecord),
		network: chain.Testnet,
	}
}

func (g *fakeGateway) seed(address string, satoshis uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var txid chainhash.Hash
	_, _ = rand.Read(txid[:])
	g.utxos[address] = append(g.utxos[address], fakeUTXO{txid: txid.String(), vout: 0, satoshis: satoshis})
}

func (g *fakeGateway) FetchBalance(_ context.Context, address string) (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var total uint64
	for _, u := range g.utxos[address] {
		total += u.satoshis
	}
	return total, nil
}

func (g *fakeGateway) FetchUnspents(_ context.Context, address string) ([]gateway.Unspent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	confs := uint32(1)
	out := make([]gateway.Unspent, 0, len(g.utxos[address]))
	for _, u := range g.utxos[address] {
		out = append(out, gateway.Unspent{TxID: u.txid, Vout: u.vout, Satoshis: u.satoshis, Confirmations: &confs})
	}
	return out, nil
}

func (g *fakeGateway) BroadcastTx(_ context.Context, rawTxHex string) (gateway.BroadcastResult, error) {
	raw, err := hex.DecodeString(rawTxHex)
	if err != nil {
		return gateway.BroadcastResult{}, fmt.Errorf("decode tx: %w", err)
	}
	var tx wire.MsgTx
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return gateway.BroadcastResult{}, fmt.Errorf("deserialize tx: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for _, in := range tx.TxIn {
		spentTxid := in.PreviousOutPoint.Hash.String()
		for addr, utxos := range g.utxos {
			for i, u := range utxos {
				if u.txid == spentTxid && u.vout == in.PreviousOutPoint.Index {
					g.utxos[addr] = append(utxos[:i], utxos[i+1:]...)
					break
				}
			}
		}
	}

	txid := tx.TxHash().String()
	params := chain.Params(g.network)
	var firstOutAddr string
	for i, out := range tx.TxOut {
		_, addrs, _, err := txscript.ExtractPkScriptAddrs(out.PkScript, params)
		if err != nil || len(addrs) == 0 {
			continue
		}
		addr := addrs[0].EncodeAddress()
		if i == 0 {
			firstOutAddr = addr
		}
		g.utxos[addr] = append(g.utxos[addr], fakeUTXO{txid: txid, vout: uint32(i), satoshis: uint64(out.Value)})
	}

	if len(tx.TxIn) > 0 {
		spenderTxid := tx.TxIn[0].PreviousOutPoint.Hash.String()
		g.spends[spenderTxid] = gateway.WithdrawRecord{Address: firstOutAddr, TxID: txid}
	}

	return gateway.BroadcastResult{TxID: txid}, nil
}

func (g *fakeGateway) FetchTxInfo(_ context.Context, txid string) (*gateway.TxInfo, error) {
	return &gateway.TxInfo{TxID: txid, Confirmations: 1}, nil
}

func (g *fakeGateway) EstimateFeeValue(_ context.Context, _ gateway.FeeEstimateRequest) (uint64, error) {
	return htlc.DefaultFee, nil
}

func (g *fakeGateway) CheckWithdraw(_ context.Context, _ string) (*gateway.WithdrawRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, record := range g.spends {
		return &record, nil
	}
	return nil, nil
}
