// Package gateway abstracts blockchain access for the HTLC engine: balance
// and UTXO queries, transaction metadata lookup, fee estimation, and raw
// transaction broadcast. No private keys are handled here - signing lives
// in package keyring.
package gateway

import (
	"context"
	"errors"
)

// Common errors returned by ChainGateway implementations.
var (
	ErrNotConnected    = errors.New("gateway: not connected")
	ErrTxNotFound      = errors.New("gateway: transaction not found")
	ErrAddressNotFound = errors.New("gateway: address not found")
	ErrBroadcastFailed = errors.New("gateway: broadcast failed")
	// ErrNonFinal is returned by BroadcastTx when the transaction's
	// absolute or relative timelock has not yet matured.
	ErrNonFinal = errors.New("gateway: transaction non-final")
)

// Unspent is an unspent transaction output as reported by the gateway.
type Unspent struct {
	TxID          string // 32-byte txid, hex
	Vout          uint32
	Satoshis      uint64
	Confirmations *uint32 // nil when the gateway does not report confirmations
}

// Confirmed reports whether the gateway observed at least one confirmation.
func (u Unspent) Confirmed() bool {
	return u.Confirmations != nil && *u.Confirmations > 0
}

// TxInfo is transaction metadata used by the ConfidenceFilter. Any field may
// be absent (zero value) when the gateway cannot supply it; absence must not
// be treated as fatal by callers.
type TxInfo struct {
	TxID          string
	SenderAddress string
	Fees          *uint64 // satoshis paid in fees, nil when unknown
	Size          uint32  // vbytes
	Confirmations uint32
}

// Speed is a qualitative fee-urgency hint passed to FeeEstimator.
type Speed string

const (
	SpeedSlow   Speed = "slow"
	SpeedNormal Speed = "normal"
	SpeedFast   Speed = "fast"
)

// FeeEstimateRequest carries the parameters of a fee-estimate call.
type FeeEstimateRequest struct {
	InSatoshis uint64
	Speed      Speed
	Address    string
	Method     string // e.g. "swap"; opaque to the gateway, logged for diagnostics
	TxSize     uint32 // optional, vbytes; 0 when unknown
}

// WithdrawRecord reports a previously observed spend from an HTLC address.
type WithdrawRecord struct {
	Address string // destination address the spend paid to
	TxID    string
}

// BroadcastResult is returned by a successful BroadcastTx call.
type BroadcastResult struct {
	TxID string
}

// ChainGateway is the dependency-injected abstraction over blockchain
// access. FetchBalance, FetchUnspents and BroadcastTx are required;
// everything else is an optional capability that the core must detect via
// the narrower TxInfoFetcher / FeeEstimator / WithdrawChecker interfaces
// rather than installing a silent no-op.
type ChainGateway interface {
	FetchBalance(ctx context.Context, address string) (uint64, error)
	FetchUnspents(ctx context.Context, address string) ([]Unspent, error)
	BroadcastTx(ctx context.Context, rawTxHex string) (BroadcastResult, error)
}

// TxInfoFetcher is an optional ChainGateway capability. Its absence disables
// fee-based confidence scoring in the ConfidenceFilter (spec §4.3 step 4).
type TxInfoFetcher interface {
	FetchTxInfo(ctx context.Context, txid string) (*TxInfo, error)
}

// FeeEstimator is an optional ChainGateway capability. Its absence makes the
// FeeOracle fall back to the constant dust-threshold fee (spec §4.2).
type FeeEstimator interface {
	EstimateFeeValue(ctx context.Context, req FeeEstimateRequest) (uint64, error)
}

// WithdrawChecker is an optional ChainGateway capability. Its absence
// disables the already-withdrawn idempotence path in the Redeemer
// (spec §4.6 step 3).
type WithdrawChecker interface {
	CheckWithdraw(ctx context.Context, address string) (*WithdrawRecord, error)
}
