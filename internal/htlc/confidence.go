package htlc

import (
	"context"

	"github.com/klingon-exchange/btc-htlc-swap/internal/gateway"
)

// DefaultConfidenceThreshold is the minimum confidence a funding UTXO must
// reach to be counted before deep confirmation (spec §4.3).
const DefaultConfidenceThreshold = 0.95

// ConfidenceFilter classifies unspent outputs as confident enough to act
// on before confirmation, without exposing the taker to double-spend
// risk. A mempool transaction paying at least the current fast fee is
// unlikely to be evicted by a replacement.
type ConfidenceFilter struct {
	Gateway   gateway.ChainGateway
	FeeOracle FeeOracle
}

// NewConfidenceFilter constructs a filter over the given gateway, using
// the gateway's own fee-estimation capability (or the constant fallback)
// when no FeeOracle override is supplied.
func NewConfidenceFilter(gw gateway.ChainGateway, oracle FeeOracle) *ConfidenceFilter {
	return &ConfidenceFilter{Gateway: gw, FeeOracle: oracle}
}

// Confidence computes the confidence score, in [0, 1], for a single
// unspent output (spec §4.3 steps 1-4):
//
//  1. confirmations > 0  => 1.0
//  2. otherwise, fetch TxInfo; if it carries a fees-paid value, compute
//     min(1, fees / currentFastFee)
//  3. if TxInfo is unavailable or carries no fees field, fall back to 0
//     (the confirmations-derived value from step 1)
func (f *ConfidenceFilter) Confidence(ctx context.Context, u gateway.Unspent) float64 {
	if u.Confirmed() {
		return 1.0
	}

	fetcher, ok := f.Gateway.(gateway.TxInfoFetcher)
	if !ok {
		return 0
	}
	info, err := fetcher.FetchTxInfo(ctx, u.TxID)
	if err != nil || info == nil || info.Fees == nil {
		return 0
	}

	fastFee, err := estimateFee(ctx, f.FeeOracle, f.Gateway, gateway.FeeEstimateRequest{
		Speed:   gateway.SpeedFast,
		Address: info.SenderAddress,
	})
	if err != nil || fastFee == 0 {
		return 0
	}

	confidence := float64(*info.Fees) / float64(fastFee)
	if confidence > 1 {
		return 1
	}
	return confidence
}

// Filter returns the subset of unspents whose confidence is at least
// threshold, and the sum of their satoshis.
func (f *ConfidenceFilter) Filter(ctx context.Context, unspents []gateway.Unspent, threshold float64) ([]gateway.Unspent, uint64) {
	var kept []gateway.Unspent
	var total uint64
	for _, u := range unspents {
		if f.Confidence(ctx, u) >= threshold {
			kept = append(kept, u)
			total += u.Satoshis
		}
	}
	return kept, total
}
