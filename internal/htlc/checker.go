package htlc

import (
	"context"

	"github.com/klingon-exchange/btc-htlc-swap/internal/chain"
	"github.com/klingon-exchange/btc-htlc-swap/internal/gateway"
	"github.com/klingon-exchange/btc-htlc-swap/pkg/helpers"
)

// ExpectedHTLC is what the counterparty negotiation promised: the owner
// and hash algorithm are implicitly trusted via that prior negotiation -
// the caller must have constructed this from it.
type ExpectedHTLC struct {
	Value              uint64
	LockTime           int64
	RecipientPublicKey []byte
}

// ScriptChecker verifies that a counterparty-published HTLC matches the
// expected value, lock-time, recipient, and confidence (spec §4.4).
type ScriptChecker struct {
	Gateway             gateway.ChainGateway
	Confidence          *ConfidenceFilter
	ConfidenceThreshold float64
}

// NewScriptChecker constructs a checker with the default confidence
// threshold.
func NewScriptChecker(gw gateway.ChainGateway, oracle FeeOracle) *ScriptChecker {
	return &ScriptChecker{
		Gateway:             gw,
		Confidence:          NewConfidenceFilter(gw, oracle),
		ConfidenceThreshold: DefaultConfidenceThreshold,
	}
}

// Check derives the P2SH address from values, fetches its UTXOs, and
// checks that expected.Value is satisfied by both the raw and the
// confidence-filtered total, and that the lock-time and recipient key
// match. It returns (true, "") on success, or (false, reason) with a
// diagnostic string - it never returns an error for a failed check, only
// for a gateway failure.
func (c *ScriptChecker) Check(ctx context.Context, values ScriptValues, expected ExpectedHTLC, network chain.Network) (bool, string, error) {
	script, err := Build(values, network)
	if err != nil {
		return false, "", err
	}

	unspents, err := c.Gateway.FetchUnspents(ctx, script.P2SHAddress)
	if err != nil {
		return false, "", &GatewayError{Inner: err}
	}

	var total uint64
	for _, u := range unspents {
		total += u.Satoshis
	}

	if expected.Value > total {
		return false, "expected value exceeds total unspent", nil
	}
	if expected.LockTime > values.LockTime {
		return false, "expected lock time exceeds actual lock time", nil
	}
	if !helpers.BytesEqual(expected.RecipientPublicKey, values.RecipientPublicKey) {
		return false, "recipient public key mismatch", nil
	}

	threshold := c.ConfidenceThreshold
	if threshold == 0 {
		threshold = DefaultConfidenceThreshold
	}
	_, confidentTotal := c.Confidence.Filter(ctx, unspents, threshold)
	if expected.Value > confidentTotal {
		return false, "expected value exceeds confidence-filtered total", nil
	}

	return true, "", nil
}
