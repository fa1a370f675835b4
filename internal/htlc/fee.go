package htlc

import (
	"context"

	"github.com/klingon-exchange/btc-htlc-swap/internal/gateway"
)

// DefaultFee is the flat fee used when no FeeOracle is configured: the
// dust threshold, 546 satoshis. Documented degraded behavior (spec §4.2).
const DefaultFee uint64 = 546

// swapFeeMethod is the fixed "method" tag sent to FeeEstimator.
// Open Question (spec §9) resolved: funding and redeeming share one policy
// because the reference fee-estimation call sites never varied it either.
const swapFeeMethod = "swap"

// FeeOracle turns a fee request into a fixed per-transaction fee in
// satoshis. The engine treats this as a flat fee, not a rate x size
// product - the exact value returned is added to the built transaction.
type FeeOracle interface {
	EstimateFee(ctx context.Context, req gateway.FeeEstimateRequest) (uint64, error)
}

// ConstantFeeOracle always returns DefaultFee. It is the fallback used
// when no gateway-backed oracle is configured.
type ConstantFeeOracle struct{}

func (ConstantFeeOracle) EstimateFee(context.Context, gateway.FeeEstimateRequest) (uint64, error) {
	return DefaultFee, nil
}

// GatewayFeeOracle delegates to a ChainGateway's optional FeeEstimator
// capability, falling back to ConstantFeeOracle when the gateway does not
// implement it.
type GatewayFeeOracle struct {
	Gateway gateway.ChainGateway
}

func (o GatewayFeeOracle) EstimateFee(ctx context.Context, req gateway.FeeEstimateRequest) (uint64, error) {
	estimator, ok := o.Gateway.(gateway.FeeEstimator)
	if !ok {
		return ConstantFeeOracle{}.EstimateFee(ctx, req)
	}
	if req.Method == "" {
		req.Method = swapFeeMethod
	}
	fee, err := estimator.EstimateFeeValue(ctx, req)
	if err != nil {
		return 0, &GatewayError{Inner: err}
	}
	return fee, nil
}

// estimateFee resolves a FeeOracle for the given gateway, preferring an
// explicitly configured oracle over the gateway's own capability, and
// falling back to the constant dust fee when neither is available.
func estimateFee(ctx context.Context, oracle FeeOracle, gw gateway.ChainGateway, req gateway.FeeEstimateRequest) (uint64, error) {
	if req.Method == "" {
		req.Method = swapFeeMethod
	}
	if oracle != nil {
		return oracle.EstimateFee(ctx, req)
	}
	return GatewayFeeOracle{Gateway: gw}.EstimateFee(ctx, req)
}
