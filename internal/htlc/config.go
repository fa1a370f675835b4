package htlc

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/klingon-exchange/btc-htlc-swap/internal/gateway"
)

// FeeOracleConfig holds YAML-loadable settings for a GatewayFeeOracle
// fallback chain. A zero-value config is valid: Fallback defaults to
// DefaultFee and Method defaults to swapFeeMethod.
type FeeOracleConfig struct {
	// Method is the fee-estimation method name (spec §4.2). It is loaded
	// and defaulted but not passed on: the oracle built by NewFeeOracle
	// sends swapFeeMethod to the gateway's EstimateFeeValue capability.
	Method string `yaml:"method"`

	// Fallback is the satoshi fee used when no FeeEstimator capability
	// is present, or when the gateway call fails.
	Fallback uint64 `yaml:"fallback_satoshis"`
}

// ConfidenceConfig holds YAML-loadable settings for a ConfidenceFilter.
type ConfidenceConfig struct {
	// Threshold is the minimum per-UTXO confidence score kept by
	// Filter, in [0, 1] (spec §4.3).
	Threshold float64 `yaml:"threshold"`
}

// Config is the combined, optional configuration for an HTLC engine
// instance. Every field has a usable zero value; LoadConfig only needs
// to be called when an operator wants to override the defaults.
type Config struct {
	FeeOracle  FeeOracleConfig  `yaml:"fee_oracle"`
	Confidence ConfidenceConfig `yaml:"confidence"`

	// PostBroadcastDelay overrides the package-level PostBroadcastDelay
	// used by Redeemer.awaitObservable.
	PostBroadcastDelay time.Duration `yaml:"post_broadcast_delay"`
}

// DefaultConfig returns the configuration the package uses when no YAML
// file is loaded.
func DefaultConfig() *Config {
	return &Config{
		FeeOracle: FeeOracleConfig{
			Method:   swapFeeMethod,
			Fallback: DefaultFee,
		},
		Confidence: ConfidenceConfig{
			Threshold: DefaultConfidenceThreshold,
		},
		PostBroadcastDelay: PostBroadcastDelay,
	}
}

// LoadConfig reads a YAML configuration file, filling in any zero-valued
// field from DefaultConfig. A missing file is not an error: the defaults
// are returned unchanged.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("htlc: failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("htlc: failed to parse config file: %w", err)
	}
	if cfg.FeeOracle.Method == "" {
		cfg.FeeOracle.Method = swapFeeMethod
	}
	if cfg.FeeOracle.Fallback == 0 {
		cfg.FeeOracle.Fallback = DefaultFee
	}
	if cfg.Confidence.Threshold == 0 {
		cfg.Confidence.Threshold = DefaultConfidenceThreshold
	}
	if cfg.PostBroadcastDelay == 0 {
		cfg.PostBroadcastDelay = PostBroadcastDelay
	}

	return cfg, nil
}

// configuredFeeOracle is a GatewayFeeOracle whose degraded-path fallback
// fee is the configured value rather than the package's DefaultFee.
type configuredFeeOracle struct {
	GatewayFeeOracle
	fallback uint64
}

func (o configuredFeeOracle) EstimateFee(ctx context.Context, req gateway.FeeEstimateRequest) (uint64, error) {
	_, ok := o.Gateway.(gateway.FeeEstimator)
	if !ok {
		return o.fallback, nil
	}
	return o.GatewayFeeOracle.EstimateFee(ctx, req)
}

// NewFeeOracle builds a FeeOracle over gw whose degraded-path fallback is
// the configured Fallback value instead of the package's DefaultFee.
func (c *Config) NewFeeOracle(gw gateway.ChainGateway) FeeOracle {
	fallback := c.FeeOracle.Fallback
	if fallback == 0 {
		fallback = DefaultFee
	}
	return configuredFeeOracle{GatewayFeeOracle: GatewayFeeOracle{Gateway: gw}, fallback: fallback}
}

// NewConfidenceFilter builds a ConfidenceFilter over gw and oracle. Call
// Filter with c.Confidence.Threshold to apply the configured cutoff.
func (c *Config) NewConfidenceFilter(gw gateway.ChainGateway, oracle FeeOracle) *ConfidenceFilter {
	return NewConfidenceFilter(gw, oracle)
}

// Apply writes c.PostBroadcastDelay into the package-level PostBroadcastDelay
// read by Redeemer.awaitObservable. Call it once after loading configuration,
// before any Redeemer starts a redeem; it is not safe to call concurrently
// with an in-flight Redeem.
func (c *Config) Apply() {
	PostBroadcastDelay = c.PostBroadcastDelay
}
