package htlc

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klingon-exchange/btc-htlc-swap/internal/gateway"
)

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}
	if cfg.FeeOracle.Fallback != DefaultFee {
		t.Errorf("Fallback = %d, want %d", cfg.FeeOracle.Fallback, DefaultFee)
	}
	if cfg.Confidence.Threshold != DefaultConfidenceThreshold {
		t.Errorf("Threshold = %v, want %v", cfg.Confidence.Threshold, DefaultConfidenceThreshold)
	}
}

func TestLoadConfigParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	contents := "fee_oracle:\n  fallback_satoshis: 2000\nconfidence:\n  threshold: 0.8\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}
	if cfg.FeeOracle.Fallback != 2000 {
		t.Errorf("Fallback = %d, want 2000", cfg.FeeOracle.Fallback)
	}
	if cfg.Confidence.Threshold != 0.8 {
		t.Errorf("Threshold = %v, want 0.8", cfg.Confidence.Threshold)
	}
}

func TestConfiguredFeeOracleUsesConfiguredFallback(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FeeOracle.Fallback = 9999

	gw := newFakeGateway() // no FeeEstimator capability
	oracle := cfg.NewFeeOracle(gw)

	fee, err := oracle.EstimateFee(context.Background(), gateway.FeeEstimateRequest{})
	if err != nil {
		t.Fatalf("EstimateFee() failed: %v", err)
	}
	if fee != 9999 {
		t.Errorf("fee = %d, want 9999", fee)
	}
}

func TestConfigApplyWritesPostBroadcastDelay(t *testing.T) {
	original := PostBroadcastDelay
	defer func() { PostBroadcastDelay = original }()

	cfg := DefaultConfig()
	cfg.PostBroadcastDelay = 5 * time.Millisecond
	cfg.Apply()

	if PostBroadcastDelay != 5*time.Millisecond {
		t.Errorf("PostBroadcastDelay = %v, want 5ms", PostBroadcastDelay)
	}
}
