package htlc

import (
	"context"
	"testing"

	"github.com/klingon-exchange/btc-htlc-swap/internal/chain"
	"github.com/klingon-exchange/btc-htlc-swap/internal/gateway"
)

func buildTestValues(t *testing.T) ScriptValues {
	t.Helper()
	owner, recipient := testKeyPair(t)
	secret := []byte("super secret preimage value!!!!")
	return ScriptValues{
		SecretHash:         HashSecret(secret, HashSHA256),
		OwnerPublicKey:     owner,
		RecipientPublicKey: recipient,
		LockTime:           500_000,
		HashName:           HashSHA256,
	}
}

func TestScriptCheckerAcceptsMatchingHTLC(t *testing.T) {
	values := buildTestValues(t)
	script, err := Build(values, chain.Testnet)
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}

	gw := newFakeGateway()
	gw.unspents[script.P2SHAddress] = []gateway.Unspent{
		{TxID: "a", Satoshis: 1_000_000, Confirmations: confirmations(1)},
	}

	checker := NewScriptChecker(gw, ConstantFeeOracle{})
	ok, reason, err := checker.Check(context.TODO(), values, ExpectedHTLC{
		Value:              1_000_000,
		LockTime:           500_000,
		RecipientPublicKey: values.RecipientPublicKey,
	}, chain.Testnet)
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}
	if !ok {
		t.Fatalf("Check() = false, reason %q; want true", reason)
	}
}

func TestScriptCheckerRejectsInsufficientValue(t *testing.T) {
	values := buildTestValues(t)
	script, err := Build(values, chain.Testnet)
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}

	gw := newFakeGateway()
	gw.unspents[script.P2SHAddress] = []gateway.Unspent{
		{TxID: "a", Satoshis: 500_000, Confirmations: confirmations(1)},
	}

	checker := NewScriptChecker(gw, ConstantFeeOracle{})
	ok, reason, err := checker.Check(context.TODO(), values, ExpectedHTLC{
		Value:              1_000_000,
		LockTime:           500_000,
		RecipientPublicKey: values.RecipientPublicKey,
	}, chain.Testnet)
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}
	if ok {
		t.Fatal("Check() = true, want false for insufficient value")
	}
	if reason == "" {
		t.Error("expected a non-empty diagnostic reason")
	}
}

func TestScriptCheckerRejectsShortLockTime(t *testing.T) {
	values := buildTestValues(t)
	script, err := Build(values, chain.Testnet)
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}

	gw := newFakeGateway()
	gw.unspents[script.P2SHAddress] = []gateway.Unspent{
		{TxID: "a", Satoshis: 1_000_000, Confirmations: confirmations(1)},
	}

	checker := NewScriptChecker(gw, ConstantFeeOracle{})
	ok, _, err := checker.Check(context.TODO(), values, ExpectedHTLC{
		Value:              1_000_000,
		LockTime:           600_000, // exceeds the actual lock time
		RecipientPublicKey: values.RecipientPublicKey,
	}, chain.Testnet)
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}
	if ok {
		t.Fatal("Check() = true, want false when expected lock time exceeds actual")
	}
}

func TestScriptCheckerRejectsWrongRecipient(t *testing.T) {
	values := buildTestValues(t)
	script, err := Build(values, chain.Testnet)
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	_, otherRecipient := testKeyPair(t)

	gw := newFakeGateway()
	gw.unspents[script.P2SHAddress] = []gateway.Unspent{
		{TxID: "a", Satoshis: 1_000_000, Confirmations: confirmations(1)},
	}

	checker := NewScriptChecker(gw, ConstantFeeOracle{})
	ok, _, err := checker.Check(context.TODO(), values, ExpectedHTLC{
		Value:              1_000_000,
		LockTime:           500_000,
		RecipientPublicKey: otherRecipient,
	}, chain.Testnet)
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}
	if ok {
		t.Fatal("Check() = true, want false for mismatched recipient key")
	}
}

func TestScriptCheckerRejectsLowConfidenceTotal(t *testing.T) {
	values := buildTestValues(t)
	script, err := Build(values, chain.Testnet)
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}

	gw := newFakeGateway()
	// Unconfirmed, and no TxInfoFetcher capability: confidence 0.
	gw.unspents[script.P2SHAddress] = []gateway.Unspent{
		{TxID: "a", Satoshis: 1_000_000},
	}

	checker := NewScriptChecker(gw, ConstantFeeOracle{})
	ok, reason, err := checker.Check(context.TODO(), values, ExpectedHTLC{
		Value:              1_000_000,
		LockTime:           500_000,
		RecipientPublicKey: values.RecipientPublicKey,
	}, chain.Testnet)
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}
	if ok {
		t.Fatal("Check() = true, want false when confidence-filtered total is zero")
	}
	if reason == "" {
		t.Error("expected a non-empty diagnostic reason")
	}
}
