package htlc

import (
	"context"

	"github.com/klingon-exchange/btc-htlc-swap/internal/gateway"
)

// fakeGateway implements only the required ChainGateway methods. Optional
// capabilities are added by wrapping it in txInfoGateway / feeGateway /
// withdrawGateway, so a test can exercise the core's type-assertion-based
// capability detection against both the happy and the degraded path.
type fakeGateway struct {
	unspents     map[string][]gateway.Unspent
	txInfo       map[string]*gateway.TxInfo
	txInfoErr    error
	fee          uint64
	withdraw     *gateway.WithdrawRecord
	broadcastErr error

	broadcasts []string
}

var _ gateway.ChainGateway = (*fakeGateway)(nil)

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		unspents: make(map[string][]gateway.Unspent),
		txInfo:   make(map[string]*gateway.TxInfo),
	}
}

func (g *fakeGateway) FetchBalance(_ context.Context, address string) (uint64, error) {
	var total uint64
	for _, u := range g.unspents[address] {
		total += u.Satoshis
	}
	return total, nil
}

func (g *fakeGateway) FetchUnspents(_ context.Context, address string) ([]gateway.Unspent, error) {
	return g.unspents[address], nil
}

func (g *fakeGateway) BroadcastTx(_ context.Context, rawTxHex string) (gateway.BroadcastResult, error) {
	g.broadcasts = append(g.broadcasts, rawTxHex)
	if g.broadcastErr != nil {
		return gateway.BroadcastResult{}, g.broadcastErr
	}
	return gateway.BroadcastResult{TxID: "broadcasttxid"}, nil
}

// txInfoGateway adds the TxInfoFetcher capability to a fakeGateway.
type txInfoGateway struct{ *fakeGateway }

var _ gateway.TxInfoFetcher = txInfoGateway{}

func (g txInfoGateway) FetchTxInfo(_ context.Context, txid string) (*gateway.TxInfo, error) {
	if g.txInfoErr != nil {
		return nil, g.txInfoErr
	}
	return g.txInfo[txid], nil
}

// feeGateway adds the FeeEstimator capability to a fakeGateway.
type feeGateway struct{ *fakeGateway }

var _ gateway.FeeEstimator = feeGateway{}

func (g feeGateway) EstimateFeeValue(_ context.Context, _ gateway.FeeEstimateRequest) (uint64, error) {
	return g.fee, nil
}

// withdrawGateway adds the WithdrawChecker capability to a fakeGateway.
type withdrawGateway struct{ *fakeGateway }

var _ gateway.WithdrawChecker = withdrawGateway{}

func (g withdrawGateway) CheckWithdraw(_ context.Context, _ string) (*gateway.WithdrawRecord, error) {
	return g.withdraw, nil
}

// fullGateway combines every optional capability over one fakeGateway.
type fullGateway struct {
	*fakeGateway
}

var (
	_ gateway.TxInfoFetcher   = fullGateway{}
	_ gateway.FeeEstimator    = fullGateway{}
	_ gateway.WithdrawChecker = fullGateway{}
)

func (g fullGateway) FetchTxInfo(ctx context.Context, txid string) (*gateway.TxInfo, error) {
	return txInfoGateway{g.fakeGateway}.FetchTxInfo(ctx, txid)
}

func (g fullGateway) EstimateFeeValue(ctx context.Context, req gateway.FeeEstimateRequest) (uint64, error) {
	return feeGateway{g.fakeGateway}.EstimateFeeValue(ctx, req)
}

func (g fullGateway) CheckWithdraw(ctx context.Context, address string) (*gateway.WithdrawRecord, error) {
	return withdrawGateway{g.fakeGateway}.CheckWithdraw(ctx, address)
}
