package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/klingon-exchange/btc-htlc-swap/pkg/logging"
)

// MempoolGateway implements ChainGateway against the mempool.space HTTP
// API (also compatible with self-hosted mempool instances and forks such
// as litecoinspace.org). It satisfies ChainGateway plus all three optional
// capabilities.
type MempoolGateway struct {
	baseURL    string
	httpClient *http.Client
	log        *logging.Logger

	mu        sync.RWMutex
	connected bool
}

var (
	_ ChainGateway    = (*MempoolGateway)(nil)
	_ TxInfoFetcher   = (*MempoolGateway)(nil)
	_ FeeEstimator    = (*MempoolGateway)(nil)
	_ WithdrawChecker = (*MempoolGateway)(nil)
)

// NewMempoolGateway creates a gateway against the given mempool.space-style
// API base URL, e.g. "https://mempool.space/api".
func NewMempoolGateway(baseURL string) *MempoolGateway {
	return &MempoolGateway{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        logging.GetDefault().Component("gateway"),
	}
}

// FetchBalance returns the confirmed + unconfirmed balance in satoshis.
func (g *MempoolGateway) FetchBalance(ctx context.Context, address string) (uint64, error) {
	var result struct {
		ChainStats struct {
			FundedTxoSum uint64 `json:"funded_txo_sum"`
			SpentTxoSum  uint64 `json:"spent_txo_sum"`
		} `json:"chain_stats"`
		MempoolStats struct {
			FundedTxoSum uint64 `json:"funded_txo_sum"`
			SpentTxoSum  uint64 `json:"spent_txo_sum"`
		} `json:"mempool_stats"`
	}
	if err := g.get(ctx, "/address/"+address, &result); err != nil {
		return 0, err
	}
	confirmed := result.ChainStats.FundedTxoSum - result.ChainStats.SpentTxoSum
	unconfirmed := result.MempoolStats.FundedTxoSum - result.MempoolStats.SpentTxoSum
	return confirmed + unconfirmed, nil
}

// FetchUnspents returns the unspent outputs at an address.
func (g *MempoolGateway) FetchUnspents(ctx context.Context, address string) ([]Unspent, error) {
	var result []struct {
		TxID   string `json:"txid"`
		Vout   uint32 `json:"vout"`
		Status struct {
			Confirmed   bool  `json:"confirmed"`
			BlockHeight int64 `json:"block_height"`
		} `json:"status"`
		Value uint64 `json:"value"`
	}
	if err := g.get(ctx, "/address/"+address+"/utxo", &result); err != nil {
		return nil, err
	}

	currentHeight, err := g.blockHeight(ctx)
	if err != nil {
		currentHeight = 0
	}

	unspents := make([]Unspent, len(result))
	for i, u := range result {
		var confs *uint32
		if u.Status.Confirmed {
			n := uint32(1)
			if currentHeight > 0 && u.Status.BlockHeight > 0 {
				n = uint32(currentHeight - u.Status.BlockHeight + 1)
			}
			confs = &n
		}
		unspents[i] = Unspent{
			TxID:          u.TxID,
			Vout:          u.Vout,
			Satoshis:      u.Value,
			Confirmations: confs,
		}
	}
	return unspents, nil
}

// BroadcastTx submits a raw transaction and returns its txid.
func (g *MempoolGateway) BroadcastTx(ctx context.Context, rawTxHex string) (BroadcastResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/tx", strings.NewReader(rawTxHex))
	if err != nil {
		return BroadcastResult{}, err
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return BroadcastResult{}, fmt.Errorf("%w: %v", ErrBroadcastFailed, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(body))
		if strings.Contains(strings.ToLower(msg), "non-final") || strings.Contains(strings.ToLower(msg), "non-bip68-final") {
			return BroadcastResult{}, ErrNonFinal
		}
		return BroadcastResult{}, fmt.Errorf("%w: %s", ErrBroadcastFailed, msg)
	}

	txid := strings.TrimSpace(string(body))
	g.log.Info("broadcast transaction", "txid", txid)
	return BroadcastResult{TxID: txid}, nil
}

// FetchTxInfo returns fee/size/confirmation metadata for a transaction, or
// ErrTxNotFound if the gateway has no record of it.
func (g *MempoolGateway) FetchTxInfo(ctx context.Context, txid string) (*TxInfo, error) {
	var result struct {
		Fee    uint64 `json:"fee"`
		Weight int64  `json:"weight"`
		Vin    []struct {
			Prevout *struct {
				ScriptPubKeyAddr string `json:"scriptpubkey_address"`
			} `json:"prevout"`
		} `json:"vin"`
		Status struct {
			Confirmed   bool  `json:"confirmed"`
			BlockHeight int64 `json:"block_height"`
		} `json:"status"`
	}
	if err := g.get(ctx, "/tx/"+txid, &result); err != nil {
		if err == ErrAddressNotFound {
			return nil, ErrTxNotFound
		}
		return nil, err
	}

	var confirmations uint32
	if result.Status.Confirmed && result.Status.BlockHeight > 0 {
		if h, err := g.blockHeight(ctx); err == nil && h >= result.Status.BlockHeight {
			confirmations = uint32(h - result.Status.BlockHeight + 1)
		} else {
			confirmations = 1
		}
	}

	info := &TxInfo{
		TxID:          txid,
		Fees:          &result.Fee,
		Size:          uint32((result.Weight + 3) / 4),
		Confirmations: confirmations,
	}
	if len(result.Vin) > 0 && result.Vin[0].Prevout != nil {
		info.SenderAddress = result.Vin[0].Prevout.ScriptPubKeyAddr
	}
	return info, nil
}

// EstimateFeeValue converts a speed hint into a flat per-transaction fee in
// satoshis, using mempool.space's recommended sat/vB figures multiplied by
// a conservative P2SH-spend size estimate (the caller's TxSize, if given,
// takes precedence).
func (g *MempoolGateway) EstimateFeeValue(ctx context.Context, req FeeEstimateRequest) (uint64, error) {
	var rates map[string]float64
	if err := g.get(ctx, "/v1/fees/recommended", &rates); err != nil {
		return 0, err
	}

	var satPerVByte float64
	switch req.Speed {
	case SpeedFast:
		satPerVByte = rates["fastestFee"]
	case SpeedNormal:
		satPerVByte = rates["halfHourFee"]
	default:
		satPerVByte = rates["hourFee"]
	}
	if satPerVByte <= 0 {
		satPerVByte = rates["minimumFee"]
	}

	vsize := req.TxSize
	if vsize == 0 {
		vsize = estimatedHTLCTxVSize
	}

	return uint64(satPerVByte * float64(vsize)), nil
}

// estimatedHTLCTxVSize is a conservative 1-input/2-output P2SH transaction
// size estimate (vbytes), used when the caller does not supply TxSize.
const estimatedHTLCTxVSize = 260

// CheckWithdraw scans the address's transaction history for a spend and
// reports its destination, enabling the Redeemer's already-withdrawn
// idempotence path. Returns nil (no error) if the address has never been
// spent from.
func (g *MempoolGateway) CheckWithdraw(ctx context.Context, address string) (*WithdrawRecord, error) {
	var txs []struct {
		TxID string `json:"txid"`
		Vout []struct {
			ScriptPubKeyAddr string `json:"scriptpubkey_address"`
			Value            uint64 `json:"value"`
		} `json:"vout"`
		Vin []struct {
			Prevout *struct {
				ScriptPubKeyAddr string `json:"scriptpubkey_address"`
			} `json:"prevout"`
		} `json:"vin"`
	}
	if err := g.get(ctx, "/address/"+address+"/txs", &txs); err != nil {
		return nil, err
	}

	for _, tx := range txs {
		spendsFromAddress := false
		for _, in := range tx.Vin {
			if in.Prevout != nil && strings.EqualFold(in.Prevout.ScriptPubKeyAddr, address) {
				spendsFromAddress = true
				break
			}
		}
		if !spendsFromAddress {
			continue
		}
		for _, out := range tx.Vout {
			if out.ScriptPubKeyAddr != "" {
				return &WithdrawRecord{Address: out.ScriptPubKeyAddr, TxID: tx.TxID}, nil
			}
		}
	}
	return nil, nil
}

// Connect verifies reachability of the backend.
func (g *MempoolGateway) Connect(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, err := g.blockHeight(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	g.connected = true
	return nil
}

func (g *MempoolGateway) blockHeight(ctx context.Context) (int64, error) {
	var height int64
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/blocks/tip/height", nil)
	if err != nil {
		return 0, err
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	if err := json.Unmarshal(body, &height); err != nil {
		return 0, err
	}
	return height, nil
}

func (g *MempoolGateway) get(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrAddressNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(result)
}
