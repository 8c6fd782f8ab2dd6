package tendermint

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"kvstore.contract/kvs/internal/types"
)

// ErrTxFailed is wrapped by errors for transactions the application rejected.
var ErrTxFailed = errors.New("transaction failed")

// BroadcastClient talks to the Tendermint JSON-RPC endpoint.
type BroadcastClient struct {
	rpcAddr string
	client  *http.Client
}

// TxResult is the outcome of a broadcast. Height is zero until committed.
type TxResult struct {
	Hash      string `json:"hash"`
	Height    int64  `json:"height,omitempty"`
	Code      uint32 `json:"code"`
	Codespace string `json:"codespace,omitempty"`
	Log       string `json:"log,omitempty"`
	Data      []byte `json:"data,omitempty"`
}

// QueryResult is the application answer to abci_query.
type QueryResult struct {
	Code   uint32
	Log    string
	Value  []byte
	Height int64
}

// NewBroadcastClient creates a client for rpcAddr, e.g.
// "http://localhost:26657".
func NewBroadcastClient(rpcAddr string) *BroadcastClient {
	if rpcAddr == "" {
		rpcAddr = "http://localhost:26657"
	}
	return &BroadcastClient{
		rpcAddr: rpcAddr,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s (%s)", e.Code, e.Message, e.Data)
}

// call performs one JSON-RPC request and decodes its result into out.
func (bc *BroadcastClient) call(ctx context.Context, method string, params any, out any) error {
	reqBytes, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal RPC request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, bc.rpcAddr, bytes.NewReader(reqBytes))
	if err != nil {
		return fmt.Errorf("failed to build RPC request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := bc.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send RPC request: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read RPC response: %w", err)
	}

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.Unmarshal(respBytes, &rpcResp); err != nil {
		return fmt.Errorf("failed to parse RPC response: %w (body: %s)", err, string(respBytes))
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

type abciResult struct {
	Code      uint32 `json:"code"`
	Data      []byte `json:"data"`
	Log       string `json:"log"`
	Codespace string `json:"codespace"`
}

func checkResult(res TxResult) (TxResult, error) {
	if res.Code != 0 {
		return res, fmt.Errorf("%w with code %d: %s", ErrTxFailed, res.Code, res.Log)
	}
	return res, nil
}

// BroadcastTxSync returns once CheckTx has run. It does not wait for the
// transaction to be committed.
func (bc *BroadcastClient) BroadcastTxSync(ctx context.Context, tx []byte) (TxResult, error) {
	var out struct {
		abciResult
		Hash string `json:"hash"`
	}
	if err := bc.call(ctx, "broadcast_tx_sync", map[string]string{"tx": base64.StdEncoding.EncodeToString(tx)}, &out); err != nil {
		return TxResult{}, err
	}
	return checkResult(TxResult{
		Hash:      out.Hash,
		Code:      out.Code,
		Codespace: out.Codespace,
		Log:       out.Log,
		Data:      out.Data,
	})
}

// BroadcastTxCommit waits until the transaction is in a block and reports
// the DeliverTx outcome, or the CheckTx outcome if it never got that far.
func (bc *BroadcastClient) BroadcastTxCommit(ctx context.Context, tx []byte) (TxResult, error) {
	var out struct {
		CheckTx   abciResult `json:"check_tx"`
		DeliverTx abciResult `json:"deliver_tx"`
		Hash      string     `json:"hash"`
		Height    string     `json:"height"`
	}
	if err := bc.call(ctx, "broadcast_tx_commit", map[string]string{"tx": base64.StdEncoding.EncodeToString(tx)}, &out); err != nil {
		return TxResult{}, err
	}

	height, _ := strconv.ParseInt(out.Height, 10, 64)
	res := TxResult{Hash: out.Hash, Height: height}
	if out.CheckTx.Code != 0 {
		res.Code, res.Codespace, res.Log = out.CheckTx.Code, out.CheckTx.Codespace, out.CheckTx.Log
		return checkResult(res)
	}
	res.Code = out.DeliverTx.Code
	res.Codespace = out.DeliverTx.Codespace
	res.Log = out.DeliverTx.Log
	res.Data = out.DeliverTx.Data
	return checkResult(res)
}

// BroadcastSignedTransaction marshals signedTx and broadcasts it. With
// commit set it waits for the block.
func (bc *BroadcastClient) BroadcastSignedTransaction(ctx context.Context, signedTx *types.SignedTransaction, commit bool) (TxResult, error) {
	txBytes, err := json.Marshal(signedTx)
	if err != nil {
		return TxResult{}, fmt.Errorf("failed to marshal transaction: %w", err)
	}
	if commit {
		return bc.BroadcastTxCommit(ctx, txBytes)
	}
	return bc.BroadcastTxSync(ctx, txBytes)
}

// ABCIQuery runs an application query at the latest height.
func (bc *BroadcastClient) ABCIQuery(ctx context.Context, path string, data []byte) (QueryResult, error) {
	var out struct {
		Response struct {
			Code   uint32 `json:"code"`
			Log    string `json:"log"`
			Value  []byte `json:"value"`
			Height string `json:"height"`
		} `json:"response"`
	}
	params := map[string]any{"path": path, "data": hex.EncodeToString(data)}
	if err := bc.call(ctx, "abci_query", params, &out); err != nil {
		return QueryResult{}, err
	}

	height, _ := strconv.ParseInt(out.Response.Height, 10, 64)
	res := QueryResult{
		Code:   out.Response.Code,
		Log:    out.Response.Log,
		Value:  out.Response.Value,
		Height: height,
	}
	if res.Code != 0 {
		return res, fmt.Errorf("query %s failed with code %d: %s", path, res.Code, res.Log)
	}
	return res, nil
}

// QueryTx looks up a committed transaction by hex hash and returns the raw
// RPC result.
func (bc *BroadcastClient) QueryTx(ctx context.Context, txHash string) (map[string]any, error) {
	hash, err := hex.DecodeString(txHash)
	if err != nil {
		return nil, fmt.Errorf("invalid tx hash: %w", err)
	}
	var out map[string]any
	if err := bc.call(ctx, "tx", map[string]any{"hash": base64.StdEncoding.EncodeToString(hash)}, &out); err != nil {
		return nil, err
	}
	return out, nil
}
