package assets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client speaks JSON-RPC to a remote asset-ledger service. It implements
// both Custody (for the pooled asset) and FeeAsset (for the carrier fee
// asset), distinguished by the asset name passed at construction.
type Client struct {
	rpcAddr string
	asset   string
	self    string
	client  *http.Client
}

// NewClient creates an asset-ledger client.
//
// Parameters:
//   - rpcAddr: asset ledger RPC address (e.g., "http://localhost:9545")
//   - asset: asset denomination this client operates on
//   - self: the gateway's own account identity on the asset ledger
func NewClient(rpcAddr, asset, self string) *Client {
	return &Client{
		rpcAddr: rpcAddr,
		asset:   asset,
		self:    self,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// TransferIn implements Custody by asking the asset ledger to move amount
// from the depositor's account into the gateway's.
func (c *Client) TransferIn(ctx context.Context, from string, amount uint64) error {
	var result struct{}
	return c.call(ctx, "transfer_in", map[string]any{
		"asset":  c.asset,
		"from":   from,
		"to":     c.self,
		"amount": amount,
	}, &result)
}

// BalanceOf implements FeeAsset.
func (c *Client) BalanceOf(ctx context.Context) (uint64, error) {
	var result struct {
		Balance uint64 `json:"balance"`
	}
	err := c.call(ctx, "balance_of", map[string]any{
		"asset":   c.asset,
		"account": c.self,
	}, &result)
	if err != nil {
		return 0, err
	}
	return result.Balance, nil
}

// Authorize implements FeeAsset with an exact-amount authorization.
func (c *Client) Authorize(ctx context.Context, spender string, amount uint64) error {
	var result struct{}
	return c.call(ctx, "authorize", map[string]any{
		"asset":   c.asset,
		"owner":   c.self,
		"spender": spender,
		"amount":  amount,
	}, &result)
}

// call performs a JSON-RPC request against the asset ledger.
func (c *Client) call(ctx context.Context, method string, params any, result any) error {
	reqBody := map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal RPC request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcAddr, bytes.NewReader(reqBytes))
	if err != nil {
		return fmt.Errorf("failed to build RPC request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
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
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBytes, &rpcResp); err != nil {
		return fmt.Errorf("failed to parse RPC response: %w (body: %s)", err, string(respBytes))
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("asset ledger error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}

	if result != nil && len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("failed to decode RPC result: %w", err)
		}
	}
	return nil
}
