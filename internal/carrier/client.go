package carrier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"poolgate.io/pgw/internal/types"
)

// Client wraps the carrier's JSON-RPC endpoint.
type Client struct {
	rpcAddr string
	client  *http.Client
}

// NewClient creates a carrier RPC client.
//
// Parameters:
//   - rpcAddr: carrier RPC address (e.g., "http://localhost:7545")
func NewClient(rpcAddr string) *Client {
	return &Client{
		rpcAddr: rpcAddr,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// QuoteFee implements Carrier.
func (c *Client) QuoteFee(ctx context.Context, dest types.Destination, msg *Message) (uint64, error) {
	var result struct {
		Fee uint64 `json:"fee"`
	}
	err := c.call(ctx, "quote_fee", map[string]any{
		"destination": string(dest),
		"message":     msg,
	}, &result)
	if err != nil {
		return 0, err
	}
	return result.Fee, nil
}

// Send implements Carrier. The returned id only exists once the carrier
// has accepted the message, so callers may treat it as proof of dispatch.
func (c *Client) Send(ctx context.Context, dest types.Destination, msg *Message) (string, error) {
	var result struct {
		MessageID string `json:"message_id"`
	}
	err := c.call(ctx, "send", map[string]any{
		"destination": string(dest),
		"message":     msg,
	}, &result)
	if err != nil {
		return "", err
	}
	if result.MessageID == "" {
		return "", fmt.Errorf("carrier accepted send but returned no message id")
	}
	return result.MessageID, nil
}

// call performs a JSON-RPC request against the carrier.
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
		return fmt.Errorf("carrier error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}

	if result != nil && len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("failed to decode RPC result: %w", err)
		}
	}
	return nil
}
