// Package rpc implements the JSON-RPC client for a single ledger endpoint.
// The connection pool owns one Client per configured endpoint and decides
// which one serves a given call; this package knows nothing about pooling.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// Client talks JSON-RPC 2.0 to one ledger RPC endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
	nextID     atomic.Uint64
}

// New creates a client for endpoint with a per-request timeout. Every call
// also honors the caller's context deadline, whichever is sooner.
func New(endpoint string, timeout time.Duration) *Client {
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Endpoint() string { return c.endpoint }

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// Call performs a raw JSON-RPC call and unmarshals the result into out.
func (c *Client) Call(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rpc %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("rpc %s: endpoint returned %d: %w", method, resp.StatusCode, errServer)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rpc %s: unexpected status %d", method, resp.StatusCode)
	}

	var parsed rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decode rpc response: %w", err)
	}
	if parsed.Error != nil {
		return fmt.Errorf("rpc %s: %w", method, parsed.Error)
	}
	if out != nil {
		if err := json.Unmarshal(parsed.Result, out); err != nil {
			return fmt.Errorf("unmarshal rpc result: %w", err)
		}
	}
	return nil
}

var errServer = errors.New("server error")

const lamportsPerUnit = 1_000_000_000

// GetBalance returns the balance for identity in whole ledger units.
func (c *Client) GetBalance(ctx context.Context, identity string) (float64, error) {
	var result struct {
		Value uint64 `json:"value"`
	}
	if err := c.Call(ctx, "getBalance", []any{identity}, &result); err != nil {
		return 0, err
	}
	return float64(result.Value) / lamportsPerUnit, nil
}

// GetTransaction returns the raw transaction record for a signature.
func (c *Client) GetTransaction(ctx context.Context, signature string) (json.RawMessage, error) {
	var result json.RawMessage
	params := []any{signature, map[string]any{"commitment": "confirmed"}}
	if err := c.Call(ctx, "getTransaction", params, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetLatestBlockhash returns the most recent blockhash, needed to build
// signed instructions.
func (c *Client) GetLatestBlockhash(ctx context.Context) (string, error) {
	var result struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	if err := c.Call(ctx, "getLatestBlockhash", []any{map[string]any{"commitment": "confirmed"}}, &result); err != nil {
		return "", err
	}
	return result.Value.Blockhash, nil
}

// Submit sends a signed, serialized instruction and returns the resulting
// transaction ID.
func (c *Client) Submit(ctx context.Context, instruction string) (string, error) {
	var txID string
	if err := c.Call(ctx, "sendTransaction", []any{instruction}, &txID); err != nil {
		return "", err
	}
	return txID, nil
}

// Probe performs the cheapest possible read to test endpoint liveness.
func (c *Client) Probe(ctx context.Context) error {
	var slot uint64
	return c.Call(ctx, "getSlot", nil, &slot)
}

// IsNetworkError classifies an error as a connectivity fault (retryable
// against another endpoint) as opposed to a malformed or rejected request
// (fail fast, retrying will not change the outcome).
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errServer) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	// http.Client wraps dial failures in *url.Error; its presence already
	// matched net.Error above except for a few cases.
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "EOF")
}
