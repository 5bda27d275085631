package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler func(method string, params []json.RawMessage) (any, *rpcError)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     uint64            `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		result, rpcErr := handler(req.Method, req.Params)
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_GetBalance(t *testing.T) {
	srv := newTestServer(t, func(method string, params []json.RawMessage) (any, *rpcError) {
		assert.Equal(t, "getBalance", method)
		return map[string]any{"value": 2_500_000_000}, nil
	})

	client := New(srv.URL, time.Second)
	balance, err := client.GetBalance(context.Background(), "7nYabs9dUhvxYwdTnrWVBL9MYviKSfrEbdWCUbcaWkJh")
	require.NoError(t, err)
	assert.InDelta(t, 2.5, balance, 1e-9)
}

func TestClient_GetLatestBlockhash(t *testing.T) {
	srv := newTestServer(t, func(method string, _ []json.RawMessage) (any, *rpcError) {
		assert.Equal(t, "getLatestBlockhash", method)
		return map[string]any{"value": map[string]any{"blockhash": "9sHcv6xwn9YkB8nx"}}, nil
	})

	client := New(srv.URL, time.Second)
	blockhash, err := client.GetLatestBlockhash(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "9sHcv6xwn9YkB8nx", blockhash)
}

func TestClient_Submit(t *testing.T) {
	srv := newTestServer(t, func(method string, params []json.RawMessage) (any, *rpcError) {
		assert.Equal(t, "sendTransaction", method)
		return "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW", nil
	})

	client := New(srv.URL, time.Second)
	txID, err := client.Submit(context.Background(), "base64-encoded-instruction")
	require.NoError(t, err)
	assert.NotEmpty(t, txID)
}

func TestClient_RPCErrorIsNotNetworkError(t *testing.T) {
	srv := newTestServer(t, func(string, []json.RawMessage) (any, *rpcError) {
		return nil, &rpcError{Code: -32602, Message: "invalid params"}
	})

	client := New(srv.URL, time.Second)
	_, err := client.GetBalance(context.Background(), "bad-key")
	require.Error(t, err)
	assert.False(t, IsNetworkError(err), "a rejected request must not be retried")
}

func TestClient_ServerErrorIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	client := New(srv.URL, time.Second)
	err := client.Probe(context.Background())
	require.Error(t, err)
	assert.True(t, IsNetworkError(err))
}

func TestClient_UnreachableEndpointIsNetworkError(t *testing.T) {
	// Reserved port with nothing listening.
	client := New("http://127.0.0.1:1", 500*time.Millisecond)
	err := client.Probe(context.Background())
	require.Error(t, err)
	assert.True(t, IsNetworkError(err))
}

func TestIsNetworkError_Nil(t *testing.T) {
	assert.False(t, IsNetworkError(nil))
	assert.False(t, IsNetworkError(errors.New("validation failed")))
	assert.True(t, IsNetworkError(context.DeadlineExceeded))
}
