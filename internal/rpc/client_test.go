package rpc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rpcRequest struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

func newTestClient(url string, retries int) *Client {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewClient(ClientConfig{
		BaseURL:      url,
		Timeout:      2 * time.Second,
		MaxRetries:   retries,
		RetryBackoff: time.Millisecond,
		Logger:       logger,
	})
}

func TestGetTokenAccountBalance(t *testing.T) {
	vault := solana.NewWallet().PublicKey()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "getTokenAccountBalance", req.Method)

		var addr string
		require.NoError(t, json.Unmarshal(req.Params[0], &addr))
		assert.Equal(t, vault.String(), addr)

		_, _ = io.WriteString(w, `{"jsonrpc":"2.0","id":1,"result":{"context":{"slot":7},"value":{"amount":"1000000","decimals":6,"uiAmount":1.0,"uiAmountString":"1"}}}`)
	}))
	defer srv.Close()

	amount, err := newTestClient(srv.URL, 0).GetTokenAccountBalance(context.Background(), vault)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000000), amount)
}

func TestGetTokenAccountBalance_RPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"Invalid param: could not find account"}}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 0).GetTokenAccountBalance(context.Background(), solana.NewWallet().PublicKey())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not find account")
}

func TestGetAccountData(t *testing.T) {
	payload := []byte{1, 2, 3, 4}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "getAccountInfo", req.Method)
		_, _ = io.WriteString(w, `{"jsonrpc":"2.0","id":1,"result":{"context":{"slot":7},"value":{"data":["`+
			base64.StdEncoding.EncodeToString(payload)+`","base64"],"executable":false,"lamports":10,"owner":"11111111111111111111111111111111"}}}`)
	}))
	defer srv.Close()

	data, err := newTestClient(srv.URL, 0).GetAccountData(context.Background(), solana.NewWallet().PublicKey())
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestGetAccountData_Missing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"jsonrpc":"2.0","id":1,"result":{"context":{"slot":7},"value":null}}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 0).GetAccountData(context.Background(), solana.NewWallet().PublicKey())
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestCall_RetriesOnRateLimit(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, `{"jsonrpc":"2.0","id":1,"result":{"context":{"slot":1},"value":{"amount":"5","decimals":0}}}`)
	}))
	defer srv.Close()

	amount, err := newTestClient(srv.URL, 3).GetTokenAccountBalance(context.Background(), solana.NewWallet().PublicKey())
	require.NoError(t, err)
	assert.Equal(t, uint64(5), amount)
	assert.Equal(t, int32(3), hits.Load())
}

func TestCall_MaxRetriesExceeded(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	var out json.RawMessage
	err := newTestClient(srv.URL, 2).Call(context.Background(), "getHealth", nil, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.Equal(t, int32(3), hits.Load())
}

func TestCall_ClientErrorNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	var out json.RawMessage
	err := newTestClient(srv.URL, 3).Call(context.Background(), "getHealth", nil, &out)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusForbidden, se.Code)
	assert.False(t, se.Retryable())
	assert.Equal(t, int32(1), hits.Load())
}

func TestCall_RequestIDsIncrease(t *testing.T) {
	var (
		mu  sync.Mutex
		ids []uint64
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID uint64 `json:"id"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		mu.Lock()
		ids = append(ids, req.ID)
		mu.Unlock()
		_, _ = io.WriteString(w, `{"jsonrpc":"2.0","id":1,"result":"ok"}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 0)
	var out json.RawMessage
	require.NoError(t, c.Call(context.Background(), "getHealth", nil, &out))
	require.NoError(t, c.Call(context.Background(), "getHealth", nil, &out))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []uint64{1, 2}, ids)
}
