package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, &http.Client{Timeout: 5 * time.Second}, rate.NewLimiter(rate.Inf, 1))
}

func TestGetTransaction_Found(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "getTransaction", req.Method)
		assert.Equal(t, "abc123", req.Params[0])

		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{
			"slot": 12345,
			"blockTime": 1700000000,
			"meta": {
				"err": null,
				"preTokenBalances": [{"accountIndex":1,"mint":"MINT","owner":"RECV","uiTokenAmount":{"amount":"1000000000","decimals":6}}],
				"postTokenBalances": [{"accountIndex":1,"mint":"MINT","owner":"RECV","uiTokenAmount":{"amount":"1015000000","decimals":6}}]
			}
		}}`))
	})

	tx, err := client.GetTransaction(context.Background(), "abc123")
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.Equal(t, uint64(12345), tx.Slot)
	require.NotNil(t, tx.BlockTime)
	assert.Equal(t, int64(1700000000), *tx.BlockTime)
	require.NotNil(t, tx.Meta)
	assert.Nil(t, tx.Meta.Err)
	assert.Equal(t, "1015000000", tx.Meta.PostTokenBalances[0].UITokenAmount.Amount)
}

func TestGetTransaction_NotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		// Узел возвращает null для неизвестной сигнатуры
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":null}`))
	})

	tx, err := client.GetTransaction(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Nil(t, tx)
}

func TestGetTransaction_ServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.GetTransaction(context.Background(), "abc123")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestGetTransaction_RPCError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32005,"message":"node is behind"}}`))
	})

	_, err := client.GetTransaction(context.Background(), "abc123")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestGetSignaturesForAddress(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "getSignaturesForAddress", req.Method)
		assert.Equal(t, "SENDER", req.Params[0])

		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":[
			{"signature":"sig2","slot":101,"blockTime":1700000100,"err":null},
			{"signature":"sig1","slot":100,"blockTime":1700000000,"err":null}
		]}`))
	})

	sigs, err := client.GetSignaturesForAddress(context.Background(), "SENDER", 20)
	require.NoError(t, err)
	require.Len(t, sigs, 2)
	// Новые сигнатуры идут первыми
	assert.Equal(t, "sig2", sigs[0].Signature)
	assert.Equal(t, "sig1", sigs[1].Signature)
}

func TestGetSignaturesForAddress_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
	srv.Close() // соединение будет отклонено
	client := NewClient(srv.URL, &http.Client{Timeout: time.Second}, rate.NewLimiter(rate.Inf, 1))

	_, err := client.GetSignaturesForAddress(context.Background(), "SENDER", 20)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}
