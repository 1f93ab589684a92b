package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params map[string]any  `json:"params"`
}

func TestCosmosClientCountTxs(t *testing.T) {
	var got rpcRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(got.ID) + `,"result":{"txs":[],"total_count":"3"}}`))
	}))
	defer srv.Close()

	client, err := NewCosmosClient(zaptest.NewLogger(t), srv.URL, 1)
	require.NoError(t, err)

	query := BuildEventQuery([]QueryTag{{Key: "recv_packet.packet_sequence", Value: "42"}})
	count, err := client.CountTxs(context.Background(), query)
	require.NoError(t, err)
	require.Equal(t, 3, count)
	require.Equal(t, "tx_search", got.Method)
	require.Equal(t, query, got.Params["query"])
}

func TestCosmosClientCountTxsReportsRPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"error":{"code":-32603,"message":"Internal error","data":"tx indexing is disabled"}}`))
	}))
	defer srv.Close()

	client, err := NewCosmosClient(zaptest.NewLogger(t), srv.URL, 1)
	require.NoError(t, err)

	_, err = client.CountTxs(context.Background(), "recv_packet.packet_sequence='42'")
	require.ErrorContains(t, err, "tx indexing is disabled")
}
