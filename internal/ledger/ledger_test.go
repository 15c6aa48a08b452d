package ledger

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"govtender/internal/config"
	"govtender/internal/models"

	"github.com/stretchr/testify/require"
)

func TestRPCClientRecord(t *testing.T) {
	var got rpcRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.Equal(t, Sign([]byte("key"), body), r.Header.Get(SignatureHeader))
		require.NoError(t, json.Unmarshal(body, &got))

		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"id":"42","txHash":"0xabc"}}`))
	}))
	defer srv.Close()

	client := NewRPCClient(config.LedgerConfig{RPCURL: srv.URL, SigningKey: "key", ContractAddress: "0xcontract"})
	receipt, err := client.Record(context.Background(), Event{Kind: TenderCreated, Fields: map[string]any{"title": "Bridge"}})
	require.NoError(t, err)
	require.Equal(t, "42", receipt.Id)
	require.Equal(t, "0xabc", receipt.TxHash)
	require.Equal(t, "ledger_record", got.Method)
	require.Equal(t, "2.0", got.JSONRPC)

	params, ok := got.Params.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "0xcontract", params["contract"])
}

func TestRPCClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rpcerr":
			w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"execution reverted"}}`))
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	client := NewRPCClient(config.LedgerConfig{RPCURL: srv.URL + "/rpcerr"})
	_, err := client.Record(context.Background(), Event{Kind: BidAccepted})
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	require.Equal(t, -32000, rpcErr.Code)

	client = NewRPCClient(config.LedgerConfig{RPCURL: srv.URL + "/down"})
	_, err = client.Tender(context.Background(), "1")
	require.Error(t, err)
}

func TestGuardTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	guarded := Guard(NewRPCClient(config.LedgerConfig{RPCURL: srv.URL}), 50*time.Millisecond)

	start := time.Now()
	_, err := guarded.Record(context.Background(), Event{Kind: TenderCreated})
	require.ErrorIs(t, err, models.ErrLedger)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestNoop(t *testing.T) {
	guarded := Guard(NewNoop(), time.Second)

	a, err := guarded.Record(context.Background(), Event{Kind: TenderCreated})
	require.NoError(t, err)
	b, err := guarded.Record(context.Background(), Event{Kind: TenderCreated})
	require.NoError(t, err)
	require.NotEqual(t, a.Id, b.Id)

	_, err = guarded.Tender(context.Background(), a.Id)
	require.ErrorIs(t, err, ErrNoSnapshot)
	require.NotErrorIs(t, err, models.ErrLedger)
}
