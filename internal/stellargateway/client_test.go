package stellargateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/distributor-dispatch/dispatch"
)

func TestClient_SendMany_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transactions", r.URL.Path)
		var req sendManyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "dist-1", req.From)
		assert.Len(t, req.Ops, 1)
		json.NewEncoder(w).Encode(sendResponse{Hash: "tx-abc"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	op := &dispatch.Operation{Destination: "dest-1", Asset: dispatch.Asset{Native: true}, Amount: dispatch.NewAmountFromUnits(5, 0)}
	hash, err := c.SendMany(context.Background(), dispatch.IssuerCredential{PublicKey: "dist-1"}, []*dispatch.Operation{op}, "memo")

	require.NoError(t, err)
	assert.Equal(t, "tx-abc", hash)
}

func TestClient_SendMany_StructuredError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(wireError{
			Status: 400,
			Title:  "transaction failed",
			ResultCodes: &struct {
				Transaction string   `json:"transaction"`
				Operations  []string `json:"operations"`
			}{Transaction: "tx_failed", Operations: []string{"op_success"}},
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.SendMany(context.Background(), dispatch.IssuerCredential{PublicKey: "dist-1"}, []*dispatch.Operation{{Amount: dispatch.NewAmountFromUnits(1, 0)}}, "")

	require.Error(t, err)
	var gwErr *dispatch.GatewayError
	require.ErrorAs(t, err, &gwErr)
	require.NotNil(t, gwErr.Codes)
	assert.Equal(t, "tx_failed", gwErr.Codes.Transaction)
	assert.Equal(t, 400, gwErr.TransportStatus)
}

func TestClient_BalanceOf(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/accounts/addr-1/balances/USD")
		json.NewEncoder(w).Encode(balanceResponse{Balance: "12.5000000"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	amount, err := c.BalanceOf(context.Background(), "addr-1", dispatch.Asset{Code: "USD"})

	require.NoError(t, err)
	want, _ := dispatch.ParseAmount("12.5000000")
	assert.Equal(t, 0, amount.Cmp(want))
}

func TestClient_EstablishTrust(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, "/trustlines", r.URL.Path)
	}))
	defer srv.Close()

	c := New(srv.URL)
	err := c.EstablishTrust(context.Background(), dispatch.IssuerCredential{PublicKey: "dist-1"}, dispatch.Asset{Code: "USD"})

	require.NoError(t, err)
	assert.True(t, called)
}
