package coinbase

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avii-ahuja/coinbase-trading-bot/internal/core"
	apperrors "github.com/avii-ahuja/coinbase-trading-bot/pkg/errors"
	"github.com/avii-ahuja/coinbase-trading-bot/pkg/logging"
)

type staticSigner struct {
	mu       sync.Mutex
	requests []string
}

func (s *staticSigner) SignRequest(method, host, path string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, method+" "+host+path)
	return "test-token", nil
}

func (s *staticSigner) SignWebsocket() (string, error) {
	return "test-ws-token", nil
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *staticSigner, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	signer := &staticSigner{}
	client, err := NewClient("BTC-USD", server.URL, signer, logging.NewNop())
	require.NoError(t, err)
	return client, signer, server
}

func TestCreateLimitOrderGTC_SubmitsSignedRequest(t *testing.T) {
	var gotBody createOrderRequest
	var gotAuth string

	client, signer, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, ordersPath, r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &gotBody))
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "order_id": "order-123"})
	})

	orderID, err := client.CreateLimitOrderGTC(context.Background(), &core.LimitOrderRequest{
		ClientOrderID: "client-1",
		Side:          core.OrderSideBuy,
		BaseSize:      decimal.RequireFromString("1"),
		LimitPrice:    decimal.RequireFromString("105"),
	})
	require.NoError(t, err)
	assert.Equal(t, "order-123", orderID)

	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Equal(t, "client-1", gotBody.ClientOrderID)
	assert.Equal(t, "BTC-USD", gotBody.ProductID)
	assert.Equal(t, "BUY", gotBody.Side)
	assert.Equal(t, "1", gotBody.OrderConfiguration.LimitLimitGTC.BaseSize)
	assert.Equal(t, "105", gotBody.OrderConfiguration.LimitLimitGTC.LimitPrice)

	// the token's uri claim is bound to this request's descriptor
	serverHost := server.Listener.Addr().String()
	require.Len(t, signer.requests, 1)
	assert.Equal(t, "POST "+serverHost+ordersPath, signer.requests[0])
}

func TestCreateLimitOrderGTC_RejectionMapsToOrderRejected(t *testing.T) {
	client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"INVALID_LIMIT_PRICE"}`))
	})

	_, err := client.CreateLimitOrderGTC(context.Background(), &core.LimitOrderRequest{
		ClientOrderID: "client-1",
		Side:          core.OrderSideSell,
		BaseSize:      decimal.RequireFromString("1"),
		LimitPrice:    decimal.RequireFromString("100"),
	})
	assert.ErrorIs(t, err, apperrors.ErrOrderRejected)
}

func TestCreateLimitOrderGTC_AuthFailureMapsToAuthenticationFailed(t *testing.T) {
	client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.CreateLimitOrderGTC(context.Background(), &core.LimitOrderRequest{
		ClientOrderID: "client-1",
		Side:          core.OrderSideBuy,
		BaseSize:      decimal.RequireFromString("1"),
		LimitPrice:    decimal.RequireFromString("100"),
	})
	assert.ErrorIs(t, err, apperrors.ErrAuthenticationFailed)
}

func TestCreateLimitOrderGTC_MissingOrderIDIsRejection(t *testing.T) {
	client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"success": false})
	})

	_, err := client.CreateLimitOrderGTC(context.Background(), &core.LimitOrderRequest{
		ClientOrderID: "client-1",
		Side:          core.OrderSideBuy,
		BaseSize:      decimal.RequireFromString("1"),
		LimitPrice:    decimal.RequireFromString("100"),
	})
	assert.ErrorIs(t, err, apperrors.ErrOrderRejected)
}

func TestCancelOrders_BatchesIDs(t *testing.T) {
	var gotBody batchCancelRequest
	client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, batchCancelPath, r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &gotBody))
		json.NewEncoder(w).Encode(map[string]interface{}{"results": []interface{}{}})
	})

	err := client.CancelOrders(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, gotBody.OrderIDs)
}

func TestCancelOrders_EmptySetIsNoop(t *testing.T) {
	called := false
	client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	require.NoError(t, client.CancelOrders(context.Background(), nil))
	assert.False(t, called)
}

func TestCancelOrders_FailureSurfaced(t *testing.T) {
	client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	err := client.CancelOrders(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, apperrors.ErrOrderRejected)
}
