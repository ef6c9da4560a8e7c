package exchange_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"botsupervisor/internal/clock"
	"botsupervisor/internal/core"
	"botsupervisor/internal/exchange"
	"botsupervisor/internal/exchange/base"
	"botsupervisor/internal/exchange/venuea"
	"botsupervisor/internal/logging"
	"botsupervisor/internal/model"
)

func TestPlaceOrderRetriesOnTimeDrift(t *testing.T) {
	var orderAttempts int32
	var symbolInfoCalls int32

	mux := http.NewServeMux()
	mux.HandleFunc("/time", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]int64{"serverTime": time.Now().UnixMilli()})
	})
	mux.HandleFunc("/symbols", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&symbolInfoCalls, 1)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"symbol":            "GCBUSDT",
			"pricePrecision":    4,
			"quantityPrecision": 2,
		})
	})
	mux.HandleFunc("/order", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&orderAttempts, 1)
		if n == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"code": "AUTH_104", "msg": "drift"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"orderIdString": "12345",
			"clientOrderId": "order_1_0",
			"symbol":        "GCBUSDT",
			"side":          "BUY",
			"status":        "NEW",
			"price":         "1.2300",
			"origQty":       "10.00",
			"executedQty":   "0.00",
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	logger, err := logging.New("error")
	require.NoError(t, err)

	transport := base.NewTransport(2*time.Second, logger)
	signer := venuea.New()

	var c *exchange.Client
	clk := clock.New(func(ctx context.Context) (time.Time, error) {
		return c.ServerTime(ctx)
	})
	c = exchange.New("venuea", srv.URL, signer, transport, clk, logger)

	ref, err := c.PlaceOrder(context.Background(), core.Credentials{APIKey: "k", APISecret: "s"}, core.OrderRequest{
		Symbol: "GCBUSDT",
		Side:   model.SideBuy,
		Type:   model.OrderTypeMarket,
		Qty:    decimal.RequireFromString("10.00"),
	})
	require.NoError(t, err)
	require.Equal(t, "12345", ref.OrderID)
	require.EqualValues(t, 2, atomic.LoadInt32(&orderAttempts))
}
