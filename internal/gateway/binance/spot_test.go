package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"tradecouncil/internal/gateway/exchange"

	"github.com/adshao/go-binance/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSpot(t *testing.T, handler http.HandlerFunc) *Spot {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	s, err := New(Config{APIKey: "k", APISecret: "s", RESTBaseURL: srv.URL})
	require.NoError(t, err)
	return s
}

func TestCreateMarketOrder(t *testing.T) {
	s := newTestSpot(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v3/order", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "BTCUSDT", r.Form.Get("symbol"))
		assert.Equal(t, "BUY", r.Form.Get("side"))
		assert.Equal(t, "MARKET", r.Form.Get("type"))
		assert.Equal(t, "0.01", r.Form.Get("quantity"))
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","orderId":42,"transactTime":1700000000000,"price":"0.00000000",
			"origQty":"0.01000000","executedQty":"0.01000000","cummulativeQuoteQty":"500.50000000",
			"status":"FILLED","timeInForce":"GTC","type":"MARKET","side":"BUY"}`))
	})

	order, err := s.CreateOrder(context.Background(), exchange.OrderRequest{
		Symbol: "BTC/USDT", Side: exchange.SideBuy, Type: exchange.OrderMarket, Amount: 0.01,
	})
	require.NoError(t, err)
	assert.Equal(t, "42", order.ID)
	assert.Equal(t, "BTC/USDT", order.Symbol)
	assert.Equal(t, exchange.StatusClosed, order.Status)
	assert.InDelta(t, 0.01, order.Filled, 1e-12)
	assert.InDelta(t, 50050.0, order.Average, 1e-6)
	assert.NotEmpty(t, order.Raw)
}

func TestFetchOrderMapsStatus(t *testing.T) {
	s := newTestSpot(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v3/order", r.URL.Path)
		assert.Equal(t, "7", r.URL.Query().Get("orderId"))
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","orderId":7,"price":"49000.00","origQty":"0.1",
			"executedQty":"0.0","cummulativeQuoteQty":"0.0","status":"NEW","type":"LIMIT","side":"BUY","time":1700000000000}`))
	})
	order, err := s.FetchOrder(context.Background(), "7", "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, exchange.StatusOpen, order.Status)
	assert.Equal(t, exchange.OrderLimit, order.Type)
	assert.Equal(t, 49000.0, order.Price)
}

func TestKlines(t *testing.T) {
	s := newTestSpot(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v3/klines", r.URL.Path)
		assert.Equal(t, "4h", r.URL.Query().Get("interval"))
		_, _ = w.Write([]byte(`[[1700000000000,"100.0","110.0","90.0","105.0","12.5",1700014399999,"1300.0",42,"6.0","630.0","0"]]`))
	})
	kl, err := s.Klines(context.Background(), "BTC/USDT", "4H", 50)
	require.NoError(t, err)
	require.Len(t, kl, 1)
	assert.Equal(t, 105.0, kl[0].Close)
	assert.Equal(t, int64(42), kl[0].Trades)
}

func TestMapStatus(t *testing.T) {
	assert.Equal(t, exchange.StatusOpen, mapStatus(binance.OrderStatusTypePartiallyFilled))
	assert.Equal(t, exchange.StatusCanceled, mapStatus(binance.OrderStatusTypeExpired))
	assert.Equal(t, exchange.StatusUnknown, mapStatus("WEIRD"))
}

func TestConfigDefaults(t *testing.T) {
	c := Config{Testnet: true}
	assert.Equal(t, testnetBaseURL, c.withDefaults().RESTBaseURL)
	c = Config{}
	assert.Equal(t, mainnetBaseURL, c.withDefaults().RESTBaseURL)
}
