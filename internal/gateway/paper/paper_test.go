package paper

import (
	"context"
	"errors"
	"testing"
	"time"

	"tradecouncil/internal/gateway/exchange"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarketBuyFillsAndMovesBalances(t *testing.T) {
	ex := New(Config{})
	ctx := context.Background()

	order, err := ex.CreateOrder(ctx, exchange.OrderRequest{Symbol: "BTC/USDT", Side: exchange.SideBuy, Type: exchange.OrderMarket, Amount: 0.1})
	require.NoError(t, err)
	assert.Equal(t, exchange.StatusClosed, order.Status)
	assert.Equal(t, 0.1, order.Filled)
	assert.Equal(t, DefaultPrice, order.Average)
	assert.NotEmpty(t, order.Raw)

	bal, err := ex.GetBalance(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 5000.0, bal.Free("USDT"), 1e-9)
	assert.InDelta(t, 0.6, bal.Free("BTC"), 1e-9)
}

func TestMarketBuyRejectsWhenUnaffordable(t *testing.T) {
	ex := New(Config{})
	_, err := ex.CreateOrder(context.Background(), exchange.OrderRequest{Symbol: "BTC/USDT", Side: exchange.SideBuy, Amount: 1})
	assert.True(t, errors.Is(err, ErrInsufficientBalance))
}

func TestLimitOrderFillsWhenCrossed(t *testing.T) {
	ex := New(Config{})
	ctx := context.Background()
	price := 49000.0
	order, err := ex.CreateOrder(ctx, exchange.OrderRequest{Symbol: "BTCUSDT", Side: exchange.SideBuy, Type: exchange.OrderLimit, Amount: 0.1, Price: &price})
	require.NoError(t, err)
	assert.Equal(t, exchange.StatusOpen, order.Status)
	assert.Equal(t, "BTC/USDT", order.Symbol)

	got, err := ex.FetchOrder(ctx, order.ID, "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, exchange.StatusOpen, got.Status)

	ex.SetPrice(48900)
	got, err = ex.FetchOrder(ctx, order.ID, "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, exchange.StatusClosed, got.Status)
	assert.Equal(t, 49000.0, got.Average)
}

func TestCancelAndUnknown(t *testing.T) {
	ex := New(Config{})
	ctx := context.Background()
	price := 40000.0
	order, err := ex.CreateOrder(ctx, exchange.OrderRequest{Symbol: "BTC/USDT", Side: exchange.SideBuy, Type: exchange.OrderLimit, Amount: 0.1, Price: &price})
	require.NoError(t, err)

	canceled, err := ex.CancelOrder(ctx, order.ID, "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, exchange.StatusCanceled, canceled.Status)

	missing, err := ex.FetchOrder(ctx, "nope", "")
	require.NoError(t, err)
	assert.Equal(t, exchange.StatusUnknown, missing.Status)
}

func TestScriptedStatuses(t *testing.T) {
	ex := New(Config{})
	ctx := context.Background()
	ex.Script(exchange.StatusOpen, exchange.StatusOpen, exchange.StatusClosed)
	order, err := ex.CreateOrder(ctx, exchange.OrderRequest{Symbol: "BTC/USDT", Side: exchange.SideSell, Amount: 0.2})
	require.NoError(t, err)
	assert.Equal(t, exchange.StatusOpen, order.Status)

	var seen []exchange.OrderStatus
	for i := 0; i < 4; i++ {
		got, err := ex.FetchOrder(ctx, order.ID, "")
		require.NoError(t, err)
		seen = append(seen, got.Status)
	}
	assert.Equal(t, []exchange.OrderStatus{exchange.StatusOpen, exchange.StatusOpen, exchange.StatusClosed, exchange.StatusClosed}, seen)
}

func TestKlinesAreReproducible(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	a, b := New(Config{Seed: 7}), New(Config{Seed: 7})
	a.now = func() time.Time { return fixed }
	b.now = func() time.Time { return fixed }

	ka, err := a.Klines(context.Background(), "BTC/USDT", "1h", 60)
	require.NoError(t, err)
	kb, err := b.Klines(context.Background(), "BTC/USDT", "1h", 60)
	require.NoError(t, err)
	require.Len(t, ka, 60)
	assert.Equal(t, ka, kb)
	for _, c := range ka {
		assert.GreaterOrEqual(t, c.High, c.Low)
	}
	assert.Less(t, ka[len(ka)-1].OpenTime, fixed.UnixMilli())
}
