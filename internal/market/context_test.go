package market

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"tradecouncil/internal/decision"
	"tradecouncil/internal/gateway/exchange"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	ticker    exchange.Ticker
	tickerErr error
	failing   map[string]bool
	count     int
}

func (f *fakeSource) GetTicker(context.Context, string) (exchange.Ticker, error) {
	return f.ticker, f.tickerErr
}

func (f *fakeSource) Klines(_ context.Context, _ string, interval string, _ int) ([]Candle, error) {
	if f.failing[interval] {
		return nil, errors.New("rate limited")
	}
	return waveCandles(f.count, time.Hour), nil
}

func waveCandles(n int, step time.Duration) []Candle {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]Candle, n)
	for i := range out {
		price := 50000 + 800*math.Sin(float64(i)/6) + float64(i)*3
		open := start.Add(time.Duration(i) * step)
		out[i] = Candle{
			OpenTime:  open.UnixMilli(),
			CloseTime: open.Add(step).UnixMilli() - 1,
			Open:      price - 20,
			High:      price + 60,
			Low:       price - 70,
			Close:     price,
			Volume:    10 + float64(i%7),
		}
	}
	return out
}

func TestBuilderSkipsFailingTimeframe(t *testing.T) {
	src := &fakeSource{
		ticker:  exchange.Ticker{Last: 50100, Bid: 50099, Ask: 50101},
		failing: map[string]bool{"4h": true},
		count:   120,
	}
	b := NewBuilder(src, nil, 0)
	mctx, err := b.Build(context.Background(), "BTC/USDT", nil)
	require.NoError(t, err)
	assert.Equal(t, "BTC/USDT", mctx.Symbol)
	assert.Equal(t, 50100.0, mctx.Ticker.Last)
	require.Contains(t, mctx.Indicators, "1h")
	require.Contains(t, mctx.Indicators, "1d")
	assert.NotContains(t, mctx.Indicators, "4h")

	set := mctx.Indicators["1h"]
	for _, name := range []string{"close", "rsi14", "ema20", "ema50", "atr14", "macd", "macd_signal", "macd_hist"} {
		assert.Contains(t, set, name)
	}
	assert.Greater(t, set["rsi14"], 0.0)
	assert.Less(t, set["rsi14"], 100.0)
}

func TestBuilderShortHistoryLeavesTimeframeOut(t *testing.T) {
	src := &fakeSource{ticker: exchange.Ticker{Last: 1}, count: 10}
	mctx, err := NewBuilder(src, []string{"1h"}, 0).Build(context.Background(), "BTC/USDT", nil)
	require.NoError(t, err)
	assert.Empty(t, mctx.Indicators)
}

func TestBuilderTickerErrorFails(t *testing.T) {
	src := &fakeSource{tickerErr: errors.New("down")}
	_, err := NewBuilder(src, nil, 0).Build(context.Background(), "BTC/USDT", nil)
	assert.Error(t, err)
}

type fakeDerivatives struct {
	set decision.IndicatorSet
	err error
}

func (f fakeDerivatives) Derivatives(context.Context, string) (decision.IndicatorSet, error) {
	return f.set, f.err
}

func TestBuilderAddsDerivatives(t *testing.T) {
	src := &fakeSource{ticker: exchange.Ticker{Last: 1}, count: 10}
	b := NewBuilder(src, []string{"1h"}, 0).
		WithDerivatives(fakeDerivatives{set: decision.IndicatorSet{"funding_rate_pct": 0.01}})
	mctx, err := b.Build(context.Background(), "BTC/USDT", nil)
	require.NoError(t, err)
	assert.Equal(t, decision.IndicatorSet{"funding_rate_pct": 0.01}, mctx.Derivatives)

	b = NewBuilder(src, []string{"1h"}, 0).WithDerivatives(fakeDerivatives{err: errors.New("down")})
	mctx, err = b.Build(context.Background(), "BTC/USDT", nil)
	require.NoError(t, err)
	assert.Nil(t, mctx.Derivatives)
}

func TestDropUnclosed(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC)
	klines := []Candle{
		{OpenTime: now.Add(-2 * time.Hour).Truncate(time.Hour).UnixMilli()},
		{OpenTime: now.Truncate(time.Hour).UnixMilli()},
	}
	assert.Len(t, DropUnclosed(klines, time.Hour, now), 1)
	assert.Len(t, DropUnclosed(klines, time.Hour, now.Add(time.Hour)), 2)
}

func TestParseIntervalDuration(t *testing.T) {
	d, ok := ParseIntervalDuration("4h")
	assert.True(t, ok)
	assert.Equal(t, 4*time.Hour, d)
	_, ok = ParseIntervalDuration("h")
	assert.False(t, ok)
}
