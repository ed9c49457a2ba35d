package market

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tradecouncil/internal/decision"
	"tradecouncil/internal/gateway/exchange"
	"tradecouncil/internal/logger"
)

// Source supplies the raw market data a Context is built from.
type Source interface {
	GetTicker(ctx context.Context, symbol string) (exchange.Ticker, error)
	Klines(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
}

// DerivativesSource supplies perpetual-market metrics for a spot symbol.
type DerivativesSource interface {
	Derivatives(ctx context.Context, symbol string) (decision.IndicatorSet, error)
}

var DefaultTimeframes = []string{"1h", "4h", "1d"}

const defaultKlineLimit = 200

type Builder struct {
	source      Source
	derivatives DerivativesSource
	timeframes  []string
	limit       int
	now         func() time.Time
}

func NewBuilder(source Source, timeframes []string, limit int) *Builder {
	if len(timeframes) == 0 {
		timeframes = DefaultTimeframes
	}
	if limit < MinCandles {
		limit = defaultKlineLimit
	}
	return &Builder{source: source, timeframes: timeframes, limit: limit, now: time.Now}
}

// WithDerivatives adds funding and open-interest metrics to every Context.
func (b *Builder) WithDerivatives(src DerivativesSource) *Builder {
	b.derivatives = src
	return b
}

// Build fetches the ticker and per-timeframe indicators. A missing ticker is
// an error; a failing timeframe or derivatives source is only left out.
func (b *Builder) Build(ctx context.Context, symbol string, news []decision.NewsItem) (decision.Context, error) {
	tk, err := b.source.GetTicker(ctx, symbol)
	if err != nil {
		return decision.Context{}, fmt.Errorf("ticker %s: %w", symbol, err)
	}
	if tk.Last <= 0 {
		return decision.Context{}, fmt.Errorf("ticker %s: no last price", symbol)
	}
	now := b.now()
	out := decision.Context{
		Symbol:     symbol,
		Ticker:     decision.Ticker{Last: tk.Last, Bid: tk.Bid, Ask: tk.Ask},
		Indicators: make(map[string]decision.IndicatorSet, len(b.timeframes)),
		News:       news,
		At:         now,
	}
	for _, tf := range b.timeframes {
		tf = strings.ToLower(strings.TrimSpace(tf))
		if tf == "" {
			continue
		}
		klines, err := b.source.Klines(ctx, symbol, tf, b.limit)
		if err != nil {
			logger.Warnf("market: klines %s %s failed: %v", symbol, tf, err)
			continue
		}
		if dur, ok := ParseIntervalDuration(tf); ok {
			klines = DropUnclosed(klines, dur, now)
		}
		set, err := ComputeIndicators(klines)
		if err != nil {
			logger.Warnf("market: indicators %s %s skipped: %v", symbol, tf, err)
			continue
		}
		out.Indicators[tf] = set
	}
	if b.derivatives != nil {
		metrics, err := b.derivatives.Derivatives(ctx, symbol)
		if err != nil {
			logger.Warnf("market: derivatives %s skipped: %v", symbol, err)
		} else if len(metrics) > 0 {
			out.Derivatives = metrics
		}
	}
	return out, nil
}
