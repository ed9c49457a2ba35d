package market

import (
	"fmt"
	"math"

	"tradecouncil/internal/decision"

	"github.com/markcheno/go-talib"
)

const (
	rsiPeriod     = 14
	emaFastPeriod = 20
	emaSlowPeriod = 50
	atrPeriod     = 14
	macdFast      = 12
	macdSlow      = 26
	macdSignal    = 9
)

// MinCandles is the shortest history for which every indicator is defined.
const MinCandles = macdSlow + macdSignal

// ComputeIndicators reduces finished candles to the latest value of each
// indicator. Indicators whose period exceeds the history are left out.
func ComputeIndicators(candles Candles) (decision.IndicatorSet, error) {
	if len(candles) < MinCandles {
		return nil, fmt.Errorf("need %d candles, have %d", MinCandles, len(candles))
	}
	highs, lows, closes := candles.Series()
	set := decision.IndicatorSet{
		"close": round4(closes[len(closes)-1]),
	}
	put := func(name string, series []float64) {
		if v, ok := lastValid(series); ok {
			set[name] = round4(v)
		}
	}
	put("rsi14", talib.Rsi(closes, rsiPeriod))
	put("ema20", talib.Ema(closes, emaFastPeriod))
	if len(closes) >= emaSlowPeriod {
		put("ema50", talib.Ema(closes, emaSlowPeriod))
	}
	put("atr14", talib.Atr(highs, lows, closes, atrPeriod))
	macd, signal, hist := talib.Macd(closes, macdFast, macdSlow, macdSignal)
	put("macd", macd)
	put("macd_signal", signal)
	put("macd_hist", hist)
	return set, nil
}

func lastValid(series []float64) (float64, bool) {
	if len(series) == 0 {
		return 0, false
	}
	v := series[len(series)-1]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
