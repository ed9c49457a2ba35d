// Package risk applies account level exposure limits to a Decision.
package risk

import (
	"fmt"
	"math"
	"sync"

	"tradecouncil/internal/decision"
	"tradecouncil/internal/logger"

	"github.com/shopspring/decimal"
)

// sizePrecision is the number of decimals a resized quantity keeps. Resizing
// rounds down so the resized value never exceeds the limit.
const sizePrecision = 8

// Config limits are fractions of the free quote balance.
type Config struct {
	MaxPositionSize float64
	PerTradeRiskCap float64
}

func (c Config) Validate() error {
	for name, v := range map[string]float64{
		"max_position_size":  c.MaxPositionSize,
		"per_trade_risk_cap": c.PerTradeRiskCap,
	} {
		if math.IsNaN(v) || v <= 0 || v > 1 {
			return fmt.Errorf("risk.%s must be in (0,1], got %v", name, v)
		}
	}
	return nil
}

// Verdict carries the decision to act on. A rejected decision still explains
// itself in its reason.
type Verdict struct {
	Approved bool
	Decision decision.Decision
}

// Gate is safe for concurrent use; limits can be swapped at runtime.
type Gate struct {
	mu  sync.RWMutex
	cfg Config
}

func NewGate(cfg Config) *Gate {
	return &Gate{cfg: cfg}
}

func (g *Gate) Config() Config {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cfg
}

// Update replaces the limits; invalid limits are ignored.
func (g *Gate) Update(cfg Config) {
	if err := cfg.Validate(); err != nil {
		logger.Warnf("risk: ignored config update: %v", err)
		return
	}
	g.mu.Lock()
	prev := g.cfg
	g.cfg = cfg
	g.mu.Unlock()
	if prev != cfg {
		logger.Infof("risk: limits updated max_position_size=%v per_trade_risk_cap=%v", cfg.MaxPositionSize, cfg.PerTradeRiskCap)
	}
}

// Evaluate resizes the trade to the position limit first and only then checks
// the per-trade cap against the resized value. HOLD and WAIT skip valuation
// and are approved with size 0. marketPrice is used when the decision has no
// price of its own.
func (g *Gate) Evaluate(d decision.Decision, freeBalance, marketPrice float64) Verdict {
	cfg := g.Config()

	if !d.Action.IsTrade() {
		if d.Size != 0 {
			d = d.WithSize(0, "")
		}
		return Verdict{Approved: true, Decision: d}
	}

	price := decFromFloat(marketPrice)
	if d.Price != nil && *d.Price > 0 {
		price = decFromFloat(*d.Price)
	}
	if !price.IsPositive() {
		return reject(d, "risk: rejected, no valuation price")
	}
	if d.Size < 0 {
		d = d.WithSize(0, "risk: negative size clamped to 0")
	}
	size := decFromFloat(d.Size)
	if !size.IsPositive() {
		return reject(d, "risk: rejected, zero size")
	}

	balance := decFromFloat(freeBalance)
	if balance.IsNegative() {
		balance = decimal.Zero
	}
	maxPosition := balance.Mul(decFromFloat(cfg.MaxPositionSize))
	value := size.Mul(price)
	if value.GreaterThan(maxPosition) {
		resized := maxPosition.Div(price).RoundDown(sizePrecision)
		note := fmt.Sprintf("risk: resized %s -> %s (value %s > max position %s)",
			size.String(), resized.String(), value.StringFixed(2), maxPosition.StringFixed(2))
		d = d.WithSize(resized.InexactFloat64(), note)
		size = resized
		value = size.Mul(price)
		if !size.IsPositive() {
			return reject(d, "risk: rejected, zero size after resize")
		}
	}

	perTradeCap := balance.Mul(decFromFloat(cfg.PerTradeRiskCap))
	if value.GreaterThan(perTradeCap) {
		return reject(d, fmt.Sprintf("risk: rejected, value %s > per-trade cap %s", value.StringFixed(2), perTradeCap.StringFixed(2)))
	}
	return Verdict{Approved: true, Decision: d}
}

func reject(d decision.Decision, note string) Verdict {
	logger.Warnf("%s (action=%s size=%v)", note, d.Action, d.Size)
	return Verdict{Approved: false, Decision: d.WithNote(note)}
}

func decFromFloat(v float64) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}
