// Package paper is an in-process exchange for sandbox runs and tests.
// Market orders fill immediately at the reference price; limit orders fill
// once the reference price crosses them.
package paper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"tradecouncil/internal/gateway/exchange"
	"tradecouncil/internal/logger"
	"tradecouncil/internal/market"
	"tradecouncil/internal/pkg/symbol"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	DefaultPrice  = 50000.0
	spreadRatio   = 0.0002
	waveAmplitude = 0.02
	noiseRatio    = 0.004
)

var ErrInsufficientBalance = errors.New("insufficient balance")

type Config struct {
	// Balances are starting free balances by currency.
	Balances map[string]float64
	Price    float64
	// Seed makes synthetic klines reproducible; zero uses the clock.
	Seed int64
}

// DefaultBalances mirrors a small sandbox account.
func DefaultBalances() map[string]float64 {
	return map[string]float64{"USDT": 10000, "BTC": 0.5}
}

type Exchange struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	price    decimal.Decimal
	orders   map[string]exchange.Order
	scripts  map[string][]exchange.OrderStatus
	next     []exchange.OrderStatus
	rng      *rand.Rand
	now      func() time.Time
}

func New(cfg Config) *Exchange {
	if len(cfg.Balances) == 0 {
		cfg.Balances = DefaultBalances()
	}
	if cfg.Price <= 0 {
		cfg.Price = DefaultPrice
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	balances := make(map[string]decimal.Decimal, len(cfg.Balances))
	for ccy, v := range cfg.Balances {
		balances[strings.ToUpper(strings.TrimSpace(ccy))] = decimal.NewFromFloat(v)
	}
	return &Exchange{
		balances: balances,
		price:    decimal.NewFromFloat(cfg.Price),
		orders:   make(map[string]exchange.Order),
		scripts:  make(map[string][]exchange.OrderStatus),
		rng:      rand.New(rand.NewSource(seed)),
		now:      time.Now,
	}
}

func (e *Exchange) Name() string { return "paper" }

// SetPrice moves the reference price used for fills and tickers.
func (e *Exchange) SetPrice(price float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.price = decimal.NewFromFloat(price)
}

// Script makes the next created order report statuses in sequence on each
// FetchOrder; the last status repeats. Balances are not moved for scripted
// orders.
func (e *Exchange) Script(statuses ...exchange.OrderStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.next = append([]exchange.OrderStatus(nil), statuses...)
}

func (e *Exchange) GetBalance(context.Context) (exchange.Balances, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(exchange.Balances, len(e.balances))
	for ccy, v := range e.balances {
		f := v.InexactFloat64()
		out[ccy] = exchange.Balance{Free: f, Total: f}
	}
	return out, nil
}

func (e *Exchange) GetTicker(_ context.Context, sym string) (exchange.Ticker, error) {
	e.mu.Lock()
	last := e.price.InexactFloat64()
	e.mu.Unlock()
	return exchange.Ticker{
		Symbol: symbol.Normalize(sym),
		Last:   last,
		Bid:    last * (1 - spreadRatio),
		Ask:    last * (1 + spreadRatio),
		At:     e.now(),
	}, nil
}

func (e *Exchange) CreateOrder(_ context.Context, req exchange.OrderRequest) (exchange.Order, error) {
	sym := symbol.Parse(req.Symbol)
	if !sym.Valid() {
		return exchange.Order{}, fmt.Errorf("paper: invalid symbol %q", req.Symbol)
	}
	if req.Amount <= 0 {
		return exchange.Order{}, fmt.Errorf("paper: amount must be positive, got %v", req.Amount)
	}
	if req.Side != exchange.SideBuy && req.Side != exchange.SideSell {
		return exchange.Order{}, fmt.Errorf("paper: invalid side %q", req.Side)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	orderType := req.Type
	if orderType == "" {
		orderType = exchange.OrderMarket
	}
	price := e.price
	if orderType == exchange.OrderLimit {
		if req.Price == nil || *req.Price <= 0 {
			return exchange.Order{}, fmt.Errorf("paper: limit order needs a price")
		}
		price = decimal.NewFromFloat(*req.Price)
	}
	order := exchange.Order{
		ID:        uuid.NewString(),
		Symbol:    sym.Internal(),
		Side:      req.Side,
		Type:      orderType,
		Amount:    req.Amount,
		Price:     price.InexactFloat64(),
		Status:    exchange.StatusOpen,
		CreatedAt: e.now().UTC(),
	}

	if len(e.next) > 0 {
		e.scripts[order.ID] = e.next
		e.next = nil
		return e.store(order), nil
	}

	if orderType == exchange.OrderMarket {
		filled, err := e.fill(order, sym, price)
		if err != nil {
			return exchange.Order{}, err
		}
		order = filled
	}
	logger.Infof("paper: %s %s %s amount=%v price=%s status=%s", order.Type, order.Side, order.Symbol, order.Amount, price, order.Status)
	return e.store(order), nil
}

func (e *Exchange) FetchOrder(_ context.Context, id, _ string) (exchange.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	order, ok := e.orders[id]
	if !ok {
		return exchange.Order{ID: id, Status: exchange.StatusUnknown}, nil
	}
	if script, ok := e.scripts[id]; ok {
		next := script[0]
		if len(script) > 1 {
			e.scripts[id] = script[1:]
		}
		order.Status = order.Status.Advance(next)
		if order.Status == exchange.StatusClosed && order.Filled == 0 {
			order.Filled = order.Amount
			order.Average = order.Price
		}
		return e.store(order), nil
	}
	if order.Status == exchange.StatusOpen && order.Type == exchange.OrderLimit && e.crossed(order) {
		sym := symbol.Parse(order.Symbol)
		filled, err := e.fill(order, sym, decimal.NewFromFloat(order.Price))
		if err != nil {
			logger.Warnf("paper: limit order %s canceled at fill: %v", id, err)
			order.Status = exchange.StatusCanceled
			return e.store(order), nil
		}
		return e.store(filled), nil
	}
	return order, nil
}

func (e *Exchange) CancelOrder(_ context.Context, id, _ string) (exchange.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	order, ok := e.orders[id]
	if !ok {
		return exchange.Order{}, exchange.ErrOrderNotFound
	}
	order.Status = order.Status.Advance(exchange.StatusCanceled)
	return e.store(order), nil
}

// Klines synthesises candles around the reference price from two sine cycles
// plus seeded noise.
func (e *Exchange) Klines(_ context.Context, _ string, interval string, limit int) ([]market.Candle, error) {
	step, ok := market.ParseIntervalDuration(interval)
	if !ok {
		return nil, fmt.Errorf("paper: bad interval %q", interval)
	}
	if limit <= 0 {
		limit = 100
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	base := e.price.InexactFloat64()
	end := e.now().UTC().Truncate(step)
	out := make([]market.Candle, 0, limit)
	for i := limit; i > 0; i-- {
		open := end.Add(-time.Duration(i) * step)
		hours := float64(open.Unix()) / 3600
		mid := base * (1 + waveAmplitude*math.Sin(hours/24)) * (1 + waveAmplitude/2*math.Sin(hours/168))
		noise := func() float64 { return 1 + noiseRatio*(e.rng.Float64()-0.5) }
		o, c := mid*noise(), mid*noise()
		hi := math.Max(o, c) * (1 + noiseRatio*e.rng.Float64())
		lo := math.Min(o, c) * (1 - noiseRatio*e.rng.Float64())
		out = append(out, market.Candle{
			OpenTime:  open.UnixMilli(),
			CloseTime: open.Add(step).UnixMilli() - 1,
			Open:      o,
			High:      hi,
			Low:       lo,
			Close:     c,
			Volume:    1000 * (1 + 0.2*e.rng.Float64()),
		})
	}
	return out, nil
}

func (e *Exchange) crossed(order exchange.Order) bool {
	limit := decimal.NewFromFloat(order.Price)
	if order.Side == exchange.SideBuy {
		return e.price.LessThanOrEqual(limit)
	}
	return e.price.GreaterThanOrEqual(limit)
}

// fill moves balances for order at price; caller holds mu.
func (e *Exchange) fill(order exchange.Order, sym symbol.Symbol, price decimal.Decimal) (exchange.Order, error) {
	amount := decimal.NewFromFloat(order.Amount)
	cost := amount.Mul(price)
	switch order.Side {
	case exchange.SideBuy:
		if e.balances[sym.Quote].LessThan(cost) {
			return exchange.Order{}, fmt.Errorf("%w: need %s %s, have %s", ErrInsufficientBalance, cost, sym.Quote, e.balances[sym.Quote])
		}
		e.balances[sym.Quote] = e.balances[sym.Quote].Sub(cost)
		e.balances[sym.Base] = e.balances[sym.Base].Add(amount)
	case exchange.SideSell:
		if e.balances[sym.Base].LessThan(amount) {
			return exchange.Order{}, fmt.Errorf("%w: need %s %s, have %s", ErrInsufficientBalance, amount, sym.Base, e.balances[sym.Base])
		}
		e.balances[sym.Base] = e.balances[sym.Base].Sub(amount)
		e.balances[sym.Quote] = e.balances[sym.Quote].Add(cost)
	}
	order.Status = exchange.StatusClosed
	order.Filled = order.Amount
	order.Average = price.InexactFloat64()
	return order, nil
}

// store records order with a raw acknowledgement and returns it; caller holds mu.
func (e *Exchange) store(order exchange.Order) exchange.Order {
	order.Raw = nil
	raw, err := json.Marshal(order)
	if err == nil {
		order.Raw = raw
	}
	e.orders[order.ID] = order
	return order
}
