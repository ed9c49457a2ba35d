package executor

import (
	"context"
	"fmt"
	"time"

	"tradecouncil/internal/gateway/exchange"
	"tradecouncil/internal/logger"
	"tradecouncil/internal/store"
)

const (
	DefaultMaxAttempts  = 10
	DefaultPollInterval = 6 * time.Second
)

// Outcome is how monitoring of one order ended.
type Outcome string

const (
	OutcomeFilled     Outcome = "filled"
	OutcomeCanceled   Outcome = "canceled"
	OutcomeUnresolved Outcome = "unresolved"
)

type MonitorConfig struct {
	MaxAttempts int
	Interval    time.Duration
}

func (c MonitorConfig) withDefaults() MonitorConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.Interval <= 0 {
		c.Interval = DefaultPollInterval
	}
	return c
}

// WatchResult reports the last observed order and, for fills, the trade.
type WatchResult struct {
	Outcome  Outcome
	Order    exchange.Order
	Trade    *store.TradeRecord
	Attempts int
}

// Monitor polls one order at a time with a fixed interval.
type Monitor struct {
	ex    exchange.Adapter
	sink  store.OrderSink
	cfg   MonitorConfig
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func NewMonitor(ex exchange.Adapter, sink store.OrderSink, cfg MonitorConfig) *Monitor {
	return &Monitor{
		ex:    ex,
		sink:  sink,
		cfg:   cfg.withDefaults(),
		sleep: sleepCtx,
		now:   time.Now,
	}
}

// Watch polls until the order is closed or canceled, or the attempt budget
// is spent. Budget exhaustion is not an error: the outcome is unresolved and
// no trade is written. The returned error covers context cancellation and
// trade persistence only.
func (m *Monitor) Watch(ctx context.Context, cycleID string, order exchange.Order) (WatchResult, error) {
	res := WatchResult{Outcome: OutcomeUnresolved, Order: order}
	if m == nil || m.ex == nil {
		return res, fmt.Errorf("monitor not initialized")
	}
	if order.Status.Terminal() {
		return m.finish(ctx, cycleID, res)
	}
	for attempt := 1; attempt <= m.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := m.sleep(ctx, m.cfg.Interval); err != nil {
				return res, err
			}
		}
		res.Attempts = attempt
		got, err := m.ex.FetchOrder(ctx, order.ID, order.Symbol)
		if err != nil {
			logger.Warnf("monitor: fetch order %s attempt %d/%d: %v", order.ID, attempt, m.cfg.MaxAttempts, err)
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			continue
		}
		next := merge(res.Order, got)
		if next.Status != res.Order.Status {
			m.persist(ctx, cycleID, next)
		}
		res.Order = next
		if next.Status.Terminal() {
			return m.finish(ctx, cycleID, res)
		}
	}
	logger.Warnf("monitor: order %s unresolved after %d attempts (last status %s)", order.ID, res.Attempts, res.Order.Status)
	m.persist(ctx, cycleID, res.Order)
	return res, nil
}

func (m *Monitor) finish(ctx context.Context, cycleID string, res WatchResult) (WatchResult, error) {
	o := res.Order
	if o.Status == exchange.StatusCanceled {
		res.Outcome = OutcomeCanceled
		logger.Infof("monitor: order %s canceled", o.ID)
		return res, nil
	}
	res.Outcome = OutcomeFilled
	filled := o.Filled
	if filled <= 0 {
		filled = o.Amount
	}
	avg := o.Average
	if avg <= 0 {
		avg = o.Price
	}
	trade := store.TradeRecord{
		OrderID:      o.ID,
		CycleID:      cycleID,
		Symbol:       o.Symbol,
		Side:         o.Side,
		FilledSize:   filled,
		AveragePrice: avg,
		CompletedAt:  m.now().UTC(),
	}
	res.Trade = &trade
	logger.Infof("monitor: order %s filled %.8f @ %.8f", o.ID, filled, avg)
	if m.sink == nil {
		return res, nil
	}
	if err := m.sink.SaveTrade(ctx, trade); err != nil {
		return res, fmt.Errorf("save trade %s: %w", o.ID, err)
	}
	return res, nil
}

func (m *Monitor) persist(ctx context.Context, cycleID string, o exchange.Order) {
	if m.sink == nil {
		return
	}
	if err := m.sink.SaveOrder(ctx, store.OrderRecordFrom(cycleID, m.ex.Name(), o)); err != nil {
		logger.Warnf("monitor: persist order %s failed: %v", o.ID, err)
	}
}

// merge takes the fresh snapshot but keeps identity fields the exchange may
// omit, and never lets the status move backwards.
func merge(prev, next exchange.Order) exchange.Order {
	out := next
	if out.ID == "" {
		out.ID = prev.ID
	}
	if out.Symbol == "" {
		out.Symbol = prev.Symbol
	}
	if out.Side == "" {
		out.Side = prev.Side
	}
	if out.Type == "" {
		out.Type = prev.Type
	}
	if out.Amount <= 0 {
		out.Amount = prev.Amount
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = prev.CreatedAt
	}
	out.Status = prev.Status.Advance(next.Status)
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
