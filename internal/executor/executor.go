// Package executor turns an approved decision into an exchange order and
// follows that order until it fills or the poll budget runs out.
package executor

import (
	"context"
	"errors"
	"fmt"

	"tradecouncil/internal/decision"
	"tradecouncil/internal/gateway/exchange"
	"tradecouncil/internal/logger"
	"tradecouncil/internal/risk"
	"tradecouncil/internal/store"
)

var (
	// ErrNotApproved is returned when a rejected verdict reaches the executor.
	ErrNotApproved = errors.New("decision not approved")
	// ErrNothingToExecute is returned for HOLD/WAIT or zero-size decisions.
	ErrNothingToExecute = errors.New("nothing to execute")
)

// Executor submits one order per call. Submission errors are never retried;
// the next cycle decides again from scratch.
type Executor struct {
	ex        exchange.Adapter
	sink      store.OrderSink
	orderType exchange.OrderType
}

// New builds an Executor. orderType is used when the decision carries no
// price; a priced decision always becomes a limit order.
func New(ex exchange.Adapter, sink store.OrderSink, orderType exchange.OrderType) *Executor {
	if orderType != exchange.OrderLimit {
		orderType = exchange.OrderMarket
	}
	return &Executor{ex: ex, sink: sink, orderType: orderType}
}

// Execute submits the verdict's decision and persists the acknowledgement.
func (e *Executor) Execute(ctx context.Context, cycleID string, v risk.Verdict) (exchange.Order, error) {
	if e == nil || e.ex == nil {
		return exchange.Order{}, fmt.Errorf("executor not initialized")
	}
	if !v.Approved {
		return exchange.Order{}, ErrNotApproved
	}
	req, err := e.request(v.Decision)
	if err != nil {
		return exchange.Order{}, err
	}
	order, err := e.ex.CreateOrder(ctx, req)
	if err != nil {
		logger.Errorf("executor: %s %s %s %.8f failed on %s: %v",
			req.Type, req.Side, req.Symbol, req.Amount, e.ex.Name(), err)
		return exchange.Order{}, fmt.Errorf("create order: %w", err)
	}
	if order.Symbol == "" {
		order.Symbol = req.Symbol
	}
	if order.Side == "" {
		order.Side = req.Side
	}
	if order.Type == "" {
		order.Type = req.Type
	}
	logger.Infof("executor: order %s %s %s %.8f status=%s", order.ID, order.Side, order.Symbol, order.Amount, order.Status)
	if e.sink != nil {
		if err := e.sink.SaveOrder(ctx, store.OrderRecordFrom(cycleID, e.ex.Name(), order)); err != nil {
			// The order exists on the exchange either way; monitoring must go on.
			logger.Warnf("executor: persist order %s failed: %v", order.ID, err)
		}
	}
	return order, nil
}

func (e *Executor) request(d decision.Decision) (exchange.OrderRequest, error) {
	if !d.Action.IsTrade() || d.Size <= 0 {
		return exchange.OrderRequest{}, fmt.Errorf("%w: action=%s size=%v", ErrNothingToExecute, d.Action, d.Size)
	}
	req := exchange.OrderRequest{
		Symbol: d.Symbol,
		Side:   exchange.Side(d.Action.Side()),
		Type:   exchange.OrderMarket,
		Amount: d.Size,
	}
	switch {
	case d.Price != nil && *d.Price > 0:
		p := *d.Price
		req.Type = exchange.OrderLimit
		req.Price = &p
	case e.orderType == exchange.OrderLimit:
		logger.Warnf("executor: limit order configured but decision has no price, sending market order")
	}
	return req, nil
}
