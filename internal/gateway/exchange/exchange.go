package exchange

import (
	"context"
	"errors"
)

// ErrOrderNotFound is returned by backends that can tell an order does not exist.
var ErrOrderNotFound = errors.New("order not found")

// Adapter is the trading capability the execution step relies on.
type Adapter interface {
	Name() string
	GetBalance(ctx context.Context) (Balances, error)
	CreateOrder(ctx context.Context, req OrderRequest) (Order, error)
	FetchOrder(ctx context.Context, id, symbol string) (Order, error)
}

// Canceler is implemented by adapters that can cancel open orders.
type Canceler interface {
	CancelOrder(ctx context.Context, id, symbol string) (Order, error)
}

// Quoter supplies the latest ticker for a symbol.
type Quoter interface {
	GetTicker(ctx context.Context, symbol string) (Ticker, error)
}
