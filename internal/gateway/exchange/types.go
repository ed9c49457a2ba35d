// Package exchange defines the order and balance model shared by every
// exchange backend (live Binance spot, in-process paper).
package exchange

import (
	"encoding/json"
	"strings"
	"time"
)

type OrderStatus string

const (
	StatusUnknown  OrderStatus = "unknown"
	StatusOpen     OrderStatus = "open"
	StatusClosed   OrderStatus = "closed"
	StatusCanceled OrderStatus = "canceled"
)

func (s OrderStatus) rank() int {
	switch s {
	case StatusOpen:
		return 1
	case StatusClosed, StatusCanceled:
		return 2
	default:
		return 0
	}
}

// Terminal reports whether no further transition is possible.
func (s OrderStatus) Terminal() bool { return s.rank() == 2 }

// Advance returns the status to keep when next is observed after s. Status
// only moves forward; a terminal status is never replaced.
func (s OrderStatus) Advance(next OrderStatus) OrderStatus {
	if s.Terminal() {
		return s
	}
	if next.rank() > s.rank() {
		return next
	}
	return s
}

func ParseStatus(s string) OrderStatus {
	switch OrderStatus(strings.ToLower(strings.TrimSpace(s))) {
	case StatusOpen:
		return StatusOpen
	case StatusClosed:
		return StatusClosed
	case StatusCanceled, "cancelled":
		return StatusCanceled
	}
	return StatusUnknown
}

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

type OrderType string

const (
	OrderMarket OrderType = "market"
	OrderLimit  OrderType = "limit"
)

// Order is a snapshot of an exchange order. Updates produce new snapshots.
type Order struct {
	ID        string          `json:"id"`
	Symbol    string          `json:"symbol"`
	Side      Side            `json:"side"`
	Type      OrderType       `json:"type"`
	Amount    float64         `json:"amount"`
	Price     float64         `json:"price"`
	Filled    float64         `json:"filled"`
	Average   float64         `json:"average"`
	Status    OrderStatus     `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

// OrderRequest asks for a new order. Price is ignored for market orders.
type OrderRequest struct {
	Symbol string
	Side   Side
	Type   OrderType
	Amount float64
	Price  *float64
}

type Balance struct {
	Free  float64 `json:"free"`
	Used  float64 `json:"used"`
	Total float64 `json:"total"`
}

// Balances is keyed by currency code, e.g. USDT.
type Balances map[string]Balance

func (b Balances) Free(currency string) float64 {
	return b[strings.ToUpper(strings.TrimSpace(currency))].Free
}

type Ticker struct {
	Symbol string    `json:"symbol"`
	Last   float64   `json:"last"`
	Bid    float64   `json:"bid"`
	Ask    float64   `json:"ask"`
	At     time.Time `json:"at"`
}
