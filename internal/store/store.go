// Package store describes the records a cycle persists and the sink that
// accepts them.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"tradecouncil/internal/gateway/exchange"
)

type CycleStatus string

const (
	CycleRunning   CycleStatus = "running"
	CycleCompleted CycleStatus = "completed"
	CycleFailed    CycleStatus = "failed"
)

func (s CycleStatus) Terminal() bool {
	return s == CycleCompleted || s == CycleFailed
}

// ErrCycleFinalized is returned when a finished cycle is written again.
var ErrCycleFinalized = errors.New("cycle already finalized")

type OrderRecord struct {
	OrderID   string
	CycleID   string
	Exchange  string
	Symbol    string
	Side      exchange.Side
	Type      exchange.OrderType
	Amount    float64
	Price     float64
	Filled    float64
	Average   float64
	Status    exchange.OrderStatus
	CreatedAt time.Time
	Raw       json.RawMessage
}

// OrderRecordFrom snapshots an exchange order for cycleID.
func OrderRecordFrom(cycleID, exchangeName string, o exchange.Order) OrderRecord {
	return OrderRecord{
		OrderID:   o.ID,
		CycleID:   cycleID,
		Exchange:  exchangeName,
		Symbol:    o.Symbol,
		Side:      o.Side,
		Type:      o.Type,
		Amount:    o.Amount,
		Price:     o.Price,
		Filled:    o.Filled,
		Average:   o.Average,
		Status:    o.Status,
		CreatedAt: o.CreatedAt,
		Raw:       o.Raw,
	}
}

// TradeRecord exists only for orders observed closed. One per order.
type TradeRecord struct {
	OrderID      string
	CycleID      string
	Symbol       string
	Side         exchange.Side
	FilledSize   float64
	AveragePrice float64
	CompletedAt  time.Time
}

type CycleRecord struct {
	ID        string
	Symbol    string
	StartedAt time.Time
	EndedAt   time.Time
	Status    CycleStatus
	Log       string
	Decision  json.RawMessage
}

type NewsRecord struct {
	Fingerprint string
	Title       string
	Summary     string
	URL         string
	FetchedAt   time.Time
}

// OrderSink persists order snapshots and trades.
type OrderSink interface {
	SaveOrder(ctx context.Context, rec OrderRecord) error
	SaveTrade(ctx context.Context, rec TradeRecord) error
}

// CycleSink persists cycles. A cycle is inserted running and finalized once.
type CycleSink interface {
	SaveCycle(ctx context.Context, rec CycleRecord) error
	LatestCycle(ctx context.Context) (CycleRecord, bool, error)
	LastCompletedCycle(ctx context.Context) (CycleRecord, bool, error)
}

type NewsStore interface {
	SaveNews(ctx context.Context, recs []NewsRecord) error
	KnownNewsFingerprints(ctx context.Context, fingerprints []string) (map[string]bool, error)
	RecentNews(ctx context.Context, since time.Time, limit int) ([]NewsRecord, error)
}

type Store interface {
	OrderSink
	CycleSink
	NewsStore
	Close() error
}
