package executor

import (
	"context"

	"tradecouncil/internal/gateway/exchange"
	"tradecouncil/internal/store"

	"github.com/stretchr/testify/mock"
)

type MockExchange struct {
	mock.Mock
}

func (m *MockExchange) Name() string { return "mock" }

func (m *MockExchange) GetBalance(ctx context.Context) (exchange.Balances, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(exchange.Balances), args.Error(1)
}

func (m *MockExchange) CreateOrder(ctx context.Context, req exchange.OrderRequest) (exchange.Order, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(exchange.Order), args.Error(1)
}

func (m *MockExchange) FetchOrder(ctx context.Context, id, symbol string) (exchange.Order, error) {
	args := m.Called(ctx, id, symbol)
	return args.Get(0).(exchange.Order), args.Error(1)
}

type MockSink struct {
	mock.Mock
}

func (m *MockSink) SaveOrder(ctx context.Context, rec store.OrderRecord) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *MockSink) SaveTrade(ctx context.Context, rec store.TradeRecord) error {
	return m.Called(ctx, rec).Error(0)
}
