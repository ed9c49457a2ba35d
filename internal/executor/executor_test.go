package executor

import (
	"context"
	"errors"
	"testing"

	"tradecouncil/internal/decision"
	"tradecouncil/internal/gateway/exchange"
	"tradecouncil/internal/risk"
	"tradecouncil/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func approved(d decision.Decision) risk.Verdict {
	return risk.Verdict{Approved: true, Decision: d}
}

func TestExecuteMarketOrder(t *testing.T) {
	ex := new(MockExchange)
	sink := new(MockSink)
	ack := exchange.Order{ID: "o-1", Symbol: "BTC/USDT", Side: exchange.SideBuy, Type: exchange.OrderMarket,
		Amount: 0.01, Status: exchange.StatusOpen, Raw: []byte(`{"id":"o-1"}`)}

	ex.On("CreateOrder", mock.Anything, exchange.OrderRequest{
		Symbol: "BTC/USDT", Side: exchange.SideBuy, Type: exchange.OrderMarket, Amount: 0.01,
	}).Return(ack, nil).Once()
	sink.On("SaveOrder", mock.Anything, mock.MatchedBy(func(rec store.OrderRecord) bool {
		return rec.OrderID == "o-1" && rec.CycleID == "c-1" && rec.Exchange == "mock" && string(rec.Raw) == `{"id":"o-1"}`
	})).Return(nil).Once()

	e := New(ex, sink, exchange.OrderMarket)
	got, err := e.Execute(context.Background(), "c-1", approved(decision.Decision{
		Action: decision.ActionBuy, Symbol: "BTC/USDT", Size: 0.01,
	}))
	require.NoError(t, err)
	assert.Equal(t, "o-1", got.ID)
	ex.AssertExpectations(t)
	sink.AssertExpectations(t)
}

func TestExecutePricedDecisionIsLimit(t *testing.T) {
	ex := new(MockExchange)
	price := 48000.0
	ex.On("CreateOrder", mock.Anything, mock.MatchedBy(func(req exchange.OrderRequest) bool {
		return req.Type == exchange.OrderLimit && req.Side == exchange.SideSell && req.Price != nil && *req.Price == price
	})).Return(exchange.Order{ID: "o-2", Status: exchange.StatusOpen}, nil).Once()

	e := New(ex, nil, exchange.OrderMarket)
	got, err := e.Execute(context.Background(), "c-1", approved(decision.Decision{
		Action: decision.ActionSell, Symbol: "BTC/USDT", Size: 0.5, Price: &price,
	}))
	require.NoError(t, err)
	assert.Equal(t, exchange.OrderLimit, got.Type)
	assert.Equal(t, "BTC/USDT", got.Symbol)
	ex.AssertExpectations(t)
}

func TestExecuteRefusesRejectedAndNonTrades(t *testing.T) {
	ex := new(MockExchange)
	e := New(ex, nil, exchange.OrderMarket)

	_, err := e.Execute(context.Background(), "c-1", risk.Verdict{
		Decision: decision.Decision{Action: decision.ActionBuy, Size: 1},
	})
	assert.ErrorIs(t, err, ErrNotApproved)

	_, err = e.Execute(context.Background(), "c-1", approved(decision.Decision{Action: decision.ActionHold}))
	assert.ErrorIs(t, err, ErrNothingToExecute)

	_, err = e.Execute(context.Background(), "c-1", approved(decision.Decision{Action: decision.ActionBuy}))
	assert.ErrorIs(t, err, ErrNothingToExecute)

	ex.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
}

func TestExecuteSubmissionErrorIsNotRetried(t *testing.T) {
	ex := new(MockExchange)
	ex.On("CreateOrder", mock.Anything, mock.Anything).
		Return(exchange.Order{}, errors.New("exchange down")).Once()

	e := New(ex, nil, exchange.OrderMarket)
	_, err := e.Execute(context.Background(), "c-1", approved(decision.Decision{
		Action: decision.ActionBuy, Symbol: "BTC/USDT", Size: 0.01,
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exchange down")
	ex.AssertNumberOfCalls(t, "CreateOrder", 1)
}

func TestExecuteKeepsOrderWhenPersistFails(t *testing.T) {
	ex := new(MockExchange)
	sink := new(MockSink)
	ex.On("CreateOrder", mock.Anything, mock.Anything).
		Return(exchange.Order{ID: "o-3", Status: exchange.StatusClosed}, nil).Once()
	sink.On("SaveOrder", mock.Anything, mock.Anything).Return(errors.New("disk full")).Once()

	e := New(ex, sink, exchange.OrderMarket)
	got, err := e.Execute(context.Background(), "c-1", approved(decision.Decision{
		Action: decision.ActionBuy, Symbol: "BTC/USDT", Size: 0.01,
	}))
	require.NoError(t, err)
	assert.Equal(t, "o-3", got.ID)
}
