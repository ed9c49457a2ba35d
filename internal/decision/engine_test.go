package decision

import (
	"context"
	"errors"
	"testing"
	"time"

	"tradecouncil/internal/gateway/provider"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, clients ...provider.Client) *Engine {
	t.Helper()
	parser, err := NewParser(DefaultThinkingLimit)
	require.NoError(t, err)
	coord := NewCoordinator(clients, CoordinatorConfig{Rounds: 3, CallTimeout: time.Second, Parallel: true})
	return NewEngine(NewPromptBuilder(PromptTemplates{}, DefaultThinkingLimit), coord, parser, 0.01)
}

func TestEngineSingleProviderBuy(t *testing.T) {
	p := newFake("solo", constant(`{"Decision":"BUY","Rating":4,"Thinking":"ok"}`))
	e := newTestEngine(t, p)

	res := e.Decide(context.Background(), Context{Symbol: "BTC/USDT", Ticker: Ticker{Last: 50000}})
	assert.Equal(t, ActionBuy, res.Decision.Action)
	assert.InDelta(t, 0.8, res.Decision.Confidence, 1e-9)
	assert.Equal(t, "BTC/USDT", res.Decision.Symbol)
	assert.Equal(t, 0.01, res.Decision.Size)
	assert.Equal(t, 3, p.calls)
	require.Len(t, res.Votes, 1)
}

func TestEngineUsesOnlyFinalMessage(t *testing.T) {
	flip := newFake("flip", func(_ context.Context, call int, _ []provider.Message) (string, error) {
		if call < 3 {
			return `{"Decision":"BUY","Rating":5}`, nil
		}
		return `{"Decision":"SELL","Rating":2}`, nil
	})
	e := newTestEngine(t, flip)
	res := e.Decide(context.Background(), Context{Symbol: "BTC/USDT"})
	assert.Equal(t, ActionSell, res.Decision.Action)
	assert.InDelta(t, 0.4, res.Decision.Confidence, 1e-9)
}

func TestEngineAllProvidersFail(t *testing.T) {
	broken := newFake("broken", func(context.Context, int, []provider.Message) (string, error) {
		return "", errors.New("unauthorized")
	})
	chatty := newFake("chatty", constant("I would rather not say."))
	e := newTestEngine(t, broken, chatty)

	res := e.Decide(context.Background(), Context{Symbol: "BTC/USDT"})
	assert.Equal(t, ActionWait, res.Decision.Action)
	assert.Equal(t, 0.0, res.Decision.Confidence)
	assert.Equal(t, "no parseable votes", res.Decision.Reason)
	assert.Len(t, res.Dropped, 2)
}
