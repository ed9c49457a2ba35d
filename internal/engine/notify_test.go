package engine

import (
	"context"
	"sync"
	"testing"

	"tradecouncil/internal/decision"
	"tradecouncil/internal/executor"
	"tradecouncil/internal/gateway/exchange"
	"tradecouncil/internal/gateway/paper"
	"tradecouncil/internal/pkg/circuit"
	"tradecouncil/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (n *recordingNotifier) SendText(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, text)
	return nil
}

func TestNotifyOnFilledOrder(t *testing.T) {
	ex := paper.New(paper.Config{Seed: 7})
	solo := &scriptedProvider{id: "solo", reply: `{"Decision":"BUY","Rating":4,"Thinking":"ok"}`}
	exec := new(MockExecutor)
	filled := exchange.Order{ID: "o-9", Symbol: "BTC/USDT", Side: exchange.SideBuy, Type: exchange.OrderMarket,
		Amount: 0.01, Filled: 0.01, Average: 50000, Status: exchange.StatusClosed}
	exec.On("Execute", mock.Anything, mock.Anything, mock.Anything).Return(filled, nil).Once()
	n := &recordingNotifier{}

	p := baseParams(t, ex, newDecider(t, solo), exec, &memCycles{})
	p.Monitor = executor.NewMonitor(ex, nil, executor.MonitorConfig{MaxAttempts: 1})
	p.Notifier = n
	out := NewCycleRunner(p).RunCycle(context.Background())
	require.NoError(t, out.Err)

	require.Len(t, n.texts, 1)
	text := n.texts[0]
	assert.Contains(t, text, "*BUY BTC/USDT filled*")
	assert.Contains(t, text, "- solo BUY 4")
	assert.Contains(t, text, "- id o-9")
	assert.Contains(t, text, "- filled 0.01 @ 50000")
	assert.Contains(t, text, "cycle "+out.CycleID)
}

func TestNotifyOnFailureOnly(t *testing.T) {
	ex := paper.New(paper.Config{Seed: 7})
	n := &recordingNotifier{}

	p := baseParams(t, ex, newDecider(t), new(MockExecutor), &memCycles{})
	p.Notifier = n
	out := NewCycleRunner(p).RunCycle(context.Background())
	require.Equal(t, store.CycleCompleted, out.Status)
	assert.Empty(t, n.texts)

	p = baseParams(t, ex, fixedDecider{d: decision.Decision{Action: decision.ActionWait}}, new(MockExecutor), &memCycles{})
	p.Market = failingMarket{}
	p.Notifier = n
	out = NewCycleRunner(p).RunCycle(context.Background())
	require.Equal(t, store.CycleFailed, out.Status)
	require.Len(t, n.texts, 1)
	assert.Contains(t, n.texts[0], "*BTC/USDT cycle failed*")
	assert.Contains(t, n.texts[0], "ticker unavailable")
}

func TestBreakerOpenNotifies(t *testing.T) {
	ex := paper.New(paper.Config{Seed: 7})
	n := &recordingNotifier{}
	p := baseParams(t, ex, newDecider(t), new(MockExecutor), &memCycles{})
	p.Notifier = n
	r := NewCycleRunner(p)

	r.onBreakerChange("CycleRunner", circuit.StateHalfOpen, circuit.StateClosed)
	assert.Empty(t, n.texts)

	r.onBreakerChange("CycleRunner", circuit.StateClosed, circuit.StateOpen)
	require.Len(t, n.texts, 1)
	assert.Contains(t, n.texts[0], "*BTC/USDT cycles paused*")
	assert.Contains(t, n.texts[0], "CycleRunner opened")
}
