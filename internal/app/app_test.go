package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tradecouncil/internal/config"
	"tradecouncil/internal/gateway/exchange"
	"tradecouncil/internal/gateway/provider"
	"tradecouncil/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedClient struct {
	id    string
	reply string
}

func (c scriptedClient) ID() string    { return c.id }
func (c scriptedClient) Enabled() bool { return true }

func (c scriptedClient) Send(context.Context, []provider.Message) (string, error) {
	return c.reply, nil
}

func loadTestConfig(t *testing.T, extra string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	body := `
trading:
  symbol: BTC/USDT
  run_once: true
debate:
  rounds: 2
providers:
  - id: alpha
    kind: openai_compat
    model: test-model
    api_key: sk-test
database:
  path: ` + filepath.Join(dir, "app.db") + `
exchange:
  kind: paper
  paper:
    price: 50000
    seed: 7
` + extra
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func buildTestApp(t *testing.T, cfg *config.Config, reply string) *App {
	t.Helper()
	b := NewAppBuilder(cfg, WithProviders(
		scriptedClient{id: "alpha", reply: reply},
		scriptedClient{id: "beta", reply: reply},
	))
	a, err := b.Build(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestRunOnceExecutesApprovedBuy(t *testing.T) {
	cfg := loadTestConfig(t, "")
	a := buildTestApp(t, cfg, `{"Decision":"BUY","Rating":4,"Thinking":"trend is up"}`)

	out, err := a.RunOnce(context.Background())
	require.NoError(t, err)
	require.NoError(t, out.Err)
	assert.Equal(t, store.CycleCompleted, out.Status)
	require.NotNil(t, out.Order)
	assert.Equal(t, exchange.StatusClosed, out.Order.Status)
	assert.InDelta(t, cfg.Trading.DefaultSize, out.Order.Amount, 1e-12)

	trades, err := a.store.ListTrades(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, out.Order.ID, trades[0].OrderID)

	latest, ok, err := a.store.LatestCycle(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, out.CycleID, latest.ID)
	assert.Equal(t, store.CycleCompleted, latest.Status)
}

func TestRunStopsAfterSingleCycleInRunOnceMode(t *testing.T) {
	cfg := loadTestConfig(t, "")
	a := buildTestApp(t, cfg, `{"Decision":"WAIT","Rating":2}`)
	a.Summary = nil

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, a.Run(ctx))

	latest, ok, err := a.store.LatestCycle(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, store.CycleCompleted, latest.Status)

	trades, err := a.store.ListTrades(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestBuildWiresStatusServerWhenAddressSet(t *testing.T) {
	cfg := loadTestConfig(t, "app:\n  http_addr: 127.0.0.1:0\n")
	a := buildTestApp(t, cfg, `{"Decision":"HOLD","Rating":3}`)
	require.NotNil(t, a.http)
	assert.Equal(t, "127.0.0.1:0", a.Summary.HTTPAddr)
}

func TestBuildVenueRejectsUnknownKind(t *testing.T) {
	_, err := buildVenue(config.ExchangeConfig{Kind: "kraken"})
	require.Error(t, err)

	v, err := buildVenue(config.ExchangeConfig{Kind: config.ExchangePaper})
	require.NoError(t, err)
	assert.Equal(t, "paper", v.Name())
}

func TestLoadPromptsFallsBackWhenFileMissing(t *testing.T) {
	tpl, err := loadPrompts(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Empty(t, tpl.System)
	assert.Empty(t, tpl.Task)
}

func TestSummaryListsProvidersAndRisk(t *testing.T) {
	cfg := loadTestConfig(t, "")
	a := buildTestApp(t, cfg, `{"Decision":"HOLD","Rating":3}`)

	var buf bytes.Buffer
	a.Summary.Fprint(&buf)
	out := buf.String()
	assert.Contains(t, out, "BTC/USDT")
	assert.Contains(t, out, "alpha, beta")
	assert.Contains(t, out, "schedule: once")
	assert.Contains(t, out, "max_position_size:  0.1")
}
