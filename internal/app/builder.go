package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"tradecouncil/internal/config"
	"tradecouncil/internal/decision"
	"tradecouncil/internal/engine"
	"tradecouncil/internal/executor"
	"tradecouncil/internal/gateway/binance"
	"tradecouncil/internal/gateway/exchange"
	"tradecouncil/internal/gateway/gate"
	"tradecouncil/internal/gateway/notifier"
	"tradecouncil/internal/gateway/paper"
	"tradecouncil/internal/gateway/provider"
	"tradecouncil/internal/logger"
	"tradecouncil/internal/market"
	"tradecouncil/internal/news"
	"tradecouncil/internal/risk"
	"tradecouncil/internal/scheduler"
	"tradecouncil/internal/store"
	"tradecouncil/internal/store/gormstore"
	statushttp "tradecouncil/internal/transport/http"
)

// Venue is an exchange that can also serve market data.
type Venue interface {
	exchange.Adapter
	market.Source
}

// Store is the persistence surface the app wires: the cycle engine writes
// through it and the status API reads from it.
type Store interface {
	store.Store
	ListTrades(ctx context.Context, limit int) ([]store.TradeRecord, error)
}

type AppBuilder struct {
	cfg *config.Config

	storeFn     func(path string) (Store, error)
	venueFn     func(config.ExchangeConfig) (Venue, error)
	providersFn func(context.Context, *config.Config) ([]provider.Client, error)
	promptsFn   func(path string) (decision.PromptTemplates, error)
	riskWatchFn func(path string, initial config.RiskConfig) (*config.RiskWatcher, error)
	httpFn      func(statushttp.ServerConfig) (*statushttp.Server, error)
	notifierFn  func(config.NotifyConfig) (notifier.TextNotifier, error)
	derivFn     func(config.DerivConfig) (market.DerivativesSource, error)
}

type AppBuilderOption func(*AppBuilder)

// WithStore replaces the sqlite store, mainly for tests.
func WithStore(st Store) AppBuilderOption {
	return func(b *AppBuilder) {
		b.storeFn = func(string) (Store, error) { return st, nil }
	}
}

// WithVenue replaces the configured exchange.
func WithVenue(v Venue) AppBuilderOption {
	return func(b *AppBuilder) {
		b.venueFn = func(config.ExchangeConfig) (Venue, error) { return v, nil }
	}
}

// WithProviders replaces the configured reasoning backends.
func WithProviders(clients ...provider.Client) AppBuilderOption {
	return func(b *AppBuilder) {
		b.providersFn = func(context.Context, *config.Config) ([]provider.Client, error) {
			return clients, nil
		}
	}
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:         cfg,
		storeFn:     openStore,
		venueFn:     buildVenue,
		providersFn: buildProviders,
		promptsFn:   loadPrompts,
		riskWatchFn: config.WatchRisk,
		httpFn:      statushttp.NewServer,
		notifierFn:  buildNotifier,
		derivFn:     buildDerivatives,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func openStore(path string) (Store, error) {
	st, err := gormstore.NewGormStore(path)
	if err != nil {
		return nil, err
	}
	return st, nil
}

func buildVenue(cfg config.ExchangeConfig) (Venue, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case config.ExchangePaper:
		return paper.New(paper.Config{
			Balances: cfg.Paper.Balances,
			Price:    cfg.Paper.Price,
			Seed:     cfg.Paper.Seed,
		}), nil
	case config.ExchangeBinance:
		spot, err := binance.New(binance.Config{
			APIKey:       cfg.APIKey,
			APISecret:    cfg.APISecret,
			Testnet:      cfg.Testnet,
			RESTBaseURL:  cfg.RESTBaseURL,
			HTTPTimeout:  time.Duration(cfg.TimeoutSeconds) * time.Second,
			ProxyEnabled: strings.TrimSpace(cfg.ProxyURL) != "",
			RESTProxyURL: cfg.ProxyURL,
		})
		if err != nil {
			return nil, err
		}
		return spot, nil
	default:
		return nil, fmt.Errorf("unsupported exchange kind %q", cfg.Kind)
	}
}

func buildProviders(ctx context.Context, cfg *config.Config) ([]provider.Client, error) {
	format := provider.ResponseFormat{}
	if strings.EqualFold(cfg.Debate.StructuredOutput, config.OutputJSONSchema) {
		format = decision.ResponseFormat(cfg.Debate.ThinkingMaxChars)
	}
	timeout := time.Duration(cfg.Debate.CallTimeoutSeconds) * time.Second
	clients := provider.BuildProvidersFromConfig(ctx, cfg.ProviderModels(), timeout, format)
	if len(clients) == 0 {
		return nil, fmt.Errorf("no enabled providers configured")
	}
	return clients, nil
}

func buildNotifier(cfg config.NotifyConfig) (notifier.TextNotifier, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	tg, err := notifier.NewTelegram(notifier.TelegramConfig{
		BotToken: cfg.BotToken,
		ChatID:   cfg.ChatID,
		BaseURL:  cfg.BaseURL,
	})
	if err != nil {
		return nil, err
	}
	return tg, nil
}

func buildDerivatives(cfg config.DerivConfig) (market.DerivativesSource, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	src, err := gate.New(gate.Config{
		RESTBaseURL:  cfg.RESTBaseURL,
		HTTPTimeout:  time.Duration(cfg.TimeoutSeconds) * time.Second,
		RESTProxyURL: cfg.ProxyURL,
		Period:       cfg.Period,
		Limit:        cfg.Limit,
	})
	if err != nil {
		return nil, err
	}
	return src, nil
}

// loadPrompts keeps the built-in wording when prompts.yaml is absent.
func loadPrompts(path string) (decision.PromptTemplates, error) {
	if strings.TrimSpace(path) == "" {
		return decision.PromptTemplates{}, nil
	}
	tpl, err := decision.LoadPromptTemplates(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warnf("prompts: %s not found, using built-in templates", path)
		return decision.PromptTemplates{}, nil
	}
	return tpl, err
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b == nil || b.cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := b.cfg

	st, err := b.storeFn(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	cleanup := func() {
		if cerr := st.Close(); cerr != nil {
			logger.Warnf("close store: %v", cerr)
		}
	}

	venue, err := b.venueFn(cfg.Exchange)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("build exchange: %w", err)
	}

	decider, providerIDs, err := b.buildDecisionEngine(ctx)
	if err != nil {
		cleanup()
		return nil, err
	}

	gate := risk.NewGate(riskConfig(cfg.Risk))
	var watcher *config.RiskWatcher
	if cfg.Risk.Watch && cfg.Path() != "" {
		watcher, err = b.riskWatchFn(cfg.Path(), cfg.Risk)
		if err != nil {
			logger.Warnf("risk watch disabled: %v", err)
		} else {
			watcher.Subscribe(func(next config.RiskConfig) {
				gate.Update(riskConfig(next))
			})
		}
	}

	exec := executor.New(venue, st, exchange.OrderType(strings.ToLower(cfg.Trading.OrderType)))
	monitor := executor.NewMonitor(venue, st, executor.MonitorConfig{
		MaxAttempts: cfg.Monitor.MaxAttempts,
		Interval:    time.Duration(cfg.Monitor.IntervalSeconds) * time.Second,
	})

	var feed engine.NewsFeed
	if cfg.News.Enabled {
		feed = news.NewSource(news.Config{
			Enabled:         true,
			URL:             cfg.News.URL,
			MaxItems:        cfg.News.MaxItems,
			Timeout:         time.Duration(cfg.News.TimeoutSeconds) * time.Second,
			FetchArticles:   cfg.News.FetchArticles,
			ArticleInterval: time.Duration(cfg.News.ArticleIntervalMS) * time.Millisecond,
		}, st)
	}

	notify, err := b.notifierFn(cfg.Notify)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("build notifier: %w", err)
	}

	mb := market.NewBuilder(venue, cfg.Trading.Timeframes, cfg.Trading.KlineLimit)
	deriv, err := b.derivFn(cfg.Deriv)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("build derivatives source: %w", err)
	}
	if deriv != nil {
		mb.WithDerivatives(deriv)
	}

	runner := engine.NewCycleRunner(engine.Params{
		Symbol:           cfg.Trading.Symbol,
		QuoteCurrency:    cfg.Trading.QuoteCurrency,
		Exchange:         venue,
		Market:           mb,
		News:             feed,
		Decider:          decider,
		Gate:             gate,
		Executor:         exec,
		Monitor:          monitor,
		Cycles:           st,
		Notifier:         notify,
		BreakerThreshold: cfg.Debate.BreakerThreshold,
		BreakerCooldown:  time.Duration(cfg.Debate.BreakerCooldownSeconds) * time.Second,
	})

	sched := scheduler.New(time.Duration(cfg.Trading.CycleIntervalMinutes) * time.Minute)
	sched.Align = cfg.Trading.AlignToInterval
	sched.RunOnce = cfg.Trading.RunOnce

	var httpSrv *statushttp.Server
	if addr := strings.TrimSpace(cfg.App.HTTPAddr); addr != "" {
		httpSrv, err = b.httpFn(statushttp.ServerConfig{
			Addr:   addr,
			Cycles: st,
			Trades: st,
			Risk:   gate,
		})
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("build status http: %w", err)
		}
	}

	return &App{
		cfg:       cfg,
		store:     st,
		runner:    runner,
		scheduler: sched,
		http:      httpSrv,
		watcher:   watcher,
		Summary:   newStartupSummary(cfg, venue.Name(), providerIDs, httpSrv),
	}, nil
}

func (b *AppBuilder) buildDecisionEngine(ctx context.Context) (*decision.Engine, []string, error) {
	cfg := b.cfg
	clients, err := b.providersFn(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("build providers: %w", err)
	}
	tpl, err := b.promptsFn(cfg.Prompts.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("load prompts: %w", err)
	}
	parser, err := decision.NewParser(cfg.Debate.ThinkingMaxChars)
	if err != nil {
		return nil, nil, fmt.Errorf("build parser: %w", err)
	}
	coord := decision.NewCoordinator(clients, decision.CoordinatorConfig{
		Rounds:           cfg.Debate.Rounds,
		CallTimeout:      time.Duration(cfg.Debate.CallTimeoutSeconds) * time.Second,
		CycleDeadline:    time.Duration(cfg.Debate.CycleDeadlineSeconds) * time.Second,
		Parallel:         cfg.Debate.Parallel,
		BreakerThreshold: cfg.Debate.BreakerThreshold,
		BreakerCooldown:  time.Duration(cfg.Debate.BreakerCooldownSeconds) * time.Second,
	})
	prompts := decision.NewPromptBuilder(tpl, cfg.Debate.ThinkingMaxChars)
	return decision.NewEngine(prompts, coord, parser, cfg.Trading.DefaultSize), coord.Providers(), nil
}

func riskConfig(rc config.RiskConfig) risk.Config {
	return risk.Config{
		MaxPositionSize: rc.MaxPositionSize,
		PerTradeRiskCap: rc.PerTradeRiskCap,
	}
}
