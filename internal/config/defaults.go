package config

import (
	"strings"

	"tradecouncil/internal/pkg/symbol"
)

const (
	ExchangePaper   = "paper"
	ExchangeBinance = "binance"

	OutputJSONSchema = "json_schema"
	OutputJSONObject = "json_object"
)

const (
	defaultAppEnv          = "dev"
	defaultAppLogLevel     = "info"
	defaultAppLogPath      = "data/logs/tradecouncil.log"
	defaultAppLLMLogPath   = "data/logs/tradecouncil-llm.log"
	defaultSymbol          = "BTC/USDT"
	defaultCycleMinutes    = 10
	defaultOrderType       = "market"
	defaultSize            = 0.001
	defaultKlineLimit      = 200
	defaultMaxPosition     = 0.1
	defaultPerTradeCap     = 0.05
	defaultRounds          = 3
	defaultCallTimeout     = 60
	defaultCycleDeadline   = 600
	defaultThinkingMax     = 1000
	defaultBreakerFailures = 3
	defaultBreakerCooldown = 300
	defaultExchangeTimeout = 15
	defaultMonitorAttempts = 10
	defaultMonitorInterval = 6
	defaultNewsURL         = "https://cointelegraph.com/tags/bitcoin"
	defaultNewsMaxItems    = 5
	defaultNewsTimeout     = 20
	defaultNewsArticleMS   = 1000
	defaultDatabasePath    = "data/tradecouncil.db"
	defaultPromptsPath     = "prompts.yaml"
)

var defaultTimeframes = []string{"1h", "4h", "1d"}

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Trading.applyDefaults(keys)
	c.Risk.applyDefaults(keys)
	c.Debate.applyDefaults(keys)
	c.Exchange.applyDefaults(keys)
	c.Monitor.applyDefaults(keys)
	c.News.applyDefaults(keys)
	applyFieldDefaults(keys,
		stringFieldDefault("database.path", &c.Database.Path, defaultDatabasePath),
		stringFieldDefault("prompts.path", &c.Prompts.Path, defaultPromptsPath),
	)
	for i := range c.Providers {
		c.Providers[i].normalize()
	}
}

func (a *AppConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
		stringFieldDefault("app.llm_log_path", &a.LLMLog, defaultAppLLMLogPath),
	)
}

func (t *TradingConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("trading.symbol", &t.Symbol, defaultSymbol),
		stringFieldDefault("trading.order_type", &t.OrderType, defaultOrderType),
		intFieldDefault("trading.cycle_interval_minutes", &t.CycleIntervalMinutes, defaultCycleMinutes),
		intFieldDefault("trading.kline_limit", &t.KlineLimit, defaultKlineLimit),
		floatFieldDefault("trading.default_size", &t.DefaultSize, defaultSize),
		fieldDefault{
			key:   "trading.timeframes",
			need:  func() bool { return len(t.Timeframes) == 0 },
			apply: func() { t.Timeframes = append([]string(nil), defaultTimeframes...) },
		},
	)
	t.Symbol = strings.ToUpper(strings.TrimSpace(t.Symbol))
	if norm := symbol.Normalize(t.Symbol); norm != "" {
		t.Symbol = norm
	}
	t.QuoteCurrency = strings.ToUpper(strings.TrimSpace(t.QuoteCurrency))
	t.OrderType = strings.ToLower(strings.TrimSpace(t.OrderType))
}

func (r *RiskConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		floatFieldDefault("risk.max_position_size", &r.MaxPositionSize, defaultMaxPosition),
		floatFieldDefault("risk.per_trade_risk_cap", &r.PerTradeRiskCap, defaultPerTradeCap),
	)
}

func (d *DebateConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		intFieldDefault("debate.rounds", &d.Rounds, defaultRounds),
		intFieldDefault("debate.call_timeout_seconds", &d.CallTimeoutSeconds, defaultCallTimeout),
		intFieldDefault("debate.cycle_deadline_seconds", &d.CycleDeadlineSeconds, defaultCycleDeadline),
		intFieldDefault("debate.thinking_max_chars", &d.ThinkingMaxChars, defaultThinkingMax),
		intFieldDefault("debate.breaker_threshold", &d.BreakerThreshold, defaultBreakerFailures),
		intFieldDefault("debate.breaker_cooldown_seconds", &d.BreakerCooldownSeconds, defaultBreakerCooldown),
		stringFieldDefault("debate.structured_output", &d.StructuredOutput, OutputJSONSchema),
		boolFieldDefault("debate.parallel", &d.Parallel, true),
	)
	d.StructuredOutput = strings.ToLower(strings.TrimSpace(d.StructuredOutput))
}

func (e *ExchangeConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("exchange.kind", &e.Kind, ExchangePaper),
		intFieldDefault("exchange.timeout_seconds", &e.TimeoutSeconds, defaultExchangeTimeout),
	)
	e.Kind = strings.ToLower(strings.TrimSpace(e.Kind))
}

func (m *MonitorConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		intFieldDefault("monitor.max_attempts", &m.MaxAttempts, defaultMonitorAttempts),
		intFieldDefault("monitor.interval_seconds", &m.IntervalSeconds, defaultMonitorInterval),
	)
}

func (n *NewsConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("news.url", &n.URL, defaultNewsURL),
		intFieldDefault("news.max_items", &n.MaxItems, defaultNewsMaxItems),
		intFieldDefault("news.timeout_seconds", &n.TimeoutSeconds, defaultNewsTimeout),
		intFieldDefault("news.article_interval_ms", &n.ArticleIntervalMS, defaultNewsArticleMS),
	)
}

func (p *ProviderConfig) normalize() {
	p.ID = strings.TrimSpace(p.ID)
	p.Kind = strings.ToLower(strings.TrimSpace(p.Kind))
	p.Model = strings.TrimSpace(p.Model)
	p.Endpoint = strings.TrimSpace(p.Endpoint)
	p.APIKeyEnv = strings.TrimSpace(p.APIKeyEnv)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return strings.TrimSpace(*target) == "" },
		apply: func() { *target = def },
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return *target <= 0 },
		apply: func() { *target = def },
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return *target <= 0 },
		apply: func() { *target = def },
	}
}

// boolFieldDefault only applies when the key is absent; false is a valid
// explicit value.
func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:   key,
		apply: func() { *target = def },
	}
}
