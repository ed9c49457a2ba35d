package config

import (
	"fmt"
	"strings"

	"tradecouncil/internal/gateway/provider"
	"tradecouncil/internal/pkg/symbol"
	"tradecouncil/internal/risk"
)

func validate(c *Config) error {
	if err := c.Trading.validate(); err != nil {
		return err
	}
	if err := c.Risk.validate(); err != nil {
		return err
	}
	if err := c.Debate.validate(); err != nil {
		return err
	}
	if err := validateProviders(c.Providers); err != nil {
		return err
	}
	if err := c.Exchange.validate(); err != nil {
		return err
	}
	if c.Monitor.MaxAttempts <= 0 || c.Monitor.IntervalSeconds < 0 {
		return fmt.Errorf("monitor.max_attempts must be > 0 and monitor.interval_seconds >= 0")
	}
	if c.Notify.Enabled && (strings.TrimSpace(c.Notify.BotToken) == "" || strings.TrimSpace(c.Notify.ChatID) == "") {
		return fmt.Errorf("notify.enabled requires bot_token (or bot_token_env) and chat_id")
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		return fmt.Errorf("database.path is required")
	}
	return nil
}

func (t *TradingConfig) validate() error {
	if !symbol.Parse(t.Symbol).Valid() {
		return fmt.Errorf("trading.symbol %q is not a BASE/QUOTE pair", t.Symbol)
	}
	if t.CycleIntervalMinutes <= 0 {
		return fmt.Errorf("trading.cycle_interval_minutes must be > 0")
	}
	if t.DefaultSize <= 0 {
		return fmt.Errorf("trading.default_size must be > 0")
	}
	switch t.OrderType {
	case "market", "limit":
	default:
		return fmt.Errorf("trading.order_type must be market or limit, got %q", t.OrderType)
	}
	return nil
}

func (r *RiskConfig) validate() error {
	return risk.Config{MaxPositionSize: r.MaxPositionSize, PerTradeRiskCap: r.PerTradeRiskCap}.Validate()
}

func (d *DebateConfig) validate() error {
	if d.Rounds <= 0 {
		return fmt.Errorf("debate.rounds must be > 0")
	}
	if d.CallTimeoutSeconds <= 0 {
		return fmt.Errorf("debate.call_timeout_seconds must be > 0")
	}
	if d.CycleDeadlineSeconds < 0 {
		return fmt.Errorf("debate.cycle_deadline_seconds must be >= 0")
	}
	switch d.StructuredOutput {
	case OutputJSONSchema, OutputJSONObject:
	default:
		return fmt.Errorf("debate.structured_output must be %s or %s", OutputJSONSchema, OutputJSONObject)
	}
	return nil
}

func validateProviders(list []ProviderConfig) error {
	if len(list) == 0 {
		return fmt.Errorf("providers requires at least one entry")
	}
	seen := make(map[string]bool, len(list))
	for i, p := range list {
		name := p.ID
		if name == "" {
			name = fmt.Sprintf("#%d", i)
		}
		switch p.Kind {
		case "", provider.KindOpenAICompat, provider.KindOpenAINative, provider.KindDeepSeek, provider.KindAnthropic:
		default:
			return fmt.Errorf("providers.%s has unknown kind %q", name, p.Kind)
		}
		if p.Model == "" {
			return fmt.Errorf("providers.%s missing model", name)
		}
		if p.ID != "" {
			if seen[p.ID] {
				return fmt.Errorf("providers contains duplicate id %s", p.ID)
			}
			seen[p.ID] = true
		}
	}
	return nil
}

func (e *ExchangeConfig) validate() error {
	switch e.Kind {
	case ExchangePaper:
		for ccy, v := range e.Paper.Balances {
			if v < 0 {
				return fmt.Errorf("exchange.paper.balances.%s must be >= 0", ccy)
			}
		}
	case ExchangeBinance:
		if e.APIKey == "" || e.APISecret == "" {
			return fmt.Errorf("exchange binance requires api_key and api_secret (or their _env variables)")
		}
	default:
		return fmt.Errorf("exchange.kind must be %s or %s, got %q", ExchangePaper, ExchangeBinance, e.Kind)
	}
	return nil
}
