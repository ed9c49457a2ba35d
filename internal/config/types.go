package config

import "strings"

// Config is the typed root of config.yaml.
type Config struct {
	App       AppConfig        `toml:"app"`
	Trading   TradingConfig    `toml:"trading"`
	Risk      RiskConfig       `toml:"risk"`
	Debate    DebateConfig     `toml:"debate"`
	Providers []ProviderConfig `toml:"providers"`
	Exchange  ExchangeConfig   `toml:"exchange"`
	Monitor   MonitorConfig    `toml:"monitor"`
	News      NewsConfig       `toml:"news"`
	Notify    NotifyConfig     `toml:"notify"`
	Deriv     DerivConfig      `toml:"derivatives"`
	Database  DatabaseConfig   `toml:"database"`
	Prompts   PromptConfig     `toml:"prompts"`

	// path is the file Load was called with; the risk watcher re-reads it.
	path string
}

// Path returns the top-level file this config was loaded from.
func (c *Config) Path() string { return c.path }

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	// HTTPAddr enables the status API when set.
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
	LLMLog   string `toml:"llm_log_path"`
	LLMDump  bool   `toml:"llm_dump_payload"`
}

type TradingConfig struct {
	Symbol               string   `toml:"symbol"`
	QuoteCurrency        string   `toml:"quote_currency"`
	CycleIntervalMinutes int      `toml:"cycle_interval_minutes"`
	AlignToInterval      bool     `toml:"align_to_interval"`
	RunOnce              bool     `toml:"run_once"`
	OrderType            string   `toml:"order_type"`
	DefaultSize          float64  `toml:"default_size"`
	Timeframes           []string `toml:"timeframes"`
	KlineLimit           int      `toml:"kline_limit"`
}

type RiskConfig struct {
	MaxPositionSize float64 `toml:"max_position_size"`
	PerTradeRiskCap float64 `toml:"per_trade_risk_cap"`
	// Watch re-reads the risk section when the config file changes.
	Watch bool `toml:"watch"`
}

type DebateConfig struct {
	Rounds                 int    `toml:"rounds"`
	CallTimeoutSeconds     int    `toml:"call_timeout_seconds"`
	CycleDeadlineSeconds   int    `toml:"cycle_deadline_seconds"`
	Parallel               bool   `toml:"parallel"`
	ThinkingMaxChars       int    `toml:"thinking_max_chars"`
	StructuredOutput       string `toml:"structured_output"`
	BreakerThreshold       int    `toml:"breaker_threshold"`
	BreakerCooldownSeconds int    `toml:"breaker_cooldown_seconds"`
}

// ProviderConfig describes one reasoning backend. APIKeyEnv names an
// environment variable that wins over APIKey when set.
type ProviderConfig struct {
	ID        string            `toml:"id"`
	Kind      string            `toml:"kind"`
	Model     string            `toml:"model"`
	APIKey    string            `toml:"api_key"`
	APIKeyEnv string            `toml:"api_key_env"`
	Endpoint  string            `toml:"endpoint"`
	Headers   map[string]string `toml:"headers"`
	Enabled   *bool             `toml:"enabled"`
}

// IsEnabled treats an omitted enabled flag as true.
func (p ProviderConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

type ExchangeConfig struct {
	Kind           string      `toml:"kind"`
	APIKey         string      `toml:"api_key"`
	APIKeyEnv      string      `toml:"api_key_env"`
	APISecret      string      `toml:"api_secret"`
	APISecretEnv   string      `toml:"api_secret_env"`
	Testnet        bool        `toml:"testnet"`
	RESTBaseURL    string      `toml:"rest_base_url"`
	ProxyURL       string      `toml:"proxy_url"`
	TimeoutSeconds int         `toml:"timeout_seconds"`
	Paper          PaperConfig `toml:"paper"`
}

func (e ExchangeConfig) IsPaper() bool {
	return strings.EqualFold(strings.TrimSpace(e.Kind), ExchangePaper)
}

type PaperConfig struct {
	Balances map[string]float64 `toml:"balances"`
	Price    float64            `toml:"price"`
	Seed     int64              `toml:"seed"`
}

type MonitorConfig struct {
	MaxAttempts     int `toml:"max_attempts"`
	IntervalSeconds int `toml:"interval_seconds"`
}

type NewsConfig struct {
	Enabled           bool   `toml:"enabled"`
	URL               string `toml:"url"`
	MaxItems          int    `toml:"max_items"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
	FetchArticles     bool   `toml:"fetch_articles"`
	ArticleIntervalMS int    `toml:"article_interval_ms"`
}

// DerivConfig enables Gate.io perpetual metrics (funding rate, open
// interest) in the decision context.
type DerivConfig struct {
	Enabled        bool   `toml:"enabled"`
	RESTBaseURL    string `toml:"rest_base_url"`
	ProxyURL       string `toml:"proxy_url"`
	Period         string `toml:"period"`
	Limit          int    `toml:"limit"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// NotifyConfig enables Telegram messages for placed orders and failed cycles.
type NotifyConfig struct {
	Enabled     bool   `toml:"enabled"`
	BotToken    string `toml:"bot_token"`
	BotTokenEnv string `toml:"bot_token_env"`
	ChatID      string `toml:"chat_id"`
	BaseURL     string `toml:"base_url"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type PromptConfig struct {
	// Path of prompts.yaml; relative paths resolve against the config file.
	Path string `toml:"path"`
}

type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
