package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	DefaultTelegramURL = "https://api.telegram.org"
	defaultTimeout     = 15 * time.Second
	sendAttempts       = 3
)

type TelegramConfig struct {
	BotToken string
	ChatID   string
	// BaseURL overrides the Bot API host, mainly for tests.
	BaseURL string
	Timeout time.Duration
}

// Telegram posts Markdown messages through the Bot API, retrying transport
// errors and non-2xx answers a few times with a growing back-off.
type Telegram struct {
	chatID string
	client *resty.Client
}

func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	if strings.TrimSpace(cfg.BotToken) == "" || strings.TrimSpace(cfg.ChatID) == "" {
		return nil, fmt.Errorf("telegram requires bot token and chat id")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultTelegramURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	client := resty.New().
		SetBaseURL(base+"/bot"+cfg.BotToken).
		SetTimeout(cfg.Timeout).
		SetRetryCount(sendAttempts-1).
		SetRetryWaitTime(time.Second).
		SetRetryMaxWaitTime(3*time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode()/100 != 2
		})
	return &Telegram{chatID: cfg.ChatID, client: client}, nil
}

func (t *Telegram) SendText(ctx context.Context, text string) error {
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"chat_id":    t.chatID,
			"text":       text,
			"parse_mode": "Markdown",
		}).
		Post("/sendMessage")
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	if resp.StatusCode()/100 != 2 {
		return fmt.Errorf("telegram status=%d", resp.StatusCode())
	}
	return nil
}
