package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"tradecouncil/internal/logger"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

const anthropicVersion = "2023-06-01"

// AnthropicClient calls the Messages API. Structured output is coaxed with an
// assistant prefill of "{"; backends that refuse prefill get the plain form.
type AnthropicClient struct {
	id        string
	model     string
	apiKey    string
	maxTokens int
	prefill   bool
	rc        *resty.Client

	prefillRejected atomic.Bool
}

type AnthropicConfig struct {
	ID         string
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	MaxTokens  int
	Prefill    bool
}

func NewAnthropicClient(cfg AnthropicConfig) *AnthropicClient {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = "https://api.anthropic.com"
	}
	base = strings.TrimSuffix(base, "/v1/messages")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	rc := resty.New().
		SetBaseURL(base).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(800*time.Millisecond).
		SetRetryMaxWaitTime(8*time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err == nil && r != nil && retryableStatus(r.StatusCode())
		}).
		SetHeader("x-api-key", cfg.APIKey).
		SetHeader("anthropic-version", anthropicVersion).
		SetHeader("content-type", "application/json")
	return &AnthropicClient{
		id:        cfg.ID,
		model:     cfg.Model,
		apiKey:    cfg.APIKey,
		maxTokens: cfg.MaxTokens,
		prefill:   cfg.Prefill,
		rc:        rc,
	}
}

func (c *AnthropicClient) ID() string    { return c.id }
func (c *AnthropicClient) Enabled() bool { return true }

func (c *AnthropicClient) Send(ctx context.Context, transcript []Message) (string, error) {
	conv := RenderFor(c.id, transcript)
	if c.prefill && !c.prefillRejected.Load() {
		out, err := c.complete(ctx, conv, true)
		if !errors.Is(err, ErrSchemaRejected) {
			return out, err
		}
		c.prefillRejected.Store(true)
		logger.Warnf("provider %s rejected assistant prefill, retrying without it", c.id)
	}
	out, err := c.complete(ctx, conv, false)
	if errors.Is(err, ErrSchemaRejected) {
		return "", &Error{ProviderID: c.id, Kind: KindStatus, Status: http.StatusBadRequest, Err: err}
	}
	return out, err
}

func (c *AnthropicClient) complete(ctx context.Context, conv Conversation, prefill bool) (string, error) {
	turns := MergeUserTurns(conv.Turns)
	messages := make([]map[string]string, 0, len(turns)+1)
	for _, t := range turns {
		messages = append(messages, map[string]string{"role": string(t.Role), "content": t.Content})
	}
	if prefill {
		messages = append(messages, map[string]string{"role": string(RoleAssistant), "content": "{"})
	}
	body := map[string]any{
		"model":      c.model,
		"max_tokens": c.maxTokens,
		"messages":   messages,
	}
	if conv.System != "" {
		body["system"] = conv.System
	}
	mode := "plain"
	if prefill {
		mode = "prefill"
	}
	logConversation(c.id, mode, conv, "")
	logger.Debugf("provider %s: POST /v1/messages model=%s mode=%s auth=%s", c.id, c.model, mode, maskKey(c.apiKey))

	resp, err := c.rc.R().SetContext(ctx).SetBody(body).Post("/v1/messages")
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", Wrap(c.id, ctxErr)
		}
		return "", Wrap(c.id, err)
	}
	raw := resp.Body()
	if !resp.IsSuccess() {
		msg := gjson.GetBytes(raw, "error.message").String()
		if msg == "" {
			msg = resp.Status()
		}
		if prefill && looksLikeFormatRejection(resp.StatusCode(), msg) {
			return "", fmt.Errorf("%w: %s", ErrSchemaRejected, msg)
		}
		return "", statusError(c.id, resp.StatusCode(), msg)
	}
	var sb strings.Builder
	for _, block := range gjson.GetBytes(raw, "content").Array() {
		if block.Get("type").String() == "text" {
			sb.WriteString(block.Get("text").String())
		}
	}
	text := sb.String()
	if strings.TrimSpace(text) == "" {
		return "", &Error{ProviderID: c.id, Kind: KindEmpty, Err: errors.New("empty content")}
	}
	if prefill && !strings.HasPrefix(strings.TrimSpace(text), "{") {
		text = "{" + text
	}
	logger.LogLLMResponse(c.id, mode, text)
	return text, nil
}
