package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"tradecouncil/internal/logger"

	"github.com/tidwall/gjson"
)

// OpenAICompatClient talks to any /v1/chat/completions endpoint (OpenAI,
// OpenRouter, DashScope compatible mode, Gemini's OpenAI surface...).
type OpenAICompatClient struct {
	id           string
	baseURL      string
	apiKey       string
	model        string
	timeout      time.Duration
	maxRetries   int
	temperature  float64
	extraHeaders map[string]string
	format       ResponseFormat
	httpc        *http.Client

	// once the backend rejects json_schema we stay on json_object
	schemaRejected atomic.Bool
}

type OpenAICompatConfig struct {
	ID          string
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	MaxRetries  int
	Temperature float64
	Headers     map[string]string
	Format      ResponseFormat
}

func NewOpenAICompatClient(cfg OpenAICompatConfig) *OpenAICompatClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &OpenAICompatClient{
		id:           cfg.ID,
		baseURL:      completionsURL(cfg.BaseURL),
		apiKey:       cfg.APIKey,
		model:        cfg.Model,
		timeout:      cfg.Timeout,
		maxRetries:   cfg.MaxRetries,
		temperature:  cfg.Temperature,
		extraHeaders: cfg.Headers,
		format:       cfg.Format,
		httpc:        &http.Client{Timeout: cfg.Timeout},
	}
}

func completionsURL(base string) string {
	url := strings.TrimRight(strings.TrimSpace(base), "/")
	if url == "" {
		url = "https://api.openai.com/v1"
	}
	url = strings.TrimSuffix(url, "/chat/completions")
	return url + "/chat/completions"
}

func (c *OpenAICompatClient) ID() string    { return c.id }
func (c *OpenAICompatClient) Enabled() bool { return true }

func (c *OpenAICompatClient) Send(ctx context.Context, transcript []Message) (string, error) {
	conv := RenderFor(c.id, transcript)
	if c.format.Schema != nil && !c.schemaRejected.Load() {
		out, err := c.complete(ctx, conv, c.schemaFormat())
		if !errors.Is(err, ErrSchemaRejected) {
			return out, err
		}
		c.schemaRejected.Store(true)
		logger.Warnf("provider %s rejected json_schema output, falling back to json_object", c.id)
	}
	out, err := c.complete(ctx, conv, map[string]any{"type": "json_object"})
	if errors.Is(err, ErrSchemaRejected) {
		return "", &Error{ProviderID: c.id, Kind: KindStatus, Status: http.StatusBadRequest, Err: err}
	}
	return out, err
}

func (c *OpenAICompatClient) schemaFormat() map[string]any {
	name := c.format.Name
	if name == "" {
		name = "response"
	}
	return map[string]any{
		"type": "json_schema",
		"json_schema": map[string]any{
			"name":   name,
			"strict": true,
			"schema": c.format.Schema,
		},
	}
}

func (c *OpenAICompatClient) buildBody(conv Conversation, responseFormat map[string]any) ([]byte, error) {
	messages := make([]map[string]string, 0, len(conv.Turns)+1)
	if conv.System != "" {
		messages = append(messages, map[string]string{"role": string(RoleSystem), "content": conv.System})
	}
	for _, t := range conv.Turns {
		messages = append(messages, map[string]string{"role": string(t.Role), "content": t.Content})
	}
	body := map[string]any{
		"model":       c.model,
		"messages":    messages,
		"temperature": c.temperature,
	}
	if responseFormat != nil {
		body["response_format"] = responseFormat
	}
	return json.Marshal(body)
}

func (c *OpenAICompatClient) complete(ctx context.Context, conv Conversation, responseFormat map[string]any) (string, error) {
	b, err := c.buildBody(conv, responseFormat)
	if err != nil {
		return "", &Error{ProviderID: c.id, Kind: KindNetwork, Err: err}
	}
	mode, _ := responseFormat["type"].(string)
	logConversation(c.id, mode, conv, string(b))
	logger.Debugf("provider %s: POST %s model=%s mode=%s auth=%s", c.id, c.baseURL, c.model, mode, maskKey(c.apiKey))

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(b))
		if err != nil {
			return "", Wrap(c.id, err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
		for k, v := range c.extraHeaders {
			req.Header.Set(k, v)
		}

		resp, err := c.httpc.Do(req)
		if err != nil {
			return "", Wrap(c.id, err)
		}
		raw, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return "", Wrap(c.id, readErr)
		}
		if resp.StatusCode/100 == 2 {
			content := gjson.GetBytes(raw, "choices.0.message.content")
			if !content.Exists() || strings.TrimSpace(content.String()) == "" {
				return "", &Error{ProviderID: c.id, Kind: KindEmpty, Err: errors.New("empty choices")}
			}
			out := content.String()
			logger.LogLLMResponse(c.id, mode, out)
			return out, nil
		}

		msg := gjson.GetBytes(raw, "error.message").String()
		if msg == "" {
			msg = resp.Status
		}
		if responseFormat != nil && looksLikeFormatRejection(resp.StatusCode, msg) {
			return "", fmt.Errorf("%w: %s", ErrSchemaRejected, msg)
		}
		lastErr = statusError(c.id, resp.StatusCode, msg)
		if !retryableStatus(resp.StatusCode) || attempt >= c.maxRetries {
			break
		}
		wait := retryAfter(resp.Header.Get("Retry-After"), attempt)
		select {
		case <-ctx.Done():
			return "", Wrap(c.id, ctx.Err())
		case <-time.After(wait):
		}
	}
	return "", lastErr
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// retryAfter honours a Retry-After seconds header, else backs off 0.8s, 1.6s, ... capped at 8s.
func retryAfter(header string, attempt int) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	wait := (800 * time.Millisecond) << attempt
	if wait > 8*time.Second {
		wait = 8 * time.Second
	}
	return wait
}
