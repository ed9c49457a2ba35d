package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tradecouncil/internal/logger"
)

const (
	KindOpenAICompat = "openai_compat"
	KindOpenAINative = "openai_native"
	KindDeepSeek     = "deepseek"
	KindAnthropic    = "anthropic"
)

type ModelCfg struct {
	ID, Kind, Endpoint, APIKey, Model string
	Enabled                           bool
	Headers                           map[string]string
}

// BuildProvidersFromConfig constructs one client per enabled model in
// declaration order. A model without an api key, or whose SDK client cannot
// be built, becomes a disabled client instead of aborting startup.
func BuildProvidersFromConfig(ctx context.Context, models []ModelCfg, timeout time.Duration, format ResponseFormat) []Client {
	out := make([]Client, 0, len(models))
	for _, m := range models {
		if !m.Enabled {
			continue
		}
		id := strings.TrimSpace(m.ID)
		if id == "" {
			base := strings.TrimSpace(m.Kind)
			if base == "" {
				base = "provider"
			}
			if model := strings.TrimSpace(m.Model); model != "" {
				id = fmt.Sprintf("%s:%s", base, model)
			} else {
				id = base
			}
			logger.Warnf("provider without id, generated %s", id)
		}
		if strings.TrimSpace(m.APIKey) == "" {
			logger.Warnf("provider %s has no api key, disabled", id)
			out = append(out, NewDisabledClient(id))
			continue
		}
		client, err := buildClient(ctx, id, m, timeout, format)
		if err != nil {
			logger.Errorf("provider %s: %v, disabled", id, err)
			out = append(out, NewDisabledClient(id))
			continue
		}
		out = append(out, client)
	}
	return out
}

func buildClient(ctx context.Context, id string, m ModelCfg, timeout time.Duration, format ResponseFormat) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(m.Kind)) {
	case "", KindOpenAICompat:
		return NewOpenAICompatClient(OpenAICompatConfig{
			ID:         id,
			BaseURL:    m.Endpoint,
			APIKey:     m.APIKey,
			Model:      m.Model,
			Timeout:    timeout,
			MaxRetries: 2,
			Headers:    m.Headers,
			Format:     format,
		}), nil
	case KindOpenAINative:
		return NewEinoOpenAIClient(ctx, EinoConfig{
			ID: id, BaseURL: m.Endpoint, APIKey: m.APIKey, Model: m.Model, Timeout: timeout, Format: format,
		})
	case KindDeepSeek:
		return NewEinoDeepSeekClient(ctx, EinoConfig{
			ID: id, BaseURL: m.Endpoint, APIKey: m.APIKey, Model: m.Model, Timeout: timeout, Format: format,
		})
	case KindAnthropic:
		return NewAnthropicClient(AnthropicConfig{
			ID:         id,
			BaseURL:    m.Endpoint,
			APIKey:     m.APIKey,
			Model:      m.Model,
			Timeout:    timeout,
			MaxRetries: 2,
			Prefill:    format.Schema != nil,
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider kind %q", m.Kind)
	}
}
