package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"tradecouncil/internal/logger"

	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/openai"
	acl "github.com/cloudwego/eino-ext/libs/acl/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/getkin/kin-openapi/openapi3"
)

// EinoClient drives a native eino chat model. It holds a strict model and a
// loose fallback model; the strict one is skipped for good after the backend
// rejects it once.
type EinoClient struct {
	id     string
	strict model.BaseChatModel
	loose  model.BaseChatModel

	strictRejected atomic.Bool
}

type EinoConfig struct {
	ID      string
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	Format  ResponseFormat
}

// NewEinoOpenAIClient requests json_schema output first and json_object on
// rejection.
func NewEinoOpenAIClient(ctx context.Context, cfg EinoConfig) (*EinoClient, error) {
	loose, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  cfg.APIKey,
		BaseURL: strings.TrimSpace(cfg.BaseURL),
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
		ResponseFormat: &acl.ChatCompletionResponseFormat{
			Type: acl.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("eino openai model %s: %w", cfg.ID, err)
	}
	c := &EinoClient{id: cfg.ID, loose: loose}
	if cfg.Format.Schema == nil {
		return c, nil
	}
	js, err := toOpenAPISchema(cfg.Format.Schema)
	if err != nil {
		return nil, fmt.Errorf("eino openai schema %s: %w", cfg.ID, err)
	}
	name := cfg.Format.Name
	if name == "" {
		name = "response"
	}
	strict, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  cfg.APIKey,
		BaseURL: strings.TrimSpace(cfg.BaseURL),
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
		ResponseFormat: &acl.ChatCompletionResponseFormat{
			Type: acl.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &acl.ChatCompletionResponseFormatJSONSchema{
				Name:   name,
				Strict: true,
				Schema: js,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("eino openai strict model %s: %w", cfg.ID, err)
	}
	c.strict = strict
	return c, nil
}

// NewEinoDeepSeekClient uses DeepSeek's native API. DeepSeek has no schema
// mode, so json_object is the strict tier and plain text the fallback.
func NewEinoDeepSeekClient(ctx context.Context, cfg EinoConfig) (*EinoClient, error) {
	base := deepseek.ChatModelConfig{
		APIKey:  cfg.APIKey,
		BaseURL: strings.TrimSpace(cfg.BaseURL),
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
	}
	strictCfg := base
	strictCfg.ResponseFormatType = deepseek.ResponseFormatTypeJSONObject
	strict, err := deepseek.NewChatModel(ctx, &strictCfg)
	if err != nil {
		return nil, fmt.Errorf("eino deepseek model %s: %w", cfg.ID, err)
	}
	looseCfg := base
	looseCfg.ResponseFormatType = deepseek.ResponseFormatTypeText
	loose, err := deepseek.NewChatModel(ctx, &looseCfg)
	if err != nil {
		return nil, fmt.Errorf("eino deepseek model %s: %w", cfg.ID, err)
	}
	return &EinoClient{id: cfg.ID, strict: strict, loose: loose}, nil
}

func toOpenAPISchema(src map[string]any) (*openapi3.Schema, error) {
	raw, err := json.Marshal(src)
	if err != nil {
		return nil, err
	}
	var s openapi3.Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *EinoClient) ID() string    { return c.id }
func (c *EinoClient) Enabled() bool { return true }

func (c *EinoClient) Send(ctx context.Context, transcript []Message) (string, error) {
	conv := RenderFor(c.id, transcript)
	input := toEinoMessages(conv)
	if c.strict != nil && !c.strictRejected.Load() {
		out, err := c.generate(ctx, c.strict, conv, input, "strict")
		if err == nil || !isFormatRejection(err) {
			return out, err
		}
		c.strictRejected.Store(true)
		logger.Warnf("provider %s rejected strict output mode, falling back: %v", c.id, err)
	}
	return c.generate(ctx, c.loose, conv, input, "loose")
}

func (c *EinoClient) generate(ctx context.Context, m model.BaseChatModel, conv Conversation, input []*schema.Message, mode string) (string, error) {
	logConversation(c.id, mode, conv, "")
	msg, err := m.Generate(ctx, input)
	if err != nil {
		if isFormatRejection(err) {
			return "", err
		}
		return "", Wrap(c.id, err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return "", &Error{ProviderID: c.id, Kind: KindEmpty, Err: errors.New("empty completion")}
	}
	logger.LogLLMResponse(c.id, mode, msg.Content)
	return msg.Content, nil
}

func toEinoMessages(conv Conversation) []*schema.Message {
	out := make([]*schema.Message, 0, len(conv.Turns)+1)
	if conv.System != "" {
		out = append(out, schema.SystemMessage(conv.System))
	}
	for _, t := range conv.Turns {
		role := schema.User
		if t.Role == RoleAssistant {
			role = schema.Assistant
		}
		out = append(out, &schema.Message{Role: role, Content: t.Content})
	}
	return out
}

// isFormatRejection inspects SDK errors, which only expose status and
// message through their text.
func isFormatRejection(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSchemaRejected) {
		return true
	}
	msg := err.Error()
	status := 0
	switch {
	case strings.Contains(msg, "400"):
		status = 400
	case strings.Contains(msg, "422"):
		status = 422
	}
	return looksLikeFormatRejection(status, msg)
}
