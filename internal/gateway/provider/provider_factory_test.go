package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildProvidersFromConfig(t *testing.T) {
	models := []ModelCfg{
		{ID: "gpt", Kind: KindOpenAICompat, APIKey: "k1", Model: "gpt-4o", Enabled: true},
		{ID: "off", Kind: KindOpenAICompat, APIKey: "k2", Enabled: false},
		{ID: "nokey", Kind: KindAnthropic, Model: "claude", Enabled: true},
		{Kind: KindAnthropic, APIKey: "k3", Model: "claude-x", Enabled: true},
		{ID: "weird", Kind: "carrier-pigeon", APIKey: "k4", Enabled: true},
	}
	clients := BuildProvidersFromConfig(context.Background(), models, time.Second, ResponseFormat{})
	require.Len(t, clients, 4)

	assert.Equal(t, "gpt", clients[0].ID())
	assert.True(t, clients[0].Enabled())

	assert.Equal(t, "nokey", clients[1].ID())
	assert.False(t, clients[1].Enabled())

	assert.Equal(t, "anthropic:claude-x", clients[2].ID())
	assert.IsType(t, &AnthropicClient{}, clients[2])

	assert.False(t, clients[3].Enabled())
}

func TestDisabledClientReturnsSentinel(t *testing.T) {
	c := NewDisabledClient("x")
	for i := 0; i < 2; i++ {
		_, err := c.Send(context.Background(), nil)
		assert.True(t, errors.Is(err, ErrDisabled))
		var pe *Error
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, KindDisabled, pe.Kind)
	}
}

func TestWrapClassifiesContextErrors(t *testing.T) {
	var pe *Error
	require.True(t, errors.As(Wrap("p", context.DeadlineExceeded), &pe))
	assert.Equal(t, KindTimeout, pe.Kind)
	assert.Nil(t, Wrap("p", nil))
}
