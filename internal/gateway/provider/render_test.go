package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderForTagsOtherProviders(t *testing.T) {
	transcript := []Message{
		{Role: RoleSystem, Content: "be terse"},
		{Role: RoleUser, Content: "BTC/USDT context"},
		{Role: RoleAssistant, ProviderID: "a", Content: `{"Decision":"BUY"}`},
		{Role: RoleAssistant, ProviderID: "b", Content: `{"Decision":"SELL"}`},
	}

	conv := RenderFor("a", transcript)
	assert.Equal(t, "be terse", conv.System)
	require.Len(t, conv.Turns, 3)
	assert.Equal(t, RoleUser, conv.Turns[0].Role)
	assert.Equal(t, RoleAssistant, conv.Turns[1].Role)
	assert.Equal(t, `{"Decision":"BUY"}`, conv.Turns[1].Content)
	assert.Equal(t, RoleUser, conv.Turns[2].Role)
	assert.Equal(t, `[b] {"Decision":"SELL"}`, conv.Turns[2].Content)
}

func TestRenderForEndsOnUserTurn(t *testing.T) {
	transcript := []Message{
		{Role: RoleUser, Content: "context"},
		{Role: RoleAssistant, ProviderID: "a", Content: "first answer"},
	}
	conv := RenderFor("a", transcript)
	require.Len(t, conv.Turns, 3)
	last := conv.Turns[len(conv.Turns)-1]
	assert.Equal(t, RoleUser, last.Role)
	assert.Equal(t, continuePrompt, last.Content)
}

func TestMergeUserTurns(t *testing.T) {
	merged := MergeUserTurns([]Message{
		{Role: RoleUser, Content: "one"},
		{Role: RoleUser, Content: "two"},
		{Role: RoleAssistant, Content: "three"},
		{Role: RoleUser, Content: "four"},
	})
	require.Len(t, merged, 3)
	assert.Equal(t, "one\n\ntwo", merged[0].Content)
	assert.Equal(t, "four", merged[2].Content)
}
