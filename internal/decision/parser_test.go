package decision

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestParser(t *testing.T) *Parser {
	t.Helper()
	p, err := NewParser(DefaultThinkingLimit)
	require.NoError(t, err)
	return p
}

func TestParseBareObject(t *testing.T) {
	p := newTestParser(t)
	v, err := p.Parse("a", `{"Decision":"BUY","Rating":4,"Thinking":"ok"}`)
	require.NoError(t, err)
	assert.Equal(t, Vote{ProviderID: "a", Action: ActionBuy, Rating: 4, Rationale: "ok"}, v)
}

func TestParseFencedMatchesBare(t *testing.T) {
	p := newTestParser(t)
	body := `{"Decision":"sell","Rating":3.5,"Thinking":"momentum fading"}`
	bare, err := p.Parse("a", body)
	require.NoError(t, err)
	fenced, err := p.Parse("a", "```json\n"+body+"\n```")
	require.NoError(t, err)
	assert.Equal(t, bare, fenced)
	assert.Equal(t, ActionSell, fenced.Action)
}

func TestParseProseAroundObject(t *testing.T) {
	p := newTestParser(t)
	v, err := p.Parse("a", `After weighing it all: {"decision": "Hold", "rating": "2", "thinking": "range bound"} that's my call.`)
	require.NoError(t, err)
	assert.Equal(t, ActionHold, v.Action)
	assert.Equal(t, 2.0, v.Rating)
	assert.Equal(t, "range bound", v.Rationale)
}

func TestParseDropsSeveralObjects(t *testing.T) {
	p := newTestParser(t)
	_, err := p.Parse("a", `{"Decision":"BUY","Rating":4} or maybe {"Decision":"WAIT","Rating":1}`)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoVote)
}

func TestParseDropsNonObjectJSON(t *testing.T) {
	p := newTestParser(t)
	for _, raw := range []string{
		`[{"Decision":"SELL","Rating":5}]`,
		"```json\n[{\"Decision\":\"BUY\",\"Rating\":4}]\n```",
		`"BUY"`,
	} {
		_, err := p.Parse("a", raw)
		require.Error(t, err, raw)
		assert.ErrorIs(t, err, ErrNoVote, raw)
	}
}

func TestParseRejectsInvalidVotes(t *testing.T) {
	p := newTestParser(t)
	cases := map[string]string{
		"no json":        "I think we should buy.",
		"bad action":     `{"Decision":"SHORT","Rating":3}`,
		"rating high":    `{"Decision":"BUY","Rating":6}`,
		"rating low":     `{"Decision":"BUY","Rating":0.5}`,
		"rating missing": `{"Decision":"BUY"}`,
		"rating text":    `{"Decision":"BUY","Rating":"strong"}`,
		"provider error": "[provider error] provider a: timeout: context deadline exceeded",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := p.Parse("a", raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrNoVote))
		})
	}
}

func TestParseTruncatesThinking(t *testing.T) {
	p, err := NewParser(10)
	require.NoError(t, err)
	v, err := p.Parse("a", `{"Decision":"WAIT","Rating":1,"Thinking":"`+strings.Repeat("x", 50)+`"}`)
	require.NoError(t, err)
	assert.Len(t, v.Rationale, 10)
}

func TestParseAction(t *testing.T) {
	a, ok := ParseAction(" buy ")
	assert.True(t, ok)
	assert.Equal(t, ActionBuy, a)
	_, ok = ParseAction("pass")
	assert.False(t, ok)
}
