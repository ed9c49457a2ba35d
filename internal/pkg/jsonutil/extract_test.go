package jsonutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFencedBlock(t *testing.T) {
	body, ok := FencedBlock("Here is the JSON:\n```json\n{\"Decision\": \"SELL\"}\n```")
	assert.True(t, ok)
	assert.Equal(t, `{"Decision": "SELL"}`, body)

	body, ok = FencedBlock("```\n{\"a\":1}\n```")
	assert.True(t, ok)
	assert.Equal(t, `{"a":1}`, body)

	_, ok = FencedBlock("```json\n{\"a\":1}")
	assert.False(t, ok, "unterminated fence")

	_, ok = FencedBlock("no fences at all")
	assert.False(t, ok)
}

func TestBraceSpan(t *testing.T) {
	span, ok := BraceSpan(`I think {"Decision":"BUY","Rating":4} is right. }`)
	assert.True(t, ok)
	assert.Equal(t, `{"Decision":"BUY","Rating":4} is right. }`, span)

	_, ok = BraceSpan("} before {")
	assert.False(t, ok)
}
