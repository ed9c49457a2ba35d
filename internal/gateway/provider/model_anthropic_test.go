package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type anthropicRequest struct {
	System   string `json:"system"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func TestAnthropicPrefillIsRestored(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "sys", req.System)
		last := req.Messages[len(req.Messages)-1]
		assert.Equal(t, "assistant", last.Role)
		assert.Equal(t, "{", last.Content)
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"\"Decision\":\"SELL\",\"Rating\":3}"}]}`))
	}))
	defer srv.Close()

	c := NewAnthropicClient(AnthropicConfig{ID: "claude", BaseURL: srv.URL, APIKey: "key", Model: "m", Prefill: true})
	out, err := c.Send(context.Background(), []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "context"},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"Decision":"SELL","Rating":3}`, out)
}

func TestAnthropicDropsPrefillOnRejection(t *testing.T) {
	var prefilled []bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		last := req.Messages[len(req.Messages)-1]
		isPrefill := last.Role == "assistant"
		prefilled = append(prefilled, isPrefill)
		if isPrefill {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"this model does not support assistant message prefill"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"{\"Decision\":\"WAIT\",\"Rating\":2}"}]}`))
	}))
	defer srv.Close()

	c := NewAnthropicClient(AnthropicConfig{ID: "claude", BaseURL: srv.URL, APIKey: "key", Model: "m", Prefill: true})
	out, err := c.Send(context.Background(), []Message{{Role: RoleUser, Content: "context"}})
	require.NoError(t, err)
	assert.Contains(t, out, "WAIT")
	assert.Equal(t, []bool{true, false}, prefilled)
}
