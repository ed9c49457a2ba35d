package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

var testFormat = ResponseFormat{
	Name: "vote",
	Schema: map[string]any{
		"type":     "object",
		"required": []string{"Decision"},
		"properties": map[string]any{
			"Decision": map[string]any{"type": "string"},
		},
	},
}

func writeCompletion(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": content}}},
	})
}

func TestOpenAICompatFallsBackToJSONObject(t *testing.T) {
	var modes []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		rf, _ := body["response_format"].(map[string]any)
		mode, _ := rf["type"].(string)
		modes = append(modes, mode)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		if mode == "json_schema" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"response_format json_schema is not supported by this model"}}`))
			return
		}
		writeCompletion(w, `{"Decision":"BUY","Rating":4,"Thinking":"ok"}`)
	}))
	defer srv.Close()

	c := NewOpenAICompatClient(OpenAICompatConfig{
		ID: "gw", BaseURL: srv.URL + "/v1", APIKey: "sk-test", Model: "m", Timeout: time.Second, Format: testFormat,
	})
	out, err := c.Send(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "BUY", gjson.Get(out, "Decision").String())

	_, err = c.Send(context.Background(), []Message{{Role: RoleUser, Content: "hi again"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"json_schema", "json_object", "json_object"}, modes)
}

func TestOpenAICompatAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
	}))
	defer srv.Close()

	c := NewOpenAICompatClient(OpenAICompatConfig{ID: "gw", BaseURL: srv.URL, APIKey: "bad", Model: "m"})
	_, err := c.Send(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	var pe *Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, KindAuth, pe.Kind)
	assert.Equal(t, http.StatusUnauthorized, pe.Status)
}

func TestOpenAICompatRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeCompletion(w, `{"Decision":"HOLD","Rating":2}`)
	}))
	defer srv.Close()

	c := NewOpenAICompatClient(OpenAICompatConfig{ID: "gw", BaseURL: srv.URL, APIKey: "k", Model: "m", MaxRetries: 1})
	out, err := c.Send(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	require.NoError(t, err)
	assert.Contains(t, out, "HOLD")
	assert.Equal(t, int32(2), calls.Load())
}

func TestOpenAICompatTimeoutIsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := NewOpenAICompatClient(OpenAICompatConfig{ID: "slow", BaseURL: srv.URL, APIKey: "k", Model: "m"})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Send(ctx, []Message{{Role: RoleUser, Content: "hi"}})
	var pe *Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "slow", pe.ProviderID)
}

func TestCompletionsURL(t *testing.T) {
	assert.Equal(t, "https://api.openai.com/v1/chat/completions", completionsURL(""))
	assert.Equal(t, "http://x/v1/chat/completions", completionsURL("http://x/v1/"))
	assert.Equal(t, "http://x/v1/chat/completions", completionsURL("http://x/v1/chat/completions"))
}
