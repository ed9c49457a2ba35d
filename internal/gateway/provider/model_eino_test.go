package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestEinoOpenAIFallsBackToJSONObject(t *testing.T) {
	var (
		mu    sync.Mutex
		modes []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		rf, _ := body["response_format"].(map[string]any)
		mode, _ := rf["type"].(string)
		mu.Lock()
		modes = append(modes, mode)
		mu.Unlock()
		if mode == "json_schema" {
			js, _ := rf["json_schema"].(map[string]any)
			assert.Equal(t, "vote", js["name"])
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"response_format json_schema is not supported by this model","type":"invalid_request_error"}}`))
			return
		}
		writeCompletion(w, `{"Decision":"SELL","Rating":3,"Thinking":"fading"}`)
	}))
	defer srv.Close()

	c, err := NewEinoOpenAIClient(context.Background(), EinoConfig{
		ID: "native", BaseURL: srv.URL + "/v1", APIKey: "sk-test", Model: "m", Timeout: time.Second, Format: testFormat,
	})
	require.NoError(t, err)
	require.NotNil(t, c.strict)

	out, err := c.Send(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "SELL", gjson.Get(out, "Decision").String())

	_, err = c.Send(context.Background(), []Message{{Role: RoleUser, Content: "hi again"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"json_schema", "json_object", "json_object"}, modes)
}

func TestEinoOpenAIWithoutSchemaUsesJSONObject(t *testing.T) {
	var modes []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		rf, _ := body["response_format"].(map[string]any)
		mode, _ := rf["type"].(string)
		modes = append(modes, mode)
		writeCompletion(w, `{"Decision":"HOLD","Rating":2}`)
	}))
	defer srv.Close()

	c, err := NewEinoOpenAIClient(context.Background(), EinoConfig{
		ID: "native", BaseURL: srv.URL, APIKey: "sk-test", Model: "m", Timeout: time.Second,
	})
	require.NoError(t, err)
	assert.Nil(t, c.strict)

	out, err := c.Send(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "HOLD", gjson.Get(out, "Decision").String())
	assert.Equal(t, []string{"json_object"}, modes)
}

func TestIsFormatRejection(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sentinel", fmt.Errorf("wrapped: %w", ErrSchemaRejected), true},
		{"schema 400", errors.New("error, status code: 400, status: 400 Bad Request, message: response_format json_schema is not supported"), true},
		{"schema 422", errors.New("error, status code: 422, message: structured outputs unavailable"), true},
		{"other 400", errors.New("error, status code: 400, message: context length exceeded"), false},
		{"server error", errors.New("error, status code: 500, message: response_format backend crashed"), false},
		{"network", errors.New("dial tcp: connection refused"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, isFormatRejection(tc.err))
		})
	}
}
