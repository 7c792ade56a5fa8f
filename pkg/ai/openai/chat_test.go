package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ndltd-tw/papergraph/pkg/ai"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chunkStream = `data: {"id":"cc_1","object":"chat.completion.chunk","created":1,"model":"gpt-test","choices":[{"index":0,"delta":{"role":"assistant","content":""},"finish_reason":null}]}

data: {"id":"cc_1","object":"chat.completion.chunk","created":1,"model":"gpt-test","choices":[{"index":0,"delta":{"content":"主要"},"finish_reason":null}]}

data: {"id":"cc_1","object":"chat.completion.chunk","created":1,"model":"gpt-test","choices":[{"index":0,"delta":{"content":"文章"},"finish_reason":null}]}

data: {"id":"cc_1","object":"chat.completion.chunk","created":1,"model":"gpt-test","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}

data: {"id":"cc_1","object":"chat.completion.chunk","created":1,"model":"gpt-test","choices":[],"usage":{"prompt_tokens":30,"completion_tokens":4,"total_tokens":34}}

data: [DONE]

`

func collect(t *testing.T, ch <-chan ai.StreamEvent) (string, error) {
	t.Helper()
	var sb strings.Builder
	var err error
	for ev := range ch {
		switch ev.Type {
		case ai.EventContent:
			sb.WriteString(ev.Content)
		case ai.EventError:
			err = ev.Err
		}
	}
	return sb.String(), err
}

func TestGenerateStream(t *testing.T) {
	var path, auth string
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path, auth = r.URL.Path, r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &payload))
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, chunkStream)
	}))
	t.Cleanup(srv.Close)

	c, err := NewOpenAIClient(NewOpenAIClientParams{APIKey: "sk-test", BaseURL: srv.URL, Model: "gpt-test"})
	require.NoError(t, err)

	ch, err := c.GenerateStream(context.Background(), "compare", ai.WithSystemPrompts("be brief"), ai.WithMaxOutputTokens(256))
	require.NoError(t, err)
	text, err := collect(t, ch)
	require.NoError(t, err)
	assert.Equal(t, "主要文章", text)

	assert.Equal(t, "/chat/completions", path)
	assert.Equal(t, "Bearer sk-test", auth)
	assert.Equal(t, "gpt-test", payload["model"])
	assert.Equal(t, true, payload["stream"])
	assert.EqualValues(t, 1, payload["temperature"])
	assert.EqualValues(t, 256, payload["max_completion_tokens"])
	assert.Equal(t, map[string]any{"include_usage": true}, payload["stream_options"])

	messages := payload["messages"].([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, "user", messages[1].(map[string]any)["role"])
	assert.Equal(t, "compare", messages[1].(map[string]any)["content"])

	m := c.GetMetrics()
	assert.Equal(t, 30, m.InputTokens)
	assert.Equal(t, 4, m.OutputTokens)
	assert.Equal(t, 34, m.TotalTokens)
}

func TestGenerateStream_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`)
	}))
	t.Cleanup(srv.Close)

	c, err := NewOpenAIClient(NewOpenAIClientParams{APIKey: "bad", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.GenerateStream(context.Background(), "compare")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Zero(t, c.GetMetrics().TotalTokens)
}

func TestNewOpenAIClient_RequiresKey(t *testing.T) {
	_, err := NewOpenAIClient(NewOpenAIClientParams{})
	assert.Error(t, err)

	c, err := NewOpenAIClient(NewOpenAIClientParams{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, ai.DefaultModel(ai.ProviderOpenAI), c.model)
}
