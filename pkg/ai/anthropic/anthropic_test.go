package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ndltd-tw/papergraph/pkg/ai"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const messageStart = `event: message_start
data: {"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"claude-test","content":[],"stop_reason":null,"usage":{"input_tokens":42,"output_tokens":1}}}

event: content_block_start
data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}

`

const sseBody = messageStart + `event: ping
data: {"type":"ping"}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"主要"}}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"文章"}}

event: content_block_stop
data: {"type":"content_block_stop","index":0}

event: message_delta
data: {"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"input_tokens":42,"output_tokens":7}}

event: message_stop
data: {"type":"message_stop"}

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

func replay(t *testing.T, status int, body string, onRequest func(r *http.Request, payload map[string]any)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if onRequest != nil {
			var payload map[string]any
			raw, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(raw, &payload))
			onRequest(r, payload)
		}
		if status == http.StatusOK {
			w.Header().Set("Content-Type", "text/event-stream")
		} else {
			w.Header().Set("Content-Type", "application/json")
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerateStream(t *testing.T) {
	var payload map[string]any
	var req *http.Request
	srv := replay(t, http.StatusOK, sseBody, func(r *http.Request, p map[string]any) {
		req, payload = r, p
	})

	c, err := NewAnthropicClient(NewAnthropicClientParams{APIKey: "secret", BaseURL: srv.URL, Model: "claude-test"})
	require.NoError(t, err)

	ch, err := c.GenerateStream(context.Background(), "compare", ai.WithTemperature(0.5), ai.WithSystemPrompts("be brief"))
	require.NoError(t, err)
	text, err := collect(t, ch)
	require.NoError(t, err)
	assert.Equal(t, "主要文章", text)

	require.NotNil(t, req)
	assert.Equal(t, "/v1/messages", req.URL.Path)
	assert.Equal(t, "secret", req.Header.Get("X-Api-Key"))
	assert.NotEmpty(t, req.Header.Get("Anthropic-Version"))

	assert.Equal(t, "claude-test", payload["model"])
	assert.Equal(t, true, payload["stream"])
	assert.EqualValues(t, defaultMaxTokens, payload["max_tokens"])
	assert.Equal(t, 0.5, payload["temperature"])
	assert.Equal(t, []any{map[string]any{"type": "text", "text": "be brief"}}, payload["system"])

	messages := payload["messages"].([]any)
	require.Len(t, messages, 1)
	first := messages[0].(map[string]any)
	assert.Equal(t, "user", first["role"])
	assert.Equal(t, []any{map[string]any{"type": "text", "text": "compare"}}, first["content"])

	m := c.GetMetrics()
	assert.Equal(t, 42, m.InputTokens)
	assert.Equal(t, 7, m.OutputTokens)
	assert.Equal(t, 49, m.TotalTokens)

	c.ResetMetrics()
	assert.Zero(t, c.GetMetrics().TotalTokens)
}

func TestGenerateStream_StatusError(t *testing.T) {
	srv := replay(t, http.StatusUnauthorized,
		`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`, nil)

	c, err := NewAnthropicClient(NewAnthropicClientParams{APIKey: "bad", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.GenerateStream(context.Background(), "compare")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")

	var apiErr *anthropic.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestGenerateStream_ErrorEvent(t *testing.T) {
	srv := replay(t, http.StatusOK, messageStart+
		"event: content_block_delta\n"+
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"partial"}}`+"\n\n"+
		"event: error\n"+
		`data: {"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`+"\n\n", nil)

	c, err := NewAnthropicClient(NewAnthropicClientParams{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	ch, err := c.GenerateStream(context.Background(), "compare")
	require.NoError(t, err)
	text, err := collect(t, ch)
	assert.Equal(t, "partial", text)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overloaded_error")
	assert.Zero(t, c.GetMetrics().TotalTokens)
}

func TestNewAnthropicClient_Defaults(t *testing.T) {
	_, err := NewAnthropicClient(NewAnthropicClientParams{})
	assert.Error(t, err)

	c, err := NewAnthropicClient(NewAnthropicClientParams{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, ai.DefaultModel(ai.ProviderAnthropic), c.model)
	assert.NotNil(t, c.Client)
}
